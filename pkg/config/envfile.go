package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// ReadEnvFile parses a .env file into a map. A missing file yields an
// empty map so callers can treat "no env file yet" as "no variables".
func ReadEnvFile(path string) (map[string]string, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}
	return vars, nil
}

// MergeEnvVars layers variable maps, later arguments winning. Used to
// stack defaults under operator-supplied values under an app's existing
// .env contents.
func MergeEnvVars(layers ...map[string]string) map[string]string {
	merged := make(map[string]string)
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}
	return merged
}

// WriteEnvFile serializes vars to path with 0600 permissions. The keys in
// first are written at the top in the given order; everything else follows
// alphabetically. godotenv's writer sorts all keys, which would bury the
// system-managed variables the operator expects to see first.
func WriteEnvFile(path string, vars map[string]string, first ...string) error {
	var b strings.Builder
	written := make(map[string]bool, len(vars))

	for _, k := range first {
		if v, ok := vars[k]; ok {
			writeEnvLine(&b, k, v)
			written[k] = true
		}
	}

	rest := make([]string, 0, len(vars))
	for k := range vars {
		if !written[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		writeEnvLine(&b, k, vars[k])
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("write env file %s: %w", path, err)
	}
	return nil
}

func writeEnvLine(b *strings.Builder, key, value string) {
	if strings.ContainsAny(value, " \t#\"'") {
		value = fmt.Sprintf("%q", value)
	}
	fmt.Fprintf(b, "%s=%s\n", key, value)
}
