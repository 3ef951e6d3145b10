// Package validator holds the input validation rules applied at the CLI
// and API boundaries before any system state is touched.
package validator

import (
	"fmt"
	"net"
	"regexp"
	"strings"
)

// Supported application types.
const (
	TypeNextJS  = "nextjs"
	TypeNodeJS  = "nodejs"
	TypeFastAPI = "fastapi"
	TypeStatic  = "static"
)

// AppTypes lists the supported application types in display order.
var AppTypes = []string{TypeNextJS, TypeNodeJS, TypeFastAPI, TypeStatic}

var (
	labelRe  = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?$`)
	tldRe    = regexp.MustCompile(`^[A-Za-z]{2,}$`)
	emailRe  = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	envVarRe = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)
)

// Domain validates an RFC 1123 style domain name: dot-separated labels of
// 1-63 characters, no leading or trailing hyphens, alphabetic TLD of at
// least two characters.
func Domain(domain string) error {
	domain = strings.TrimSpace(strings.ToLower(domain))
	if domain == "" {
		return fmt.Errorf("domain is required")
	}
	if len(domain) > 253 {
		return fmt.Errorf("domain %q exceeds 253 characters", domain)
	}
	if net.ParseIP(domain) != nil {
		return fmt.Errorf("domain %q must be a hostname, not an IP address", domain)
	}

	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return fmt.Errorf("domain %q must contain at least one dot", domain)
	}
	for _, label := range labels {
		if len(label) == 0 || len(label) > 63 {
			return fmt.Errorf("domain %q has a label outside 1-63 characters", domain)
		}
		if !labelRe.MatchString(label) {
			return fmt.Errorf("domain %q contains invalid label %q", domain, label)
		}
	}
	if !tldRe.MatchString(labels[len(labels)-1]) {
		return fmt.Errorf("domain %q has an invalid top-level domain", domain)
	}
	return nil
}

// Port validates an application port. Ports below 1024 are reserved for
// system services; nginx owns 80/443.
func Port(port int) error {
	if port < 1024 || port > 65535 {
		return fmt.Errorf("port %d out of range (must be 1024-65535)", port)
	}
	return nil
}

// Branch validates a git branch name against the ref-name rules that
// matter in practice.
func Branch(branch string) error {
	if strings.TrimSpace(branch) == "" {
		return fmt.Errorf("branch name is required")
	}
	if strings.HasPrefix(branch, "-") {
		return fmt.Errorf("branch %q must not start with a hyphen", branch)
	}
	if strings.Contains(branch, "..") {
		return fmt.Errorf("branch %q must not contain '..'", branch)
	}
	if strings.ContainsAny(branch, " ~^:?*[\\") {
		return fmt.Errorf("branch %q contains invalid characters", branch)
	}
	if strings.HasSuffix(branch, "/") || strings.HasSuffix(branch, ".lock") {
		return fmt.Errorf("branch %q has an invalid suffix", branch)
	}
	return nil
}

// Email validates an email address for certbot registration.
func Email(email string) error {
	if !emailRe.MatchString(email) {
		return fmt.Errorf("invalid email address %q", email)
	}
	return nil
}

// AppType validates an application type string.
func AppType(appType string) error {
	for _, t := range AppTypes {
		if appType == t {
			return nil
		}
	}
	return fmt.Errorf("unknown app type %q (supported: %s)", appType, strings.Join(AppTypes, ", "))
}

// EnvVarName validates an environment variable name. Uppercase with
// underscores keeps systemd EnvironmentFile parsing predictable.
func EnvVarName(name string) error {
	if !envVarRe.MatchString(name) {
		return fmt.Errorf("invalid environment variable name %q (must match [A-Z_][A-Z0-9_]*)", name)
	}
	return nil
}

// EnvVars validates a full set of environment variable names.
func EnvVars(vars map[string]string) error {
	for name := range vars {
		if err := EnvVarName(name); err != nil {
			return err
		}
	}
	return nil
}
