package runner

import (
	"context"
	"io"
	"strings"
	"sync"
)

// Fake is a scripted Runner for tests. Responses are matched by command
// prefix; unmatched commands succeed with empty output.
type Fake struct {
	mu        sync.Mutex
	responses map[string]fakeResponse
	missing   map[string]bool
	Calls     []string
}

type fakeResponse struct {
	result Result
	err    error
	fn     func(rendered string) (Result, error)
}

// NewFake returns an empty scripted runner.
func NewFake() *Fake {
	return &Fake{
		responses: make(map[string]fakeResponse),
		missing:   make(map[string]bool),
	}
}

// Respond scripts the result for any command whose rendered form starts
// with prefix, e.g. "systemctl is-active".
func (f *Fake) Respond(prefix string, res Result, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[prefix] = fakeResponse{result: res, err: err}
}

// RespondWith scripts a function for matching commands. The function can
// perform the filesystem side effects the real command would have, e.g.
// creating the directory a clone would produce.
func (f *Fake) RespondWith(prefix string, fn func(rendered string) (Result, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[prefix] = fakeResponse{fn: fn}
}

// MarkMissing makes CommandExists return false for name.
func (f *Fake) MarkMissing(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.missing[name] = true
}

// CallsMatching returns recorded calls that start with prefix.
func (f *Fake) CallsMatching(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.Calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (f *Fake) Run(_ context.Context, name string, args ...string) (Result, error) {
	return f.dispatch(name, args)
}

func (f *Fake) RunIn(_ context.Context, _, name string, args ...string) (Result, error) {
	return f.dispatch(name, args)
}

func (f *Fake) RunSudo(_ context.Context, name string, args ...string) (Result, error) {
	return f.dispatch(name, args)
}

func (f *Fake) RunSudoStream(_ context.Context, out io.Writer, name string, args ...string) error {
	res, err := f.dispatch(name, args)
	io.WriteString(out, res.Combined())
	return err
}

func (f *Fake) CommandExists(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.missing[name]
}

func (f *Fake) dispatch(name string, args []string) (Result, error) {
	rendered := strings.TrimSpace(name + " " + strings.Join(args, " "))
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, rendered)

	// Longest matching prefix wins so tests can script both "git" and
	// "git clone" without ordering surprises.
	var best string
	for prefix := range f.responses {
		if strings.HasPrefix(rendered, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best != "" {
		r := f.responses[best]
		if r.fn != nil {
			return r.fn(rendered)
		}
		return r.result, r.err
	}
	return Result{}, nil
}
