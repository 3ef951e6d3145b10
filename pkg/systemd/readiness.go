package systemd

import "strings"

// Readiness is the verdict on a freshly started service.
type Readiness int

const (
	// ReadinessFailed means the journal shows errors.
	ReadinessFailed Readiness = iota
	// ReadinessVerified means a startup phrase appeared with no errors.
	ReadinessVerified
	// ReadinessUnconfirmed means the service runs but said nothing
	// recognizable either way.
	ReadinessUnconfirmed
)

func (r Readiness) String() string {
	switch r {
	case ReadinessFailed:
		return "failed"
	case ReadinessVerified:
		return "verified"
	default:
		return "unconfirmed"
	}
}

// ReadinessMatcher judges service startup from recent journal output.
// Phrase matching against free-form logs is inherently heuristic, so it
// lives behind an interface that probes or framework-specific matchers
// can replace.
type ReadinessMatcher interface {
	Classify(journal string) Readiness
}

// PhraseMatcher is the default matcher: scan for known startup and error
// phrases emitted by the supported frameworks.
type PhraseMatcher struct {
	SuccessPhrases []string
	ErrorPhrases   []string
}

// NewPhraseMatcher returns the matcher with the stock phrase lists.
func NewPhraseMatcher() *PhraseMatcher {
	return &PhraseMatcher{
		SuccessPhrases: []string{"Ready in", "server started", "listening on", "Started", "✓"},
		ErrorPhrases:   []string{"Error:", "ERROR", "Failed", "Exception", "Cannot"},
	}
}

func (m *PhraseMatcher) Classify(journal string) Readiness {
	hasError := containsAny(journal, m.ErrorPhrases)
	hasSuccess := containsAny(journal, m.SuccessPhrases)

	switch {
	case hasError:
		return ReadinessFailed
	case hasSuccess:
		return ReadinessVerified
	default:
		return ReadinessUnconfirmed
	}
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
