// Package progress reports deployment pipeline progress. The orchestrator
// takes a Reporter so command-line runs, quiet scripts and tests each get
// the rendering they want.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Reporter receives pipeline stage events.
type Reporter interface {
	// StageStart announces stage number of total with a human label.
	StageStart(number, total int, label string)
	// StageDone marks the current stage finished.
	StageDone(number, total int, label string)
	// StageFailed marks the current stage failed.
	StageFailed(number, total int, label string, err error)
	// Note emits an informational line tied to no particular stage.
	Note(format string, args ...interface{})
}

// Plain prints one line per stage event. This is the default for
// non-interactive runs and log capture.
type Plain struct {
	W io.Writer
}

func (p *Plain) StageStart(number, total int, label string) {
	fmt.Fprintf(p.W, "[%d/%d] %s...\n", number, total, label)
}

func (p *Plain) StageDone(number, total int, label string) {
	fmt.Fprintf(p.W, "[%d/%d] %s: done\n", number, total, label)
}

func (p *Plain) StageFailed(number, total int, label string, err error) {
	fmt.Fprintf(p.W, "[%d/%d] %s: failed: %v\n", number, total, label, err)
}

func (p *Plain) Note(format string, args ...interface{}) {
	fmt.Fprintf(p.W, "  "+format+"\n", args...)
}

// Live rewrites a single status line in place on a terminal, printing a
// permanent line only when a stage completes or fails.
type Live struct {
	W io.Writer

	mu      sync.Mutex
	lastLen int
}

func (l *Live) StageStart(number, total int, label string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rewrite(fmt.Sprintf("[%d/%d] %s...", number, total, label))
}

func (l *Live) StageDone(number, total int, label string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clear()
	fmt.Fprintf(l.W, "✓ %s\n", label)
}

func (l *Live) StageFailed(number, total int, label string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clear()
	fmt.Fprintf(l.W, "✗ %s: %v\n", label, err)
}

func (l *Live) Note(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clear()
	fmt.Fprintf(l.W, "  "+format+"\n", args...)
}

func (l *Live) rewrite(line string) {
	pad := ""
	if n := l.lastLen - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	fmt.Fprintf(l.W, "\r%s%s", line, pad)
	l.lastLen = len(line)
}

func (l *Live) clear() {
	if l.lastLen > 0 {
		fmt.Fprintf(l.W, "\r%s\r", strings.Repeat(" ", l.lastLen))
		l.lastLen = 0
	}
}

// Discard ignores all events. Used by tests and the dashboard's internal
// calls into the manager.
type Discard struct{}

func (Discard) StageStart(int, int, string)         {}
func (Discard) StageDone(int, int, string)          {}
func (Discard) StageFailed(int, int, string, error) {}
func (Discard) Note(string, ...interface{})         {}
