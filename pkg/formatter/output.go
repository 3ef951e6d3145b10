// Package formatter renders human-facing terminal output for the CLI.
package formatter

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Terminal color codes.
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"

	ColorBold = "\033[1m"
	ColorDim  = "\033[2m"
)

// Message icons.
const (
	IconSuccess = "✓"
	IconError   = "✗"
	IconWarning = "⚠"
	IconInfo    = "→"
)

// Output provides formatted output methods.
type Output struct {
	w       io.Writer
	verbose bool
	noColor bool
}

// New creates an Output writing to stdout.
func New(verbose, noColor bool) *Output {
	return NewWriter(os.Stdout, verbose, noColor)
}

// NewWriter creates an Output writing to w.
func NewWriter(w io.Writer, verbose, noColor bool) *Output {
	return &Output{w: w, verbose: verbose, noColor: noColor}
}

func (o *Output) color(color, text string) string {
	if o.noColor {
		return text
	}
	return color + text + ColorReset
}

// Success prints a success message.
func (o *Output) Success(format string, args ...interface{}) {
	fmt.Fprintf(o.w, "%s %s\n", o.color(ColorGreen, IconSuccess), fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (o *Output) Error(format string, args ...interface{}) {
	fmt.Fprintf(o.w, "%s %s\n", o.color(ColorRed, IconError), fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (o *Output) Warning(format string, args ...interface{}) {
	fmt.Fprintf(o.w, "%s %s\n", o.color(ColorYellow, IconWarning), fmt.Sprintf(format, args...))
}

// Info prints an informational message.
func (o *Output) Info(format string, args ...interface{}) {
	fmt.Fprintf(o.w, "%s %s\n", o.color(ColorBlue, IconInfo), fmt.Sprintf(format, args...))
}

// Step prints a pipeline step message.
func (o *Output) Step(format string, args ...interface{}) {
	fmt.Fprintf(o.w, "%s %s\n", o.color(ColorCyan, IconInfo), fmt.Sprintf(format, args...))
}

// Verbose prints only when verbose mode is enabled.
func (o *Output) Verbose(format string, args ...interface{}) {
	if o.verbose {
		fmt.Fprintf(o.w, "  %s\n", o.color(ColorDim, fmt.Sprintf(format, args...)))
	}
}

// Section prints a section header.
func (o *Output) Section(title string) {
	fmt.Fprintf(o.w, "\n%s\n\n", o.color(ColorBold, "=== "+title+" ==="))
}

// Plain prints unformatted text.
func (o *Output) Plain(format string, args ...interface{}) {
	fmt.Fprintf(o.w, format+"\n", args...)
}

// Progress prints a [current/total] progress line.
func (o *Output) Progress(current, total int, format string, args ...interface{}) {
	fmt.Fprintf(o.w, "[%d/%d] %s\n", current, total, fmt.Sprintf(format, args...))
}

// KeyValue prints an indented key: value pair.
func (o *Output) KeyValue(key, value string) {
	fmt.Fprintf(o.w, "  %s: %s\n", o.color(ColorBold, key), value)
}

// Table prints a column-aligned table.
func (o *Output) Table(headers []string, rows [][]string) {
	if len(rows) == 0 {
		return
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var header strings.Builder
	for i, h := range headers {
		fmt.Fprintf(&header, "%-*s  ", widths[i], h)
	}
	fmt.Fprintln(o.w, o.color(ColorBold, header.String()))
	fmt.Fprintln(o.w, strings.Repeat("─", header.Len()))

	for _, row := range rows {
		var line strings.Builder
		for i, cell := range row {
			if i < len(widths) {
				fmt.Fprintf(&line, "%-*s  ", widths[i], cell)
			}
		}
		fmt.Fprintln(o.w, line.String())
	}
}

// Divider prints a horizontal rule.
func (o *Output) Divider() {
	fmt.Fprintln(o.w, strings.Repeat("─", 60))
}
