package pipeline

import (
	"fmt"
	"io"
)

// Reporter receives step-by-step progress for the user-facing output.
type Reporter interface {
	StepDone(name string)
	StepFailed(name string, err error)
	Info(msg string)
}

type consoleReporter struct {
	out io.Writer
}

// NewConsoleReporter writes one glyph-prefixed line per pipeline step.
func NewConsoleReporter(out io.Writer) Reporter {
	return &consoleReporter{out: out}
}

func (r *consoleReporter) StepDone(name string) {
	fmt.Fprintf(r.out, "✓ %s\n", name)
}

func (r *consoleReporter) StepFailed(name string, err error) {
	fmt.Fprintf(r.out, "✗ %s: %v\n", name, err)
}

func (r *consoleReporter) Info(msg string) {
	fmt.Fprintf(r.out, "  %s\n", msg)
}
