package cli

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Steps prints a startup checklist, one line per step.
type Steps struct {
	mu     sync.Mutex
	writer io.Writer
	failed int
}

// NewSteps creates a checklist writing to w. If w is nil, it defaults to
// os.Stdout.
func NewSteps(w io.Writer) *Steps {
	if w == nil {
		w = os.Stdout
	}
	return &Steps{writer: w}
}

// Done reports a completed step.
func (s *Steps) Done(format string, args ...any) {
	s.line("✓", format, args...)
}

// Warn reports a step that completed in a degraded way.
func (s *Steps) Warn(format string, args ...any) {
	s.line("!", format, args...)
}

// Fail reports a failed step.
func (s *Steps) Fail(format string, args ...any) {
	s.mu.Lock()
	s.failed++
	s.mu.Unlock()
	s.line("✗", format, args...)
}

// Failed returns the number of failed steps.
func (s *Steps) Failed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

func (s *Steps) line(mark, format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.writer, "%s %s\n", mark, fmt.Sprintf(format, args...))
}
