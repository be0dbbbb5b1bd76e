package health

import (
	"context"
	"errors"
	"fmt"
	"os"

	"wayfarer-hq/keeper/pkg/supervisor"
)

// StatusReporter is implemented by the process supervisor.
type StatusReporter interface {
	Status() supervisor.Status
}

// ProcessCheck fails while the supervised proxy is not running. The message
// is the supervisor's own summary (reason, exit code or signal).
func ProcessCheck(p StatusReporter) CheckFunc {
	return func(ctx context.Context) error {
		st := p.Status()
		if st.Alive() {
			return nil
		}
		return errors.New(st.Summary())
	}
}

// ExecutableCheck fails unless path is a regular file with an execute bit.
func ExecutableCheck(path string) CheckFunc {
	return func(ctx context.Context) error {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("binary unavailable: %w", err)
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("binary %s is not a regular file", path)
		}
		if info.Mode().Perm()&0o111 == 0 {
			return fmt.Errorf("binary %s is not executable", path)
		}
		return nil
	}
}

// FileCheck fails when the runtime config at path is missing.
func FileCheck(path string) CheckFunc {
	return func(ctx context.Context) error {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("file unavailable: %w", err)
		}
		return nil
	}
}
