package provision

import (
	"errors"
	"fmt"
)

// ErrUnavailable is returned by Ensure when no strategy produced the binary.
// The returned error also joins every per-strategy failure.
var ErrUnavailable = errors.New("proxy binary unavailable")

// Stages at which a strategy can fail.
const (
	StageFetch      = "fetch"
	StageExtract    = "extract"
	StageVerify     = "verify"
	StagePermission = "permission"
)

// StrategyError describes one failed acquisition attempt.
type StrategyError struct {
	Strategy string
	Stage    string
	Err      error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("strategy %s failed at %s: %v", e.Strategy, e.Stage, e.Err)
}

func (e *StrategyError) Unwrap() error { return e.Err }

// stageError tags err with the stage it happened in. Strategies return it so
// the provisioner can report where the attempt broke.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.err.Error() }

func (e *stageError) Unwrap() error { return e.err }

func atStage(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &stageError{stage: stage, err: err}
}

// stageOf returns the stage recorded on err, defaulting to fetch.
func stageOf(err error) string {
	var se *stageError
	if errors.As(err, &se) {
		return se.stage
	}
	return StageFetch
}
