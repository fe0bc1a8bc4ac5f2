package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned by Start while another run is active.
	ErrAlreadyRunning = errors.New("pipeline run already active")
	// ErrDiscarded resolves handles of runs abandoned through Discard.
	ErrDiscarded = errors.New("pipeline run discarded")
)

// StageFailure records the stage that terminated a run.
type StageFailure struct {
	Stage string
	Err   error
}

func (e *StageFailure) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("stage %s failed", e.Stage)
	}
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageFailure) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

type panicError struct {
	value any
}

func (e panicError) Error() string {
	return fmt.Sprintf("stage panicked: %v", e.value)
}
