package runner

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineNotFound means the engine binary can not be resolved or
	// executed. Fatal for a whole batch.
	ErrEngineNotFound = errors.New("engine not found")

	// ErrEngineFailed means the engine exited non-zero.
	ErrEngineFailed = errors.New("engine run failed")

	// ErrTimeout means the engine was killed for exceeding its max runtime
	// or idle timeout.
	ErrTimeout = errors.New("engine timed out")

	// ErrEngineEnv means an engine_env entry can not be resolved.
	ErrEngineEnv = errors.New("invalid engine environment")
)

// RunError describes an engine run that finished badly.
type RunError struct {
	Reason   string
	ExitCode int
	Err      error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Reason)
}

func (e *RunError) Unwrap() error { return e.Err }
