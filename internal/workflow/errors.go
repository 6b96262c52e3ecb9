package workflow

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned by Step when cancellation was requested for the job.
var ErrCancelled = errors.New("cancelled")

// StepError reports a step that exhausted its retries or failed permanently.
type StepError struct {
	Step     string
	Attempts int
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed after %d attempts: %v", e.Step, e.Attempts, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// PanicError carries a panic recovered from workflow or step code.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

func (e *PanicError) ErrorClass() string { return "panic" }
