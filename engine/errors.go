package engine

import "fmt"

// PreExecSetupError wraps any failure observed by the parent before the
// child's exit status can be classified: fork, cgroup creation/attach, or
// pipe handshake failures. No RunResult is produced for these.
type PreExecSetupError struct {
	Stage string
	Err   error
}

func (e *PreExecSetupError) Error() string {
	return fmt.Sprintf("engine: pre-exec setup failed at %s: %v", e.Stage, e.Err)
}

func (e *PreExecSetupError) Unwrap() error { return e.Err }

func preExecErr(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &PreExecSetupError{Stage: stage, Err: err}
}
