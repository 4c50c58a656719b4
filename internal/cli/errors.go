package cli

import "errors"

// ConfirmationDeniedError means the operator declined a destructive action.
// It is a clean abort, not a failure.
type ConfirmationDeniedError struct{}

func (e *ConfirmationDeniedError) Error() string {
	return "cleanup not confirmed"
}

// PartialError marks a run that finished but not cleanly: steps were skipped
// because the resources already existed, or some deletions and checks failed
// while the rest went through.
type PartialError struct {
	Reason string
	Err    error
}

func (e *PartialError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *PartialError) Unwrap() error {
	return e.Err
}

// ExitCode maps a command error to the process exit code: 0 for success or a
// declined confirmation, 1 for partial success, 2 for hard failure.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var denied *ConfirmationDeniedError
	if errors.As(err, &denied) {
		return 0
	}
	var partial *PartialError
	if errors.As(err, &partial) {
		return 1
	}
	return 2
}
