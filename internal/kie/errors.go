package kie

import (
	"errors"
	"fmt"
)

// ErrJobTimeout is returned when the poll budget is exhausted while the remote
// job is still pending.
var ErrJobTimeout = errors.New("kie: job timed out")

// InsufficientCreditsError is returned when task creation is rejected with the
// provider's out-of-credits code. It is never retried.
type InsufficientCreditsError struct {
	Message string
}

func (e *InsufficientCreditsError) Error() string {
	if e.Message == "" {
		return "kie: credits are insufficient"
	}
	return "kie: " + e.Message
}

// JobFailedError is a terminal failure reported by the provider for a task.
type JobFailedError struct {
	Code    string
	Message string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("kie: task failed: %s (code: %s)", e.Message, e.Code)
}

// IsNonRetryable reports whether err is a definitive provider answer that
// retrying the whole generate sequence cannot fix.
func IsNonRetryable(err error) bool {
	var credits *InsufficientCreditsError
	var failed *JobFailedError
	return errors.As(err, &credits) || errors.As(err, &failed) || errors.Is(err, ErrJobTimeout)
}
