package guard

import (
	"errors"
	"fmt"
)

var (
	// ErrLockContention means another caller holds the lock for the same
	// key, the protected operation was not invoked.
	ErrLockContention = errors.New("duplicate submission, lock is held")
	// ErrLockUnavailable means the lock store could not be reached, the
	// protected operation was not invoked.
	ErrLockUnavailable = errors.New("lock store unavailable")
	// ErrOperationFailed matches every *OperationError.
	ErrOperationFailed = errors.New("protected operation failed")

	ErrInvalidConfig    = errors.New("invalid guard config")
	ErrUnknownOperation = errors.New("unknown guarded operation")
)

// OperationError carries the failure of a protected operation that ran
// while holding the lock.
type OperationError struct {
	Operation string
	Key       string
	Err       error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation %s under lock[%s] failed: %v", e.Operation, e.Key, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

func (e *OperationError) Is(target error) bool {
	return target == ErrOperationFailed
}
