package engine

import "errors"

var (
	ErrNotObtained     = errors.New("lock is held by another owner")
	ErrMalformedRecord = errors.New("malformed lock record")
	ErrInvalidArgument = errors.New("invalid lock argument")

	ErrScheduleFailed  = errors.New("failed to schedule delayed release")
	ErrSchedulerFull   = errors.New("scheduler is full")
	ErrSchedulerClosed = errors.New("scheduler is closed")
)
