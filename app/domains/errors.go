package domains

import (
	"errors"
	"fmt"
)

// ErrNoCapacity is returned by placement when no compatible node is
// under the capacity threshold.
var ErrNoCapacity = errors.New("no available nodes for game")

// ActionFailedError carries a stable, user-facing reason for a failed
// workflow operation. Transport detail never leaks through it.
type ActionFailedError struct {
	Reason string
}

func (e *ActionFailedError) Error() string { return e.Reason }

// ActionFailed builds an ActionFailedError.
func ActionFailed(reason string) error {
	return &ActionFailedError{Reason: reason}
}

// ConflictError signals a name/ownership uniqueness violation.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

// PermissionError signals an unverified account or a preset outside the
// caller's group allow-list.
type PermissionError struct {
	Reason string
}

func (e *PermissionError) Error() string { return e.Reason }

// DoubleFaultError signals that a compensating rollback itself failed.
// The orphaned local record remains for operator follow-up; this error
// must never be swallowed.
type DoubleFaultError struct {
	Op          string
	Cause       error
	RollbackErr error
}

func (e *DoubleFaultError) Error() string {
	return fmt.Sprintf("%s failed (%v) and rollback also failed: %v", e.Op, e.Cause, e.RollbackErr)
}

func (e *DoubleFaultError) Unwrap() error { return e.Cause }
