package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the appointment does not exist for the calling tenant.
	// Another tenant's appointment with the same id is indistinguishable from
	// a missing one on purpose.
	ErrNotFound = errors.New("appointment not found")

	// ErrFingerprintMismatch means an idempotency key was reused for a
	// different logical request. Client bug, not retryable with the same key.
	ErrFingerprintMismatch = errors.New("idempotency key reused with a different payload")
)

// ValidationError reports a malformed request payload.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Detail
}

// InvalidTransitionError reports a status move outside the allowed edge table.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

// VersionConflictError reports a failed compare-and-swap. It carries the
// stored version and status so the caller can reconcile without a second
// round trip.
type VersionConflictError struct {
	CurrentVersion int64
	CurrentStatus  Status
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict: appointment is at version %d (%s)", e.CurrentVersion, e.CurrentStatus)
}
