package internal

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is matched by every NotFoundError.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned by stores when (user_id, merchant_key) already exists.
	ErrDuplicate = errors.New("subscription already exists for merchant")
)

// ValidationError describes a malformed transaction input. Detection counts
// and skips these; ingestion reports them per record.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidDateError is returned when a cancellation date precedes the subscription start.
type InvalidDateError struct {
	CancellationDate time.Time
	StartDate        time.Time
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("cancellation date %s is before subscription start %s",
		FormatDate(e.CancellationDate), FormatDate(e.StartDate))
}

// AlreadyCancelledError is returned when prorating or cancelling a cancelled subscription.
type AlreadyCancelledError struct {
	ID string
}

func (e *AlreadyCancelledError) Error() string {
	return fmt.Sprintf("subscription %s is already cancelled", e.ID)
}

// NotFoundError is returned for unknown subscription ids.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("subscription %s not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
