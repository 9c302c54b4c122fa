package domain

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

// Error categories. Every error leaving the gateway or the workflow carries
// exactly one of these marks; use errors.Is to classify.
var (
	ErrLocalValidation  = errors.New("local validation failed")
	ErrRemoteRejection  = errors.New("rejected by backend")
	ErrTransportFailure = errors.New("backend transport failure")
)

// Local validation, detected before any remote call.
var (
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrDateInPast      = errors.New("date precedes today")
	ErrEndBeforeStart  = errors.New("end date precedes start date")
	ErrPeriodTooShort  = errors.New("rental period shorter than minimum")
	ErrDateTooFar      = errors.New("start date too far in the future")
	ErrUnknownLocation = errors.New("location is not offered for this machine")
	ErrUnknownUnit     = errors.New("unit is not available at the selected location")
	ErrIncompleteDraft = errors.New("booking draft is incomplete")
)

// Remote rejections, mapped from structured backend responses.
var (
	ErrNotFound      = errors.New("customer not found")
	ErrForbidden     = errors.New("operation forbidden")
	ErrOverlap       = errors.New("period overlaps an existing rental")
	ErrInvalidPeriod = errors.New("period rejected by backend")
	ErrConflict      = errors.New("rental conflicts with an existing reservation")
	ErrInvalidPrice  = errors.New("rental price rejected")
	ErrNoMachine     = errors.New("machine not found")
)

// ErrTransport is the generic "try again" failure.
var ErrTransport = errors.New("backend unavailable")

// Workflow state errors. They describe misuse of the controller surface and
// carry no category.
var (
	ErrBusy            = errors.New("step is waiting for a backend response")
	ErrCannotAdvance   = errors.New("current step is not complete")
	ErrLastStep        = errors.New("already at the last step")
	ErrWrongStep       = errors.New("operation not allowed at the current step")
	ErrCustomerFrozen  = errors.New("customer already resolved")
	ErrSessionClosed   = errors.New("workflow session is closed")
	ErrSessionNotFound = errors.New("workflow session not found")
	ErrStaleResult     = errors.New("response arrived for a step that is no longer current")
)

func LocalValidation(err error) error {
	return errors.Mark(err, ErrLocalValidation)
}

func Rejection(err error) error {
	return errors.Mark(err, ErrRemoteRejection)
}

func Transport(err error) error {
	return errors.Mark(err, ErrTransportFailure)
}

// Category returns a short label for logs and metrics.
func Category(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrLocalValidation):
		return "local_validation"
	case errors.Is(err, ErrRemoteRejection):
		return "remote_rejection"
	case errors.Is(err, ErrTransportFailure):
		return "transport"
	default:
		return "internal"
	}
}

// OverlapError carries the conflicting range returned by period validation.
type OverlapError struct {
	RequestedStart time.Time
	RequestedEnd   time.Time
	ConflictStart  time.Time
	ConflictEnd    time.Time
	Message        string
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("requested %s..%s overlaps %s..%s",
		e.RequestedStart.Format("2006-01-02"), e.RequestedEnd.Format("2006-01-02"),
		e.ConflictStart.Format("2006-01-02"), e.ConflictEnd.Format("2006-01-02"))
}

func (e *OverlapError) Unwrap() error { return ErrOverlap }

// RejectionError keeps the backend's own reason next to the sentinel it maps to.
type RejectionError struct {
	Op     string
	Reason string
	Err    error
}

func (e *RejectionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Err, e.Reason)
}

func (e *RejectionError) Unwrap() error { return e.Err }
