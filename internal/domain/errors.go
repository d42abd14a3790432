package domain

import (
	"errors"
	"fmt"
)

// ValidationError covers malformed input: end <= start, past-dated ranges,
// out-of-range rule times. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// OutOfAvailabilityError means the candidate window is not inside any
// currently computable slot for the host.
type OutOfAvailabilityError struct {
	HostID int64
	Window TimeWindow
}

func (e *OutOfAvailabilityError) Error() string {
	return fmt.Sprintf("window %s is outside host %d availability", e.Window, e.HostID)
}

// ConflictError means an existing pending or confirmed booking (expanded by
// the rule buffer) overlaps the candidate window.
type ConflictError struct {
	HostID int64
	Window TimeWindow
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("window %s conflicts with an existing booking for host %d", e.Window, e.HostID)
}

// TransientStoreError wraps lock, timeout and connection failures during a
// reservation. Callers may retry a bounded number of times.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("transient store error during %s: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

// DeliveryError is raised by a notification transport. It is recovered by the
// queue processor's retry mechanism and never escalated to a synchronous
// caller.
type DeliveryError struct {
	Channel   NotificationChannel
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery via %s to %s failed: %v", e.Channel, e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// ErrInvalidTransition guards the booking and notification state machines.
var ErrInvalidTransition = errors.New("invalid status transition")

func IsTransient(err error) bool {
	var te *TransientStoreError
	return errors.As(err, &te)
}
