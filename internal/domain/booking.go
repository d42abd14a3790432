package domain

import (
	"strings"
	"time"
)

type BookingStatus string

const (
	BookingPendingPayment BookingStatus = "pending_payment"
	BookingConfirmed      BookingStatus = "confirmed"
	BookingCanceled       BookingStatus = "canceled"
	BookingPaymentFailed  BookingStatus = "payment_failed"
)

func ParseBookingStatus(s string) (BookingStatus, bool) {
	switch BookingStatus(s) {
	case BookingPendingPayment, BookingConfirmed, BookingCanceled, BookingPaymentFailed:
		return BookingStatus(s), true
	default:
		return "", false
	}
}

// Blocks reports whether a booking in this status occupies its time window
// for overlap checks. Only pending_payment and confirmed bookings block.
func (s BookingStatus) Blocks() bool {
	return s == BookingPendingPayment || s == BookingConfirmed
}

// Booking is a reserved time window for exactly one host. Start and end are
// UTC instants; Timezone is the zone the customer selected for display.
type Booking struct {
	ID          int64         `json:"id"`
	HostID      int64         `json:"host_id"`
	ManageToken string        `json:"manage_token"`
	Status      BookingStatus `json:"status"`

	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone,omitempty"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Timezone  string    `json:"timezone"`

	CalendarEventID *string `json:"calendar_event_id,omitempty"`
	PaymentIntentID *string `json:"payment_intent_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *Booking) Window() TimeWindow {
	return TimeWindow{Start: b.StartTime, End: b.EndTime}
}

func (b *Booking) IsOwner(email string) bool {
	return strings.EqualFold(b.CustomerEmail, email)
}

// Confirm transitions pending_payment -> confirmed. Every status change goes
// through a transition function returning a new value; the caller persists
// the result explicitly.
func (b Booking) Confirm() (Booking, error) {
	if b.Status != BookingPendingPayment {
		return b, ErrInvalidTransition
	}
	b.Status = BookingConfirmed
	return b, nil
}

// MarkPaymentFailed transitions pending_payment -> payment_failed.
func (b Booking) MarkPaymentFailed() (Booking, error) {
	if b.Status != BookingPendingPayment {
		return b, ErrInvalidTransition
	}
	b.Status = BookingPaymentFailed
	return b, nil
}

// Cancel transitions confirmed -> canceled. Cancellation is terminal.
func (b Booking) Cancel() (Booking, error) {
	switch b.Status {
	case BookingConfirmed, BookingPendingPayment:
		b.Status = BookingCanceled
		return b, nil
	default:
		return b, ErrInvalidTransition
	}
}

// WithCalendarEvent attaches an external calendar event reference. A nil or
// empty id is accepted and leaves the booking untouched; a missing external
// event must never fail the booking.
func (b Booking) WithCalendarEvent(eventID string) Booking {
	if eventID == "" {
		return b
	}
	b.CalendarEventID = &eventID
	return b
}

type BookingRequest struct {
	HostID        int64     `json:"host_user_id"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Timezone      string    `json:"timezone,omitempty"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	CustomerPhone string    `json:"customer_phone,omitempty"`
}

func (r *BookingRequest) Validate(now time.Time) error {
	if r.HostID <= 0 {
		return &ValidationError{Field: "host_user_id", Reason: "required"}
	}
	if strings.TrimSpace(r.CustomerName) == "" {
		return &ValidationError{Field: "customer_name", Reason: "required"}
	}
	if strings.TrimSpace(r.CustomerEmail) == "" {
		return &ValidationError{Field: "customer_email", Reason: "required"}
	}
	if !r.EndTime.After(r.StartTime) {
		return &ValidationError{Field: "end_time", Reason: "must be after start_time"}
	}
	if r.StartTime.Before(now) {
		return &ValidationError{Field: "start_time", Reason: "must be in the future"}
	}
	return nil
}

func (r *BookingRequest) Window() TimeWindow {
	return TimeWindow{Start: r.StartTime, End: r.EndTime}
}
