package domain

import "time"

type NotificationType string

const (
	NotificationConfirmation NotificationType = "confirmation"
	NotificationReminder     NotificationType = "reminder"
)

type NotificationChannel string

const (
	ChannelEmail NotificationChannel = "email"
	ChannelSMS   NotificationChannel = "sms"
)

type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// CancellationMessage marks notifications suppressed because their booking
// was canceled. Suppression keeps history instead of deleting rows.
const CancellationMessage = "Booking cancelled"

// Notification is a persisted, time-triggered delivery. ScheduledFor is set
// once at creation and never changes; attempt bookkeeping and status are
// mutated only by the queue processor and the explicit resend operation.
type Notification struct {
	ID           int64               `json:"id"`
	BookingID    int64               `json:"booking_id"`
	Type         NotificationType    `json:"type"`
	Channel      NotificationChannel `json:"channel"`
	Recipient    string              `json:"recipient"`
	Status       NotificationStatus  `json:"status"`
	ScheduledFor time.Time           `json:"scheduled_for"`
	AttemptCount int                 `json:"attempt_count"`
	ErrorMessage string              `json:"error_message,omitempty"`
	SentAt       *time.Time          `json:"sent_at,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// Due reports whether the notification should be picked up by a sweep at now.
func (n *Notification) Due(now time.Time) bool {
	return n.Status == NotificationPending && !n.ScheduledFor.After(now)
}

// MarkSent transitions pending -> sent, or failed -> sent on a manual resend.
// Sent is terminal.
func (n Notification) MarkSent(now time.Time) (Notification, error) {
	if n.Status != NotificationPending && n.Status != NotificationFailed {
		return n, ErrInvalidTransition
	}
	n.Status = NotificationSent
	n.SentAt = &now
	n.ErrorMessage = ""
	return n, nil
}

// RecordFailure increments the attempt counter and stores the delivery error.
// The notification stays pending until maxAttempts is reached, then becomes
// failed.
func (n Notification) RecordFailure(msg string, maxAttempts int) (Notification, error) {
	if n.Status != NotificationPending {
		return n, ErrInvalidTransition
	}
	n.AttemptCount++
	n.ErrorMessage = msg
	if n.AttemptCount >= maxAttempts {
		n.Status = NotificationFailed
	}
	return n, nil
}

// Suppress transitions pending -> failed when the booking is canceled.
func (n Notification) Suppress() (Notification, error) {
	if n.Status != NotificationPending {
		return n, ErrInvalidTransition
	}
	n.Status = NotificationFailed
	n.ErrorMessage = CancellationMessage
	return n, nil
}
