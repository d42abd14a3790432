package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/AFixt/meetabl-api/internal/domain"
	"github.com/AFixt/meetabl-api/internal/repository"
	"github.com/AFixt/meetabl-api/pkg/logger"
)

// Scheduler derives notification records from booking lifecycle events. It
// only ever creates rows or suppresses pending ones; delivery belongs to the
// queue processor. Fire times live in the notifications table, never in an
// in-process timer list, so a restart between confirmation and fire time
// loses nothing.
type Scheduler struct {
	notifications repository.NotificationRepository
	now           func() time.Time
}

func NewScheduler(notifications repository.NotificationRepository) *Scheduler {
	return &Scheduler{notifications: notifications, now: time.Now}
}

// WithClock overrides the scheduler's time source for tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// OnBookingConfirmed creates the confirmation notifications (due
// immediately) and, when the host's reminder offset still lies in the
// future, one reminder per recipient. The in-the-past check runs per
// notification: a booking starting sooner than the offset simply gets no
// reminder.
func (s *Scheduler) OnBookingConfirmed(ctx context.Context, booking *domain.Booking, host *domain.User) ([]domain.Notification, error) {
	now := s.now()

	pending := []domain.Notification{
		{
			BookingID:    booking.ID,
			Type:         domain.NotificationConfirmation,
			Channel:      domain.ChannelEmail,
			Recipient:    booking.CustomerEmail,
			Status:       domain.NotificationPending,
			ScheduledFor: now,
		},
		{
			BookingID:    booking.ID,
			Type:         domain.NotificationConfirmation,
			Channel:      domain.ChannelEmail,
			Recipient:    host.Email,
			Status:       domain.NotificationPending,
			ScheduledFor: now,
		},
	}

	if booking.CustomerPhone != "" {
		pending = append(pending, domain.Notification{
			BookingID:    booking.ID,
			Type:         domain.NotificationConfirmation,
			Channel:      domain.ChannelSMS,
			Recipient:    booking.CustomerPhone,
			Status:       domain.NotificationPending,
			ScheduledFor: now,
		})
	}

	if offset, ok := host.ReminderOffset.Duration(); ok {
		fireAt := booking.StartTime.Add(-offset)
		// reminders go out by email only
		for _, recipient := range []string{booking.CustomerEmail, host.Email} {
			if !fireAt.After(now) {
				logger.DebugContext(ctx, "reminder fire time already passed, skipping",
					"booking_id", booking.ID, "recipient", recipient, "fire_at", fireAt)
				continue
			}
			pending = append(pending, domain.Notification{
				BookingID:    booking.ID,
				Type:         domain.NotificationReminder,
				Channel:      domain.ChannelEmail,
				Recipient:    recipient,
				Status:       domain.NotificationPending,
				ScheduledFor: fireAt,
			})
		}
	}

	created, err := s.notifications.CreateBatch(ctx, pending)
	if err != nil {
		return nil, fmt.Errorf("failed to create notifications for booking %d: %w", booking.ID, err)
	}
	return created, nil
}

// OnBookingCancelled suppresses every pending notification tied to the
// booking by transitioning it to failed with a cancellation marker. History
// is kept; nothing is deleted. Returns the number of suppressed rows.
func (s *Scheduler) OnBookingCancelled(ctx context.Context, booking *domain.Booking) (int64, error) {
	count, err := s.notifications.FailPendingForBooking(ctx, booking.ID, domain.CancellationMessage)
	if err != nil {
		return 0, fmt.Errorf("failed to suppress notifications for booking %d: %w", booking.ID, err)
	}
	if count > 0 {
		logger.InfoContext(ctx, "suppressed pending notifications for canceled booking",
			"booking_id", booking.ID, "count", count)
	}
	return count, nil
}
