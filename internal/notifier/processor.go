package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/AFixt/meetabl-api/internal/domain"
	"github.com/AFixt/meetabl-api/internal/repository"
	"github.com/AFixt/meetabl-api/pkg/config"
	"github.com/AFixt/meetabl-api/pkg/events"
	"github.com/AFixt/meetabl-api/pkg/logger"
)

// ProcessingSummary reports one sweep's outcome. Failed counts only
// notifications that exhausted their attempts during this sweep; a
// notification that failed but stays pending for retry is Attempted only.
type ProcessingSummary struct {
	Attempted int `json:"attempted"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}

// Processor drains due notifications on a fixed interval. Each sweep claims
// a batch with row locks that skip rows held by a concurrent sweeper, so
// running several instances never double-delivers.
type Processor struct {
	notifications repository.NotificationRepository
	bookings      repository.BookingRepository
	users         repository.UserRepository
	deliverer     Deliverer
	bus           events.Publisher
	cfg           config.NotificationConfig
	now           func() time.Time
}

func NewProcessor(
	notifications repository.NotificationRepository,
	bookings repository.BookingRepository,
	users repository.UserRepository,
	deliverer Deliverer,
	bus events.Publisher,
	cfg config.NotificationConfig,
) *Processor {
	return &Processor{
		notifications: notifications,
		bookings:      bookings,
		users:         users,
		deliverer:     deliverer,
		bus:           bus,
		cfg:           cfg,
		now:           time.Now,
	}
}

// WithClock overrides the processor's time source for tests.
func (p *Processor) WithClock(now func() time.Time) *Processor {
	p.now = now
	return p
}

// Run sweeps once immediately, then on every tick until ctx is canceled.
func (p *Processor) Run(ctx context.Context) error {
	logger.InfoContext(ctx, "notification processor started", "interval", p.cfg.SweepInterval)

	if _, err := p.Sweep(ctx); err != nil {
		logger.ErrorContext(ctx, "notification sweep failed", "error", err)
	}

	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "notification processor stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.Sweep(ctx); err != nil {
				logger.ErrorContext(ctx, "notification sweep failed", "error", err)
			}
		}
	}
}

// Sweep claims one batch of due notifications and attempts delivery for each.
// A delivery failure is recorded on its own row and never aborts the rest of
// the batch; the error return covers only the claim transaction itself.
func (p *Processor) Sweep(ctx context.Context) (ProcessingSummary, error) {
	var summary ProcessingSummary
	start := p.now()

	err := p.notifications.WithDueBatch(ctx, start, p.cfg.BatchSize, func(ctx context.Context, batch []domain.Notification, save repository.SaveFunc) error {
		if len(batch) == 0 {
			logger.DebugContext(ctx, "no due notifications")
			return nil
		}

		for _, n := range batch {
			summary.Attempted++
			nctx := logger.WithBookingID(ctx, n.BookingID)

			dctx, cancel := context.WithTimeout(nctx, p.cfg.DeliveryTimeout)
			deliverErr := p.deliverOne(dctx, n)
			cancel()

			if deliverErr != nil {
				updated, terr := n.RecordFailure(deliverErr.Error(), p.cfg.MaxAttempts)
				if terr != nil {
					logger.ErrorContext(nctx, "cannot record delivery failure",
						"notification_id", n.ID, "status", n.Status, "error", terr)
					continue
				}
				if updated.Status == domain.NotificationFailed {
					summary.Failed++
					p.publish(ctx, events.NotificationFailed, updated)
				}
				logger.WarnContext(nctx, "notification delivery failed",
					"notification_id", n.ID, "attempt", updated.AttemptCount, "status", updated.Status, "error", deliverErr)
				if err := save(updated); err != nil {
					return err
				}
				continue
			}

			updated, terr := n.MarkSent(p.now())
			if terr != nil {
				logger.ErrorContext(nctx, "cannot mark notification sent",
					"notification_id", n.ID, "status", n.Status, "error", terr)
				continue
			}
			summary.Sent++
			if err := save(updated); err != nil {
				return err
			}
			p.publish(ctx, events.NotificationSent, updated)
		}
		return nil
	})
	if err != nil {
		return summary, fmt.Errorf("notification sweep: %w", err)
	}

	if summary.Attempted > 0 {
		logger.InfoContext(ctx, "notification sweep complete",
			"attempted", summary.Attempted, "sent", summary.Sent, "failed", summary.Failed,
			"elapsed", time.Since(start))
	}
	return summary, nil
}

// Resend re-attempts a notification that has terminally failed. It bypasses
// the attempt cap: the operator asked for it explicitly.
func (p *Processor) Resend(ctx context.Context, notificationID int64) (*domain.Notification, error) {
	n, err := p.notifications.GetByID(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, nil
	}
	if n.Status != domain.NotificationFailed {
		return nil, &domain.ValidationError{Field: "status", Reason: fmt.Sprintf("cannot resend notification in status %q", n.Status)}
	}

	// rows suppressed by cancellation stay suppressed
	booking, err := p.bookings.GetByID(ctx, n.BookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil || booking.Status == domain.BookingCanceled {
		return nil, &domain.ValidationError{Field: "booking_id", Reason: "cannot resend for a canceled booking"}
	}

	dctx, cancel := context.WithTimeout(ctx, p.cfg.DeliveryTimeout)
	defer cancel()
	if err := p.deliverOne(dctx, *n); err != nil {
		return nil, err
	}

	updated, err := n.MarkSent(p.now())
	if err != nil {
		return nil, err
	}
	saved, err := p.notifications.Update(ctx, updated)
	if err != nil {
		return nil, err
	}
	p.publish(ctx, events.NotificationSent, *saved)
	return saved, nil
}

func (p *Processor) deliverOne(ctx context.Context, n domain.Notification) error {
	booking, err := p.bookings.GetByID(ctx, n.BookingID)
	if err != nil {
		return err
	}
	if booking == nil {
		return fmt.Errorf("booking %d not found for notification %d", n.BookingID, n.ID)
	}

	tpl := TemplateContext{
		Kind:         n.Type,
		BookingID:    booking.ID,
		CustomerName: booking.CustomerName,
		StartTime:    booking.StartTime,
	}
	host, err := p.users.FindByID(ctx, booking.HostID)
	if err != nil {
		return err
	}
	if host != nil {
		tpl.HostName = host.Name
		tpl.Timezone = host.Timezone
	}

	return p.deliverer.Deliver(ctx, n.Channel, n.Recipient, tpl)
}

func (p *Processor) publish(ctx context.Context, subject string, n domain.Notification) {
	if p.bus == nil {
		return
	}
	evt := events.NotificationSentEvent{
		NotificationID: n.ID,
		BookingID:      n.BookingID,
		Type:           string(n.Type),
		Channel:        string(n.Channel),
		Recipient:      n.Recipient,
	}
	if n.SentAt != nil {
		evt.SentAt = *n.SentAt
	}
	if err := p.bus.Publish(ctx, subject, evt); err != nil {
		logger.WarnContext(ctx, "failed to publish notification event", "subject", subject, "error", err)
	}
}
