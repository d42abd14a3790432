package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AFixt/meetabl-api/internal/calendar"
	"github.com/AFixt/meetabl-api/internal/domain"
	"github.com/AFixt/meetabl-api/internal/payments"
	"github.com/AFixt/meetabl-api/internal/repository"
	"github.com/AFixt/meetabl-api/pkg/config"
	"github.com/AFixt/meetabl-api/pkg/events"
	"github.com/AFixt/meetabl-api/pkg/logger"
)

// AvailabilityValidator answers whether a window is bookable for a host. The
// booking service calls it inside the reservation transaction, after the
// per-host lock is held.
type AvailabilityValidator interface {
	Validate(ctx context.Context, user *domain.User, window domain.TimeWindow) error
	Invalidate(ctx context.Context, hostID int64)
}

// ReminderScheduler creates and suppresses the notifications that follow a
// booking through its lifecycle.
type ReminderScheduler interface {
	OnBookingConfirmed(ctx context.Context, booking *domain.Booking, host *domain.User) ([]domain.Notification, error)
	OnBookingCancelled(ctx context.Context, booking *domain.Booking) (int64, error)
}

// PaymentClient is the slice of the payments client the service needs.
type PaymentClient interface {
	Enabled() bool
	CreateIntent(ctx context.Context, host *domain.User, booking *domain.Booking) (*payments.Intent, error)
}

// CalendarSelector resolves the external calendar provider for a host.
type CalendarSelector interface {
	For(user *domain.User) (calendar.Provider, error)
}

// Result is what a successful reservation hands back to the transport layer.
// Intent is non-nil only when the booking awaits payment.
type Result struct {
	Booking *domain.Booking
	Intent  *payments.Intent
}

// Service owns the booking lifecycle: reservation, payment-driven
// confirmation, and cancellation. Conflict safety lives in the repository's
// reservation transaction; this layer sequences everything around it.
type Service struct {
	bookings  repository.BookingRepository
	users     repository.UserRepository
	rules     repository.RuleRepository
	engine    AvailabilityValidator
	reminders ReminderScheduler
	pay       PaymentClient
	calendars CalendarSelector
	bus       events.Publisher
	cfg       config.SchedulingConfig
	now       func() time.Time
}

func NewService(
	bookings repository.BookingRepository,
	users repository.UserRepository,
	rules repository.RuleRepository,
	engine AvailabilityValidator,
	reminders ReminderScheduler,
	pay PaymentClient,
	calendars CalendarSelector,
	bus events.Publisher,
	cfg config.SchedulingConfig,
) *Service {
	return &Service{
		bookings:  bookings,
		users:     users,
		rules:     rules,
		engine:    engine,
		reminders: reminders,
		pay:       pay,
		calendars: calendars,
		bus:       bus,
		cfg:       cfg,
		now:       time.Now,
	}
}

// WithClock overrides the service's time source for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Book validates the request, reserves the window atomically, and either
// confirms immediately (free hosts) or parks the booking in pending_payment
// with a payment intent. Transient store failures are retried a bounded
// number of times; conflicts and availability rejections are returned as-is.
func (s *Service) Book(ctx context.Context, req *domain.BookingRequest) (*Result, error) {
	if err := req.Validate(s.now()); err != nil {
		return nil, err
	}

	host, err := s.users.FindByID(ctx, req.HostID)
	if err != nil {
		return nil, err
	}
	if host == nil {
		return nil, &domain.ValidationError{Field: "host_user_id", Reason: "host not found"}
	}

	buffer, err := s.bufferFor(ctx, host, req.Window())
	if err != nil {
		return nil, err
	}

	status := domain.BookingConfirmed
	if host.RequiresPayment && s.pay.Enabled() {
		status = domain.BookingPendingPayment
	}

	params := repository.ReserveParams{
		Request:       req,
		Buffer:        buffer,
		InitialStatus: status,
		Timeout:       s.cfg.ReserveTimeout,
		EnvelopeCheck: func(ctx context.Context) error {
			return s.engine.Validate(ctx, host, req.Window())
		},
	}

	booked, err := s.reserveWithRetry(ctx, params)
	if err != nil {
		return nil, err
	}

	s.engine.Invalidate(ctx, host.ID)
	s.publish(ctx, events.BookingCreated, events.BookingCreatedEvent{
		BookingID:     booked.ID,
		HostID:        booked.HostID,
		CustomerEmail: booked.CustomerEmail,
		CustomerName:  booked.CustomerName,
		StartTime:     booked.StartTime,
		EndTime:       booked.EndTime,
		CreatedAt:     booked.CreatedAt,
	})

	result := &Result{Booking: booked}

	if status == domain.BookingPendingPayment {
		intent, err := s.pay.CreateIntent(ctx, host, booked)
		if err != nil {
			// The held slot is still valid; the customer can retry payment
			// from the manage page.
			logger.ErrorContext(ctx, "failed to create payment intent", "booking_id", booked.ID, "error", err)
			return result, nil
		}
		if intent != nil {
			withIntent := *booked
			withIntent.PaymentIntentID = &intent.ID
			if saved, err := s.bookings.Save(ctx, withIntent); err != nil {
				logger.ErrorContext(ctx, "failed to attach payment intent", "booking_id", booked.ID, "error", err)
			} else {
				result.Booking = saved
			}
			result.Intent = intent
			s.publish(ctx, events.PaymentIntentCreated, events.PaymentIntentCreatedEvent{
				BookingID:    booked.ID,
				IntentID:     intent.ID,
				Amount:       intent.Amount,
				Currency:     intent.Currency,
				ClientSecret: intent.ClientSecret,
			})
		}
		return result, nil
	}

	result.Booking = s.finalizeConfirmed(ctx, result.Booking, host)
	return result, nil
}

// ConfirmFromPayment transitions a pending booking to confirmed in response
// to a successful payment. Idempotent for already-confirmed bookings.
func (s *Service) ConfirmFromPayment(ctx context.Context, bookingID int64) (*domain.Booking, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, &domain.ValidationError{Field: "booking_id", Reason: "booking not found"}
	}
	if b.Status == domain.BookingConfirmed {
		return b, nil
	}

	confirmed, err := b.Confirm()
	if err != nil {
		return nil, err
	}
	saved, err := s.bookings.Save(ctx, confirmed)
	if err != nil {
		return nil, err
	}

	host, err := s.users.FindByID(ctx, saved.HostID)
	if err != nil || host == nil {
		logger.ErrorContext(ctx, "confirmed booking has no loadable host", "booking_id", saved.ID, "error", err)
		return saved, nil
	}
	return s.finalizeConfirmed(ctx, saved, host), nil
}

// FailFromPayment marks a pending booking payment_failed, releasing its
// window for other customers.
func (s *Service) FailFromPayment(ctx context.Context, bookingID int64) (*domain.Booking, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, &domain.ValidationError{Field: "booking_id", Reason: "booking not found"}
	}
	if b.Status == domain.BookingPaymentFailed {
		return b, nil
	}

	failed, err := b.MarkPaymentFailed()
	if err != nil {
		return nil, err
	}
	saved, err := s.bookings.Save(ctx, failed)
	if err != nil {
		return nil, err
	}

	s.engine.Invalidate(ctx, saved.HostID)
	s.publish(ctx, events.PaymentFailed, events.BookingCanceledEvent{
		BookingID:     saved.ID,
		HostID:        saved.HostID,
		CustomerEmail: saved.CustomerEmail,
		Reason:        "payment failed",
		CanceledAt:    s.now(),
	})
	return saved, nil
}

// Cancel cancels a booking identified by id and manage token, suppresses its
// pending notifications, and removes the external calendar event when one
// exists. Calendar removal is best effort.
func (s *Service) Cancel(ctx context.Context, bookingID int64, manageToken string) (*domain.Booking, error) {
	b, err := s.bookings.GetByIDWithToken(ctx, bookingID, manageToken)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, &domain.ValidationError{Field: "booking_id", Reason: "booking not found"}
	}

	canceled, err := b.Cancel()
	if err != nil {
		return nil, err
	}
	saved, err := s.bookings.Save(ctx, canceled)
	if err != nil {
		return nil, err
	}

	if _, err := s.reminders.OnBookingCancelled(ctx, saved); err != nil {
		logger.ErrorContext(ctx, "failed to suppress notifications", "booking_id", saved.ID, "error", err)
	}

	s.deleteCalendarEvent(ctx, saved)
	s.engine.Invalidate(ctx, saved.HostID)
	s.publish(ctx, events.BookingCanceled, events.BookingCanceledEvent{
		BookingID:     saved.ID,
		HostID:        saved.HostID,
		CustomerEmail: saved.CustomerEmail,
		Reason:        "canceled by customer",
		CanceledAt:    s.now(),
	})
	return saved, nil
}

// Get returns a booking for its manage page.
func (s *Service) Get(ctx context.Context, bookingID int64, manageToken string) (*domain.Booking, error) {
	return s.bookings.GetByIDWithToken(ctx, bookingID, manageToken)
}

// ListByHost returns a host's bookings, newest first.
func (s *Service) ListByHost(ctx context.Context, hostID int64, limit, offset int, status *domain.BookingStatus) ([]domain.Booking, error) {
	return s.bookings.ListByHost(ctx, hostID, limit, offset, status)
}

// finalizeConfirmed runs the post-confirmation side effects. Calendar sync
// failure never fails the booking; the reservation already committed.
func (s *Service) finalizeConfirmed(ctx context.Context, b *domain.Booking, host *domain.User) *domain.Booking {
	ctx = logger.WithBookingID(ctx, b.ID)

	if provider, err := s.calendars.For(host); err != nil {
		logger.WarnContext(ctx, "calendar provider unavailable", "error", err)
	} else if provider != nil {
		eventID, err := provider.CreateEvent(ctx, host, b)
		if err != nil {
			logger.WarnContext(ctx, "calendar event creation failed, booking stays confirmed",
				"provider", host.CalendarProvider, "error", err)
		} else {
			withEvent := b.WithCalendarEvent(eventID)
			if saved, err := s.bookings.Save(ctx, withEvent); err != nil {
				logger.ErrorContext(ctx, "failed to store calendar event id", "error", err)
			} else {
				b = saved
			}
		}
	}

	if _, err := s.reminders.OnBookingConfirmed(ctx, b, host); err != nil {
		logger.ErrorContext(ctx, "failed to schedule notifications", "error", err)
	}

	evt := events.BookingConfirmedEvent{
		BookingID:     b.ID,
		HostID:        b.HostID,
		CustomerEmail: b.CustomerEmail,
		StartTime:     b.StartTime,
		ConfirmedAt:   s.now(),
	}
	if b.CalendarEventID != nil {
		evt.CalendarEventID = *b.CalendarEventID
	}
	s.publish(ctx, events.BookingConfirmed, evt)
	return b
}

func (s *Service) deleteCalendarEvent(ctx context.Context, b *domain.Booking) {
	if b.CalendarEventID == nil || *b.CalendarEventID == "" {
		return
	}
	host, err := s.users.FindByID(ctx, b.HostID)
	if err != nil || host == nil {
		return
	}
	provider, err := s.calendars.For(host)
	if err != nil || provider == nil {
		return
	}
	if err := provider.DeleteEvent(ctx, *b.CalendarEventID); err != nil {
		logger.WarnContext(ctx, "calendar event deletion failed", "booking_id", b.ID, "error", err)
	}
}

// reserveWithRetry retries the reservation transaction on transient store
// errors only. Conflicts and availability rejections are definitive answers
// and surface immediately.
func (s *Service) reserveWithRetry(ctx context.Context, params repository.ReserveParams) (*domain.Booking, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.ReserveRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 100 * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			logger.WarnContext(ctx, "retrying reservation after transient error",
				"attempt", attempt, "error", lastErr)
		}

		booked, err := s.bookings.Reserve(ctx, params)
		if err == nil {
			return booked, nil
		}
		if !domain.IsTransient(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("reservation failed after %d retries: %w", s.cfg.ReserveRetries, lastErr)
}

// bufferFor resolves the buffer that governs a candidate window: the
// smallest buffer among the rules whose window contains it. The slot engine
// advertises a slot as soon as any containing rule's buffer group frees it,
// so the conflict check must expand by that same buffer or it rejects slots
// the engine just listed. When no rule contains the window, fall back to the
// widest buffer; the in-transaction availability check rejects such windows
// anyway.
func (s *Service) bufferFor(ctx context.Context, host *domain.User, window domain.TimeWindow) (time.Duration, error) {
	rules, err := s.rules.ListByUser(ctx, host.ID)
	if err != nil {
		return 0, err
	}

	loc := host.Location()
	start := window.Start.In(loc)
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)

	var widest time.Duration
	governing := time.Duration(-1)
	for i := range rules {
		r := &rules[i]
		if b := r.Buffer(); b > widest {
			widest = b
		}
		w, ok := r.WindowOn(day, loc)
		if !ok || !w.Contains(window) {
			continue
		}
		if governing < 0 || r.Buffer() < governing {
			governing = r.Buffer()
		}
	}
	if governing >= 0 {
		return governing, nil
	}
	return widest, nil
}

func (s *Service) publish(ctx context.Context, subject string, payload interface{}) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, subject, payload); err != nil {
		logger.WarnContext(ctx, "failed to publish event", "subject", subject, "error", err)
	}
}

// HandlePaymentWebhook routes a verified Stripe event to the matching
// booking transition. Unknown event types are acknowledged and ignored.
func (s *Service) HandlePaymentWebhook(ctx context.Context, evt *payments.WebhookEvent) error {
	switch evt.Type {
	case payments.EventPaymentSucceeded:
		_, err := s.ConfirmFromPayment(ctx, evt.BookingID)
		if isIgnorableWebhookErr(err) {
			logger.WarnContext(ctx, "ignoring webhook for unknown booking", "booking_id", evt.BookingID)
			return nil
		}
		return err
	case payments.EventPaymentFailed:
		_, err := s.FailFromPayment(ctx, evt.BookingID)
		if isIgnorableWebhookErr(err) {
			logger.WarnContext(ctx, "ignoring webhook for unknown booking", "booking_id", evt.BookingID)
			return nil
		}
		return err
	default:
		return nil
	}
}

func isIgnorableWebhookErr(err error) bool {
	var verr *domain.ValidationError
	return errors.As(err, &verr)
}
