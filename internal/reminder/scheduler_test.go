package reminder_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AFixt/meetabl-api/internal/domain"
	"github.com/AFixt/meetabl-api/internal/reminder"
	"github.com/AFixt/meetabl-api/internal/repository"
)

// memNotifications is a minimal in-memory NotificationRepository.
type memNotifications struct {
	nextID int64
	rows   []domain.Notification
}

func (m *memNotifications) CreateBatch(_ context.Context, ns []domain.Notification) ([]domain.Notification, error) {
	created := make([]domain.Notification, 0, len(ns))
	for _, n := range ns {
		m.nextID++
		n.ID = m.nextID
		m.rows = append(m.rows, n)
		created = append(created, n)
	}
	return created, nil
}

func (m *memNotifications) GetByID(_ context.Context, id int64) (*domain.Notification, error) {
	for i := range m.rows {
		if m.rows[i].ID == id {
			n := m.rows[i]
			return &n, nil
		}
	}
	return nil, nil
}

func (m *memNotifications) ListByBooking(_ context.Context, bookingID int64) ([]domain.Notification, error) {
	var out []domain.Notification
	for _, n := range m.rows {
		if n.BookingID == bookingID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memNotifications) Update(_ context.Context, n domain.Notification) (*domain.Notification, error) {
	for i := range m.rows {
		if m.rows[i].ID == n.ID {
			m.rows[i] = n
			return &n, nil
		}
	}
	return &n, nil
}

func (m *memNotifications) FailPendingForBooking(_ context.Context, bookingID int64, msg string) (int64, error) {
	var count int64
	for i := range m.rows {
		if m.rows[i].BookingID == bookingID && m.rows[i].Status == domain.NotificationPending {
			m.rows[i].Status = domain.NotificationFailed
			m.rows[i].ErrorMessage = msg
			count++
		}
	}
	return count, nil
}

func (m *memNotifications) WithDueBatch(ctx context.Context, now time.Time, limit int, fn func(ctx context.Context, batch []domain.Notification, save repository.SaveFunc) error) error {
	var batch []domain.Notification
	for _, n := range m.rows {
		if n.Due(now) && len(batch) < limit {
			batch = append(batch, n)
		}
	}
	save := func(n domain.Notification) error {
		_, err := m.Update(ctx, n)
		return err
	}
	return fn(ctx, batch, save)
}

var testNow = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

func testScheduler(repo *memNotifications) *reminder.Scheduler {
	return reminder.NewScheduler(repo).WithClock(func() time.Time { return testNow })
}

func confirmedBooking(start time.Time) *domain.Booking {
	return &domain.Booking{
		ID:            7,
		HostID:        1,
		Status:        domain.BookingConfirmed,
		CustomerName:  "Ada",
		CustomerEmail: "ada@example.com",
		StartTime:     start,
		EndTime:       start.Add(time.Hour),
	}
}

func TestOnBookingConfirmed_CreatesConfirmationsAndReminders(t *testing.T) {
	repo := &memNotifications{}
	sched := testScheduler(repo)
	host := &domain.User{ID: 1, Email: "host@example.com", ReminderOffset: domain.Offset1Hour}
	booking := confirmedBooking(testNow.Add(48 * time.Hour))

	created, err := sched.OnBookingConfirmed(context.Background(), booking, host)
	require.NoError(t, err)

	var confirmations, reminders []domain.Notification
	for _, n := range created {
		switch n.Type {
		case domain.NotificationConfirmation:
			confirmations = append(confirmations, n)
		case domain.NotificationReminder:
			reminders = append(reminders, n)
		}
	}

	require.Len(t, confirmations, 2)
	for _, n := range confirmations {
		assert.Equal(t, domain.NotificationPending, n.Status)
		assert.Equal(t, testNow, n.ScheduledFor)
	}

	require.Len(t, reminders, 2)
	for _, n := range reminders {
		assert.Equal(t, domain.ChannelEmail, n.Channel)
		assert.Equal(t, booking.StartTime.Add(-time.Hour), n.ScheduledFor)
	}
}

func TestOnBookingConfirmed_NoReminderWhenOffsetAlreadyPassed(t *testing.T) {
	repo := &memNotifications{}
	sched := testScheduler(repo)
	host := &domain.User{ID: 1, Email: "host@example.com", ReminderOffset: domain.Offset30Minutes}
	// booking starts in 20 minutes, the 30-minute fire time is in the past
	booking := confirmedBooking(testNow.Add(20 * time.Minute))

	created, err := sched.OnBookingConfirmed(context.Background(), booking, host)
	require.NoError(t, err)

	for _, n := range created {
		assert.NotEqual(t, domain.NotificationReminder, n.Type)
	}
}

func TestOnBookingConfirmed_OffsetNoneCreatesNoReminders(t *testing.T) {
	repo := &memNotifications{}
	sched := testScheduler(repo)
	host := &domain.User{ID: 1, Email: "host@example.com", ReminderOffset: domain.OffsetNone}

	created, err := sched.OnBookingConfirmed(context.Background(), confirmedBooking(testNow.Add(48*time.Hour)), host)
	require.NoError(t, err)

	for _, n := range created {
		assert.Equal(t, domain.NotificationConfirmation, n.Type)
	}
}

func TestOnBookingConfirmed_SMSConfirmationWhenPhoneGiven(t *testing.T) {
	repo := &memNotifications{}
	sched := testScheduler(repo)
	host := &domain.User{ID: 1, Email: "host@example.com", ReminderOffset: domain.OffsetNone}
	booking := confirmedBooking(testNow.Add(48 * time.Hour))
	booking.CustomerPhone = "+15555550100"

	created, err := sched.OnBookingConfirmed(context.Background(), booking, host)
	require.NoError(t, err)

	var smsCount int
	for _, n := range created {
		if n.Channel == domain.ChannelSMS {
			smsCount++
			assert.Equal(t, booking.CustomerPhone, n.Recipient)
		}
	}
	assert.Equal(t, 1, smsCount)
}

func TestOnBookingCancelled_SuppressesOnlyPending(t *testing.T) {
	repo := &memNotifications{}
	sched := testScheduler(repo)
	host := &domain.User{ID: 1, Email: "host@example.com", ReminderOffset: domain.Offset24Hours}
	booking := confirmedBooking(testNow.Add(48 * time.Hour))

	created, err := sched.OnBookingConfirmed(context.Background(), booking, host)
	require.NoError(t, err)
	require.NotEmpty(t, created)

	// one notification already went out
	sent, err := created[0].MarkSent(testNow)
	require.NoError(t, err)
	_, err = repo.Update(context.Background(), sent)
	require.NoError(t, err)

	count, err := sched.OnBookingCancelled(context.Background(), booking)
	require.NoError(t, err)
	assert.Equal(t, int64(len(created)-1), count)

	remaining, err := repo.ListByBooking(context.Background(), booking.ID)
	require.NoError(t, err)
	for _, n := range remaining {
		if n.ID == sent.ID {
			assert.Equal(t, domain.NotificationSent, n.Status)
			continue
		}
		assert.Equal(t, domain.NotificationFailed, n.Status)
		assert.Equal(t, domain.CancellationMessage, n.ErrorMessage)
	}
}
