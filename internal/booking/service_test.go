package booking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AFixt/meetabl-api/internal/booking"
	"github.com/AFixt/meetabl-api/internal/calendar"
	"github.com/AFixt/meetabl-api/internal/domain"
	"github.com/AFixt/meetabl-api/internal/payments"
	"github.com/AFixt/meetabl-api/internal/repository"
	"github.com/AFixt/meetabl-api/pkg/config"
)

// ---------- Mocks ----------

// memBookings emulates the reservation transaction: a mutex stands in for
// the per-host lock, and the overlap check runs against in-memory rows.
type memBookings struct {
	mu       sync.Mutex
	nextID   int64
	rows     []domain.Booking
	reserves int

	transientFailures int // fail this many Reserve calls before succeeding
}

func (m *memBookings) Reserve(ctx context.Context, params repository.ReserveParams) (*domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reserves++

	if m.transientFailures > 0 {
		m.transientFailures--
		return nil, &domain.TransientStoreError{Op: "reserve booking", Err: context.DeadlineExceeded}
	}

	if params.EnvelopeCheck != nil {
		if err := params.EnvelopeCheck(ctx); err != nil {
			return nil, err
		}
	}

	candidate := params.Request.Window().Expand(params.Buffer)
	for _, b := range m.rows {
		if b.HostID == params.Request.HostID && b.Status.Blocks() && b.Window().Overlaps(candidate) {
			return nil, &domain.ConflictError{HostID: b.HostID, Window: params.Request.Window()}
		}
	}

	m.nextID++
	row := domain.Booking{
		ID:            m.nextID,
		HostID:        params.Request.HostID,
		ManageToken:   "tok",
		Status:        params.InitialStatus,
		CustomerName:  params.Request.CustomerName,
		CustomerEmail: params.Request.CustomerEmail,
		CustomerPhone: params.Request.CustomerPhone,
		StartTime:     params.Request.StartTime,
		EndTime:       params.Request.EndTime,
	}
	m.rows = append(m.rows, row)
	return &row, nil
}

func (m *memBookings) GetByID(_ context.Context, id int64) (*domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id {
			b := m.rows[i]
			return &b, nil
		}
	}
	return nil, nil
}

func (m *memBookings) GetByIDWithToken(ctx context.Context, id int64, token string) (*domain.Booking, error) {
	b, err := m.GetByID(ctx, id)
	if err != nil || b == nil || b.ManageToken != token {
		return nil, err
	}
	return b, nil
}

func (m *memBookings) ListBlockingInRange(_ context.Context, hostID int64, from, to time.Time) ([]domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Booking
	for _, b := range m.rows {
		if b.HostID == hostID && b.Status.Blocks() && b.StartTime.Before(to) && b.EndTime.After(from) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memBookings) ListByHost(_ context.Context, hostID int64, _, _ int, _ *domain.BookingStatus) ([]domain.Booking, error) {
	return nil, nil
}

func (m *memBookings) Save(_ context.Context, b domain.Booking) (*domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == b.ID {
			m.rows[i] = b
			return &b, nil
		}
	}
	return &b, nil
}

type stubUsers struct{ user *domain.User }

func (s *stubUsers) Create(_ context.Context, u *domain.User) (*domain.User, error) { return u, nil }
func (s *stubUsers) FindByID(_ context.Context, id int64) (*domain.User, error) {
	if s.user != nil && s.user.ID == id {
		return s.user, nil
	}
	return nil, nil
}
func (s *stubUsers) FindByEmail(_ context.Context, _ string) (*domain.User, error) { return nil, nil }
func (s *stubUsers) UpdateSettings(_ context.Context, u *domain.User) (*domain.User, error) {
	return u, nil
}

type stubRules struct{ rules []domain.AvailabilityRule }

func (s *stubRules) Create(_ context.Context, r *domain.AvailabilityRule) (*domain.AvailabilityRule, error) {
	return r, nil
}
func (s *stubRules) GetByID(_ context.Context, _ int64) (*domain.AvailabilityRule, error) {
	return nil, nil
}
func (s *stubRules) ListByUser(_ context.Context, _ int64) ([]domain.AvailabilityRule, error) {
	return s.rules, nil
}
func (s *stubRules) Update(_ context.Context, r *domain.AvailabilityRule) (*domain.AvailabilityRule, error) {
	return r, nil
}
func (s *stubRules) Delete(_ context.Context, _, _ int64) (bool, error) { return false, nil }

// openValidator accepts every window; the engine has its own tests.
type openValidator struct {
	mu            sync.Mutex
	invalidations int
}

func (v *openValidator) Validate(_ context.Context, _ *domain.User, _ domain.TimeWindow) error {
	return nil
}
func (v *openValidator) Invalidate(_ context.Context, _ int64) {
	v.mu.Lock()
	v.invalidations++
	v.mu.Unlock()
}

type recordingReminders struct {
	mu        sync.Mutex
	confirmed []int64
	canceled  []int64
}

func (r *recordingReminders) OnBookingConfirmed(_ context.Context, b *domain.Booking, _ *domain.User) ([]domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmed = append(r.confirmed, b.ID)
	return nil, nil
}
func (r *recordingReminders) OnBookingCancelled(_ context.Context, b *domain.Booking) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.canceled = append(r.canceled, b.ID)
	return 1, nil
}

type disabledPayments struct{}

func (disabledPayments) Enabled() bool { return false }
func (disabledPayments) CreateIntent(_ context.Context, _ *domain.User, _ *domain.Booking) (*payments.Intent, error) {
	return nil, nil
}

type noCalendar struct{}

func (noCalendar) For(_ *domain.User) (calendar.Provider, error) { return nil, nil }

// ---------- Fixtures ----------

var testNow = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

func newTestService(bookings *memBookings, users *stubUsers, reminders *recordingReminders, validator *openValidator) *booking.Service {
	rules := &stubRules{rules: []domain.AvailabilityRule{{
		ID: 1, UserID: 1, DayOfWeek: time.Monday, StartTime: "09:00", EndTime: "17:00",
	}}}
	return newTestServiceWithRules(bookings, users, reminders, validator, rules)
}

func newTestServiceWithRules(bookings *memBookings, users *stubUsers, reminders *recordingReminders, validator *openValidator, rules *stubRules) *booking.Service {
	cfg := config.SchedulingConfig{ReserveTimeout: 5 * time.Second, ReserveRetries: 3}
	return booking.NewService(bookings, users, rules, validator, reminders, disabledPayments{}, noCalendar{}, nil, cfg).
		WithClock(func() time.Time { return testNow })
}

func validRequest(start time.Time) *domain.BookingRequest {
	return &domain.BookingRequest{
		HostID:        1,
		StartTime:     start,
		EndTime:       start.Add(time.Hour),
		CustomerName:  "Ada",
		CustomerEmail: "ada@example.com",
	}
}

// ---------- Tests ----------

func TestBook_FreeHostConfirmsImmediately(t *testing.T) {
	bookings := &memBookings{}
	reminders := &recordingReminders{}
	validator := &openValidator{}
	svc := newTestService(bookings, &stubUsers{user: &domain.User{ID: 1, Email: "host@example.com"}}, reminders, validator)

	result, err := svc.Book(context.Background(), validRequest(testNow.Add(48*time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, domain.BookingConfirmed, result.Booking.Status)
	assert.Nil(t, result.Intent)
	assert.Equal(t, []int64{result.Booking.ID}, reminders.confirmed)
	assert.Equal(t, 1, validator.invalidations)
}

func TestBook_PastTimeFailsBeforeReservation(t *testing.T) {
	bookings := &memBookings{}
	svc := newTestService(bookings, &stubUsers{user: &domain.User{ID: 1}}, &recordingReminders{}, &openValidator{})

	_, err := svc.Book(context.Background(), validRequest(testNow.Add(-time.Hour)))

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Zero(t, bookings.reserves, "reservation must not run for invalid input")
}

func TestBook_UnknownHostRejected(t *testing.T) {
	svc := newTestService(&memBookings{}, &stubUsers{}, &recordingReminders{}, &openValidator{})

	_, err := svc.Book(context.Background(), validRequest(testNow.Add(48*time.Hour)))

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "host_user_id", verr.Field)
}

func TestBook_RetriesTransientErrors(t *testing.T) {
	bookings := &memBookings{transientFailures: 2}
	svc := newTestService(bookings, &stubUsers{user: &domain.User{ID: 1}}, &recordingReminders{}, &openValidator{})

	result, err := svc.Book(context.Background(), validRequest(testNow.Add(48*time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, domain.BookingConfirmed, result.Booking.Status)
	assert.Equal(t, 3, bookings.reserves)
}

func TestBook_ConflictIsNotRetried(t *testing.T) {
	start := testNow.Add(48 * time.Hour)
	bookings := &memBookings{rows: []domain.Booking{{
		ID: 99, HostID: 1, Status: domain.BookingConfirmed,
		StartTime: start, EndTime: start.Add(time.Hour),
	}}}
	bookings.nextID = 99
	svc := newTestService(bookings, &stubUsers{user: &domain.User{ID: 1}}, &recordingReminders{}, &openValidator{})

	_, err := svc.Book(context.Background(), validRequest(start))

	var cerr *domain.ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 1, bookings.reserves, "conflicts are definitive, no retry")
}

func TestBook_ConcurrentOverlappingRequestsAdmitExactlyOne(t *testing.T) {
	bookings := &memBookings{}
	svc := newTestService(bookings, &stubUsers{user: &domain.User{ID: 1}}, &recordingReminders{}, &openValidator{})

	const n = 8
	start := testNow.Add(48 * time.Hour)

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// staggered by 5 minutes, so every pair of windows overlaps
			req := validRequest(start.Add(time.Duration(i) * 5 * time.Minute))
			req.EndTime = start.Add(time.Hour + time.Duration(i)*5*time.Minute)
			_, errs[i] = svc.Book(context.Background(), req)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var cerr *domain.ConflictError
		require.ErrorAs(t, err, &cerr)
	}
	assert.Equal(t, 1, succeeded, "exactly one concurrent reservation may win")
}

// Two rules on the same Monday with different buffers: the zero-buffer
// morning rule governs a candidate inside its window, so the reservation
// must not widen the conflict check to the afternoon rule's 30m buffer.
func mixedBufferRules() *stubRules {
	return &stubRules{rules: []domain.AvailabilityRule{
		{ID: 1, UserID: 1, DayOfWeek: time.Monday, StartTime: "09:00", EndTime: "12:00", BufferMinutes: 0},
		{ID: 2, UserID: 1, DayOfWeek: time.Monday, StartTime: "13:00", EndTime: "17:00", BufferMinutes: 30},
	}}
}

func TestBook_BufferFromGoverningRuleNotHostMaximum(t *testing.T) {
	// 2026-09-07 is a Monday
	monday := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	bookings := &memBookings{rows: []domain.Booking{{
		ID: 50, HostID: 1, Status: domain.BookingConfirmed,
		StartTime: monday.Add(10 * time.Hour), EndTime: monday.Add(11 * time.Hour),
	}}}
	bookings.nextID = 50
	svc := newTestServiceWithRules(bookings, &stubUsers{user: &domain.User{ID: 1}}, &recordingReminders{}, &openValidator{}, mixedBufferRules())

	// back-to-back inside the zero-buffer morning rule succeeds
	result, err := svc.Book(context.Background(), validRequest(monday.Add(11*time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, domain.BookingConfirmed, result.Booking.Status)
}

func TestBook_BufferedRuleStillRejectsAdjacentCandidate(t *testing.T) {
	monday := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	bookings := &memBookings{rows: []domain.Booking{{
		ID: 50, HostID: 1, Status: domain.BookingConfirmed,
		StartTime: monday.Add(14 * time.Hour), EndTime: monday.Add(15 * time.Hour),
	}}}
	bookings.nextID = 50
	svc := newTestServiceWithRules(bookings, &stubUsers{user: &domain.User{ID: 1}}, &recordingReminders{}, &openValidator{}, mixedBufferRules())

	// back-to-back inside the 30m-buffer afternoon rule conflicts
	_, err := svc.Book(context.Background(), validRequest(monday.Add(15*time.Hour)))
	var cerr *domain.ConflictError
	require.ErrorAs(t, err, &cerr)
}

func TestCancel_SuppressesRemindersAndInvalidatesCache(t *testing.T) {
	bookings := &memBookings{}
	reminders := &recordingReminders{}
	validator := &openValidator{}
	svc := newTestService(bookings, &stubUsers{user: &domain.User{ID: 1}}, reminders, validator)

	result, err := svc.Book(context.Background(), validRequest(testNow.Add(48*time.Hour)))
	require.NoError(t, err)

	canceled, err := svc.Cancel(context.Background(), result.Booking.ID, result.Booking.ManageToken)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCanceled, canceled.Status)
	assert.Equal(t, []int64{result.Booking.ID}, reminders.canceled)
	assert.Equal(t, 2, validator.invalidations)
}

func TestCancel_WrongTokenIsNotFound(t *testing.T) {
	bookings := &memBookings{}
	svc := newTestService(bookings, &stubUsers{user: &domain.User{ID: 1}}, &recordingReminders{}, &openValidator{})

	result, err := svc.Book(context.Background(), validRequest(testNow.Add(48*time.Hour)))
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), result.Booking.ID, "wrong")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestConfirmFromPayment_IsIdempotent(t *testing.T) {
	bookings := &memBookings{rows: []domain.Booking{{
		ID: 1, HostID: 1, Status: domain.BookingPendingPayment, ManageToken: "tok",
		StartTime: testNow.Add(48 * time.Hour), EndTime: testNow.Add(49 * time.Hour),
	}}}
	bookings.nextID = 1
	reminders := &recordingReminders{}
	svc := newTestService(bookings, &stubUsers{user: &domain.User{ID: 1}}, reminders, &openValidator{})

	first, err := svc.ConfirmFromPayment(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingConfirmed, first.Status)

	second, err := svc.ConfirmFromPayment(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingConfirmed, second.Status)
	assert.Len(t, reminders.confirmed, 1, "reminders are scheduled once")
}

func TestFailFromPayment_ReleasesWindow(t *testing.T) {
	start := testNow.Add(48 * time.Hour)
	bookings := &memBookings{rows: []domain.Booking{{
		ID: 1, HostID: 1, Status: domain.BookingPendingPayment, ManageToken: "tok",
		StartTime: start, EndTime: start.Add(time.Hour),
	}}}
	bookings.nextID = 1
	svc := newTestService(bookings, &stubUsers{user: &domain.User{ID: 1}}, &recordingReminders{}, &openValidator{})

	failed, err := svc.FailFromPayment(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPaymentFailed, failed.Status)

	// the same window is bookable again
	result, err := svc.Book(context.Background(), validRequest(start))
	require.NoError(t, err)
	assert.Equal(t, domain.BookingConfirmed, result.Booking.Status)
}
