package availability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/AFixt/meetabl-api/internal/cache"
	"github.com/AFixt/meetabl-api/internal/calendar"
	"github.com/AFixt/meetabl-api/internal/domain"
	"github.com/AFixt/meetabl-api/internal/repository"
	"github.com/AFixt/meetabl-api/pkg/logger"
)

// Engine turns a host's recurring availability rules plus existing
// commitments into bookable slots. ComputeSlots is a pure function of its
// inputs and the rules and bookings currently stored for the host, so a
// repeated call with unchanged state yields the same slots.
type Engine struct {
	users     repository.UserRepository
	rules     repository.RuleRepository
	bookings  repository.BookingRepository
	calendars *calendar.Selector
	slotCache *cache.SlotCache
	now       func() time.Time
}

func NewEngine(
	users repository.UserRepository,
	rules repository.RuleRepository,
	bookings repository.BookingRepository,
	calendars *calendar.Selector,
	slotCache *cache.SlotCache,
) *Engine {
	return &Engine{
		users:     users,
		rules:     rules,
		bookings:  bookings,
		calendars: calendars,
		slotCache: slotCache,
		now:       time.Now,
	}
}

// WithClock overrides the engine's time source. Tests use this to pin "now".
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Invalidate drops cached slot answers for the host. Called whenever a
// booking changes the host's effective availability.
func (e *Engine) Invalidate(ctx context.Context, hostID int64) {
	e.slotCache.Invalidate(ctx, hostID)
}

// BookableSlots is the query-path entry point: it resolves the host, fetches
// busy intervals from the connected calendar (degrading to none on error) and
// computes slots, consulting the redis hint first.
func (e *Engine) BookableSlots(ctx context.Context, hostID int64, from, to time.Time, slotDuration time.Duration) ([]domain.TimeWindow, error) {
	user, err := e.users.FindByID(ctx, hostID)
	if err != nil {
		return nil, fmt.Errorf("failed to load host: %w", err)
	}
	if user == nil {
		return nil, &domain.ValidationError{Field: "host_user_id", Reason: "unknown host"}
	}

	if slots, ok := e.slotCache.Get(ctx, hostID, from, to, slotDuration); ok {
		return slots, nil
	}

	busy := e.busyIntervals(ctx, user, from, to)
	slots, err := e.ComputeSlots(ctx, user, from, to, slotDuration, busy)
	if err != nil {
		return nil, err
	}

	e.slotCache.Set(ctx, hostID, from, to, slotDuration, slots)
	return slots, nil
}

// busyIntervals fetches externally-synced busy time. A transient provider
// failure degrades to "busy times unknown" rather than failing the whole
// computation.
func (e *Engine) busyIntervals(ctx context.Context, user *domain.User, from, to time.Time) []domain.TimeWindow {
	if e.calendars == nil {
		return nil
	}
	provider, err := e.calendars.For(user)
	if err != nil {
		logger.WarnContext(ctx, "calendar provider unavailable, treating busy intervals as empty",
			"error", err, "host_id", user.ID)
		return nil
	}
	if provider == nil {
		return nil
	}
	busy, err := provider.GetBusyIntervals(ctx, from, to)
	if err != nil {
		logger.WarnContext(ctx, "busy interval lookup failed, treating busy intervals as empty",
			"error", err, "host_id", user.ID)
		return nil
	}
	return busy
}

// ComputeSlots generates the bookable slots for [from, to) at slotDuration.
// All wall-clock arithmetic happens in the host's time zone; results are UTC
// instants. Slots starting before now+min-advance-notice or after
// now+max-advance-days are excluded.
func (e *Engine) ComputeSlots(ctx context.Context, user *domain.User, from, to time.Time, slotDuration time.Duration, busy []domain.TimeWindow) ([]domain.TimeWindow, error) {
	if slotDuration <= 0 {
		return nil, &domain.ValidationError{Field: "slot_duration", Reason: "must be positive"}
	}
	if !to.After(from) {
		return nil, &domain.ValidationError{Field: "range_end", Reason: "must be after range_start"}
	}

	rules, err := e.rules.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load availability rules: %w", err)
	}
	if len(rules) == 0 {
		return nil, nil
	}

	now := e.now()
	floor := now.Add(user.MinAdvanceNotice)
	var ceil time.Time
	if user.MaxAdvanceDays > 0 {
		ceil = now.AddDate(0, 0, user.MaxAdvanceDays)
	}

	// Fetch committed bookings padded by the largest rule buffer so a
	// booking just outside the range still casts its buffer inside it.
	maxBuffer := time.Duration(0)
	for _, r := range rules {
		if b := r.Buffer(); b > maxBuffer {
			maxBuffer = b
		}
	}
	bookings, err := e.bookings.ListBlockingInRange(ctx, user.ID, from.Add(-maxBuffer), to.Add(maxBuffer))
	if err != nil {
		return nil, fmt.Errorf("failed to load bookings: %w", err)
	}

	loc := user.Location()
	busySorted := domain.MergeOverlapping(busy)

	var slots []domain.TimeWindow
	for day := startOfDay(from.In(loc)); day.Before(to); day = day.AddDate(0, 0, 1) {
		daySlots := e.slotsForDay(day, loc, rules, bookings, busySorted, slotDuration)
		for _, s := range daySlots {
			if s.Start.Before(from) || s.End.After(to) {
				continue
			}
			if s.Start.Before(floor) {
				continue
			}
			if !ceil.IsZero() && s.Start.After(ceil) {
				continue
			}
			slots = append(slots, s)
		}
	}
	return slots, nil
}

// slotsForDay applies one calendar day's rules. Rules sharing a buffer value
// are unioned before subtraction so overlapping rules cannot double-free a
// window; a day's slots are deduplicated across buffer groups afterwards.
func (e *Engine) slotsForDay(day time.Time, loc *time.Location, rules []domain.AvailabilityRule, bookings []domain.Booking, busy []domain.TimeWindow, slotDuration time.Duration) []domain.TimeWindow {
	dayCount := blockingCountOn(day, loc, bookings)
	dayBounds := domain.TimeWindow{Start: day, End: day.AddDate(0, 0, 1)}

	// group rule windows by buffer so each group's subtraction uses its own
	// expansion
	type group struct {
		buffer  time.Duration
		windows []domain.TimeWindow
	}
	groups := map[int]*group{}
	for i := range rules {
		r := &rules[i]
		w, ok := r.WindowOn(day, loc)
		if !ok {
			continue
		}
		if r.MaxBookingsPerDay > 0 && dayCount >= r.MaxBookingsPerDay {
			continue
		}
		g, exists := groups[r.BufferMinutes]
		if !exists {
			g = &group{buffer: r.Buffer()}
			groups[r.BufferMinutes] = g
		}
		g.windows = append(g.windows, w)
	}

	var slots []domain.TimeWindow
	seen := map[int64]struct{}{}
	for _, g := range groups {
		free := domain.MergeOverlapping(g.windows)

		var occupied []domain.TimeWindow
		for _, b := range bookings {
			expanded := b.Window().Expand(g.buffer)
			// a booking's buffer never leaks across the day boundary into
			// an adjacent day's rule
			if clipped, ok := expanded.Intersect(dayBounds); ok {
				occupied = append(occupied, clipped)
			}
		}
		occupied = append(occupied, busy...)

		for _, w := range domain.SubtractAll(free, occupied) {
			for _, s := range w.Tile(slotDuration) {
				key := s.Start.Unix()
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				slots = append(slots, domain.TimeWindow{Start: s.Start.UTC(), End: s.End.UTC()})
			}
		}
	}

	sortSlots(slots)
	return slots
}

// Validate re-checks that a candidate window lies fully within a currently
// computable slot of the candidate's own duration. The reservation path runs
// this inside its transaction after the per-host lock is held, which defends
// against a slot consumed between selection and write.
func (e *Engine) Validate(ctx context.Context, user *domain.User, window domain.TimeWindow) error {
	from := window.Start.Add(-24 * time.Hour)
	to := window.End.Add(24 * time.Hour)

	busy := e.busyIntervals(ctx, user, from, to)
	slots, err := e.ComputeSlots(ctx, user, from, to, window.Duration(), busy)
	if err != nil {
		return err
	}
	for _, s := range slots {
		if s.Contains(window) {
			return nil
		}
	}
	return &domain.OutOfAvailabilityError{HostID: user.ID, Window: window}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func blockingCountOn(day time.Time, loc *time.Location, bookings []domain.Booking) int {
	count := 0
	for _, b := range bookings {
		if !b.Status.Blocks() {
			continue
		}
		local := b.StartTime.In(loc)
		if local.Year() == day.Year() && local.YearDay() == day.YearDay() {
			count++
		}
	}
	return count
}

func sortSlots(slots []domain.TimeWindow) {
	sort.Slice(slots, func(i, j int) bool {
		return slots[i].Start.Before(slots[j].Start)
	})
}
