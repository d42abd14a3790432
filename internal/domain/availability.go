package domain

import (
	"fmt"
	"time"
)

// AvailabilityRule is one recurring weekly window during which a host accepts
// bookings. Times are local wall-clock ("HH:MM") in the host's time zone and
// carry no date. A host may have several rules on the same weekday.
type AvailabilityRule struct {
	ID                int64        `json:"id"`
	UserID            int64        `json:"user_id"`
	DayOfWeek         time.Weekday `json:"day_of_week"`
	StartTime         string       `json:"start_time"` // "09:00"
	EndTime           string       `json:"end_time"`   // "17:00"
	BufferMinutes     int          `json:"buffer_minutes"`
	MaxBookingsPerDay int          `json:"max_bookings_per_day"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

func (r *AvailabilityRule) Validate() error {
	if r.DayOfWeek < time.Sunday || r.DayOfWeek > time.Saturday {
		return &ValidationError{Field: "day_of_week", Reason: "must be 0-6"}
	}
	start, err := parseWallClock(r.StartTime)
	if err != nil {
		return &ValidationError{Field: "start_time", Reason: err.Error()}
	}
	end, err := parseWallClock(r.EndTime)
	if err != nil {
		return &ValidationError{Field: "end_time", Reason: err.Error()}
	}
	if end <= start {
		return &ValidationError{Field: "end_time", Reason: "must be after start_time"}
	}
	if r.BufferMinutes < 0 {
		return &ValidationError{Field: "buffer_minutes", Reason: "must not be negative"}
	}
	if r.MaxBookingsPerDay < 0 {
		return &ValidationError{Field: "max_bookings_per_day", Reason: "must not be negative"}
	}
	return nil
}

// Buffer returns the gap required around bookings admitted under this rule.
func (r *AvailabilityRule) Buffer() time.Duration {
	return time.Duration(r.BufferMinutes) * time.Minute
}

// WindowOn materialises the rule on a concrete day in the given location.
// day must be midnight-of-day in loc; ok is false when the weekday does not
// match the rule.
func (r *AvailabilityRule) WindowOn(day time.Time, loc *time.Location) (TimeWindow, bool) {
	if day.Weekday() != r.DayOfWeek {
		return TimeWindow{}, false
	}
	startMin, err := parseWallClock(r.StartTime)
	if err != nil {
		return TimeWindow{}, false
	}
	endMin, err := parseWallClock(r.EndTime)
	if err != nil || endMin <= startMin {
		return TimeWindow{}, false
	}
	y, m, d := day.Date()
	return TimeWindow{
		Start: time.Date(y, m, d, startMin/60, startMin%60, 0, 0, loc),
		End:   time.Date(y, m, d, endMin/60, endMin%60, 0, 0, loc),
	}, true
}

// parseWallClock converts "HH:MM" (optionally with a seconds suffix, as some
// drivers return) to minutes from midnight.
func parseWallClock(s string) (int, error) {
	if len(s) < 5 {
		return 0, fmt.Errorf("invalid wall-clock time %q", s)
	}
	t, err := time.Parse("15:04", s[:5])
	if err != nil {
		return 0, fmt.Errorf("invalid wall-clock time %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
