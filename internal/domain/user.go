package domain

import (
	"strings"
	"time"
)

// ReminderOffset is the configured duration before a booking's start at which
// a reminder notification fires.
type ReminderOffset string

const (
	OffsetNone      ReminderOffset = "none"
	Offset15Minutes ReminderOffset = "15_minutes"
	Offset30Minutes ReminderOffset = "30_minutes"
	Offset1Hour     ReminderOffset = "1_hour"
	Offset2Hours    ReminderOffset = "2_hours"
	Offset24Hours   ReminderOffset = "24_hours"
)

func ParseReminderOffset(s string) (ReminderOffset, bool) {
	switch ReminderOffset(s) {
	case OffsetNone, Offset15Minutes, Offset30Minutes, Offset1Hour, Offset2Hours, Offset24Hours:
		return ReminderOffset(s), true
	default:
		return "", false
	}
}

// Duration returns the offset length. ok is false for OffsetNone.
func (o ReminderOffset) Duration() (time.Duration, bool) {
	switch o {
	case Offset15Minutes:
		return 15 * time.Minute, true
	case Offset30Minutes:
		return 30 * time.Minute, true
	case Offset1Hour:
		return time.Hour, true
	case Offset2Hours:
		return 2 * time.Hour, true
	case Offset24Hours:
		return 24 * time.Hour, true
	default:
		return 0, false
	}
}

type CalendarKind string

const (
	CalendarNone      CalendarKind = ""
	CalendarGoogle    CalendarKind = "google"
	CalendarMicrosoft CalendarKind = "microsoft"
)

// User is a meetabl host account. Scheduling settings live here; per-rule
// settings (buffer, daily cap) live on AvailabilityRule.
type User struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone,omitempty"`
	PasswordHash string `json:"-"`

	Timezone         string         `json:"timezone"`
	ReminderOffset   ReminderOffset `json:"reminder_offset"`
	MinAdvanceNotice time.Duration  `json:"min_advance_notice"`
	MaxAdvanceDays   int            `json:"max_advance_days"`

	CalendarProvider CalendarKind `json:"calendar_provider,omitempty"`
	CalendarToken    string       `json:"-"` // stored OAuth2 token JSON

	RequiresPayment bool   `json:"requires_payment"`
	PriceCents      int64  `json:"price_cents,omitempty"`
	Currency        string `json:"currency,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Location resolves the host's IANA time zone, falling back to UTC when the
// setting is missing or unparsable. Availability arithmetic runs in this
// location and converts to UTC only at the persistence boundary.
func (u *User) Location() *time.Location {
	if u.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (u *User) IsOwner(email string) bool {
	return strings.EqualFold(u.Email, email)
}
