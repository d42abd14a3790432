package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/AFixt/meetabl-api/internal/domain"
	"github.com/AFixt/meetabl-api/pkg/config"
)

// BusyInterval is an externally-sourced occupied window from a synced
// calendar. It is fetched per availability query and never persisted.
type BusyInterval = domain.TimeWindow

// Provider is the capability surface the scheduling core depends on. One
// implementation exists per calendar vendor; the selector picks it once per
// user. Failures from either method are non-fatal to booking flow: busy
// lookups degrade to empty and event creation degrades to no reference.
type Provider interface {
	GetBusyIntervals(ctx context.Context, from, to time.Time) ([]BusyInterval, error)
	CreateEvent(ctx context.Context, host *domain.User, booking *domain.Booking) (string, error)
	DeleteEvent(ctx context.Context, eventID string) error
}

// Selector resolves the provider for a user's connected calendar. A user
// without a connected calendar resolves to nil, which callers must treat as
// "no busy intervals, no external event".
type Selector struct {
	cfg config.CalendarConfig
}

func NewSelector(cfg config.CalendarConfig) *Selector {
	return &Selector{cfg: cfg}
}

func (s *Selector) For(user *domain.User) (Provider, error) {
	switch user.CalendarProvider {
	case domain.CalendarNone:
		return nil, nil
	case domain.CalendarGoogle:
		token, err := parseToken(user.CalendarToken)
		if err != nil {
			return nil, fmt.Errorf("google calendar token for user %d: %w", user.ID, err)
		}
		return newGoogleProvider(s.cfg, token), nil
	case domain.CalendarMicrosoft:
		token, err := parseToken(user.CalendarToken)
		if err != nil {
			return nil, fmt.Errorf("microsoft calendar token for user %d: %w", user.ID, err)
		}
		return newMicrosoftProvider(s.cfg, token), nil
	default:
		return nil, fmt.Errorf("unknown calendar provider %q", user.CalendarProvider)
	}
}

func parseToken(raw string) (*oauth2.Token, error) {
	if raw == "" {
		return nil, fmt.Errorf("no stored token")
	}
	var token oauth2.Token
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return nil, fmt.Errorf("invalid token format: %w", err)
	}
	return &token, nil
}
