package calendar

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/AFixt/meetabl-api/internal/domain"
	"github.com/AFixt/meetabl-api/pkg/config"
)

type googleProvider struct {
	oauth *oauth2.Config
	token *oauth2.Token
}

func newGoogleProvider(cfg config.CalendarConfig, token *oauth2.Token) *googleProvider {
	return &googleProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Scopes: []string{
				gcal.CalendarReadonlyScope,
				gcal.CalendarEventsScope,
			},
			Endpoint: google.Endpoint,
		},
		token: token,
	}
}

func (g *googleProvider) service(ctx context.Context) (*gcal.Service, error) {
	client := g.oauth.Client(ctx, g.token)
	srv, err := gcal.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create google calendar service: %w", err)
	}
	return srv, nil
}

func (g *googleProvider) GetBusyIntervals(ctx context.Context, from, to time.Time) ([]BusyInterval, error) {
	srv, err := g.service(ctx)
	if err != nil {
		return nil, err
	}

	req := &gcal.FreeBusyRequest{
		TimeMin: from.UTC().Format(time.RFC3339),
		TimeMax: to.UTC().Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: "primary"}},
	}
	res, err := srv.Freebusy.Query(req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("google freebusy query: %w", err)
	}

	var busy []BusyInterval
	for _, cal := range res.Calendars {
		for _, period := range cal.Busy {
			start, err := time.Parse(time.RFC3339, period.Start)
			if err != nil {
				continue
			}
			end, err := time.Parse(time.RFC3339, period.End)
			if err != nil {
				continue
			}
			if end.After(start) {
				busy = append(busy, BusyInterval{Start: start, End: end})
			}
		}
	}
	return busy, nil
}

func (g *googleProvider) CreateEvent(ctx context.Context, host *domain.User, booking *domain.Booking) (string, error) {
	srv, err := g.service(ctx)
	if err != nil {
		return "", err
	}

	event := &gcal.Event{
		Summary:     fmt.Sprintf("Meeting with %s", booking.CustomerName),
		Description: fmt.Sprintf("Booked via meetabl. Customer: %s <%s>", booking.CustomerName, booking.CustomerEmail),
		Start: &gcal.EventDateTime{
			DateTime: booking.StartTime.UTC().Format(time.RFC3339),
			TimeZone: host.Timezone,
		},
		End: &gcal.EventDateTime{
			DateTime: booking.EndTime.UTC().Format(time.RFC3339),
			TimeZone: host.Timezone,
		},
		Attendees: []*gcal.EventAttendee{
			{Email: booking.CustomerEmail, DisplayName: booking.CustomerName},
		},
	}

	created, err := srv.Events.Insert("primary", event).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("google event insert: %w", err)
	}
	return created.Id, nil
}

func (g *googleProvider) DeleteEvent(ctx context.Context, eventID string) error {
	srv, err := g.service(ctx)
	if err != nil {
		return err
	}
	if err := srv.Events.Delete("primary", eventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("google event delete: %w", err)
	}
	return nil
}
