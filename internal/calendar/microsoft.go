package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/AFixt/meetabl-api/internal/domain"
	"github.com/AFixt/meetabl-api/pkg/config"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

type microsoftProvider struct {
	oauth *oauth2.Config
	token *oauth2.Token
}

func newMicrosoftProvider(cfg config.CalendarConfig, token *oauth2.Token) *microsoftProvider {
	return &microsoftProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.MicrosoftClientID,
			ClientSecret: cfg.MicrosoftClientSecret,
			Scopes:       []string{"Calendars.ReadWrite", "offline_access"},
			Endpoint:     microsoft.AzureADEndpoint(cfg.MicrosoftTenant),
		},
		token: token,
	}
}

func (m *microsoftProvider) client(ctx context.Context) *http.Client {
	return m.oauth.Client(ctx, m.token)
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphEvent struct {
	ID      string        `json:"id,omitempty"`
	Subject string        `json:"subject"`
	Body    *graphBody    `json:"body,omitempty"`
	Start   graphDateTime `json:"start"`
	End     graphDateTime `json:"end"`
	ShowAs  string        `json:"showAs,omitempty"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphEventList struct {
	Value []graphEvent `json:"value"`
}

// graph datetimes come back without an offset in the requested zone; we ask
// for UTC and parse accordingly.
const graphTimeLayout = "2006-01-02T15:04:05.9999999"

func (m *microsoftProvider) GetBusyIntervals(ctx context.Context, from, to time.Time) ([]BusyInterval, error) {
	url := fmt.Sprintf("%s/me/calendarView?startDateTime=%s&endDateTime=%s&$select=start,end,showAs&$top=250",
		graphBaseURL,
		from.UTC().Format(time.RFC3339),
		to.UTC().Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Prefer", `outlook.timezone="UTC"`)

	res, err := m.client(ctx).Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph calendarView: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return nil, fmt.Errorf("graph calendarView: status %d: %s", res.StatusCode, body)
	}

	var list graphEventList
	if err := json.NewDecoder(res.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("graph calendarView decode: %w", err)
	}

	var busy []BusyInterval
	for _, ev := range list.Value {
		if ev.ShowAs == "free" {
			continue
		}
		start, err := time.Parse(graphTimeLayout, ev.Start.DateTime)
		if err != nil {
			continue
		}
		end, err := time.Parse(graphTimeLayout, ev.End.DateTime)
		if err != nil {
			continue
		}
		if end.After(start) {
			busy = append(busy, BusyInterval{Start: start.UTC(), End: end.UTC()})
		}
	}
	return busy, nil
}

func (m *microsoftProvider) CreateEvent(ctx context.Context, host *domain.User, booking *domain.Booking) (string, error) {
	event := graphEvent{
		Subject: fmt.Sprintf("Meeting with %s", booking.CustomerName),
		Body: &graphBody{
			ContentType: "text",
			Content:     fmt.Sprintf("Booked via meetabl. Customer: %s <%s>", booking.CustomerName, booking.CustomerEmail),
		},
		Start:  graphDateTime{DateTime: booking.StartTime.UTC().Format(graphTimeLayout), TimeZone: "UTC"},
		End:    graphDateTime{DateTime: booking.EndTime.UTC().Format(graphTimeLayout), TimeZone: "UTC"},
		ShowAs: "busy",
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, graphBaseURL+"/me/events", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := m.client(ctx).Do(req)
	if err != nil {
		return "", fmt.Errorf("graph event create: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return "", fmt.Errorf("graph event create: status %d: %s", res.StatusCode, body)
	}

	var created graphEvent
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("graph event create decode: %w", err)
	}
	return created.ID, nil
}

func (m *microsoftProvider) DeleteEvent(ctx context.Context, eventID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, graphBaseURL+"/me/events/"+eventID, nil)
	if err != nil {
		return err
	}

	res, err := m.client(ctx).Do(req)
	if err != nil {
		return fmt.Errorf("graph event delete: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusNoContent && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("graph event delete: status %d", res.StatusCode)
	}
	return nil
}
