package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/AFixt/meetabl-api/internal/domain"
	"github.com/AFixt/meetabl-api/internal/mailer"
	"github.com/AFixt/meetabl-api/pkg/logger"
)

// TemplateContext carries everything a transport needs to render a message
// for one notification.
type TemplateContext struct {
	Kind         domain.NotificationType
	BookingID    int64
	CustomerName string
	HostName     string
	StartTime    time.Time
	Timezone     string
}

// Deliverer sends one rendered notification over the requested channel.
// Implementations must return a *domain.DeliveryError (or wrap one) on
// transport failure so the processor can record the attempt.
type Deliverer interface {
	Deliver(ctx context.Context, channel domain.NotificationChannel, recipient string, tpl TemplateContext) error
}

// SMSSender abstracts the SMS transport. Production wiring can swap in a
// real gateway; the default is the dev logger sender.
type SMSSender interface {
	Send(ctx context.Context, to, message string) error
}

// DevSMS logs messages instead of sending them, mirroring the dev mailer.
type DevSMS struct{}

func (DevSMS) Send(ctx context.Context, to, message string) error {
	logger.InfoContext(ctx, "📱 [DEV SMS]", "to", to, "message", message)
	return nil
}

type compositeDeliverer struct {
	mail mailer.Service
	sms  SMSSender
}

// NewDeliverer builds the standard channel mux: email through the configured
// mailer, SMS through the given sender.
func NewDeliverer(mail mailer.Service, sms SMSSender) Deliverer {
	return &compositeDeliverer{mail: mail, sms: sms}
}

func (d *compositeDeliverer) Deliver(ctx context.Context, channel domain.NotificationChannel, recipient string, tpl TemplateContext) error {
	switch channel {
	case domain.ChannelEmail:
		subject, text, html := renderEmail(tpl)
		if err := d.mail.Send(ctx, recipient, tpl.CustomerName, subject, text, html); err != nil {
			return &domain.DeliveryError{Channel: channel, Recipient: recipient, Err: err}
		}
		return nil
	case domain.ChannelSMS:
		if err := d.sms.Send(ctx, recipient, renderSMS(tpl)); err != nil {
			return &domain.DeliveryError{Channel: channel, Recipient: recipient, Err: err}
		}
		return nil
	default:
		return &domain.DeliveryError{
			Channel:   channel,
			Recipient: recipient,
			Err:       fmt.Errorf("unknown channel %q", channel),
		}
	}
}

func renderEmail(tpl TemplateContext) (subject, text, html string) {
	when := tpl.StartTime
	if loc, err := time.LoadLocation(tpl.Timezone); err == nil && tpl.Timezone != "" {
		when = when.In(loc)
	}
	stamp := when.Format("Monday, January 2 at 15:04 MST")

	switch tpl.Kind {
	case domain.NotificationReminder:
		subject = fmt.Sprintf("Reminder: meeting with %s", tpl.HostName)
		text = fmt.Sprintf("This is a reminder of your upcoming meeting with %s on %s.", tpl.HostName, stamp)
	default:
		subject = fmt.Sprintf("Booking confirmed with %s", tpl.HostName)
		text = fmt.Sprintf("Your meeting with %s is confirmed for %s.", tpl.HostName, stamp)
	}
	html = fmt.Sprintf("<p>%s</p>", text)
	return subject, text, html
}

func renderSMS(tpl TemplateContext) string {
	stamp := tpl.StartTime.Format("Jan 2 15:04 MST")
	if tpl.Kind == domain.NotificationReminder {
		return fmt.Sprintf("Reminder: meeting with %s at %s", tpl.HostName, stamp)
	}
	return fmt.Sprintf("Booking confirmed with %s for %s", tpl.HostName, stamp)
}
