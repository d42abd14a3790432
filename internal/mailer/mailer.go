package mailer

import (
	"context"

	"github.com/AFixt/meetabl-api/pkg/config"
)

// Service sends one email. Implementations must honor ctx cancellation where
// their transport allows it; the notification sweep wraps every call in a
// per-delivery timeout either way.
type Service interface {
	Send(ctx context.Context, toEmail, toName, subject, text, html string) error
}

// FromConfig picks the transport: dev (log-only) in dev mode, MailerSend when
// an API key is configured, plain SMTP otherwise.
func FromConfig(cfg config.EmailConfig) Service {
	if cfg.DevMode {
		return NewDevMailer()
	}
	if cfg.MailerSendKey != "" {
		return NewMailerSend(cfg.MailerSendKey, cfg.FromName, cfg.SMTPFrom)
	}
	return NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPUseTLS)
}
