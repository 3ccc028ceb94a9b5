// Package senders provides ready-made implementations of the automation
// sender interfaces: structured-log senders for development and an HTTP
// webhook poster. Production email/SMS/payout providers implement the same
// interfaces in their own packages.
package senders

import (
	"context"
	"log/slog"

	"github.com/affiliumhq/affilium/automation"
)

// LogSenders writes every side effect to a structured logger instead of
// performing it. Useful for development and for dry-running rules against
// historical records.
type LogSenders struct {
	log *slog.Logger
}

// NewLogSenders creates log-backed senders. A nil logger uses the default.
func NewLogSenders(log *slog.Logger) *LogSenders {
	if log == nil {
		log = slog.Default()
	}
	return &LogSenders{log: log}
}

// All bundles the log senders into an automation.Senders value.
func (l *LogSenders) All() automation.Senders {
	return automation.Senders{
		Email:        l,
		SMS:          l,
		Webhook:      l,
		Notification: l,
		Payout:       l,
	}
}

func (l *LogSenders) SendEmail(_ context.Context, to, subject, body string) error {
	l.log.Info("email", "to", to, "subject", subject, "bytes", len(body))
	return nil
}

func (l *LogSenders) SendSMS(_ context.Context, to, message string) error {
	l.log.Info("sms", "to", to, "bytes", len(message))
	return nil
}

func (l *LogSenders) PostWebhook(_ context.Context, url, method string, headers map[string]string, body string) error {
	l.log.Info("webhook", "url", url, "method", method, "headers", len(headers), "bytes", len(body))
	return nil
}

func (l *LogSenders) PublishNotification(_ context.Context, title, message string, recipients []string) error {
	l.log.Info("notification", "title", title, "recipients", len(recipients), "bytes", len(message))
	return nil
}

func (l *LogSenders) ProcessPayout(_ context.Context, req automation.PayoutRequest) error {
	l.log.Info("payout", "affiliateId", req.AffiliateID, "amount", req.Amount, "method", req.Method)
	return nil
}
