package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// NoopSender is a no-op email sender for development and testing.
// It logs the plain-text body, which carries the action link, instead of
// delivering it.
type NoopSender struct{}

// NewNoopSender creates a new NoopSender.
func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

// Send logs the email but does not deliver it.
// PRE: req is a valid SendRequest
// POST: Returns a noop result without actual delivery
func (s *NoopSender) Send(_ context.Context, req SendRequest) (SendResult, error) {
	slog.Info("email_event", "event", "noop_send", "to", req.To, "subject", req.Subject, "body", req.Text)
	return SendResult{
		MessageID: fmt.Sprintf("noop-%d", time.Now().UnixNano()),
		SentAt:    time.Now(),
	}, nil
}
