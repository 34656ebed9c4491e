package authapi

import (
	"context"
	"log/slog"
)

// EmailSender delivers transactional mail.
//
// Only no-op and logging senders ship here; real delivery is wired by the
// deployment.
type EmailSender interface {
	Send(ctx context.Context, m Mail) error
}

// NoopEmailSender drops every message.
type NoopEmailSender struct{}

// Send is a no-op.
func (NoopEmailSender) Send(_ context.Context, _ Mail) error { return nil }

// LogEmailSender records that a message would have been sent. The link is
// never logged because it carries a plaintext token.
type LogEmailSender struct {
	Log *slog.Logger
}

// Send logs the message kind and recipient.
func (s LogEmailSender) Send(ctx context.Context, m Mail) error {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	log.InfoContext(ctx, "auth.mail.queued",
		"kind", string(m.Kind),
		"to", m.To,
		"subject", m.Subject,
	)
	return nil
}
