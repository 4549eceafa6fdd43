package notify

import (
	"context"
	"log/slog"
)

// NoOpSender implements Sender by logging messages instead of sending them.
// It backs simulate mode, where the full pipeline runs but nothing reaches
// the push channel, and deployments without a configured provider.
type NoOpSender struct {
	log *slog.Logger
}

// NewNoOpSender creates a sender that logs and discards messages.
func NewNoOpSender(log *slog.Logger) *NoOpSender {
	return &NoOpSender{log: log}
}

// Name implements Sender.
func (*NoOpSender) Name() string {
	return "noop"
}

// Send implements Sender.
func (n *NoOpSender) Send(_ context.Context, msg Message) error {
	n.log.Info("simulated notification",
		"title", msg.Title,
		"body", msg.Body,
		"url", msg.URL,
	)
	return nil
}
