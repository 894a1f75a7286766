// Package notify implements the best-effort notification channels. Nothing
// in here is allowed to fail a run: Multi logs and drops every error.
package notify

import (
	"context"
	"log/slog"

	"gaceta/internal/core"
)

// Multi fans a text event out to every configured notifier. Failures are
// logged and swallowed; Notify never returns a non-nil error.
type Multi struct {
	notifiers []core.Notifier
	logger    *slog.Logger
}

func NewMulti(logger *slog.Logger, notifiers ...core.Notifier) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multi{notifiers: notifiers, logger: logger}
}

func (m *Multi) Notify(ctx context.Context, text string) error {
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, text); err != nil {
			m.logger.Warn("Notification channel failed", "error", err)
		}
	}
	return nil
}
