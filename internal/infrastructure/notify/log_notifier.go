package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"rpkimon/internal/bootstrap/logging"
	"rpkimon/internal/ports"
)

// LogNotifier writes notifications to the context logger instead of
// delivering them.
type LogNotifier struct{}

var _ ports.Notifier = LogNotifier{}

func NewLogNotifier() LogNotifier {
	return LogNotifier{}
}

func (LogNotifier) Notify(ctx context.Context, n ports.Notification) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if strings.TrimSpace(n.To) == "" {
		return errors.New("recipient is required")
	}

	logging.Info(logging.WithComponent(ctx, "infrastructure.notify"), "notification",
		slog.String("to", n.To),
		slog.String("from", n.From),
		slog.String("subject", n.Subject),
		slog.String("body", n.Body),
	)
	return nil
}
