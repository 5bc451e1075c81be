package notifier

import (
	"context"
	"log/slog"
)

// LogTransport records messages in the log instead of delivering them. It is
// used when no relay is configured.
type LogTransport struct {
	logger *slog.Logger
}

func NewLogTransport(logger *slog.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Send(ctx context.Context, msg Message) error {
	names := make([]string, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		names = append(names, a.Filename)
	}
	t.logger.InfoContext(ctx, "email (log transport)",
		"from", msg.Sender,
		"to", msg.To,
		"subject", msg.Subject,
		"attachments", names,
	)
	return nil
}
