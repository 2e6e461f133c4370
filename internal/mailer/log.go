package mailer

import (
	"context"
	"log/slog"
)

// Log writes messages to the structured log instead of sending them. Used in
// development and when no mail driver is configured.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Send(ctx context.Context, m *Message) error {
	if err := validate(m); err != nil {
		return err
	}

	names := make([]string, 0, len(m.Attachments))
	size := 0
	for _, a := range m.Attachments {
		names = append(names, a.Name)
		size += len(a.Data)
	}

	l.logger.InfoContext(ctx, "mail not sent (log driver)",
		"to", m.To.Address,
		"subject", m.Subject,
		"attachments", names,
		"attachment_bytes", size,
	)
	return nil
}
