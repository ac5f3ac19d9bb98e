package mail

import (
	"context"

	"github.com/dmitrijs2005/subkeeper/internal/logging"
)

// LogSender writes messages to the log instead of delivering them. Used when
// no SMTP host is configured.
type LogSender struct {
	log logging.Logger
}

func NewLogSender(log logging.Logger) *LogSender {
	return &LogSender{log: log.With("module", "mail")}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.log.Info(ctx, "mail not delivered (no smtp configured)", "to", msg.To, "subject", msg.Subject)
	s.log.Debug(ctx, "mail body", "to", msg.To, "text", msg.Text)
	return nil
}
