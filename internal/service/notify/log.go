package notify

import (
	"context"

	"github.com/google/uuid"

	"FinWatch/internal/domain/models"
	drepo "FinWatch/internal/domain/repository"
	"FinWatch/pkg/logger"
)

// LogNotifier writes notifications to the log. Useful for dry runs.
type LogNotifier struct {
	l *logger.Logger
}

func NewLogNotifier(l *logger.Logger) *LogNotifier {
	if l == nil {
		l = logger.Nop()
	}
	return &LogNotifier{l: l.With("notifier")}
}

func (n *LogNotifier) Send(_ context.Context, msg models.Notification) (string, error) {
	id := uuid.NewString()
	n.l.Info("notification",
		logger.String("id", id),
		logger.String("destination", msg.Destination),
		logger.String("quote_ref", msg.QuoteRef),
		logger.String("text", msg.Text),
	)
	return id, nil
}

var _ drepo.Notifier = (*LogNotifier)(nil)
