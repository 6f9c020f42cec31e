package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"FinWatch/internal/domain/models"
	drepo "FinWatch/internal/domain/repository"
	"FinWatch/pkg/queue"
)

// MessageTypeNotification is the queue message type of outgoing notifications.
const MessageTypeNotification = "notification"

// QueueNotifier pushes notifications onto a Redis work queue drained by the bot.
type QueueNotifier struct {
	pub queue.Publisher
	now func() time.Time
}

func NewQueueNotifier(pub queue.Publisher) *QueueNotifier {
	return &QueueNotifier{pub: pub, now: time.Now}
}

func (q *QueueNotifier) Send(ctx context.Context, n models.Notification) (string, error) {
	msg := Message{
		ID:          uuid.NewString(),
		Destination: n.Destination,
		Text:        n.Text,
		QuoteRef:    n.QuoteRef,
		SentAt:      q.now().UTC(),
	}
	if err := q.pub.Publish(ctx, MessageTypeNotification, msg); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("enqueue notification: %w: %v", models.ErrDeliveryUnknown, err)
		}
		return "", fmt.Errorf("enqueue notification: %w", err)
	}
	return msg.ID, nil
}

var _ drepo.Notifier = (*QueueNotifier)(nil)
