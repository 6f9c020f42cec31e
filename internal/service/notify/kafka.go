package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"FinWatch/internal/domain/models"
	drepo "FinWatch/internal/domain/repository"
)

// Publisher is the producer side the Kafka notifier needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}, headers ...kafka.Header) error
}

// Message is the payload published for every notification.
type Message struct {
	ID          string    `json:"id"`
	Destination string    `json:"destination"`
	Text        string    `json:"text"`
	QuoteRef    string    `json:"quote_ref,omitempty"`
	SentAt      time.Time `json:"sent_at"`
}

// KafkaNotifier publishes notifications to a topic keyed by destination so a
// downstream bot sees each chat's messages in order.
type KafkaNotifier struct {
	pub   Publisher
	topic string
	now   func() time.Time
}

func NewKafkaNotifier(pub Publisher, topic string) *KafkaNotifier {
	return &KafkaNotifier{pub: pub, topic: topic, now: time.Now}
}

// Send publishes n and returns the generated message id.
func (k *KafkaNotifier) Send(ctx context.Context, n models.Notification) (string, error) {
	msg := Message{
		ID:          uuid.NewString(),
		Destination: n.Destination,
		Text:        n.Text,
		QuoteRef:    n.QuoteRef,
		SentAt:      k.now().UTC(),
	}
	err := k.pub.Publish(ctx, k.topic, []byte(n.Destination), msg,
		kafka.Header{Key: "message-id", Value: []byte(msg.ID)})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("publish notification: %w: %v", models.ErrDeliveryUnknown, err)
		}
		return "", fmt.Errorf("publish notification: %w", err)
	}
	return msg.ID, nil
}

var _ drepo.Notifier = (*KafkaNotifier)(nil)
