package notify

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/google/uuid"

	"FinWatch/internal/domain/models"
	drepo "FinWatch/internal/domain/repository"
	pkghttp "FinWatch/pkg/http"
)

type webhookResponse struct {
	MessageID string `json:"message_id"`
}

// WebhookNotifier posts notifications as JSON to an HTTP endpoint.
// The endpoint may answer with {"message_id": "..."} to enable threading.
type WebhookNotifier struct {
	client *pkghttp.Client
	url    string
}

func NewWebhookNotifier(client *pkghttp.Client, url string) *WebhookNotifier {
	return &WebhookNotifier{client: client, url: url}
}

func (w *WebhookNotifier) Send(ctx context.Context, n models.Notification) (string, error) {
	var resp webhookResponse
	err := w.client.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method:  pkghttp.MethodPost,
		URL:     w.url,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    n,
	}, &resp)
	if err != nil {
		if isTimeout(err) {
			return "", fmt.Errorf("webhook: %w: %v", models.ErrDeliveryUnknown, err)
		}
		return "", fmt.Errorf("webhook: %w", err)
	}
	if resp.MessageID == "" {
		return uuid.NewString(), nil
	}
	return resp.MessageID, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

var _ drepo.Notifier = (*WebhookNotifier)(nil)
