package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"FinWatch/internal/domain/models"
	domrepo "FinWatch/internal/domain/repository"
	pkgkafka "FinWatch/pkg/kafka"
	"FinWatch/pkg/logger"
)

// Alert command actions.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
)

// AlertCommandJob is the queue message type carrying an AlertCommand.
const AlertCommandJob = "alert_command"

// AlertCommand is the wire format of the alert commands topic.
type AlertCommand struct {
	Action      string `json:"action" validate:"required,oneof=add remove"`
	ID          string `json:"id" validate:"required_if=Action remove"`
	Symbol      string `json:"symbol" validate:"required_if=Action add"`
	TargetPrice string `json:"target_price" validate:"required_if=Action add"`
	Destination string `json:"destination" validate:"required"`
	MessageID   string `json:"message_id"`
}

// AlertManager is the part of the alert registry commands drive.
type AlertManager interface {
	AddAlert(ctx context.Context, symbol string, target decimal.Decimal, origin models.OriginRef) (models.PriceAlert, error)
	RemoveAlert(ctx context.Context, id string) error
}

// AlertCommandHandler applies alert commands received from Kafka.
type AlertCommandHandler struct {
	topic    string
	alerts   AlertManager
	notifier domrepo.Notifier
	validate *validator.Validate
	l        *logger.Logger
}

func NewAlertCommandHandler(topic string, alerts AlertManager, n domrepo.Notifier, l *logger.Logger) *AlertCommandHandler {
	if l == nil {
		l = logger.Nop()
	}
	return &AlertCommandHandler{
		topic:    topic,
		alerts:   alerts,
		notifier: n,
		validate: validator.New(),
		l:        l.With("alert_commands"),
	}
}

func (h *AlertCommandHandler) Topic() string { return h.topic }

// Handle decodes and applies one command. Malformed commands and user errors
// are answered and acknowledged; only transport failures are retried.
func (h *AlertCommandHandler) Handle(ctx context.Context, data []byte) error {
	var cmd AlertCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		h.l.Warn("invalid alert command", logger.Error(err))
		return nil
	}
	if err := h.validate.Struct(cmd); err != nil {
		h.l.Warn("invalid alert command", logger.String("action", cmd.Action), logger.Error(err))
		return nil
	}
	origin := models.OriginRef{Destination: cmd.Destination, MessageID: cmd.MessageID}

	switch cmd.Action {
	case ActionAdd:
		target, err := decimal.NewFromString(cmd.TargetPrice)
		if err != nil || !target.IsPositive() {
			return h.reply(ctx, origin, fmt.Sprintf("Invalid price %q", cmd.TargetPrice))
		}
		if _, err := h.alerts.AddAlert(ctx, cmd.Symbol, target, origin); err != nil {
			if errors.Is(err, models.ErrResolutionTimeout) {
				return h.reply(ctx, origin, fmt.Sprintf("No price for %s, is it listed?", cmd.Symbol))
			}
			return fmt.Errorf("add alert: %w", err)
		}
	case ActionRemove:
		if err := h.alerts.RemoveAlert(ctx, cmd.ID); err != nil {
			if errors.Is(err, models.ErrAlertNotFound) {
				return h.reply(ctx, origin, fmt.Sprintf("Alert %s not found", cmd.ID))
			}
			return fmt.Errorf("remove alert: %w", err)
		}
		return h.reply(ctx, origin, fmt.Sprintf("Alert %s removed", cmd.ID))
	}
	return nil
}

func (h *AlertCommandHandler) reply(ctx context.Context, origin models.OriginRef, text string) error {
	if _, err := h.notifier.Send(ctx, models.Notification{Destination: origin.Destination, Text: text, QuoteRef: origin.MessageID}); err != nil {
		h.l.Warn("command reply failed", logger.String("destination", origin.Destination), logger.Error(err))
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*AlertCommandHandler)(nil)
