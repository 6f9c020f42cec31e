package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"FinWatch/internal/domain/models"
)

type fakeAlertManager struct {
	added   []string
	removed []string
	addErr  error
	rmErr   error
}

func (m *fakeAlertManager) AddAlert(_ context.Context, symbol string, target decimal.Decimal, _ models.OriginRef) (models.PriceAlert, error) {
	if m.addErr != nil {
		return models.PriceAlert{}, m.addErr
	}
	m.added = append(m.added, symbol+"@"+target.String())
	return models.PriceAlert{ID: "a1", Symbol: symbol, TargetPrice: target}, nil
}

func (m *fakeAlertManager) RemoveAlert(_ context.Context, id string) error {
	if m.rmErr != nil {
		return m.rmErr
	}
	m.removed = append(m.removed, id)
	return nil
}

func TestCommandHandlerAddAndRemove(t *testing.T) {
	m := &fakeAlertManager{}
	n := &fakeNotifier{}
	h := NewAlertCommandHandler("cmds", m, n, nil)
	if h.Topic() != "cmds" {
		t.Fatalf("unexpected topic %s", h.Topic())
	}

	if err := h.Handle(context.Background(), []byte(`{"action":"add","symbol":"BTCUSDT","target_price":"70000","destination":"chat"}`)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(m.added) != 1 || m.added[0] != "BTCUSDT@70000" {
		t.Fatalf("unexpected adds %v", m.added)
	}
	if err := h.Handle(context.Background(), []byte(`{"action":"remove","id":"a1","destination":"chat"}`)); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(m.removed) != 1 || len(n.messages()) != 1 {
		t.Fatalf("expected removal and reply")
	}
}

func TestCommandHandlerAcknowledgesBadInput(t *testing.T) {
	m := &fakeAlertManager{}
	n := &fakeNotifier{}
	h := NewAlertCommandHandler("cmds", m, n, nil)

	for _, body := range []string{
		`not json`,
		`{"action":"explode","destination":"chat"}`,
		`{"action":"add","destination":"chat"}`,
		`{"action":"add","symbol":"BTCUSDT","target_price":"-3","destination":"chat"}`,
	} {
		if err := h.Handle(context.Background(), []byte(body)); err != nil {
			t.Fatalf("%s: expected ack, got %v", body, err)
		}
	}
	if len(m.added) != 0 {
		t.Fatalf("invalid commands reached the registry")
	}
}

func TestCommandHandlerErrors(t *testing.T) {
	n := &fakeNotifier{}
	m := &fakeAlertManager{addErr: fmt.Errorf("add: %w", models.ErrResolutionTimeout)}
	h := NewAlertCommandHandler("cmds", m, n, nil)
	if err := h.Handle(context.Background(), []byte(`{"action":"add","symbol":"XUSDT","target_price":"1","destination":"chat"}`)); err != nil {
		t.Fatalf("timeout should be answered, got %v", err)
	}
	if len(n.messages()) != 1 {
		t.Fatalf("expected a reply for unresolved symbol")
	}

	m.addErr = errors.New("disk full")
	if err := h.Handle(context.Background(), []byte(`{"action":"add","symbol":"XUSDT","target_price":"1","destination":"chat"}`)); err == nil {
		t.Fatalf("expected internal error to be retried")
	}
}
