package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"FinWatch/internal/domain/models"
)

func newTestRegistry(t *testing.T, n *fakeNotifier, store *memStore) (*AlertRegistry, *PriceResolver) {
	t.Helper()
	r := NewPriceResolver(time.Second)
	reg := NewAlertRegistry(AlertRegistryConfig{}, r, n, store, WithAlertClock(func() time.Time { return t0 }))
	reg.Load(context.Background())
	return reg, r
}

func addAt(t *testing.T, reg *AlertRegistry, r *PriceResolver, symbol string, target, price float64) models.PriceAlert {
	t.Helper()
	type res struct {
		a   models.PriceAlert
		err error
	}
	done := make(chan res, 1)
	go func() {
		a, err := reg.AddAlert(context.Background(), symbol, dec(target), models.OriginRef{Destination: "chat-1", MessageID: "m-7"})
		done <- res{a, err}
	}()
	if !waitFor(func() bool { return r.Pending() == 1 }) {
		t.Fatalf("add did not wait for a price")
	}
	r.Observe(context.Background(), priceObs(symbol, price))
	out := <-done
	if out.err != nil {
		t.Fatalf("add alert: %v", out.err)
	}
	return out.a
}

func TestAlertFiresOnceWhenCrossed(t *testing.T) {
	n := &fakeNotifier{}
	reg, r := newTestRegistry(t, n, newMemStore())
	addAt(t, reg, r, "BTCUSDT", 100, 90)

	msgs := n.messages()
	if len(msgs) != 1 || !strings.HasPrefix(msgs[0].Text, "Alert added for BTCUSDT at 100\nCurrent price: 90\nGap : ") {
		t.Fatalf("unexpected ack %+v", msgs)
	}
	if msgs[0].QuoteRef != "m-7" {
		t.Fatalf("ack not threaded to origin")
	}

	reg.Observe(context.Background(), priceObs("BTCUSDT", 90))
	reg.Observe(context.Background(), priceObs("BTCUSDT", 95))
	if len(n.messages()) != 1 {
		t.Fatalf("alert fired early")
	}
	if a := reg.Alerts()[0]; a.Direction != models.DirectionAbove {
		t.Fatalf("expected direction above, got %q", a.Direction)
	}

	reg.Observe(context.Background(), priceObs("BTCUSDT", 99.99))
	msgs = n.messages()
	if len(msgs) != 2 {
		t.Fatalf("expected trigger within close gap, got %d messages", len(msgs))
	}
	want := "⏰ Alert triggered! ⏰\nFor BTCUSDT at 100\nCurrent Price : 99.99"
	if msgs[1].Text != want || msgs[1].Destination != "chat-1" {
		t.Fatalf("unexpected trigger %+v", msgs[1])
	}
	if len(reg.Alerts()) != 0 {
		t.Fatalf("expected alert removed after delivery")
	}

	reg.Observe(context.Background(), priceObs("BTCUSDT", 120))
	if len(n.messages()) != 2 {
		t.Fatalf("alert fired twice")
	}
}

func TestAlertCloseGapIsRelativeToTarget(t *testing.T) {
	n := &fakeNotifier{}
	reg, r := newTestRegistry(t, n, newMemStore())
	addAt(t, reg, r, "BTCUSDT", 100, 90)

	reg.Observe(context.Background(), priceObs("BTCUSDT", 99.98))
	if len(n.messages()) != 1 || len(reg.Alerts()) != 1 {
		t.Fatalf("fired outside the close gap")
	}
	reg.Observe(context.Background(), priceObs("BTCUSDT", 99.99))
	if len(n.messages()) != 2 || len(reg.Alerts()) != 0 {
		t.Fatalf("expected trigger exactly at the close gap")
	}
}

func TestAlertBelowTarget(t *testing.T) {
	n := &fakeNotifier{}
	reg, r := newTestRegistry(t, n, newMemStore())
	addAt(t, reg, r, "ETHUSDT", 2000, 2500)

	reg.Observe(context.Background(), priceObs("ETHUSDT", 2400))
	if len(n.messages()) != 1 {
		t.Fatalf("fired above target")
	}
	reg.Observe(context.Background(), priceObs("ETHUSDT", 1990))
	if len(n.messages()) != 2 || len(reg.Alerts()) != 0 {
		t.Fatalf("expected trigger on downward cross")
	}
}

func TestAlertDeliveryFailureRetries(t *testing.T) {
	n := &fakeNotifier{}
	reg, r := newTestRegistry(t, n, newMemStore())
	addAt(t, reg, r, "BTCUSDT", 100, 90)

	n.setErr(errTransport)
	reg.Observe(context.Background(), priceObs("BTCUSDT", 101))
	alerts := reg.Alerts()
	if len(alerts) != 1 || alerts[0].Triggered {
		t.Fatalf("expected alert kept and re-armed after failure, got %+v", alerts)
	}

	n.setErr(nil)
	reg.Observe(context.Background(), priceObs("BTCUSDT", 102))
	if len(reg.Alerts()) != 0 {
		t.Fatalf("expected alert removed after retry")
	}
}

func TestAlertUnknownDeliveryCountsAsSent(t *testing.T) {
	n := &fakeNotifier{}
	reg, r := newTestRegistry(t, n, newMemStore())
	addAt(t, reg, r, "BTCUSDT", 100, 90)

	n.setErr(fmt.Errorf("timeout: %w", models.ErrDeliveryUnknown))
	reg.Observe(context.Background(), priceObs("BTCUSDT", 101))
	if len(reg.Alerts()) != 0 {
		t.Fatalf("expected alert removed on unknown outcome")
	}
}

func TestAlertsPersistAcrossRestart(t *testing.T) {
	store := newMemStore()
	n := &fakeNotifier{}
	reg, r := newTestRegistry(t, n, store)
	a := addAt(t, reg, r, "BTCUSDT", 100, 90)
	reg.Observe(context.Background(), priceObs("BTCUSDT", 91))

	reg2, _ := newTestRegistry(t, n, store)
	got := reg2.Alerts()
	if len(got) != 1 || got[0].ID != a.ID || got[0].Direction != models.DirectionAbove {
		t.Fatalf("unexpected restored alerts %+v", got)
	}
	if err := reg2.RemoveAlert(context.Background(), a.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := reg2.RemoveAlert(context.Background(), a.ID); !errors.Is(err, models.ErrAlertNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	reg3, _ := newTestRegistry(t, n, store)
	if len(reg3.Alerts()) != 0 {
		t.Fatalf("removal not persisted")
	}
}

func TestAddAlertTimesOutWithoutPrice(t *testing.T) {
	n := &fakeNotifier{}
	r := NewPriceResolver(10 * time.Millisecond)
	reg := NewAlertRegistry(AlertRegistryConfig{}, r, n, newMemStore())
	_, err := reg.AddAlert(context.Background(), "NOPEUSDT", dec(1), models.OriginRef{Destination: "chat-1"})
	if !errors.Is(err, models.ErrResolutionTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if len(reg.Alerts()) != 0 || len(n.messages()) != 0 {
		t.Fatalf("nothing should be registered or sent")
	}
}
