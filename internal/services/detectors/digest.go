package detectors

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"FinWatch/internal/domain/models"
	domrepo "FinWatch/internal/domain/repository"
	"FinWatch/internal/services/features"
	"FinWatch/pkg/logger"
)

// DigestEvent is one symbol entry of a composite notification.
type DigestEvent struct {
	Symbol string
	From   decimal.Decimal
	To     decimal.Decimal
}

const digestSeparator = "======================"

type resettableTimer interface {
	Reset(d time.Duration) bool
	Stop() bool
}

func realAfterFunc(d time.Duration, f func()) resettableTimer { return time.AfterFunc(d, f) }

// DigestDebouncer buffers events and sends them as one message once no new
// event has arrived for the configured delay.
type DigestDebouncer struct {
	base
	delay       time.Duration
	destination string

	mu        sync.Mutex
	buf       []DigestEvent
	timer     resettableTimer
	afterFunc func(time.Duration, func()) resettableTimer
	onFlushed func(ctx context.Context, symbols []string)
}

func NewDigestDebouncer(delay time.Duration, destination string, n domrepo.Notifier, opts ...Option) *DigestDebouncer {
	return &DigestDebouncer{
		base:        newBase("digest", n, opts),
		delay:       delay,
		destination: destination,
		afterFunc:   realAfterFunc,
	}
}

// OnFlushed registers a callback invoked with the flushed symbols before the message is sent.
func (d *DigestDebouncer) OnFlushed(fn func(ctx context.Context, symbols []string)) {
	d.mu.Lock()
	d.onFlushed = fn
	d.mu.Unlock()
}

// Add buffers ev and restarts the inactivity timer.
func (d *DigestDebouncer) Add(ev DigestEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buf = append(d.buf, ev)
	if d.timer == nil {
		d.timer = d.afterFunc(d.delay, func() { _ = d.Flush(context.Background()) })
		return
	}
	d.timer.Reset(d.delay)
}

// Pending returns the number of buffered events.
func (d *DigestDebouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buf)
}

// Flush sends buffered events now. It is a no-op when the buffer is empty.
func (d *DigestDebouncer) Flush(ctx context.Context) error {
	d.mu.Lock()
	events := d.buf
	d.buf = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	onFlushed := d.onFlushed
	d.mu.Unlock()

	if len(events) == 0 {
		return nil
	}

	symbols := make([]string, len(events))
	for i, ev := range events {
		symbols[i] = ev.Symbol
	}
	if onFlushed != nil {
		onFlushed(ctx, symbols)
	}

	d.metrics.RecordDetectorFire(d.name, "digest")
	d.l.Info("digest flush", logger.Int("events", len(events)))
	if _, ok := d.send(ctx, models.Notification{Destination: d.destination, Text: FormatDigest(events)}); !ok {
		return fmt.Errorf("send digest of %d events", len(events))
	}
	return nil
}

// Close stops the timer and flushes what is left.
func (d *DigestDebouncer) Close(ctx context.Context) error {
	return d.Flush(ctx)
}

// FormatDigest renders events one block per symbol.
func FormatDigest(events []DigestEvent) string {
	var sb strings.Builder
	for _, ev := range events {
		fmt.Fprintf(&sb, "%s => %s%%\n%s => %s\n%s\n",
			ev.Symbol, features.FormatPercent(features.PercentChange(ev.From, ev.To)), ev.From, ev.To, digestSeparator)
	}
	return sb.String()
}
