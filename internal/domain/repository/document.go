package repository

import (
	"context"

	applogger "FinWatch/pkg/logger"
)

// Document is a typed view over one key of a DocumentStore. Absent or
// malformed documents load as the default value.
type Document[T any] struct {
	store DocumentStore
	key   string
	def   func() T
	l     *applogger.Logger
}

// NewDocument binds key in store. def builds the value used when nothing usable is stored.
func NewDocument[T any](store DocumentStore, key string, def func() T, l *applogger.Logger) *Document[T] {
	if l == nil {
		l = applogger.Nop()
	}
	return &Document[T]{store: store, key: key, def: def, l: l}
}

// Key returns the document key.
func (d *Document[T]) Key() string { return d.key }

// Load returns the stored value or the default.
func (d *Document[T]) Load(ctx context.Context) T {
	v := d.def()
	found, err := d.store.Load(ctx, d.key, &v)
	if err != nil {
		d.l.Warn("document unreadable, using default", applogger.String("key", d.key), applogger.Error(err))
		return d.def()
	}
	if !found {
		return d.def()
	}
	return v
}

// Save writes v. Failures are logged and returned; callers keep their in-memory state.
func (d *Document[T]) Save(ctx context.Context, v T) error {
	if err := d.store.Save(ctx, d.key, v); err != nil {
		d.l.Error("document save failed", applogger.String("key", d.key), applogger.Error(err))
		return err
	}
	return nil
}

// Document keys.
const (
	DocAlerts     = "alerts"
	DocTrend      = "trend"
	DocVolatility = "volatility"
	DocPumpDump   = "pumpdump"
	DocBullish    = "bullish"
)
