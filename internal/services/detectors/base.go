package detectors

import (
	"context"
	"sync"
	"time"

	"FinWatch/internal/domain/models"
	domrepo "FinWatch/internal/domain/repository"
	"FinWatch/pkg/logger"
	"FinWatch/pkg/metrics"
)

// Option configures the shared parts of a detector.
type Option func(*base)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m domrepo.Metrics) Option {
	return func(b *base) {
		if m != nil {
			b.metrics = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(b *base) {
		if l != nil {
			b.l = l
		}
	}
}

type base struct {
	name     string
	notifier domrepo.Notifier
	metrics  domrepo.Metrics
	l        *logger.Logger
	now      func() time.Time
}

func newBase(name string, n domrepo.Notifier, opts []Option) base {
	b := base{
		name:     name,
		notifier: n,
		metrics:  metrics.Nop{},
		l:        logger.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&b)
	}
	b.l = b.l.With(name)
	return b
}

// Name identifies the detector in logs and metrics.
func (b *base) Name() string { return b.name }

// send delivers n and records the outcome. Detector delivery failures are logged only.
func (b *base) send(ctx context.Context, n models.Notification) (string, bool) {
	ref, err := b.notifier.Send(ctx, n)
	if err != nil {
		b.metrics.RecordNotification(b.name, "error")
		b.l.Error("notification failed", logger.String("destination", n.Destination), logger.Error(err))
		return "", false
	}
	b.metrics.RecordNotification(b.name, "ok")
	return ref, true
}

// stateTable is a detector-owned per-symbol table mirrored to one document.
// mu guards items; saveMu orders snapshots so an older one never overwrites a newer one.
type stateTable[S any] struct {
	mu     sync.Mutex
	saveMu sync.Mutex
	items  map[string]*S
	doc    *domrepo.Document[map[string]S]
}

func newStateTable[S any](store domrepo.DocumentStore, key string, l *logger.Logger) *stateTable[S] {
	return &stateTable[S]{
		items: make(map[string]*S),
		doc:   domrepo.NewDocument(store, key, func() map[string]S { return map[string]S{} }, l),
	}
}

func (t *stateTable[S]) load(ctx context.Context) {
	loaded := t.doc.Load(ctx)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = make(map[string]*S, len(loaded))
	for k, v := range loaded {
		v := v
		t.items[k] = &v
	}
}

// with runs fn on the symbol's state, creating it first if needed. existed is
// false when the state was just created.
func (t *stateTable[S]) with(symbol string, fn func(s *S, existed bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.items[symbol]
	if !ok {
		s = new(S)
		t.items[symbol] = s
	}
	fn(s, ok)
}

func (t *stateTable[S]) get(symbol string) (S, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.items[symbol]
	if !ok {
		var zero S
		return zero, false
	}
	return *s, true
}

func (t *stateTable[S]) remove(symbol string) {
	t.mu.Lock()
	delete(t.items, symbol)
	t.mu.Unlock()
}

func (t *stateTable[S]) persist(ctx context.Context) error {
	t.saveMu.Lock()
	defer t.saveMu.Unlock()

	t.mu.Lock()
	snap := make(map[string]S, len(t.items))
	for k, v := range t.items {
		snap[k] = *v
	}
	t.mu.Unlock()

	return t.doc.Save(ctx, snap)
}
