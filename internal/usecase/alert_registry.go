package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"FinWatch/internal/domain/models"
	domrepo "FinWatch/internal/domain/repository"
	"FinWatch/internal/services/features"
	"FinWatch/pkg/logger"
	"FinWatch/pkg/metrics"
)

const alertsDetector = "alerts"

// AlertRegistryConfig tunes alert evaluation.
type AlertRegistryConfig struct {
	// CloseGapPct fires an alert when the price is within this percentage of the target.
	CloseGapPct decimal.Decimal
}

// AlertRegistry owns the user price alerts. Alerts fire at most once and are
// removed only after a successful delivery.
type AlertRegistry struct {
	cfg      AlertRegistryConfig
	resolver *PriceResolver
	notifier domrepo.Notifier
	doc      *domrepo.Document[[]models.PriceAlert]
	metrics  domrepo.Metrics
	l        *logger.Logger
	now      func() time.Time

	mu     sync.Mutex
	saveMu sync.Mutex
	alerts []*models.PriceAlert
}

type AlertOption func(*AlertRegistry)

func WithAlertClock(now func() time.Time) AlertOption {
	return func(r *AlertRegistry) { r.now = now }
}

func WithAlertMetrics(m domrepo.Metrics) AlertOption {
	return func(r *AlertRegistry) {
		if m != nil {
			r.metrics = m
		}
	}
}

func WithAlertLogger(l *logger.Logger) AlertOption {
	return func(r *AlertRegistry) {
		if l != nil {
			r.l = l
		}
	}
}

func NewAlertRegistry(cfg AlertRegistryConfig, resolver *PriceResolver, n domrepo.Notifier, store domrepo.DocumentStore, opts ...AlertOption) *AlertRegistry {
	if cfg.CloseGapPct.IsZero() {
		cfg.CloseGapPct = decimal.RequireFromString("0.01")
	}
	r := &AlertRegistry{
		cfg:      cfg,
		resolver: resolver,
		notifier: n,
		metrics:  metrics.Nop{},
		l:        logger.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.l = r.l.With("alert_registry")
	r.doc = domrepo.NewDocument(store, domrepo.DocAlerts, func() []models.PriceAlert { return nil }, r.l)
	return r
}

func (r *AlertRegistry) Name() string { return alertsDetector }

// Load restores persisted alerts. Deliveries interrupted by a restart are re-armed.
func (r *AlertRegistry) Load(ctx context.Context) {
	loaded := r.doc.Load(ctx)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = make([]*models.PriceAlert, 0, len(loaded))
	for i := range loaded {
		a := loaded[i]
		a.Triggered = false
		r.alerts = append(r.alerts, &a)
	}
	r.l.Info("alerts loaded", logger.Int("count", len(r.alerts)))
}

// AddAlert resolves the current price of symbol, registers the alert and
// acknowledges it to the origin. The ack is best effort.
func (r *AlertRegistry) AddAlert(ctx context.Context, symbol string, target decimal.Decimal, origin models.OriginRef) (models.PriceAlert, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if !target.IsPositive() {
		return models.PriceAlert{}, fmt.Errorf("target price must be positive")
	}
	price, err := r.resolver.Await(ctx, symbol)
	if err != nil {
		return models.PriceAlert{}, fmt.Errorf("add alert: %w", err)
	}

	a := &models.PriceAlert{
		ID:          uuid.NewString(),
		Symbol:      symbol,
		TargetPrice: target,
		Origin:      origin,
		CreatedAt:   r.now(),
	}
	r.mu.Lock()
	r.alerts = append(r.alerts, a)
	out := *a
	r.mu.Unlock()
	_ = r.persist(ctx)

	gap := features.PercentGap(price, target)
	text := fmt.Sprintf("Alert added for %s at %s\nCurrent price: %s\nGap : %s%%",
		symbol, target.String(), price.String(), features.FormatPercent(gap))
	if _, err := r.notifier.Send(ctx, models.Notification{Destination: origin.Destination, Text: text, QuoteRef: origin.MessageID}); err != nil {
		r.metrics.RecordNotification(alertsDetector, "error")
		r.l.Warn("alert ack failed", logger.String("alert_id", a.ID), logger.Error(err))
	} else {
		r.metrics.RecordNotification(alertsDetector, "ok")
	}
	r.l.Info("alert added",
		logger.String("alert_id", a.ID),
		logger.String("symbol", symbol),
		logger.String("target", target.String()),
	)
	return out, nil
}

// RemoveAlert deletes an alert by id.
func (r *AlertRegistry) RemoveAlert(ctx context.Context, id string) error {
	if !r.drop(id) {
		return fmt.Errorf("%s: %w", id, models.ErrAlertNotFound)
	}
	return r.persist(ctx)
}

// Alerts returns a copy of the registered alerts, oldest first.
func (r *AlertRegistry) Alerts() []models.PriceAlert {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.PriceAlert, len(r.alerts))
	for i, a := range r.alerts {
		out[i] = *a
	}
	return out
}

// Observe evaluates the symbol's alerts against the observed price.
func (r *AlertRegistry) Observe(ctx context.Context, obs models.Observation) {
	price, ok := obs.Price()
	if !ok {
		return
	}

	var fired []models.PriceAlert
	dirty := false
	r.mu.Lock()
	for _, a := range r.alerts {
		if a.Symbol != obs.Symbol || a.Triggered {
			continue
		}
		if !a.Resolved() {
			a.Direction = models.DirectionBelow
			if a.TargetPrice.GreaterThan(price) {
				a.Direction = models.DirectionAbove
			}
			dirty = true
		}
		if r.reached(a, price) {
			a.Triggered = true
			fired = append(fired, *a)
		}
	}
	r.mu.Unlock()

	if dirty {
		_ = r.persist(ctx)
	}
	for _, a := range fired {
		r.deliver(ctx, a, price)
	}
}

// reached measures the close gap relative to the target.
func (r *AlertRegistry) reached(a *models.PriceAlert, price decimal.Decimal) bool {
	if features.PercentGap(a.TargetPrice, price).LessThanOrEqual(r.cfg.CloseGapPct) {
		return true
	}
	if a.Direction == models.DirectionAbove {
		return price.GreaterThan(a.TargetPrice)
	}
	return price.LessThanOrEqual(a.TargetPrice)
}

func (r *AlertRegistry) deliver(ctx context.Context, a models.PriceAlert, price decimal.Decimal) {
	text := fmt.Sprintf("⏰ Alert triggered! ⏰\nFor %s at %s\nCurrent Price : %s",
		a.Symbol, a.TargetPrice.String(), price.String())
	_, err := r.notifier.Send(ctx, models.Notification{Destination: a.Origin.Destination, Text: text, QuoteRef: a.Origin.MessageID})

	if err != nil && !errors.Is(err, models.ErrDeliveryUnknown) {
		r.mu.Lock()
		for _, cur := range r.alerts {
			if cur.ID == a.ID {
				cur.Triggered = false
			}
		}
		r.mu.Unlock()
		r.metrics.RecordNotification(alertsDetector, "error")
		r.l.Error("alert delivery failed, will retry",
			logger.String("alert_id", a.ID),
			logger.String("symbol", a.Symbol),
			logger.Error(err),
		)
		return
	}
	if err != nil {
		r.l.Warn("alert delivery outcome unknown, treating as delivered", logger.String("alert_id", a.ID), logger.Error(err))
	}

	r.drop(a.ID)
	_ = r.persist(ctx)
	r.metrics.RecordNotification(alertsDetector, "ok")
	r.metrics.RecordDetectorFire(alertsDetector, string(a.Direction))
	r.l.Info("alert triggered",
		logger.String("alert_id", a.ID),
		logger.String("symbol", a.Symbol),
		logger.String("price", price.String()),
	)
}

func (r *AlertRegistry) drop(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, a := range r.alerts {
		if a.ID == id {
			r.alerts = append(r.alerts[:i], r.alerts[i+1:]...)
			return true
		}
	}
	return false
}

func (r *AlertRegistry) persist(ctx context.Context) error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	r.mu.Lock()
	snap := make([]models.PriceAlert, len(r.alerts))
	for i, a := range r.alerts {
		snap[i] = *a
	}
	r.mu.Unlock()

	return r.doc.Save(ctx, snap)
}
