package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticks         *prometheus.CounterVec
	detectorFires *prometheus.CounterVec
	notifications *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
	windowSize    *prometheus.GaugeVec
	latency       *prometheus.HistogramVec
}

// New creates a recorder registered with the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered with reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ticks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finwatch_ticks_total",
				Help: "Total number of kline ticks received",
			},
			[]string{"symbol", "final"},
		),
		detectorFires: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finwatch_detector_fires_total",
				Help: "Total number of detector firings",
			},
			[]string{"detector", "direction"},
		),
		notifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finwatch_notifications_total",
				Help: "Total number of notifications by outcome",
			},
			[]string{"detector", "result"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finwatch_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finwatch_last_price",
				Help: "Last observed price for a symbol",
			},
			[]string{"symbol"},
		),
		windowSize: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finwatch_window_candles",
				Help: "Number of finalized candles held for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finwatch_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordTick records one upstream kline event.
func (r *Recorder) RecordTick(symbol string, final bool) {
	r.ticks.WithLabelValues(symbol, strconv.FormatBool(final)).Inc()
}

// RecordDetectorFire records a detector condition being met.
func (r *Recorder) RecordDetectorFire(detector, direction string) {
	r.detectorFires.WithLabelValues(detector, direction).Inc()
}

// RecordNotification records a notification delivery outcome.
func (r *Recorder) RecordNotification(detector, result string) {
	r.notifications.WithLabelValues(detector, result).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordWindowSize records the finalized window length for a symbol.
func (r *Recorder) RecordWindowSize(symbol string, n int) {
	r.windowSize.WithLabelValues(symbol).Set(float64(n))
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards all measurements.
type Nop struct{}

func (Nop) RecordTick(string, bool) {}
func (Nop) RecordDetectorFire(string, string) {}
func (Nop) RecordNotification(string, string) {}
func (Nop) RecordError(string) {}
func (Nop) RecordLastPrice(string, float64) {}
func (Nop) RecordWindowSize(string, int) {}
func (Nop) RecordLatency(string, float64) {}
