package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"FinWatch/internal/domain/models"
	domrepo "FinWatch/internal/domain/repository"
	"FinWatch/internal/middleware"
	"FinWatch/pkg/logger"
	"FinWatch/pkg/metrics"
)

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("streamer already started")

// Observer receives every observation of every symbol. Calls for one symbol
// are serialized and arrive in tick order.
type Observer interface {
	Name() string
	Observe(ctx context.Context, obs models.Observation)
}

// CandleSink receives finalized candles, e.g. for archival. Enqueue must not block.
type CandleSink interface {
	Enqueue(rec models.CandleRecord)
}

// StreamerConfig sizes the rolling windows.
type StreamerConfig struct {
	Interval domrepo.Interval
	Limit    int
}

type StreamerOption func(*CandleStreamer)

// WithObservers appends observers in dispatch order.
func WithObservers(obs ...Observer) StreamerOption {
	return func(s *CandleStreamer) { s.observers = append(s.observers, obs...) }
}

// WithCandleSink forwards finalized candles to sink.
func WithCandleSink(sink CandleSink) StreamerOption {
	return func(s *CandleStreamer) { s.sink = sink }
}

// WithTickPipeline filters ticks before they are routed.
func WithTickPipeline(p *middleware.TickPipeline) StreamerOption {
	return func(s *CandleStreamer) { s.pipeline = p }
}

// WithStreamerMetrics sets the metrics recorder.
func WithStreamerMetrics(m domrepo.Metrics) StreamerOption {
	return func(s *CandleStreamer) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithStreamerLogger sets the logger.
func WithStreamerLogger(l *logger.Logger) StreamerOption {
	return func(s *CandleStreamer) {
		if l != nil {
			s.l = l
		}
	}
}

// symbolWindow is one symbol's rolling window plus its inbox. Only the
// symbol's worker reads the inbox.
type symbolWindow struct {
	mu      sync.RWMutex
	candles []models.Candle

	inboxMu sync.Mutex
	inbox   []models.Tick
	wake    chan struct{}
}

func newSymbolWindow(cs []models.Candle) *symbolWindow {
	return &symbolWindow{candles: cs, wake: make(chan struct{}, 1)}
}

// push queues t without blocking. A provisional tick replaces a provisional
// tick still waiting at the tail; finalized ticks are always kept.
func (w *symbolWindow) push(t models.Tick) (coalesced bool) {
	w.inboxMu.Lock()
	if n := len(w.inbox); n > 0 && !t.IsFinal && !w.inbox[n-1].IsFinal {
		w.inbox[n-1] = t
		coalesced = true
	} else {
		w.inbox = append(w.inbox, t)
	}
	w.inboxMu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return coalesced
}

func (w *symbolWindow) drain() []models.Tick {
	w.inboxMu.Lock()
	defer w.inboxMu.Unlock()
	out := w.inbox
	w.inbox = nil
	return out
}

// CandleStreamer seeds per-symbol windows from history, then keeps them current
// from the kline stream and fans each tick out to the observers.
//
// Each seeded symbol has its own worker goroutine, so a symbol's ticks are
// handled in order and a slow observer call only holds up that symbol.
type CandleStreamer struct {
	cfg       StreamerConfig
	fetcher   *CandleFetcher
	stream    domrepo.KlineStream
	observers []Observer
	sink      CandleSink
	pipeline  *middleware.TickPipeline
	metrics   domrepo.Metrics
	l         *logger.Logger

	mu      sync.RWMutex
	windows map[string]*symbolWindow
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewCandleStreamer(cfg StreamerConfig, fetcher *CandleFetcher, stream domrepo.KlineStream, opts ...StreamerOption) *CandleStreamer {
	if cfg.Limit <= 0 || cfg.Limit > MaxCandleLimit {
		cfg.Limit = MaxCandleLimit
	}
	if cfg.Interval == "" {
		cfg.Interval = domrepo.DefaultInterval()
	}
	s := &CandleStreamer{
		cfg:     cfg,
		fetcher: fetcher,
		stream:  stream,
		metrics: metrics.Nop{},
		l:       logger.Nop(),
		windows: make(map[string]*symbolWindow),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.l = s.l.With("candle_streamer")
	return s
}

// Start seeds windows for symbols and subscribes to the stream. Symbols whose
// history fails to load are reported in the result and their ticks are ignored.
func (s *CandleStreamer) Start(ctx context.Context, symbols []string) (*FetchResult, error) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	symbols = dedupe(symbols)
	res, err := s.fetcher.Fetch(ctx, symbols, s.cfg.Interval, s.cfg.Limit, false)
	if err != nil {
		return nil, fmt.Errorf("seed windows: %w", err)
	}

	s.mu.Lock()
	for _, sc := range res.Successes {
		cs := sc.Candles
		if len(cs) > s.cfg.Limit {
			cs = cs[len(cs)-s.cfg.Limit:]
		}
		s.windows[sc.Symbol] = newSymbolWindow(append([]models.Candle(nil), cs...))
	}
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for sym, w := range s.windows {
		s.wg.Add(1)
		go s.runSymbol(sym, w)
	}
	s.mu.Unlock()

	onTick := middleware.TickHandler(s.route)
	if s.pipeline != nil {
		onTick = s.pipeline.Wrap(onTick)
	}
	if err := s.stream.Subscribe(s.ctx, symbols, s.cfg.Interval, onTick); err != nil {
		s.cancel()
		s.wg.Wait()
		return res, fmt.Errorf("subscribe: %w", err)
	}

	s.l.Info("streamer started",
		logger.Int("symbols", len(symbols)),
		logger.Int("seeded", len(res.Successes)),
	)
	return res, nil
}

// Stop closes the stream and waits for the symbol workers to exit.
func (s *CandleStreamer) Stop(ctx context.Context) error {
	s.mu.RLock()
	cancel := s.cancel
	s.mu.RUnlock()
	if cancel == nil {
		return nil
	}
	if err := s.stream.Close(); err != nil {
		s.l.Warn("stream close", logger.Error(err))
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Window returns a copy of up to n newest finalized candles for symbol.
func (s *CandleStreamer) Window(symbol string, n int) ([]models.Candle, bool) {
	w := s.window(symbol)
	if w == nil {
		return nil, false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	cs := w.candles
	if n > 0 && n < len(cs) {
		cs = cs[len(cs)-n:]
	}
	return append([]models.Candle(nil), cs...), true
}

// Symbols lists the seeded symbols.
func (s *CandleStreamer) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.windows))
	for sym := range s.windows {
		out = append(out, sym)
	}
	return out
}

// Connected reports the upstream stream state.
func (s *CandleStreamer) Connected() bool { return s.stream.IsConnected() }

func (s *CandleStreamer) window(symbol string) *symbolWindow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.windows[symbol]
}

// route runs on the stream's read loop and never blocks on observers.
func (s *CandleStreamer) route(t models.Tick) {
	w := s.window(t.Symbol)
	if w == nil {
		s.l.Debug("tick for unseeded symbol dropped", logger.String("symbol", t.Symbol))
		return
	}
	if w.push(t) {
		s.metrics.RecordError("provisional_coalesced")
	}
}

func (s *CandleStreamer) runSymbol(symbol string, w *symbolWindow) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-w.wake:
			for _, t := range w.drain() {
				if s.ctx.Err() != nil {
					return
				}
				s.handle(s.ctx, symbol, w, t)
			}
		}
	}
}

func (s *CandleStreamer) handle(ctx context.Context, symbol string, w *symbolWindow, t models.Tick) {
	s.metrics.RecordTick(symbol, t.IsFinal)

	var view []models.Candle
	if t.IsFinal {
		w.mu.Lock()
		w.candles = append(w.candles, t.Candle)
		if len(w.candles) > s.cfg.Limit {
			w.candles = w.candles[len(w.candles)-s.cfg.Limit:]
		}
		// Existing elements are never written in place, so the header is a safe snapshot.
		view = w.candles
		w.mu.Unlock()
		if s.sink != nil {
			s.sink.Enqueue(models.CandleRecord{Symbol: symbol, Interval: string(s.cfg.Interval), Candle: t.Candle})
		}
	} else {
		w.mu.RLock()
		view = make([]models.Candle, len(w.candles), len(w.candles)+1)
		copy(view, w.candles)
		w.mu.RUnlock()
		view = append(view, t.Candle)
	}

	s.metrics.RecordLastPrice(symbol, t.Candle.Close.InexactFloat64())
	s.metrics.RecordWindowSize(symbol, len(view))

	obs := models.Observation{Symbol: symbol, Candles: view, IsFinal: t.IsFinal}
	start := time.Now()
	for _, o := range s.observers {
		s.dispatch(ctx, o, obs)
	}
	s.metrics.RecordLatency("observe", time.Since(start).Seconds())
}

func (s *CandleStreamer) dispatch(ctx context.Context, o Observer, obs models.Observation) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordError("observer_panic")
			s.l.Error("observer panic",
				logger.String("observer", o.Name()),
				logger.String("symbol", obs.Symbol),
				logger.Any("panic", r),
			)
		}
	}()
	o.Observe(ctx, obs)
}

func dedupe(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
