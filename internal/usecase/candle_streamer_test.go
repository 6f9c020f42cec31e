package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"FinWatch/internal/domain/models"
	domrepo "FinWatch/internal/domain/repository"
)

type recordingObserver struct {
	mu   sync.Mutex
	seen map[string][]models.Observation
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{seen: map[string][]models.Observation{}}
}

func (o *recordingObserver) Name() string { return "recorder" }

func (o *recordingObserver) Observe(_ context.Context, obs models.Observation) {
	o.mu.Lock()
	o.seen[obs.Symbol] = append(o.seen[obs.Symbol], obs)
	o.mu.Unlock()
}

func (o *recordingObserver) count(symbol string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.seen[symbol])
}

func (o *recordingObserver) get(symbol string) []models.Observation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.Observation(nil), o.seen[symbol]...)
}

type panickyObserver struct{}

func (panickyObserver) Name() string                               { return "panicky" }
func (panickyObserver) Observe(context.Context, models.Observation) { panic("boom") }

type sinkRecorder struct {
	mu   sync.Mutex
	recs []models.CandleRecord
}

func (s *sinkRecorder) Enqueue(rec models.CandleRecord) {
	s.mu.Lock()
	s.recs = append(s.recs, rec)
	s.mu.Unlock()
}

// gateObserver blocks the first observation of symbol until release is closed.
type gateObserver struct {
	symbol  string
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGateObserver(symbol string) *gateObserver {
	return &gateObserver{symbol: symbol, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gateObserver) Name() string { return "gate" }

func (g *gateObserver) Observe(_ context.Context, obs models.Observation) {
	if obs.Symbol != g.symbol {
		return
	}
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
}

func newTestStreamer(t *testing.T, limit int, opts ...StreamerOption) (*CandleStreamer, *fakeStream) {
	t.Helper()
	m := &fakeMarket{
		candles: map[string][]models.Candle{
			"BTCUSDT": series(limit+1, 100),
			"ETHUSDT": series(limit+1, 10),
		},
		failing: map[string]bool{"BADUSDT": true},
	}
	stream := &fakeStream{}
	s := NewCandleStreamer(StreamerConfig{Interval: domrepo.Interval5m, Limit: limit},
		NewCandleFetcher(m, 2, nil, nil), stream, opts...)
	res, err := s.Start(context.Background(), []string{"BTCUSDT", "ETHUSDT", "BADUSDT", "BTCUSDT"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(res.Failures) != 1 {
		t.Fatalf("expected one seed failure, got %v", res.FailedSymbols())
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s, stream
}

func TestStreamerWindowNeverExceedsLimit(t *testing.T) {
	rec := newRecordingObserver()
	sink := &sinkRecorder{}
	s, stream := newTestStreamer(t, 100, WithObservers(rec), WithCandleSink(sink))

	if len(stream.symbols) != 3 {
		t.Fatalf("expected deduplicated subscription, got %v", stream.symbols)
	}
	w, ok := s.Window("BTCUSDT", 0)
	// The still-open candle is dropped while seeding.
	if !ok || len(w) != 99 {
		t.Fatalf("expected seeded window of 99, got %d", len(w))
	}

	for i := 0; i < 30; i++ {
		stream.push(models.Tick{Symbol: "BTCUSDT", Candle: candleAt(200+i, 500+float64(i)), IsFinal: true})
	}
	if !waitFor(func() bool { return rec.count("BTCUSDT") == 30 }) {
		t.Fatalf("expected 30 observations, got %d", rec.count("BTCUSDT"))
	}
	for _, o := range rec.get("BTCUSDT") {
		if len(o.Candles) > 100 {
			t.Fatalf("window exceeded limit: %d", len(o.Candles))
		}
	}
	w, _ = s.Window("BTCUSDT", 0)
	if len(w) != 100 || !w[99].Close.Equal(dec(529)) {
		t.Fatalf("unexpected window tail %v", w[99].Close)
	}
	if !waitFor(func() bool { sink.mu.Lock(); defer sink.mu.Unlock(); return len(sink.recs) == 30 }) {
		t.Fatalf("expected finalized candles forwarded to sink")
	}
}

func TestStreamerPreservesPerSymbolOrder(t *testing.T) {
	rec := newRecordingObserver()
	_, stream := newTestStreamer(t, 100, WithObservers(rec))

	for i := 0; i < 50; i++ {
		stream.push(models.Tick{Symbol: "BTCUSDT", Candle: candleAt(200+i, float64(1000+i)), IsFinal: i%2 == 0})
		stream.push(models.Tick{Symbol: "ETHUSDT", Candle: candleAt(200+i, float64(2000+i)), IsFinal: i%2 == 0})
	}
	if !waitFor(func() bool { return rec.count("BTCUSDT") == 50 && rec.count("ETHUSDT") == 50 }) {
		t.Fatalf("missing observations")
	}
	for _, sym := range []string{"BTCUSDT", "ETHUSDT"} {
		prev := -1.0
		for _, o := range rec.get(sym) {
			p, _ := o.Price()
			if f := p.InexactFloat64(); f <= prev {
				t.Fatalf("%s out of order: %v after %v", sym, f, prev)
			} else {
				prev = f
			}
		}
	}
}

func TestStreamerProvisionalTickIsTransient(t *testing.T) {
	rec := newRecordingObserver()
	s, stream := newTestStreamer(t, 100, WithObservers(rec))

	stream.push(models.Tick{Symbol: "ETHUSDT", Candle: candleAt(300, 42), IsFinal: false})
	if !waitFor(func() bool { return rec.count("ETHUSDT") == 1 }) {
		t.Fatalf("missing observation")
	}
	o := rec.get("ETHUSDT")[0]
	if len(o.Candles) != 100 || o.IsFinal {
		t.Fatalf("expected window plus provisional candle, got %d", len(o.Candles))
	}
	w, _ := s.Window("ETHUSDT", 0)
	if len(w) != 99 || w[98].Close.Equal(dec(42)) {
		t.Fatalf("provisional candle leaked into window")
	}
}

func TestStreamerDropsUnseededAndSurvivesPanics(t *testing.T) {
	rec := newRecordingObserver()
	_, stream := newTestStreamer(t, 100, WithObservers(panickyObserver{}, rec))

	stream.push(models.Tick{Symbol: "BADUSDT", Candle: candleAt(1, 1), IsFinal: true})
	stream.push(models.Tick{Symbol: "BTCUSDT", Candle: candleAt(1, 1), IsFinal: true})
	if !waitFor(func() bool { return rec.count("BTCUSDT") == 1 }) {
		t.Fatalf("observer after a panicking one was not called")
	}
	time.Sleep(20 * time.Millisecond)
	if rec.count("BADUSDT") != 0 {
		t.Fatalf("tick for unseeded symbol was dispatched")
	}
}

func TestStreamerSecondStartFails(t *testing.T) {
	s, _ := newTestStreamer(t, 100)
	if _, err := s.Start(context.Background(), []string{"BTCUSDT"}); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestStreamerBlockedSymbolDoesNotDelayOthers(t *testing.T) {
	gate := newGateObserver("BTCUSDT")
	rec := newRecordingObserver()
	_, stream := newTestStreamer(t, 100, WithObservers(gate, rec))
	var releaseOnce sync.Once
	release := func() { releaseOnce.Do(func() { close(gate.release) }) }
	t.Cleanup(release)

	stream.push(models.Tick{Symbol: "BTCUSDT", Candle: candleAt(200, 1000), IsFinal: true})
	select {
	case <-gate.entered:
	case <-time.After(time.Second):
		t.Fatalf("BTCUSDT observation never started")
	}

	pushed := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			stream.push(models.Tick{Symbol: "BTCUSDT", Candle: candleAt(201, float64(1001+i)), IsFinal: false})
		}
		stream.push(models.Tick{Symbol: "ETHUSDT", Candle: candleAt(200, 2000), IsFinal: true})
		close(pushed)
	}()
	select {
	case <-pushed:
	case <-time.After(time.Second):
		t.Fatalf("stream read loop blocked behind a stalled symbol")
	}

	if !waitFor(func() bool { return rec.count("ETHUSDT") == 1 }) {
		t.Fatalf("ETHUSDT was not processed while BTCUSDT was blocked")
	}
	if rec.count("BTCUSDT") != 0 {
		t.Fatalf("BTCUSDT observed before its first observation finished")
	}

	release()
	if !waitFor(func() bool { return rec.count("BTCUSDT") == 2 }) {
		t.Fatalf("expected the finalized tick and one coalesced provisional tick, got %d", rec.count("BTCUSDT"))
	}
	time.Sleep(20 * time.Millisecond)
	obs := rec.get("BTCUSDT")
	if len(obs) != 2 || !obs[0].IsFinal || obs[1].IsFinal {
		t.Fatalf("unexpected BTCUSDT observations %+v", obs)
	}
	if p, _ := obs[1].Price(); !p.Equal(dec(2000)) {
		t.Fatalf("expected the newest provisional price 2000, got %v", p)
	}
}
