package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"FinWatch/internal/domain/models"
	drepo "FinWatch/internal/domain/repository"
	"FinWatch/pkg/logger"
)

// StreamConfig configures the combined kline stream.
type StreamConfig struct {
	WebSocketURL   string
	StreamsPerConn int
	ReconnectDelay time.Duration
	PingInterval   time.Duration
}

// Stream implements KlineStream over Binance combined websocket streams.
// Symbols are split across connections of at most StreamsPerConn streams;
// each connection reconnects on its own.
type Stream struct {
	cfg    StreamConfig
	dialer *websocket.Dialer
	l      *logger.Logger

	mu     sync.Mutex
	conns  map[int]*websocket.Conn
	cancel context.CancelFunc
	wg     sync.WaitGroup
	total  atomic.Int32
	live   atomic.Int32
}

// NewStream creates a kline stream.
func NewStream(cfg StreamConfig, l *logger.Logger) *Stream {
	if cfg.StreamsPerConn <= 0 {
		cfg.StreamsPerConn = 200
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = time.Minute
	}
	if l == nil {
		l = logger.Nop()
	}
	return &Stream{
		cfg:    cfg,
		dialer: websocket.DefaultDialer,
		l:      l.With("binance_stream"),
		conns:  make(map[int]*websocket.Conn),
	}
}

// Subscribe connects every chunk once and then keeps the connections alive
// until ctx is done or Close is called.
func (s *Stream) Subscribe(ctx context.Context, symbols []string, interval drepo.Interval, onTick func(models.Tick)) error {
	if len(symbols) == 0 {
		return fmt.Errorf("no symbols to subscribe")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	chunks := chunk(symbols, s.cfg.StreamsPerConn)
	s.total.Store(int32(len(chunks)))
	urls := make([]string, len(chunks))
	for i, c := range chunks {
		urls[i] = streamURL(s.cfg.WebSocketURL, c, interval)
		conn, err := s.dial(ctx, i, urls[i])
		if err != nil {
			_ = s.Close()
			return err
		}
		s.l.Info("connected", logger.Int("conn", i), logger.Int("streams", len(c)))
		s.wg.Add(1)
		go s.run(ctx, i, urls[i], conn, onTick)
	}
	return nil
}

// Close stops all connections and waits for their goroutines.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	for i, c := range s.conns {
		_ = c.Close()
		delete(s.conns, i)
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

// IsConnected reports whether every connection is up.
func (s *Stream) IsConnected() bool {
	total := s.total.Load()
	return total > 0 && s.live.Load() == total
}

func (s *Stream) dial(ctx context.Context, idx int, url string) (*websocket.Conn, error) {
	conn, _, err := s.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("binance connect: %w", err)
	}
	if err := s.track(ctx, idx, conn); err != nil {
		return nil, err
	}
	return conn, nil
}

// track registers conn unless the stream is already closing. Close cancels
// ctx under mu, so a conn registered here is always closed by Close.
func (s *Stream) track(ctx context.Context, idx int, conn *websocket.Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		_ = conn.Close()
		return fmt.Errorf("binance connect: %w", err)
	}
	s.conns[idx] = conn
	s.live.Add(1)
	return nil
}

func (s *Stream) run(ctx context.Context, idx int, url string, conn *websocket.Conn, onTick func(models.Tick)) {
	defer s.wg.Done()
	for {
		err := s.read(ctx, conn, onTick)
		s.live.Add(-1)
		s.mu.Lock()
		delete(s.conns, idx)
		s.mu.Unlock()
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		s.l.Warn("connection lost, reconnecting", logger.Int("conn", idx), logger.Error(err))

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.ReconnectDelay):
			}
			conn, err = s.dial(ctx, idx, url)
			if err == nil {
				s.l.Info("reconnected", logger.Int("conn", idx))
				break
			}
			if ctx.Err() != nil {
				return
			}
			s.l.Error("reconnect failed", logger.Int("conn", idx), logger.Error(err))
		}
	}
}

func (s *Stream) read(ctx context.Context, conn *websocket.Conn, onTick func(models.Tick)) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			}
		}
	}()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("binance read: %w", err)
		}
		t, ok, err := decodeTick(b)
		if err != nil {
			s.l.Debug("ignoring frame", logger.Error(err))
			continue
		}
		if ok {
			onTick(t)
		}
	}
}

type combinedMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type klineEvent struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		StartTime int64  `json:"t"`
		EndTime   int64  `json:"T"`
		Interval  string `json:"i"`
		Open      string `json:"o"`
		Close     string `json:"c"`
		High      string `json:"h"`
		Low       string `json:"l"`
		IsFinal   bool   `json:"x"`
	} `json:"k"`
}

// decodeTick turns a combined-stream frame into a tick. ok is false for
// frames that are not kline events. Provisional candles close at the event time.
func decodeTick(b []byte) (models.Tick, bool, error) {
	var m combinedMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return models.Tick{}, false, err
	}
	if len(m.Data) == 0 {
		return models.Tick{}, false, nil
	}
	var ev klineEvent
	if err := json.Unmarshal(m.Data, &ev); err != nil {
		return models.Tick{}, false, err
	}
	if ev.Event != "kline" {
		return models.Tick{}, false, nil
	}
	k := ev.Kline
	closeMs := k.EndTime
	if !k.IsFinal {
		closeMs = ev.EventTime
	}
	c, err := parseCandle(k.Open, k.High, k.Low, k.Close, k.StartTime, closeMs)
	if err != nil {
		return models.Tick{}, false, err
	}
	return models.Tick{Symbol: ev.Symbol, Candle: c, IsFinal: k.IsFinal}, true, nil
}

func streamURL(base string, symbols []string, interval drepo.Interval) string {
	streams := make([]string, len(symbols))
	for i, s := range symbols {
		streams[i] = fmt.Sprintf("%s@kline_%s", strings.ToLower(s), interval)
	}
	return base + "?streams=" + strings.Join(streams, "/")
}

func chunk(symbols []string, size int) [][]string {
	var out [][]string
	for size < len(symbols) {
		symbols, out = symbols[size:], append(out, symbols[:size])
	}
	if len(symbols) > 0 {
		out = append(out, symbols)
	}
	return out
}

var _ drepo.KlineStream = (*Stream)(nil)
