package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"FinWatch/internal/usecase"
	"FinWatch/pkg/config"
	xhttp "FinWatch/pkg/http"
	applogger "FinWatch/pkg/logger"
)

// Loader restores persisted state before the stream starts.
type Loader interface {
	Load(ctx context.Context)
}

// Flusher is closed after the stream stops so pending digests go out.
type Flusher interface {
	Close(ctx context.Context) error
}

// Service is a background component with a context-aware lifecycle.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Archiver batches finalized candles in the background.
type Archiver interface {
	Start(ctx context.Context)
	Stop(ctx context.Context) error
}

// Consumer reads alert commands from Kafka.
type Consumer interface {
	Start() error
	Stop(ctx context.Context) error
}

// NamedCloser is an infrastructure client closed last.
type NamedCloser struct {
	Name  string
	Close func() error
}

// Deps holds everything the App starts and stops. Nil interfaces are skipped.
type Deps struct {
	Universe   *usecase.SymbolUniverse
	Streamer   *usecase.CandleStreamer
	Loaders    []Loader
	Digest     Flusher
	Archiver   Archiver
	Consumer   Consumer
	Queues     []Service
	HTTPServer *xhttp.Server
	Closers    []NamedCloser
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg  *config.Config
	l    *applogger.Logger
	deps Deps
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, deps Deps) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{cfg: cfg, l: l.With("app"), deps: deps}
}

// Run starts the application and blocks until interrupted or the HTTP server fails.
func (a *App) Run() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.start(ctx); err != nil {
		a.l.Error("startup failed", applogger.Error(err))
		return errors.Join(err, a.shutdown())
	}

	var runErr error
	select {
	case sig := <-sigCh:
		a.l.Info("shutdown signal received", applogger.String("signal", sig.String()))
	case err := <-a.deps.HTTPServer.Err():
		runErr = fmt.Errorf("http server: %w", err)
		a.l.Error("http server failed", applogger.Error(err))
	}
	cancel()
	return errors.Join(runErr, a.shutdown())
}

func (a *App) start(ctx context.Context) error {
	for _, ld := range a.deps.Loaders {
		ld.Load(ctx)
	}

	if a.deps.Archiver != nil {
		a.deps.Archiver.Start(ctx)
	}
	for _, q := range a.deps.Queues {
		if err := q.Start(ctx); err != nil {
			return fmt.Errorf("queue: %w", err)
		}
	}
	if a.deps.Consumer != nil {
		if err := a.deps.Consumer.Start(); err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
	}

	symbols, err := a.deps.Universe.Resolve(ctx)
	if err != nil {
		return err
	}
	res, err := a.deps.Streamer.Start(ctx, symbols)
	if err != nil {
		return err
	}
	if len(res.Failures) > 0 {
		a.l.Warn("symbols without history are not watched", applogger.Strings("symbols", res.FailedSymbols()))
	}

	if err := a.deps.HTTPServer.Start(); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	a.l.Info("finwatch running",
		applogger.String("env", a.cfg.Environment),
		applogger.Int("symbols", len(res.Successes)),
		applogger.Int("port", a.cfg.Server.Port),
	)
	return nil
}

// shutdown stops intake first, then flushes pending output, then closes clients.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	a.l.Info("shutting down...")

	var errs []error
	step := func(name string, err error) {
		if err != nil {
			a.l.Warn(name+" stop error", applogger.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	step("streamer", a.deps.Streamer.Stop(ctx))
	if a.deps.Digest != nil {
		step("digest", a.deps.Digest.Close(ctx))
	}
	step("http", a.deps.HTTPServer.Stop(ctx))
	if a.deps.Consumer != nil {
		step("kafka consumer", a.deps.Consumer.Stop(ctx))
	}
	for _, q := range a.deps.Queues {
		step("queue", q.Stop(ctx))
	}
	if a.deps.Archiver != nil {
		step("archiver", a.deps.Archiver.Stop(ctx))
	}

	a.l.RemoveCollector()
	for _, c := range a.deps.Closers {
		step(c.Name, c.Close())
	}

	a.l.Info("shutdown complete")
	return errors.Join(errs...)
}
