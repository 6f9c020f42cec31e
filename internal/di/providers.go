package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"FinWatch/internal/domain/repository"
	"FinWatch/internal/handler/api"
	mid "FinWatch/internal/middleware"
	internalrepo "FinWatch/internal/repository"
	"FinWatch/internal/service/binance"
	"FinWatch/internal/service/notify"
	"FinWatch/internal/service/ratelimit"
	"FinWatch/internal/services/detectors"
	"FinWatch/internal/usecase"
	pkgcache "FinWatch/pkg/cache"
	pkgch "FinWatch/pkg/clickhouse"
	"FinWatch/pkg/config"
	xhttp "FinWatch/pkg/http"
	pkgkafka "FinWatch/pkg/kafka"
	applogger "FinWatch/pkg/logger"
	"FinWatch/pkg/metrics"
	"FinWatch/pkg/queue"
	"FinWatch/pkg/server"
)

// NotifyQueue carries outgoing notifications when notifier.type is redis.
type NotifyQueue struct{ *queue.RedisQueue }

// CommandQueue carries alert commands when queue.commands_enabled is set.
type CommandQueue struct{ *queue.RedisQueue }

// Detectors groups the enabled detectors in dispatch order.
type Detectors struct {
	Observers []usecase.Observer
	Loaders   []server.Loader
	Digest    *detectors.DigestDebouncer
}

// ProvideKafkaProducer creates a Kafka producer. Nil when no brokers are configured.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithAutoCreateTopics(cfg.Kafka.Producer.AutoCreate),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger creates the application logger. Warnings and errors are
// aggregated to log.topic when it is set.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Log.Topic != "" && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Log.Topic,
			Service:        "finwatch",
			Publisher:      producer,
		})
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideRedisCache connects to Redis when any component needs it.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	needed := cfg.Store.Backend == "redis" || cfg.Notifier.Type == "redis" || cfg.Queue.CommandsEnabled
	if !needed {
		return nil, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPool(cfg.Redis.PoolSize, 2, 30*time.Second),
		pkgcache.WithRedisPrefix(cfg.Store.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideDocumentStore selects the persistence backend for detector and alert state.
func ProvideDocumentStore(cfg *config.Config, rc *pkgcache.RedisCache) (repository.DocumentStore, error) {
	switch cfg.Store.Backend {
	case "redis":
		return internalrepo.NewCacheDocumentStore(rc, "state"), nil
	case "memory":
		return internalrepo.NewCacheDocumentStore(pkgcache.NewMemoryCache(), "state"), nil
	default:
		store, err := internalrepo.NewFileDocumentStore(cfg.Store.Dir)
		if err != nil {
			return nil, fmt.Errorf("document store: %w", err)
		}
		return store, nil
	}
}

// ProvideNotifyQueue creates the Redis notification queue. Nil unless notifier.type is redis.
func ProvideNotifyQueue(cfg *config.Config, rc *pkgcache.RedisCache, l *applogger.Logger) *NotifyQueue {
	if cfg.Notifier.Type != "redis" || rc == nil {
		return nil
	}
	q := queue.NewRedisQueue(rc.Client(), queue.Config{
		KeyPrefix:  cfg.Queue.NotifyPrefix,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}, l)
	return &NotifyQueue{q}
}

// ProvideNotifier creates the notification transport named by notifier.type.
func ProvideNotifier(
	cfg *config.Config,
	producer *pkgkafka.Producer,
	nq *NotifyQueue,
	l *applogger.Logger,
) (repository.Notifier, error) {
	var n repository.Notifier
	switch cfg.Notifier.Type {
	case "kafka":
		if producer == nil {
			return nil, fmt.Errorf("kafka notifier: no producer")
		}
		n = notify.NewKafkaNotifier(producer, cfg.Notifier.Topic)
	case "webhook":
		client := xhttp.NewClient(
			xhttp.WithTimeout(cfg.Notifier.Timeout),
			xhttp.WithUserAgent("finwatch"),
		)
		n = notify.NewWebhookNotifier(client, cfg.Notifier.WebhookURL)
	case "redis":
		if nq == nil {
			return nil, fmt.Errorf("redis notifier: no queue")
		}
		n = notify.NewQueueNotifier(nq.RedisQueue)
	default:
		n = notify.NewLogNotifier(l)
	}
	if cfg.Notifier.PerSecond > 0 {
		n = notify.NewRateLimited(n, ratelimit.New(float64(cfg.Notifier.Burst), cfg.Notifier.PerSecond))
	}
	return n, nil
}

// ProvideBinanceREST creates the futures REST client.
func ProvideBinanceREST(cfg *config.Config) repository.MarketData {
	return binance.NewRESTClient(cfg.Binance.APIKey, cfg.Binance.SecretKey, cfg.Binance.RESTURL)
}

// ProvideBinanceStream creates the combined kline WebSocket stream.
func ProvideBinanceStream(cfg *config.Config, l *applogger.Logger) repository.KlineStream {
	return binance.NewStream(binance.StreamConfig{
		WebSocketURL:   cfg.Binance.WebSocketURL,
		StreamsPerConn: cfg.Binance.StreamsPerConn,
		ReconnectDelay: cfg.Binance.ReconnectDelay,
		PingInterval:   cfg.Binance.PingInterval,
	}, l)
}

// ProvideSymbolUniverse creates the tradable symbol resolver.
func ProvideSymbolUniverse(cfg *config.Config, market repository.MarketData, l *applogger.Logger) *usecase.SymbolUniverse {
	return usecase.NewSymbolUniverse(market, cfg.Binance.QuoteAsset, cfg.Binance.Exclude, l)
}

// ProvideCandleFetcher creates the bounded-concurrency history fetcher.
func ProvideCandleFetcher(cfg *config.Config, market repository.MarketData, m repository.Metrics, l *applogger.Logger) *usecase.CandleFetcher {
	return usecase.NewCandleFetcher(market, cfg.Binance.FetchConcurrency, m, l)
}

// ProvideDetectors builds the enabled detectors. The digest debouncer is
// always created so shutdown can flush it.
func ProvideDetectors(
	cfg *config.Config,
	n repository.Notifier,
	store repository.DocumentStore,
	m repository.Metrics,
	l *applogger.Logger,
) *Detectors {
	dc := cfg.Detectors
	opts := []detectors.Option{detectors.WithMetrics(m), detectors.WithLogger(l)}
	set := &Detectors{
		Digest: detectors.NewDigestDebouncer(dc.BullishRun.Debounce, cfg.DigestChannel(), n, opts...),
	}
	add := func(d interface {
		usecase.Observer
		server.Loader
	}) {
		set.Observers = append(set.Observers, d)
		set.Loaders = append(set.Loaders, d)
	}

	if dc.PumpDump.Enabled {
		add(detectors.NewPumpDumpDetector(detectors.PumpDumpConfig{
			ThresholdPct: decimal.NewFromFloat(dc.PumpDump.ThresholdPct),
			Expiry:       dc.PumpDump.Expiry,
			Destination:  cfg.Channels.General,
		}, n, store, opts...))
	}
	if dc.Trend.Enabled {
		add(detectors.NewTrendDetector(detectors.TrendConfig{
			FastPeriod:  dc.Trend.FastPeriod,
			SlowPeriod:  dc.Trend.SlowPeriod,
			Lookback:    dc.Trend.Lookback,
			Cooldown:    dc.Trend.Cooldown,
			Destination: cfg.TrendChannel(),
		}, n, store, opts...))
	}
	if dc.Volatility.Enabled {
		add(detectors.NewVolatilityDetector(detectors.VolatilityConfig{
			Lookback:      dc.Volatility.Lookback,
			Multiplier:    decimal.NewFromFloat(dc.Volatility.Multiplier),
			Rearm:         dc.Volatility.Rearm,
			PrimarySymbol: dc.Volatility.PrimarySymbol,
			Destination:   cfg.Channels.General,
		}, n, store, opts...))
	}
	if dc.BullishRun.Enabled {
		add(detectors.NewBullishRunDetector(detectors.BullishRunConfig{
			Lookback: dc.BullishRun.Lookback,
			Rearm:    dc.BullishRun.Rearm,
		}, set.Digest, store, opts...))
	}
	return set
}

// ProvidePriceResolver creates the one-shot price lookup.
func ProvidePriceResolver(cfg *config.Config) *usecase.PriceResolver {
	return usecase.NewPriceResolver(cfg.Detectors.Alerts.ResolveTimeout)
}

// ProvideAlertRegistry creates the user price alert registry.
func ProvideAlertRegistry(
	cfg *config.Config,
	resolver *usecase.PriceResolver,
	n repository.Notifier,
	store repository.DocumentStore,
	m repository.Metrics,
	l *applogger.Logger,
) (*usecase.AlertRegistry, error) {
	gap, err := decimal.NewFromString(cfg.Detectors.Alerts.CloseGapPct)
	if err != nil {
		return nil, fmt.Errorf("alerts close_gap_pct: %w", err)
	}
	return usecase.NewAlertRegistry(
		usecase.AlertRegistryConfig{CloseGapPct: gap},
		resolver, n, store,
		usecase.WithAlertMetrics(m),
		usecase.WithAlertLogger(l),
	), nil
}

// ProvideTickPipeline creates the tick validation and throttling stage.
func ProvideTickPipeline(cfg *config.Config, m repository.Metrics) *mid.TickPipeline {
	return mid.NewTickPipeline(m, mid.WithMaxRPS(cfg.Engine.MaxProvisionalRPS))
}

// ProvideClickHouseClient creates a ClickHouse client and its schema. Nil unless archiving is enabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.Archive.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.CandleSchema(client.Database())); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideCandleArchiver creates the batching archiver. Nil without ClickHouse.
func ProvideCandleArchiver(
	cfg *config.Config,
	ch *pkgch.Client,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.CandleArchiver {
	if ch == nil {
		return nil
	}
	return usecase.NewCandleArchiver(usecase.ArchiverConfig{
		BatchSize:    cfg.Archive.BatchSize,
		BatchTimeout: cfg.Archive.BatchTimeout,
		BufferSize:   cfg.Archive.BufferSize,
		MaxAttempts:  3,
	}, internalrepo.NewCHCandleArchive(ch, l), m, l)
}

// ProvideCandleStreamer creates the streaming engine with observers in
// dispatch order: price lookups, alerts, then the detectors.
func ProvideCandleStreamer(
	cfg *config.Config,
	fetcher *usecase.CandleFetcher,
	stream repository.KlineStream,
	resolver *usecase.PriceResolver,
	alerts *usecase.AlertRegistry,
	dets *Detectors,
	pipeline *mid.TickPipeline,
	archiver *usecase.CandleArchiver,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.CandleStreamer {
	observers := append([]usecase.Observer{resolver, alerts}, dets.Observers...)
	opts := []usecase.StreamerOption{
		usecase.WithObservers(observers...),
		usecase.WithTickPipeline(pipeline),
		usecase.WithStreamerMetrics(m),
		usecase.WithStreamerLogger(l),
	}
	if archiver != nil {
		opts = append(opts, usecase.WithCandleSink(archiver))
	}
	return usecase.NewCandleStreamer(usecase.StreamerConfig{
		Interval: repository.NormalizeInterval(cfg.Binance.Interval),
		Limit:    cfg.Binance.WindowLimit,
	}, fetcher, stream, opts...)
}

// ProvideAlertCommandHandler creates the handler shared by the Kafka consumer and the command queue.
func ProvideAlertCommandHandler(
	cfg *config.Config,
	alerts *usecase.AlertRegistry,
	n repository.Notifier,
	l *applogger.Logger,
) *usecase.AlertCommandHandler {
	return usecase.NewAlertCommandHandler(cfg.Kafka.Consumer.CommandsTopic, alerts, n, l)
}

// ProvideKafkaConsumer creates a Kafka consumer for alert commands. Nil unless enabled.
func ProvideKafkaConsumer(
	cfg *config.Config,
	h *usecase.AlertCommandHandler,
	m repository.Metrics,
	l *applogger.Logger,
) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerHandleTimeout(cfg.Kafka.Consumer.HandleTimeout),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(commandHook(m))
	consumer.RegisterHandler(h)
	return consumer, nil
}

// commandHook skips empty payloads and counts handler failures.
func commandHook(m repository.Metrics) pkgkafka.ConsumerHook {
	return pkgkafka.HookFuncs{
		Before: func(ctx context.Context, _ string, _ kafka.Message, data []byte) (context.Context, []byte, error) {
			if len(data) == 0 {
				return ctx, data, &pkgkafka.HookError{Code: "ERR_EMPTY"}
			}
			return ctx, data, nil
		},
		Err: func(context.Context, string, kafka.Message, error) {
			m.RecordError("alert_command")
		},
	}
}

// ProvideCommandQueue creates the Redis alert command queue. Nil unless enabled.
func ProvideCommandQueue(
	cfg *config.Config,
	rc *pkgcache.RedisCache,
	h *usecase.AlertCommandHandler,
	l *applogger.Logger,
) *CommandQueue {
	if !cfg.Queue.CommandsEnabled || rc == nil {
		return nil
	}
	q := queue.NewRedisQueue(rc.Client(), queue.Config{
		KeyPrefix:  cfg.Queue.CommandsPrefix,
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}, l)
	q.RegisterJob(queue.JobFunc{MsgType: usecase.AlertCommandJob, Fn: h.Handle})
	return &CommandQueue{q}
}

// ProvideHTTPHandler creates the REST API with readiness checks for the
// optional backing stores.
func ProvideHTTPHandler(
	l *applogger.Logger,
	alerts *usecase.AlertRegistry,
	streamer *usecase.CandleStreamer,
	rc *pkgcache.RedisCache,
	ch *pkgch.Client,
) xhttp.Handler {
	checks := map[string]api.HealthCheck{}
	if rc != nil {
		checks["redis"] = func(ctx context.Context) error { return rc.Client().Ping(ctx).Err() }
	}
	if ch != nil {
		checks["clickhouse"] = ch.Health
	}
	return api.NewHandler(l, alerts, streamer, checks)
}

// ProvideHTTPServer creates the Echo server with /metrics on the default registry.
func ProvideHTTPServer(cfg *config.Config, h xhttp.Handler, l *applogger.Logger) *xhttp.Server {
	return xhttp.NewServer(h,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(l),
		xhttp.WithRegistry(prometheus.DefaultRegisterer, prometheus.DefaultGatherer),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	universe *usecase.SymbolUniverse,
	streamer *usecase.CandleStreamer,
	alerts *usecase.AlertRegistry,
	dets *Detectors,
	archiver *usecase.CandleArchiver,
	consumer *pkgkafka.Consumer,
	nq *NotifyQueue,
	cq *CommandQueue,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	rc *pkgcache.RedisCache,
	httpServer *xhttp.Server,
) *server.App {
	deps := server.Deps{
		Universe:   universe,
		Streamer:   streamer,
		Loaders:    append([]server.Loader{alerts}, dets.Loaders...),
		Digest:     dets.Digest,
		HTTPServer: httpServer,
	}
	// Typed nils must not leak into the interfaces below.
	if archiver != nil {
		deps.Archiver = archiver
	}
	if consumer != nil {
		deps.Consumer = consumer
	}
	if nq != nil {
		deps.Queues = append(deps.Queues, nq.RedisQueue)
	}
	if cq != nil {
		deps.Queues = append(deps.Queues, cq.RedisQueue)
	}
	if producer != nil {
		deps.Closers = append(deps.Closers, server.NamedCloser{Name: "kafka producer", Close: producer.Close})
	}
	if ch != nil {
		deps.Closers = append(deps.Closers, server.NamedCloser{Name: "clickhouse", Close: ch.Close})
	}
	if rc != nil {
		deps.Closers = append(deps.Closers, server.NamedCloser{Name: "redis", Close: rc.Close})
	}
	return server.New(cfg, l, deps)
}
