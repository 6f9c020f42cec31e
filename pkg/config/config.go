package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Log         struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output string `yaml:"output" default:"stdout"`
		// Topic enables the Kafka log collector for errors and warnings.
		Topic string `yaml:"topic"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Binance struct {
		APIKey           string        `yaml:"api_key"`
		SecretKey        string        `yaml:"secret_key"`
		RESTURL          string        `yaml:"rest_url"`
		WebSocketURL     string        `yaml:"websocket_url" default:"wss://fstream.binance.com/stream"`
		Interval         string        `yaml:"interval" default:"5m" validate:"oneof=1m 3m 5m 15m 30m 1h 4h 1d"`
		WindowLimit      int           `yaml:"window_limit" default:"500" validate:"gte=100,lte=500"`
		QuoteAsset       string        `yaml:"quote_asset" default:"USDT"`
		Exclude          []string      `yaml:"exclude" default:"[\"ICPUSDT\",\"BTSUSDT\",\"BTCSTUSDT\",\"SCUSDT\",\"TLMUSDT\"]"`
		FetchConcurrency int           `yaml:"fetch_concurrency" default:"2" validate:"gte=1,lte=10"`
		StreamsPerConn   int           `yaml:"streams_per_conn" default:"200" validate:"gte=1,lte=1024"`
		ReconnectDelay   time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval     time.Duration `yaml:"ping_interval" default:"1m"`
	} `yaml:"binance"`
	Engine struct {
		// MaxProvisionalRPS caps in-progress ticks per symbol per second; 0 disables throttling.
		MaxProvisionalRPS int `yaml:"max_provisional_rps" default:"4" validate:"gte=0"`
	} `yaml:"engine"`
	Channels struct {
		General string `yaml:"general" validate:"required"`
		Trend   string `yaml:"trend"`
		Digest  string `yaml:"digest"`
	} `yaml:"channels"`
	Detectors struct {
		Trend struct {
			Enabled    bool `yaml:"enabled" default:"true"`
			FastPeriod int  `yaml:"fast_period" default:"25" validate:"gt=0"`
			SlowPeriod int  `yaml:"slow_period" default:"99" validate:"gtfield=FastPeriod"`
			Lookback   int  `yaml:"lookback" default:"10" validate:"gt=0"`
			Cooldown   int  `yaml:"cooldown" default:"10" validate:"gte=0"`
		} `yaml:"trend"`
		Volatility struct {
			Enabled       bool          `yaml:"enabled" default:"true"`
			Lookback      int           `yaml:"lookback" default:"8" validate:"gte=2"`
			Multiplier    float64       `yaml:"multiplier" default:"7" validate:"gt=0"`
			Rearm         time.Duration `yaml:"rearm" default:"10m"`
			PrimarySymbol string        `yaml:"primary_symbol" default:"BTCUSDT"`
		} `yaml:"volatility"`
		PumpDump struct {
			Enabled      bool          `yaml:"enabled" default:"true"`
			ThresholdPct float64       `yaml:"threshold_pct" default:"5" validate:"gt=0"`
			Expiry       time.Duration `yaml:"expiry" default:"10m"`
		} `yaml:"pump_dump"`
		BullishRun struct {
			Enabled  bool          `yaml:"enabled" default:"true"`
			Lookback int           `yaml:"lookback" default:"7" validate:"gt=0"`
			Rearm    int           `yaml:"rearm" default:"5" validate:"gte=0"`
			Debounce time.Duration `yaml:"debounce" default:"500ms"`
		} `yaml:"bullish_run"`
		Alerts struct {
			ResolveTimeout time.Duration `yaml:"resolve_timeout" default:"5s"`
			CloseGapPct    string        `yaml:"close_gap_pct" default:"0.01" validate:"numeric"`
		} `yaml:"alerts"`
	} `yaml:"detectors"`
	Notifier struct {
		Type       string        `yaml:"type" default:"log" validate:"oneof=kafka webhook redis log"`
		Topic      string        `yaml:"topic" default:"finwatch.notifications"`
		WebhookURL string        `yaml:"webhook_url"`
		Timeout    time.Duration `yaml:"timeout" default:"10s"`

		// Burst and PerSecond throttle messages per destination; zero PerSecond disables it.
		Burst     int     `yaml:"burst" default:"20" validate:"gte=1"`
		PerSecond float64 `yaml:"per_second" default:"1" validate:"gte=0"`
	} `yaml:"notifier"`
	Store struct {
		Backend string `yaml:"backend" default:"file" validate:"oneof=redis file memory"`
		Dir     string `yaml:"dir" default:"data"`
		Prefix  string `yaml:"prefix" default:"finwatch"`
	} `yaml:"store"`
	Redis struct {
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"10"`
	} `yaml:"redis"`
	Queue struct {
		NotifyPrefix    string        `yaml:"notify_prefix" default:"finwatch:notify"`
		CommandsPrefix  string        `yaml:"commands_prefix" default:"finwatch:commands"`
		CommandsEnabled bool          `yaml:"commands_enabled"`
		Workers         int           `yaml:"workers" default:"1" validate:"gte=1"`
		RetryLimit      int           `yaml:"retry_limit" default:"3" validate:"gte=0"`
		RetryDelay      time.Duration `yaml:"retry_delay" default:"10s"`
	} `yaml:"queue"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			AutoCreate   bool          `yaml:"auto_create_topics"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled       bool          `yaml:"enabled"`
			CommandsTopic string        `yaml:"commands_topic" default:"finwatch.alert_commands"`
			GroupID       string        `yaml:"group_id" default:"finwatch"`
			Workers       int           `yaml:"workers" default:"1"`
			BufferSize    int           `yaml:"buffer_size" default:"64"`
			RetryMax      int           `yaml:"retry_max" default:"1"`
			BackoffMin    time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax    time.Duration `yaml:"backoff_max" default:"2s"`
			HandleTimeout time.Duration `yaml:"handle_timeout" default:"30s"`
			DLQTopic      string        `yaml:"dlq_topic"`
			MinBytes      int           `yaml:"min_bytes" default:"1"`
			MaxBytes      int           `yaml:"max_bytes" default:"1048576"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"finwatch"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Archive struct {
		Enabled      bool          `yaml:"enabled"`
		BatchSize    int           `yaml:"batch_size" default:"500" validate:"gt=0"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"5s"`
		BufferSize   int           `yaml:"buffer_size" default:"10000" validate:"gt=0"`
	} `yaml:"archive"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML, fills defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	// Defaults go first so explicit false and zero values in YAML survive.
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("BINANCE_API_KEY"); v != "" {
		c.Binance.APIKey = v
	}
	if v := getenv("BINANCE_SECRET_KEY"); v != "" {
		c.Binance.SecretKey = v
	}
	if v := getenv("SYMBOLS_EXCLUDE"); v != "" {
		c.Binance.Exclude = strings.Split(v, ",")
	}
	if v := getenv("NOTIFIER"); v != "" {
		c.Notifier.Type = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		host, port, err := net.SplitHostPort(v)
		if err != nil {
			c.Redis.Host = v
		} else if p, err := strconv.Atoi(port); err == nil {
			c.Redis.Host, c.Redis.Port = host, p
		}
	}
	if v := getenv("STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Notifier.Type == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required for kafka notifier")
	}
	if c.Notifier.Type == "webhook" && c.Notifier.WebhookURL == "" {
		return fmt.Errorf("notifier.webhook_url required for webhook notifier")
	}
	if c.Kafka.Consumer.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required when consumer is enabled")
	}
	if c.Log.Topic != "" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required for log.topic")
	}
	if c.Archive.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host required when archive is enabled")
	}
	return nil
}

// TrendChannel returns the destination for trend notifications.
func (c *Config) TrendChannel() string {
	if c.Channels.Trend != "" {
		return c.Channels.Trend
	}
	return c.Channels.General
}

// DigestChannel returns the destination for bullish-run digests.
func (c *Config) DigestChannel() string {
	if c.Channels.Digest != "" {
		return c.Channels.Digest
	}
	return c.Channels.General
}
