package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"MarketStructure/pkg/logger"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string        `yaml:"environment" default:"development" validate:"required"`
	Instruments []string      `yaml:"instruments" validate:"required,min=1,dive,required"`
	Logger      logger.Config `yaml:"logger"`
	LogDigest   struct {
		Enabled        bool          `yaml:"enabled"`
		FlushInterval  time.Duration `yaml:"flush_interval" default:"30s"`
		CountThreshold int           `yaml:"count_threshold" default:"100"`
	} `yaml:"log_digest"`
	Server struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		CORS            bool          `yaml:"cors" default:"true"`
		CORSOrigins     []string      `yaml:"cors_origins"`
		CORSMaxAge      int           `yaml:"cors_max_age" default:"600" validate:"gte=0"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Backend struct {
		// Where emitted signals go: kafka, clickhouse or sqlite.
		Type string `yaml:"type" default:"sqlite" validate:"oneof=kafka clickhouse sqlite"`
	} `yaml:"backend"`
	Engine Engine `yaml:"engine"`
	Risk   struct {
		RewardRisk  float64 `yaml:"reward_risk" default:"4" validate:"gt=0"`
		MinStopPips float64 `yaml:"min_stop_pips" default:"5" validate:"gte=0"`
	} `yaml:"risk"`
	Ingest struct {
		Enabled     bool    `yaml:"enabled" default:"true"`
		BufferBars  int     `yaml:"buffer_bars" default:"1000" validate:"gte=100"`
		Burst       float64 `yaml:"burst" default:"3" validate:"gte=1"`
		RefillPerS  float64 `yaml:"refill_per_second" default:"0.2" validate:"gt=0"`
		QueueSize   int     `yaml:"queue_size" default:"1000" validate:"gte=1"`
		Timeframe   string  `yaml:"timeframe" default:"3m" validate:"oneof=1m 3m 5m 15m 1h"`
		PeriodHours int     `yaml:"period_hours" default:"24" validate:"gte=1"`
		Timezone    string  `yaml:"timezone" default:"UTC"`
	} `yaml:"ingest"`
	Scheduler struct {
		Enabled     bool          `yaml:"enabled"`
		ScanCron    string        `yaml:"scan_cron" default:"*/3 * * * *"`
		ResetCron   string        `yaml:"reset_cron" default:"0 0 * * *"`
		ScanBars    int           `yaml:"scan_bars" default:"1000" validate:"gte=100"`
		LockTTL     time.Duration `yaml:"lock_ttl" default:"2m"`
		ScanTimeout time.Duration `yaml:"scan_timeout" default:"30s"`
	} `yaml:"scheduler"`
	Kafka struct {
		Brokers          []string `yaml:"brokers"`
		ClientID         string   `yaml:"client_id" default:"structure-engine"`
		AutoCreateTopics bool     `yaml:"auto_create_topics"`
		BarTopic         string   `yaml:"bar_topic" default:"market.bars"`
		SignalTopic      string   `yaml:"signal_topic" default:"structure.signals"`
		DigestTopic      string   `yaml:"digest_topic" default:"structure.log_digest"`
		RequiredAcks     int      `yaml:"required_acks" default:"1"`
		Compression      string   `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
		Producer         struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"structure-engine"`
			Workers    int           `yaml:"workers" default:"4" validate:"gte=1"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"market.bars.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"market"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		MaxOpenConns     int           `yaml:"max_open_conns" default:"10" validate:"gte=1"`
		MaxIdleConns     int           `yaml:"max_idle_conns" default:"5" validate:"gte=0"`
		ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime" default:"5m"`
	} `yaml:"clickhouse"`
	SQLite struct {
		Path string `yaml:"path" default:"data/signals.db"`
	} `yaml:"sqlite"`
	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Addr     string        `yaml:"addr" default:"localhost:6379"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		TTL      time.Duration `yaml:"ttl" default:"168h"`
	} `yaml:"redis"`
}

// Engine mirrors structure.Config in YAML form.
type Engine struct {
	MinBars              int           `yaml:"min_bars" default:"100"`
	SwingLookback        int           `yaml:"swing_lookback" default:"3"`
	VolatilityPeriod     int           `yaml:"volatility_period" default:"14"`
	ForceCloseVolatility bool          `yaml:"force_close_volatility"`
	ReversalWindow       int           `yaml:"reversal_window" default:"20"`
	StopWindow           int           `yaml:"stop_window" default:"15"`
	TouchTolerance       float64       `yaml:"touch_tolerance" default:"0.005"`
	StopBuffer           float64       `yaml:"stop_buffer" default:"0.002"`
	RangeExtremes        bool          `yaml:"range_extremes"`
	ContinuationWindow   int           `yaml:"continuation_window" default:"30"`
	BreakoutWindow       int           `yaml:"breakout_window" default:"20"`
	DistanceMultiplier   float64       `yaml:"distance_multiplier" default:"3"`
	DistanceFallbackPct  float64       `yaml:"distance_fallback_pct" default:"0.02"`
	FixedDistance        bool          `yaml:"fixed_distance"`
	Cooldown             time.Duration `yaml:"cooldown" default:"30m"`
	AnchorMode           string        `yaml:"anchor_mode" default:"both"`
	PeriodBars           int           `yaml:"period_bars" default:"480"`
	BreakLookbackBars    int           `yaml:"break_lookback_bars" default:"100"`
	RetentionPeriods     int           `yaml:"retention_periods" default:"90"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file. Missing fields take the
// values in their `default` tags.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes and validates YAML bytes.
func Parse(b []byte) (*Config, error) {
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// decode fills defaults first so an explicit `false` or `0` in YAML survives.
func decode(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("INSTRUMENTS"); v != "" {
		c.Instruments = splitList(v)
	}
	if v := getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logger.Level = v
	}
	if v := getenv("CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}
}

// Validate checks struct tags and the rules that span several sections.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if (c.Backend.Type == "kafka" || c.Kafka.Consumer.Enabled || c.LogDigest.Enabled) && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required for backend %q, an enabled consumer or the log digest", c.Backend.Type)
	}
	if c.Backend.Type == "clickhouse" && !c.ClickHouse.Enabled {
		return fmt.Errorf("backend.type 'clickhouse' requires clickhouse.enabled")
	}
	if _, err := time.LoadLocation(c.Ingest.Timezone); err != nil {
		return fmt.Errorf("ingest.timezone: %w", err)
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
