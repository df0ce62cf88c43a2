package di

import (
	"context"
	"fmt"
	"time"

	"MarketStructure/internal/domain/repository"
	domsvc "MarketStructure/internal/domain/service"
	"MarketStructure/internal/handler/api"
	"MarketStructure/internal/handler/ws"
	mid "MarketStructure/internal/middleware"
	internalrepo "MarketStructure/internal/repository"
	"MarketStructure/internal/scheduler"
	apimetrics "MarketStructure/internal/service/metrics"
	"MarketStructure/internal/service/ratelimit"
	"MarketStructure/internal/services/features"
	"MarketStructure/internal/services/risk"
	"MarketStructure/internal/services/structure"
	"MarketStructure/internal/usecase"
	"MarketStructure/pkg/cache"
	pkgch "MarketStructure/pkg/clickhouse"
	"MarketStructure/pkg/config"
	xhttp "MarketStructure/pkg/http"
	pkgkafka "MarketStructure/pkg/kafka"
	applogger "MarketStructure/pkg/logger"
	"MarketStructure/pkg/metrics"
	"MarketStructure/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideAPIMetrics creates the per-endpoint HTTP metrics.
func ProvideAPIMetrics() *apimetrics.API {
	return apimetrics.NewAPI(prometheus.DefaultRegisterer)
}

// EngineConfig maps the YAML engine section to the engine's config.
func EngineConfig(cfg *config.Config) structure.Config {
	e := cfg.Engine
	return structure.Config{
		MinBars:              e.MinBars,
		SwingLookback:        e.SwingLookback,
		VolatilityPeriod:     e.VolatilityPeriod,
		ForceCloseVolatility: e.ForceCloseVolatility,
		ReversalWindow:       e.ReversalWindow,
		StopWindow:           e.StopWindow,
		TouchTolerance:       e.TouchTolerance,
		StopBuffer:           e.StopBuffer,
		RangeExtremes:        e.RangeExtremes,
		ContinuationWindow:   e.ContinuationWindow,
		BreakoutWindow:       e.BreakoutWindow,
		DistanceMultiplier:   e.DistanceMultiplier,
		DistanceFallbackPct:  e.DistanceFallbackPct,
		FixedDistance:        e.FixedDistance,
		Cooldown:             e.Cooldown,
		AnchorMode:           structure.AnchorMode(e.AnchorMode),
		PeriodBars:           e.PeriodBars,
		BreakLookbackBars:    e.BreakLookbackBars,
		RetentionPeriods:     e.RetentionPeriods,
	}
}

// ProvideEngine creates the structure engine.
func ProvideEngine(cfg *config.Config, l *applogger.Logger) (domsvc.StructureEngine, error) {
	eng, err := structure.New(EngineConfig(cfg), structure.WithLogger(l))
	if err != nil {
		return nil, fmt.Errorf("structure engine: %w", err)
	}
	return eng, nil
}

func ProvidePlanner(cfg *config.Config) *risk.Planner {
	return risk.NewPlanner(cfg.Risk.RewardRisk, cfg.Risk.MinStopPips)
}

// ProvideClickHouseClient creates a ClickHouse client and its schema. It
// returns nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithPool(cfg.ClickHouse.MaxOpenConns, cfg.ClickHouse.MaxIdleConns, cfg.ClickHouse.ConnMaxLifetime),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, pkgch.Schema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil without brokers.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithClientID(cfg.Kafka.ClientID),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithAutoCreateTopics(cfg.Kafka.AutoCreateTopics),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideCache returns a Redis-backed layered cache when Redis is enabled
// and an in-process cache otherwise.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(cache.WithMemoryDefaultTTL(cfg.Redis.TTL)), nil
	}
	remote, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return cache.NewLayeredCache(remote, cache.WithLayeredMemoryTTL(time.Minute)), nil
}

// ProvideSignalStore returns the history store for the configured backend.
// The kafka backend keeps no history and yields nil.
func ProvideSignalStore(cfg *config.Config, ch *pkgch.Client) (repository.SignalStore, error) {
	var store repository.SignalStore
	switch cfg.Backend.Type {
	case usecase.BackendClickHouse:
		store = internalrepo.NewCHSignalStore(ch)
	case usecase.BackendSQLite:
		s, err := internalrepo.NewSQLiteSignalStore(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: %w", err)
		}
		store = s
	default:
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("signal store init: %w", err)
	}
	return store, nil
}

// ProvideSignalPublisher returns the Kafka publisher for the kafka backend.
func ProvideSignalPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.SignalPublisher {
	if cfg.Backend.Type != usecase.BackendKafka || producer == nil {
		return nil
	}
	return internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.SignalTopic)
}

func ProvideSeriesBuffer(cfg *config.Config) *usecase.SeriesBuffer {
	return usecase.NewSeriesBuffer(cfg.Ingest.BufferBars)
}

// ProvideCandleStore reads candles from ClickHouse when enabled, otherwise
// from the ingest buffer.
func ProvideCandleStore(ch *pkgch.Client, buf *usecase.SeriesBuffer, l *applogger.Logger) repository.CandleStore {
	if ch == nil {
		return buf
	}
	s := internalrepo.NewCHCandleStore(ch)
	s.SetLogger(l)
	return s
}

func ProvideLevelSnapshots(c cache.Service, cfg *config.Config) repository.LevelSnapshots {
	return internalrepo.NewCachedLevelSnapshots(c, cfg.Redis.TTL)
}

func ProvideHub(l *applogger.Logger) *ws.Hub {
	return ws.NewHub(l)
}

// ProvideAnalyzeUseCase wires the engine to the configured backend.
func ProvideAnalyzeUseCase(
	cfg *config.Config,
	engine domsvc.StructureEngine,
	planner *risk.Planner,
	m repository.Metrics,
	publisher repository.SignalPublisher,
	store repository.SignalStore,
	hub *ws.Hub,
	l *applogger.Logger,
) *usecase.AnalyzeUseCase {
	opts := []usecase.AnalyzeOption{usecase.WithBroadcaster(hub), usecase.WithLogger(l)}
	if publisher != nil {
		opts = append(opts, usecase.WithPublisher(publisher))
	}
	if store != nil {
		opts = append(opts, usecase.WithStore(store))
	}
	return usecase.NewAnalyzeUseCase(engine, planner, m, cfg.Backend.Type, opts...)
}

// ProvidePeriodReset creates the period reset use case.
func ProvidePeriodReset(
	cfg *config.Config,
	candles repository.CandleStore,
	engine domsvc.StructureEngine,
	snapshots repository.LevelSnapshots,
	l *applogger.Logger,
) (*usecase.PeriodResetUseCase, error) {
	loc, err := time.LoadLocation(cfg.Ingest.Timezone)
	if err != nil {
		return nil, fmt.Errorf("ingest timezone: %w", err)
	}
	tf := repository.NormalizeTimeframe(cfg.Ingest.Timeframe)
	period := time.Duration(cfg.Ingest.PeriodHours) * time.Hour
	if n := features.BarsPerPeriod(period, tf.Duration()); n != cfg.Engine.PeriodBars {
		l.Warn("engine.period_bars differs from the ingest period",
			applogger.Int("period_bars", cfg.Engine.PeriodBars),
			applogger.Int("bars_per_period", n),
		)
	}
	return usecase.NewPeriodResetUseCase(candles, engine, snapshots, tf, period, loc, cfg.Engine.RetentionPeriods, l), nil
}

// ProvidePipeline creates the bar pipeline in front of the analyzer.
func ProvidePipeline(cfg *config.Config, uc *usecase.AnalyzeUseCase, buf *usecase.SeriesBuffer, m repository.Metrics, l *applogger.Logger) *mid.BarPipeline {
	return mid.NewBarPipeline(uc, buf, m,
		mid.WithInstruments(cfg.Instruments),
		mid.WithMinBars(cfg.Engine.MinBars),
		mid.WithLimiter(ratelimit.New(cfg.Ingest.Burst, cfg.Ingest.RefillPerS)),
		mid.WithBufferSize(cfg.Ingest.QueueSize),
		mid.WithPipelineLogger(l),
	)
}

// ProvideKafkaConsumer creates the bar consumer, or nil when disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Ingest.Enabled || !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideBarIngestHandler handles the bar topic.
func ProvideBarIngestHandler(cfg *config.Config, pipe *mid.BarPipeline, m repository.Metrics) *usecase.BarIngestHandler {
	return usecase.NewBarIngestHandler(cfg.Kafka.BarTopic, pipe, m)
}

// ProvideScheduler creates the cron scanner, or nil when disabled.
func ProvideScheduler(
	cfg *config.Config,
	candles repository.CandleStore,
	uc *usecase.AnalyzeUseCase,
	reset *usecase.PeriodResetUseCase,
	locks cache.Service,
	l *applogger.Logger,
) (*scheduler.Scheduler, error) {
	if !cfg.Scheduler.Enabled {
		return nil, nil
	}
	loc, err := time.LoadLocation(cfg.Ingest.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler timezone: %w", err)
	}
	return scheduler.New(scheduler.Config{
		Instruments: cfg.Instruments,
		Timeframe:   repository.NormalizeTimeframe(cfg.Ingest.Timeframe),
		ScanBars:    cfg.Scheduler.ScanBars,
		LockTTL:     cfg.Scheduler.LockTTL,
		ScanTimeout: cfg.Scheduler.ScanTimeout,
		Location:    loc,
	}, candles, uc, reset, locks, l), nil
}

// ProvideStructureHandler creates the REST handler with dependency checks.
func ProvideStructureHandler(
	l *applogger.Logger,
	engine domsvc.StructureEngine,
	uc *usecase.AnalyzeUseCase,
	snapshots repository.LevelSnapshots,
	m *apimetrics.API,
	store repository.SignalStore,
	ch *pkgch.Client,
) *api.StructureHandler {
	checks := map[string]api.HealthCheck{}
	if store != nil {
		checks["signal_store"] = store.Health
	}
	if ch != nil {
		checks["clickhouse"] = ch.Health
	}
	return api.NewStructureHandler(l, engine, uc, snapshots, m, checks)
}

// ProvideHTTPServer creates the Echo server.
func ProvideHTTPServer(cfg *config.Config, h *api.StructureHandler, hub *ws.Hub, l *applogger.Logger) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer([]xhttp.Handler{h, hub},
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS, cfg.Server.CORSOrigins...),
		xhttp.WithCORSMaxAge(cfg.Server.CORSMaxAge),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithLogger(l),
	)
}

// ProvideApp assembles the application and registers resources to close.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	pipe *mid.BarPipeline,
	consumer *pkgkafka.Consumer,
	handler *usecase.BarIngestHandler,
	sched *scheduler.Scheduler,
	reset *usecase.PeriodResetUseCase,
	hub *ws.Hub,
	producer *pkgkafka.Producer,
	store repository.SignalStore,
	ch *pkgch.Client,
	c cache.Service,
) *server.App {
	comps := server.Components{
		HTTPServer: httpServer,
		Pipeline:   pipe,
		Reset:      reset,
		Hub:        hub,
		Scheduler:  sched,
	}
	if consumer != nil {
		comps.Consumer = consumer
		comps.BarHandler = handler
	}
	app := server.New(cfg, l, comps)

	// closed in reverse order, so the digest flushes before the producer closes
	if producer != nil {
		app.AddCloser("kafka producer", producer)
		if cfg.LogDigest.Enabled {
			l.AttachDigest(&applogger.DigestConfig{
				FlushInterval:  cfg.LogDigest.FlushInterval,
				CountThreshold: cfg.LogDigest.CountThreshold,
				Topic:          cfg.Kafka.DigestTopic,
				Publisher:      producer,
			})
			app.AddCloser("log digest", closerFunc(func() error {
				l.DetachDigest()
				return nil
			}))
		}
	}
	if store != nil {
		app.AddCloser("signal store", store)
	}
	if ch != nil {
		app.AddCloser("clickhouse", ch)
	}
	app.AddCloser("cache", c)
	return app
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
