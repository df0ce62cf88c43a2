package server

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"MarketStructure/internal/handler/ws"
	mid "MarketStructure/internal/middleware"
	"MarketStructure/internal/scheduler"
	"MarketStructure/internal/usecase"
	"MarketStructure/pkg/config"
	xhttp "MarketStructure/pkg/http"
	pkgkafka "MarketStructure/pkg/kafka"
	applogger "MarketStructure/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	httpServer *xhttp.Server
	pipeline   *mid.BarPipeline
	consumer   *pkgkafka.Consumer
	barHandler pkgkafka.MessageHandler
	scheduler  *scheduler.Scheduler
	reset      *usecase.PeriodResetUseCase
	hub        *ws.Hub
	closers    []namedCloser
}

type namedCloser struct {
	name string
	c    io.Closer
}

// Components groups what New needs. Nil fields are disabled features.
type Components struct {
	HTTPServer *xhttp.Server
	Pipeline   *mid.BarPipeline
	Consumer   *pkgkafka.Consumer
	BarHandler pkgkafka.MessageHandler
	Scheduler  *scheduler.Scheduler
	Reset      *usecase.PeriodResetUseCase
	Hub        *ws.Hub
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, log *applogger.Logger, c Components) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		httpServer: c.HTTPServer,
		pipeline:   c.Pipeline,
		consumer:   c.Consumer,
		barHandler: c.BarHandler,
		scheduler:  c.Scheduler,
		reset:      c.Reset,
		hub:        c.Hub,
	}
}

// AddCloser registers a resource closed on shutdown, in reverse order.
func (a *App) AddCloser(name string, c io.Closer) {
	if c != nil {
		a.closers = append(a.closers, namedCloser{name: name, c: c})
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := a.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	a.log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

// Start warms the engine and starts every enabled component.
func (a *App) Start(ctx context.Context) error {
	a.warmUp(ctx)

	if a.pipeline != nil {
		a.pipeline.Start(ctx)
	}

	if a.consumer != nil && a.barHandler != nil {
		a.consumer.RegisterHandler(a.barHandler)
		a.consumer.WithConsumerHook(pkgkafka.KeyHook())
		if err := a.consumer.Start(); err != nil {
			return err
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.barHandler.Topic()))
	}

	if a.scheduler != nil {
		if err := a.scheduler.RegisterAll(a.cfg.Scheduler.ScanCron, a.cfg.Scheduler.ResetCron); err != nil {
			return err
		}
		a.scheduler.Start()
	}

	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			a.log.Error("http server start error", applogger.Error(err))
			return err
		}
	}
	a.log.Info("application started",
		applogger.String("env", a.cfg.Environment),
		applogger.String("backend", a.cfg.Backend.Type),
		applogger.Strings("instruments", a.cfg.Instruments),
	)
	return nil
}

// warmUp restores level snapshots, then rebuilds levels from stored
// candles. Failures only leave the engine cold.
func (a *App) warmUp(ctx context.Context) {
	if a.reset == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	for _, inst := range a.cfg.Instruments {
		if _, err := a.reset.Restore(ctx, inst); err != nil {
			a.log.Warn("level snapshot restore failed", applogger.String("instrument", inst), applogger.Error(err))
		}
	}
	if err := a.reset.ResetAll(ctx, a.cfg.Instruments); err != nil {
		a.log.Warn("initial period reset incomplete", applogger.Error(err))
	}
}

// Shutdown gracefully stops all services.
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Info("shutting down...")

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.scheduler != nil {
		if err := a.scheduler.Stop(ctx); err != nil {
			a.log.Warn("scheduler stop error", applogger.Error(err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.pipeline != nil {
		a.pipeline.Stop()
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		nc := a.closers[i]
		if err := nc.c.Close(); err != nil {
			a.log.Warn("close error", applogger.String("resource", nc.name), applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
