package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"MarketStructure/internal/domain/models"
	domrepo "MarketStructure/internal/domain/repository"
	"MarketStructure/internal/usecase"
	applogger "MarketStructure/pkg/logger"

	"github.com/robfig/cron/v3"
)

// Analyzer runs one analysis over a loaded series.
type Analyzer interface {
	Run(ctx context.Context, instrument string, series models.PriceSeries) (*usecase.Outcome, error)
}

// Resetter rebuilds anchor levels at a period boundary.
type Resetter interface {
	ResetAll(ctx context.Context, instruments []string) error
}

// Locker guards a scan so only one replica runs it. cache.Service
// satisfies it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// Config holds the scan parameters.
type Config struct {
	Instruments []string
	Timeframe   domrepo.Timeframe
	ScanBars    int
	LockTTL     time.Duration
	ScanTimeout time.Duration
	Location    *time.Location
}

// Scheduler runs periodic scans over stored candles and the period reset.
type Scheduler struct {
	cron     *cron.Cron
	cfg      Config
	candles  domrepo.CandleStore
	analyzer Analyzer
	resetter Resetter
	locker   Locker // optional
	l        *applogger.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	running  sync.WaitGroup
}

func New(cfg Config, candles domrepo.CandleStore, analyzer Analyzer, resetter Resetter, locker Locker, l *applogger.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(cfg.Location)),
		cfg:      cfg,
		candles:  candles,
		analyzer: analyzer,
		resetter: resetter,
		locker:   locker,
		l:        l,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// RegisterAll registers the scan and the period reset. An empty spec skips
// that task.
func (s *Scheduler) RegisterAll(scanCron, resetCron string) error {
	if scanCron != "" {
		if _, err := s.cron.AddFunc(scanCron, s.track(s.ScanOnce)); err != nil {
			return fmt.Errorf("register scan task: %w", err)
		}
	}
	if resetCron != "" {
		if _, err := s.cron.AddFunc(resetCron, s.track(s.ResetOnce)); err != nil {
			return fmt.Errorf("register reset task: %w", err)
		}
	}
	return nil
}

func (s *Scheduler) track(fn func(context.Context)) func() {
	return func() {
		s.running.Add(1)
		defer s.running.Done()
		fn(s.ctx)
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	if s.l != nil {
		s.l.Info("scheduler started", applogger.Int("jobs", len(s.cron.Entries())))
	}
}

// Stop stops the cron and waits for running jobs, or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.running.Wait()
	if s.l != nil {
		s.l.Info("scheduler stopped")
	}
	return nil
}

// ScanOnce scans every configured instrument.
func (s *Scheduler) ScanOnce(ctx context.Context) {
	for _, inst := range s.cfg.Instruments {
		if ctx.Err() != nil {
			return
		}
		if err := s.ScanInstrument(ctx, inst); err != nil && s.l != nil {
			s.l.Error("scan failed", applogger.String("instrument", inst), applogger.Error(err))
		}
	}
}

// ScanInstrument loads the latest candles and runs one analysis. It returns
// nil without scanning when another replica holds the lock.
func (s *Scheduler) ScanInstrument(ctx context.Context, instrument string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ScanTimeout)
	defer cancel()

	if s.locker != nil {
		key := "lock:scan:" + instrument
		ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
		if err != nil {
			return fmt.Errorf("acquire scan lock: %w", err)
		}
		if !ok {
			if s.l != nil {
				s.l.Debug("scan skipped, lock held", applogger.String("instrument", instrument))
			}
			return nil
		}
		defer func() { _ = s.locker.Unlock(context.Background(), key) }()
	}

	candles, err := s.candles.GetLatestNCandles(ctx, instrument, s.cfg.ScanBars, s.cfg.Timeframe)
	if err != nil {
		return fmt.Errorf("load candles: %w", err)
	}
	out, err := s.analyzer.Run(ctx, instrument, usecase.SeriesFromCandles(instrument, candles))
	if err != nil {
		return err
	}
	if s.l != nil {
		s.l.Debug("scan done",
			applogger.String("instrument", instrument),
			applogger.Int("bars", len(candles)),
			applogger.Int("signals", len(out.Signals)),
			applogger.String("reason", string(out.Result.Reason)),
		)
	}
	return nil
}

// ResetOnce rebuilds anchor levels for every instrument.
func (s *Scheduler) ResetOnce(ctx context.Context) {
	if s.resetter == nil {
		return
	}
	if s.l != nil {
		s.l.Info("running period reset", applogger.Strings("instruments", s.cfg.Instruments))
	}
	if err := s.resetter.ResetAll(ctx, s.cfg.Instruments); err != nil && s.l != nil {
		s.l.Error("period reset incomplete", applogger.Error(err))
	}
}
