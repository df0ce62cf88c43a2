package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MarketStructure/internal/domain/models"
	domrepo "MarketStructure/internal/domain/repository"
	domsvc "MarketStructure/internal/domain/service"
	"MarketStructure/internal/services/risk"
	applogger "MarketStructure/pkg/logger"

	"github.com/google/uuid"
)

// Backends a signal can be delivered to.
const (
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
	BackendSQLite     = "sqlite"
)

// SignalBroadcaster pushes signals to live subscribers.
type SignalBroadcaster interface {
	Broadcast(s *models.Signal)
}

// Outcome is the result of one analysis run.
type Outcome struct {
	Result      models.AnalysisResult `json:"result"`
	Signals     []models.Signal       `json:"signals"`
	Rejected    int                   `json:"rejected"`
	Undelivered []models.Signal       `json:"-"`
}

// AnalyzeUseCase runs the engine and turns emitted candidates into delivered
// signals.
type AnalyzeUseCase struct {
	engine    domsvc.StructureEngine
	planner   *risk.Planner
	backend   string
	publisher domrepo.SignalPublisher
	store     domrepo.SignalStore
	hub       SignalBroadcaster
	metrics   domrepo.Metrics
	l         *applogger.Logger
	now       func() time.Time
	newID     func() string
}

// AnalyzeOption configures AnalyzeUseCase.
type AnalyzeOption func(*AnalyzeUseCase)

// WithPublisher sets the transport used by the kafka backend.
func WithPublisher(p domrepo.SignalPublisher) AnalyzeOption {
	return func(uc *AnalyzeUseCase) { uc.publisher = p }
}

// WithStore sets the store used by the clickhouse and sqlite backends.
func WithStore(s domrepo.SignalStore) AnalyzeOption {
	return func(uc *AnalyzeUseCase) { uc.store = s }
}

// WithBroadcaster sets the live subscriber hub.
func WithBroadcaster(h SignalBroadcaster) AnalyzeOption {
	return func(uc *AnalyzeUseCase) { uc.hub = h }
}

// WithLogger injects a structured logger.
func WithLogger(l *applogger.Logger) AnalyzeOption {
	return func(uc *AnalyzeUseCase) { uc.l = l }
}

// WithClock overrides time.Now and the id generator.
func WithClock(now func() time.Time, newID func() string) AnalyzeOption {
	return func(uc *AnalyzeUseCase) {
		uc.now = now
		uc.newID = newID
	}
}

func NewAnalyzeUseCase(engine domsvc.StructureEngine, planner *risk.Planner, metrics domrepo.Metrics, backend string, opts ...AnalyzeOption) *AnalyzeUseCase {
	uc := &AnalyzeUseCase{
		engine:  engine,
		planner: planner,
		backend: backend,
		metrics: metrics,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Run analyzes series and delivers every accepted signal. Engine contract
// errors are returned; delivery failures are logged and reported in
// Outcome.Undelivered.
func (uc *AnalyzeUseCase) Run(ctx context.Context, instrument string, series models.PriceSeries) (*Outcome, error) {
	start := time.Now()
	res, err := uc.engine.AnalyzeDetailed(instrument, series)
	if err != nil {
		uc.metrics.RecordError("analyze")
		return nil, fmt.Errorf("analyze %s: %w", instrument, err)
	}
	uc.metrics.RecordAnalysis(instrument, time.Since(start).Seconds(), res)

	out := &Outcome{Result: res, Signals: make([]models.Signal, 0, len(res.Candidates))}
	for _, c := range res.Candidates {
		sig, ok := uc.enrich(c)
		if !ok {
			out.Rejected++
			continue
		}
		if err := uc.Deliver(ctx, &sig); err != nil {
			out.Undelivered = append(out.Undelivered, sig)
		}
		out.Signals = append(out.Signals, sig)
	}

	if uc.l != nil && len(res.Candidates) == 0 {
		uc.l.Debug("no signal",
			applogger.String("instrument", instrument),
			applogger.String("reason", string(res.Reason)),
			applogger.Int("bars", series.Len()),
		)
	}
	return out, nil
}

// Explain evaluates a caller-supplied series without touching engine state
// and without delivering anything. Signals carry their planned take profit
// so the caller sees what Run would have emitted.
func (uc *AnalyzeUseCase) Explain(_ context.Context, instrument string, series models.PriceSeries) (*Outcome, error) {
	start := time.Now()
	res, err := uc.engine.Explain(instrument, series)
	if err != nil {
		return nil, fmt.Errorf("explain %s: %w", instrument, err)
	}
	uc.metrics.RecordLatency("explain", time.Since(start).Seconds())

	out := &Outcome{Result: res, Signals: make([]models.Signal, 0, len(res.Candidates))}
	for _, c := range res.Candidates {
		sig, err := uc.plan(c)
		if err != nil {
			out.Rejected++
			continue
		}
		out.Signals = append(out.Signals, sig)
	}
	return out, nil
}

func (uc *AnalyzeUseCase) plan(c models.SignalCandidate) (models.Signal, error) {
	plan, err := uc.planner.Plan(c)
	if err != nil {
		return models.Signal{}, err
	}
	return models.Signal{
		ID:           uc.newID(),
		Candidate:    c,
		TakeProfit:   plan.TakeProfit,
		RiskReward:   plan.RewardRisk,
		StopDistance: plan.StopDistance,
		CreatedAt:    uc.now().UTC(),
	}, nil
}

func (uc *AnalyzeUseCase) enrich(c models.SignalCandidate) (models.Signal, bool) {
	sig, err := uc.plan(c)
	if err != nil {
		kind := "plan"
		switch {
		case errors.Is(err, risk.ErrStopTooTight):
			kind = "stop_too_tight"
		case errors.Is(err, risk.ErrStopSide):
			kind = "stop_side"
		}
		uc.metrics.RecordError(kind)
		if uc.l != nil {
			uc.l.Info("signal dropped",
				applogger.String("instrument", c.Instrument),
				applogger.String("pattern", string(c.Pattern)),
				applogger.Float64("entry", c.EntryPrice),
				applogger.Float64("stop", c.StopLoss),
				applogger.Error(err),
			)
		}
		return models.Signal{}, false
	}
	return sig, true
}

// Deliver sends one signal to the configured backend and the live hub.
func (uc *AnalyzeUseCase) Deliver(ctx context.Context, sig *models.Signal) error {
	start := time.Now()
	var err error
	switch uc.backend {
	case BackendKafka:
		if uc.publisher == nil {
			err = errors.New("no publisher configured")
		} else {
			err = uc.publisher.Publish(ctx, sig)
		}
	case BackendClickHouse, BackendSQLite:
		if uc.store == nil {
			err = errors.New("no store configured")
		} else {
			err = uc.store.Store(ctx, sig)
		}
	default:
		err = fmt.Errorf("unknown backend: %s", uc.backend)
	}

	if err != nil {
		uc.metrics.RecordError("deliver")
		if uc.l != nil {
			uc.l.Error("signal delivery failed",
				applogger.String("backend", uc.backend),
				applogger.String("id", sig.ID),
				applogger.String("instrument", sig.Candidate.Instrument),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("deliver signal: %w", err)
	}

	uc.metrics.RecordSignal(uc.backend, sig)
	uc.metrics.RecordLatency("deliver", time.Since(start).Seconds())
	if uc.hub != nil {
		uc.hub.Broadcast(sig)
	}
	if uc.l != nil {
		c := sig.Candidate
		uc.l.Info("signal emitted",
			applogger.String("id", sig.ID),
			applogger.String("instrument", c.Instrument),
			applogger.String("pattern", string(c.Pattern)),
			applogger.String("direction", string(c.Direction)),
			applogger.Bool("flipped", c.Flipped),
			applogger.Float64("entry", c.EntryPrice),
			applogger.Float64("stop", c.StopLoss),
			applogger.Float64("take_profit", sig.TakeProfit),
		)
	}
	return nil
}

// Signals reads stored signals. Only the store-backed backends keep history.
func (uc *AnalyzeUseCase) Signals(ctx context.Context, q models.SignalQuery) ([]models.Signal, error) {
	if uc.store == nil {
		return nil, ErrNoHistory
	}
	return uc.store.Query(ctx, q)
}

// ErrNoHistory is returned when the backend does not keep signals.
var ErrNoHistory = errors.New("signal history not available for this backend")
