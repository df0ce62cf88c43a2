package repository

import (
	"context"

	"MarketStructure/internal/domain/models"
)

// SignalPublisher pushes emitted signals to a downstream transport.
type SignalPublisher interface {
	Publish(ctx context.Context, s *models.Signal) error
	Close() error
}

// SignalStore persists emitted signals.
type SignalStore interface {
	Init(ctx context.Context) error // ensure tables
	Store(ctx context.Context, s *models.Signal) error
	Query(ctx context.Context, q models.SignalQuery) ([]models.Signal, error)
	Health(ctx context.Context) error
	Close() error
}

// LevelSnapshots keeps a copy of historical anchors outside the process.
type LevelSnapshots interface {
	Save(ctx context.Context, instrument string, levels []models.AnchorLevel) error
	Load(ctx context.Context, instrument string) ([]models.AnchorLevel, bool, error)
}

type Metrics interface {
	RecordAnalysis(instrument string, seconds float64, res models.AnalysisResult)
	RecordSignal(backend string, s *models.Signal)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
