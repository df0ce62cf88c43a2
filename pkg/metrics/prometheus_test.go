package metrics

import (
	"testing"

	"MarketStructure/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAnalysis(t *testing.T) {
	r := NewWithRegistry(prometheus.NewRegistry())

	r.RecordAnalysis("EUR_USD", 0.001, models.AnalysisResult{
		Reason:     models.ReasonTooFar,
		Levels:     make([]models.AnchorLevel, 3),
		Volatility: &models.VolatilityEstimate{Value: 0.0012, Method: models.VolatilityTrueRange},
	})
	r.RecordAnalysis("EUR_USD", 0.001, models.AnalysisResult{
		Candidates: []models.SignalCandidate{
			{Pattern: models.PatternReversal, Direction: models.Short},
			{Pattern: models.PatternReversal, Direction: models.Short},
		},
	})

	if got := testutil.ToFloat64(r.emptyResults.WithLabelValues("EUR_USD", "TOO_FAR")); got != 1 {
		t.Errorf("empty results = %v", got)
	}
	if got := testutil.ToFloat64(r.signalsEmitted.WithLabelValues("EUR_USD", "reversal", "short")); got != 2 {
		t.Errorf("signals emitted = %v", got)
	}
	if got := testutil.ToFloat64(r.volatility.WithLabelValues("EUR_USD", "atr")); got != 0.0012 {
		t.Errorf("volatility gauge = %v", got)
	}
	if got := testutil.ToFloat64(r.activeLevels.WithLabelValues("EUR_USD")); got != 0 {
		t.Errorf("active levels must follow the last analysis, got %v", got)
	}
}

func TestRecordSignal(t *testing.T) {
	r := NewWithRegistry(prometheus.NewRegistry())
	s := &models.Signal{Candidate: models.SignalCandidate{Instrument: "USD_JPY"}}
	r.RecordSignal("kafka", s)
	r.RecordSignal("kafka", s)
	if got := testutil.ToFloat64(r.signalsSent.WithLabelValues("kafka", "USD_JPY")); got != 2 {
		t.Errorf("published = %v", got)
	}
}
