package risk

import (
	"errors"
	"testing"

	"MarketStructure/internal/domain/models"
)

func TestPlanTakeProfit(t *testing.T) {
	p := NewPlanner(4, 5)

	cases := []struct {
		name string
		c    models.SignalCandidate
		tp   float64
		pips float64
	}{
		{"long fx", models.SignalCandidate{Instrument: "EUR_USD", Direction: models.Long, EntryPrice: 1.1000, StopLoss: 1.0980}, 1.1080, 20},
		{"short fx", models.SignalCandidate{Instrument: "GBP_USD", Direction: models.Short, EntryPrice: 1.2500, StopLoss: 1.2510}, 1.2460, 10},
		{"short yen", models.SignalCandidate{Instrument: "USD_JPY", Direction: models.Short, EntryPrice: 150.00, StopLoss: 150.25}, 149.00, 25},
		{"long index", models.SignalCandidate{Instrument: "NAS100", Direction: models.Long, EntryPrice: 18000, StopLoss: 17950}, 18200, 50},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := p.Plan(tc.c)
			if err != nil {
				t.Fatalf("Plan: %v", err)
			}
			if plan.TakeProfit != tc.tp {
				t.Errorf("take profit = %v, want %v", plan.TakeProfit, tc.tp)
			}
			if plan.StopPips != tc.pips {
				t.Errorf("stop pips = %v, want %v", plan.StopPips, tc.pips)
			}
			if plan.RewardRisk != 4 {
				t.Errorf("reward:risk = %v", plan.RewardRisk)
			}
		})
	}
}

func TestPlanRejectsBadStops(t *testing.T) {
	p := NewPlanner(4, 5)

	_, err := p.Plan(models.SignalCandidate{Instrument: "EUR_USD", Direction: models.Long, EntryPrice: 1.1, StopLoss: 1.2})
	if !errors.Is(err, ErrStopSide) {
		t.Errorf("expected ErrStopSide, got %v", err)
	}
	_, err = p.Plan(models.SignalCandidate{Instrument: "EUR_USD", Direction: models.Short, EntryPrice: 1.1000, StopLoss: 1.1003})
	if !errors.Is(err, ErrStopTooTight) {
		t.Errorf("expected ErrStopTooTight, got %v", err)
	}
}

func TestPrecision(t *testing.T) {
	if got := Precision("EUR_USD"); got != 5 {
		t.Errorf("EUR_USD precision = %d", got)
	}
	if got := Precision("USD_JPY"); got != 3 {
		t.Errorf("USD_JPY precision = %d", got)
	}
	if got := Precision("SPX500"); got != 1 {
		t.Errorf("SPX500 precision = %d", got)
	}
}
