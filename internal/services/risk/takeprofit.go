package risk

import (
	"errors"
	"fmt"
	"strings"

	"MarketStructure/internal/domain/models"

	"github.com/shopspring/decimal"
)

var (
	// ErrStopSide is returned when the stop sits on the profit side of entry.
	ErrStopSide = errors.New("risk: stop loss on the wrong side of entry")
	// ErrStopTooTight is returned when the stop is closer than the minimum distance.
	ErrStopTooTight = errors.New("risk: stop loss distance below minimum")
)

// Planner derives take-profit targets from a fixed reward:risk multiple.
// Prices are rounded to the instrument's quote precision.
type Planner struct {
	rewardRisk  decimal.Decimal
	minStopPips decimal.Decimal
}

func NewPlanner(rewardRisk, minStopPips float64) *Planner {
	return &Planner{
		rewardRisk:  decimal.NewFromFloat(rewardRisk),
		minStopPips: decimal.NewFromFloat(minStopPips),
	}
}

// Plan is the outcome for one candidate.
type Plan struct {
	TakeProfit   float64
	StopDistance float64
	StopPips     float64
	RewardRisk   float64
}

// Plan computes the target for a candidate, rejecting stops that are on the
// wrong side or tighter than the configured pip minimum.
func (p *Planner) Plan(c models.SignalCandidate) (Plan, error) {
	entry := decimal.NewFromFloat(c.EntryPrice)
	stop := decimal.NewFromFloat(c.StopLoss)

	var dist decimal.Decimal
	switch c.Direction {
	case models.Long:
		dist = entry.Sub(stop)
	case models.Short:
		dist = stop.Sub(entry)
	default:
		return Plan{}, fmt.Errorf("risk: unknown direction %q", c.Direction)
	}
	if !dist.IsPositive() {
		return Plan{}, ErrStopSide
	}

	pip := PipSize(c.Instrument)
	pips := dist.Div(pip)
	if pips.LessThan(p.minStopPips) {
		return Plan{}, fmt.Errorf("%w: %s pips < %s", ErrStopTooTight, pips.StringFixed(1), p.minStopPips.String())
	}

	reward := dist.Mul(p.rewardRisk)
	tp := entry.Add(reward)
	if c.Direction == models.Short {
		tp = entry.Sub(reward)
	}

	places := Precision(c.Instrument)
	return Plan{
		TakeProfit:   tp.Round(places).InexactFloat64(),
		StopDistance: dist.Round(places).InexactFloat64(),
		StopPips:     pips.Round(1).InexactFloat64(),
		RewardRisk:   p.rewardRisk.InexactFloat64(),
	}, nil
}

// PipSize returns the pip for an instrument: 0.01 for yen crosses, 0.0001
// for other currency pairs (BASE_QUOTE) and 1 for indices and the rest.
func PipSize(instrument string) decimal.Decimal {
	switch {
	case strings.Contains(instrument, "JPY"):
		return decimal.New(1, -2)
	case strings.Contains(instrument, "_"):
		return decimal.New(1, -4)
	default:
		return decimal.New(1, 0)
	}
}

// Precision is the number of decimals quoted for an instrument, one below
// the pip.
func Precision(instrument string) int32 {
	return -PipSize(instrument).Exponent() + 1
}
