package structure

import (
	"errors"
	"fmt"
	"time"

	"MarketStructure/internal/domain/models"
)

var (
	// ErrInvalidConfig is returned for negative or inconsistent settings.
	ErrInvalidConfig = errors.New("structure: invalid config")
	// ErrNonMonotonicSeries is returned when bar timestamps do not strictly increase.
	ErrNonMonotonicSeries = errors.New("structure: series timestamps not strictly increasing")
	// ErrEmptyInstrument is returned when Analyze is called without an instrument.
	ErrEmptyInstrument = errors.New("structure: instrument required")
)

// AnchorMode selects which anchor levels are tracked.
type AnchorMode string

const (
	AnchorSingle     AnchorMode = "single"
	AnchorHistorical AnchorMode = "historical"
	AnchorBoth       AnchorMode = "both"
)

// Config holds every tunable of the engine. The zero value is not usable;
// start from DefaultConfig.
type Config struct {
	// Minimum series length before an instrument is evaluated at all.
	MinBars int

	SwingLookback int

	VolatilityPeriod int
	// ForceCloseVolatility skips true range even when high/low are present.
	ForceCloseVolatility bool

	ReversalWindow int
	StopWindow     int
	TouchTolerance float64
	StopBuffer     float64
	// RangeExtremes uses bar highs and lows, where present, for the series
	// anchor, broken flags, touches, breakouts and reversal stops.
	RangeExtremes bool

	ContinuationWindow int
	BreakoutWindow     int

	DistanceMultiplier  float64
	DistanceFallbackPct float64
	// FixedDistance bounds continuations by DistanceFallbackPct of the
	// anchor even when a volatility estimate exists.
	FixedDistance bool

	Cooldown time.Duration

	AnchorMode AnchorMode
	// PeriodBars is the number of bars in one anchoring period of the series.
	PeriodBars int
	// BreakLookbackBars bounds the recent closes compared against the single anchor.
	BreakLookbackBars int
	// RetentionPeriods bounds the historical anchor set.
	RetentionPeriods int
}

// DefaultConfig mirrors the close-only detector: 3 bar swings, 0.5% touch,
// 0.2% stop buffer, 3x volatility distance, 30 minute cooldown.
func DefaultConfig() Config {
	return Config{
		MinBars:             100,
		SwingLookback:       3,
		VolatilityPeriod:    14,
		ReversalWindow:      20,
		StopWindow:          15,
		TouchTolerance:      0.005,
		StopBuffer:          0.002,
		ContinuationWindow:  30,
		BreakoutWindow:      20,
		DistanceMultiplier:  3.0,
		DistanceFallbackPct: 0.02,
		Cooldown:            30 * time.Minute,
		AnchorMode:          AnchorBoth,
		PeriodBars:          480,
		BreakLookbackBars:   100,
		RetentionPeriods:    90,
	}
}

// RangeConfig mirrors the OHLC detector: 5 bar swings, touches and stops on
// bar extremes with 0.1% tolerance and buffer, and a fixed 1% continuation
// distance.
func RangeConfig() Config {
	c := DefaultConfig()
	c.SwingLookback = 5
	c.TouchTolerance = 0.001
	c.StopBuffer = 0.001
	c.RangeExtremes = true
	c.FixedDistance = true
	c.DistanceFallbackPct = 0.01
	return c
}

// Validate reports contract violations. All errors wrap ErrInvalidConfig.
func (c Config) Validate() error {
	positive := []struct {
		name string
		v    int
	}{
		{"min_bars", c.MinBars},
		{"swing_lookback", c.SwingLookback},
		{"volatility_period", c.VolatilityPeriod},
		{"reversal_window", c.ReversalWindow},
		{"stop_window", c.StopWindow},
		{"continuation_window", c.ContinuationWindow},
		{"breakout_window", c.BreakoutWindow},
		{"period_bars", c.PeriodBars},
		{"break_lookback_bars", c.BreakLookbackBars},
		{"retention_periods", c.RetentionPeriods},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return fmt.Errorf("%w: %s must be > 0, got %d", ErrInvalidConfig, p.name, p.v)
		}
	}
	if c.TouchTolerance < 0 || c.StopBuffer < 0 || c.DistanceMultiplier < 0 || c.DistanceFallbackPct < 0 {
		return fmt.Errorf("%w: tolerances, buffers and multipliers must be >= 0", ErrInvalidConfig)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("%w: cooldown must be >= 0, got %s", ErrInvalidConfig, c.Cooldown)
	}
	if c.StopWindow > c.ReversalWindow {
		return fmt.Errorf("%w: stop_window (%d) exceeds reversal_window (%d)", ErrInvalidConfig, c.StopWindow, c.ReversalWindow)
	}
	if c.BreakoutWindow > c.ContinuationWindow {
		return fmt.Errorf("%w: breakout_window (%d) exceeds continuation_window (%d)", ErrInvalidConfig, c.BreakoutWindow, c.ContinuationWindow)
	}
	switch c.AnchorMode {
	case AnchorSingle, AnchorHistorical, AnchorBoth:
	default:
		return fmt.Errorf("%w: anchor_mode must be single, historical or both, got %q", ErrInvalidConfig, c.AnchorMode)
	}
	return nil
}

func (c Config) singleEnabled() bool {
	return c.AnchorMode == AnchorSingle || c.AnchorMode == AnchorBoth
}

func (c Config) historicalEnabled() bool {
	return c.AnchorMode == AnchorHistorical || c.AnchorMode == AnchorBoth
}

func (c Config) barHigh(b models.Bar) float64 {
	if c.RangeExtremes && b.HasRange() {
		return b.High
	}
	return b.Close
}

func (c Config) barLow(b models.Bar) float64 {
	if c.RangeExtremes && b.HasRange() {
		return b.Low
	}
	return b.Close
}
