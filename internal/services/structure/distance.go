package structure

import (
	"math"

	"MarketStructure/internal/domain/models"
)

// DistanceFilter bounds how far a breakout swing may sit from its anchor.
// The bound is inclusive.
type DistanceFilter struct {
	Multiplier  float64
	FallbackPct float64
	// Fixed ignores volatility and always applies FallbackPct.
	Fixed bool
}

// Check measures |breakout-anchor| against Multiplier*vol, or against
// FallbackPct*anchor when vol is nil or the filter is Fixed.
func (f DistanceFilter) Check(anchor, breakout float64, vol *models.VolatilityEstimate) models.DistanceCheck {
	check := models.DistanceCheck{
		Anchor:   anchor,
		Breakout: breakout,
		Distance: math.Abs(breakout - anchor),
	}

	var unit float64
	if vol != nil && !f.Fixed {
		unit = vol.Value
		check.Limit = f.Multiplier * vol.Value
	} else {
		check.Fallback = true
		check.Limit = f.FallbackPct * math.Abs(anchor)
		unit = check.Limit
	}

	if unit > 0 {
		check.Ratio = check.Distance / unit
	}
	check.Accepted = check.Distance <= check.Limit
	return check
}
