package structure

import (
	"MarketStructure/internal/domain/models"
	"MarketStructure/internal/services/features"
)

// VolatilityEstimator picks true range when the recent bars carry high/low
// and falls back to close-to-close otherwise.
type VolatilityEstimator struct {
	Period     int
	ForceClose bool
}

// Estimate returns nil when the series is too short.
func (v VolatilityEstimator) Estimate(series models.PriceSeries) *models.VolatilityEstimate {
	if v.Period <= 0 || series.Len() < v.Period+1 {
		return nil
	}
	est := &models.VolatilityEstimate{
		Instrument: series.Instrument,
		Period:     v.Period,
		At:         series.Last().Time,
	}
	if !v.ForceClose && features.HasRanges(series.Bars, v.Period) {
		if value, ok := features.TrueRangeAverage(series.Bars, v.Period); ok {
			est.Value = value
			est.Method = models.VolatilityTrueRange
			return est
		}
	}
	value, ok := features.CloseToCloseAverage(series.Closes(), v.Period)
	if !ok {
		return nil
	}
	est.Value = value
	est.Method = models.VolatilityCloseClose
	return est
}
