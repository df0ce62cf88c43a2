package features

import (
	"math"

	"MarketStructure/internal/domain/models"

	"github.com/markcheno/go-talib"
)

// TrueRangeAverage returns the simple mean of the last `period` true ranges,
// TR = max(high-low, |high-prevClose|, |low-prevClose|).
// ok is false when fewer than period+1 bars are available or the window
// lacks high/low data.
func TrueRangeAverage(bars []models.Bar, period int) (float64, bool) {
	if period <= 0 || len(bars) < period+1 {
		return 0, false
	}
	window := bars[len(bars)-period-1:]
	highs := make([]float64, len(window))
	lows := make([]float64, len(window))
	closes := make([]float64, len(window))
	for i, b := range window {
		if i > 0 && !b.HasRange() {
			return 0, false
		}
		highs[i], lows[i], closes[i] = b.High, b.Low, b.Close
	}
	// TRange leaves index 0 unset; bar i's true range lands at index i.
	tr := talib.TRange(highs, lows, closes)
	sum := 0.0
	for _, v := range tr[1:] {
		sum += v
	}
	return sum / float64(period), true
}

// CloseToCloseAverage returns the mean absolute change between consecutive
// closes over the last `period` changes.
func CloseToCloseAverage(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}
	window := closes[len(closes)-period-1:]
	sum := 0.0
	for i := 1; i < len(window); i++ {
		sum += math.Abs(window[i] - window[i-1])
	}
	return sum / float64(period), true
}

// HasRanges reports whether the last n bars all carry a high/low pair.
func HasRanges(bars []models.Bar, n int) bool {
	if n > len(bars) {
		n = len(bars)
	}
	for _, b := range bars[len(bars)-n:] {
		if !b.HasRange() {
			return false
		}
	}
	return n > 0
}
