package structure

import "MarketStructure/internal/domain/models"

// Swings holds the swing points of one series, each chronological.
type Swings struct {
	Highs []models.SwingPoint
	Lows  []models.SwingPoint
}

// Of returns the sequence for the given kind.
func (s Swings) Of(kind models.SwingKind) []models.SwingPoint {
	if kind == models.SwingHigh {
		return s.Highs
	}
	return s.Lows
}

// LatestFrom returns the most recent swing of kind whose index is >= from.
func (s Swings) LatestFrom(kind models.SwingKind, from int) (models.SwingPoint, bool) {
	pts := s.Of(kind)
	if len(pts) == 0 {
		return models.SwingPoint{}, false
	}
	last := pts[len(pts)-1]
	if last.Index < from {
		return models.SwingPoint{}, false
	}
	return last, true
}

// ExtractSwings finds swing highs and lows on the close line. Index i is a
// swing high when its close is strictly above every other close within
// lookback bars on either side; equal neighbours disqualify it.
func ExtractSwings(series models.PriceSeries, lookback int) Swings {
	var out Swings
	n := len(series.Bars)
	if lookback <= 0 || n < 2*lookback+1 {
		return out
	}
	for i := lookback; i < n-lookback; i++ {
		price := series.Bars[i].Close
		isHigh, isLow := true, true
		for j := 1; j <= lookback && (isHigh || isLow); j++ {
			left, right := series.Bars[i-j].Close, series.Bars[i+j].Close
			if price <= left || price <= right {
				isHigh = false
			}
			if price >= left || price >= right {
				isLow = false
			}
		}
		if isHigh {
			out.Highs = append(out.Highs, swingAt(series, i, models.SwingHigh))
		}
		if isLow {
			out.Lows = append(out.Lows, swingAt(series, i, models.SwingLow))
		}
	}
	return out
}

func swingAt(series models.PriceSeries, i int, kind models.SwingKind) models.SwingPoint {
	b := series.Bars[i]
	return models.SwingPoint{Price: b.Close, Index: i, Time: b.Time, Kind: kind}
}
