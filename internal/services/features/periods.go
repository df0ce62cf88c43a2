package features

import (
	"time"

	"MarketStructure/internal/domain/models"
)

// SplitPeriods groups chronological candles into periods of the given length,
// aligned with time.Truncate in the supplied location. Empty buckets are
// skipped, so weekends and holidays never yield empty periods.
func SplitPeriods(candles []models.Candle, length time.Duration, loc *time.Location) []models.Period {
	if len(candles) == 0 || length <= 0 {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}
	var (
		out []models.Period
		cur *models.Period
	)
	for _, c := range candles {
		start := alignPeriod(c.Bucket, length, loc)
		if cur == nil || !cur.Start.Equal(start) {
			if cur != nil {
				out = append(out, *cur)
			}
			cur = &models.Period{Start: start, End: start.Add(length)}
		}
		cur.Closes = append(cur.Closes, c.Close)
	}
	if cur != nil {
		out = append(out, *cur)
	}
	return out
}

// alignPeriod truncates t to a period boundary measured in loc, so daily
// periods start at local midnight rather than UTC midnight.
func alignPeriod(t time.Time, length time.Duration, loc *time.Location) time.Time {
	lt := t.In(loc)
	_, offset := lt.Zone()
	shift := time.Duration(offset) * time.Second
	return lt.Add(shift).Truncate(length).Add(-shift)
}

// BarsPerPeriod returns how many bars of the given timeframe fit a period.
func BarsPerPeriod(period, timeframe time.Duration) int {
	if timeframe <= 0 {
		return 0
	}
	return int(period / timeframe)
}
