package structure

import (
	"math"
	"sort"
	"time"

	"MarketStructure/internal/domain/models"
	"MarketStructure/pkg/logger"
)

// LevelStore computes anchor levels and their broken flags. Historical
// anchors are owned by the caller (the engine's instrument state); the
// store itself only carries config and a logger.
type LevelStore struct {
	cfg Config
	log *logger.Logger
}

func NewLevelStore(cfg Config, log *logger.Logger) LevelStore {
	return LevelStore{cfg: cfg, log: log}
}

// SingleFromSeries derives the previous-period anchor from the series
// itself: the closes in [n-2P, n-P) form the anchor and the last
// min(BreakLookbackBars, P) closes decide the broken flags. With
// RangeExtremes bar highs and lows stand in for closes.
func (s LevelStore) SingleFromSeries(series models.PriceSeries) (models.AnchorLevel, bool) {
	n, p := series.Len(), s.cfg.PeriodBars
	if n <= p {
		return models.AnchorLevel{}, false
	}
	from := n - 2*p
	if from < 0 {
		from = 0
	}
	high, low, ok := s.barExtremes(series.Bars[from : n-p])
	if !ok {
		return models.AnchorLevel{}, false
	}

	lookback := s.cfg.BreakLookbackBars
	if lookback > p {
		lookback = p
	}
	curHigh, curLow, _ := s.barExtremes(series.Bars[n-lookback:])

	current := series.Bars[n-p].Time
	return models.AnchorLevel{
		Instrument:    series.Instrument,
		High:          high,
		Low:           low,
		HighBroken:    curHigh > high,
		LowBroken:     curLow < low,
		EstablishedAt: current,
		Source:        models.SourceSingle,
		Window: models.LevelWindow{
			Start: series.Bars[from].Time,
			End:   current,
			Bars:  n - p - from,
		},
	}, true
}

// RefreshSingle recomputes the flags of an anchor supplied by a period
// reset from the series closes at or after its window end. Flags are not
// carried over from earlier calls.
func (s LevelStore) RefreshSingle(level models.AnchorLevel, series models.PriceSeries) models.AnchorLevel {
	level.HighBroken, level.LowBroken = false, false
	for _, b := range series.Bars {
		if b.Time.Before(level.Window.End) {
			continue
		}
		if s.cfg.barHigh(b) > level.High {
			level.HighBroken = true
		}
		if s.cfg.barLow(b) < level.Low {
			level.LowBroken = true
		}
	}
	return level
}

// FromPeriods builds anchors from chronological periods whose last element
// is the current, still-open period. The single anchor comes from the
// previous period and is flagged against the current one. Historical
// anchors cover the last RetentionPeriods completed periods, each flagged
// by every later period.
func (s LevelStore) FromPeriods(instrument string, periods []models.Period) (single *models.AnchorLevel, historical []models.AnchorLevel) {
	if len(periods) < 2 {
		return nil, nil
	}
	completed := periods[:len(periods)-1]
	first := len(completed) - s.cfg.RetentionPeriods
	if first < 0 {
		first = 0
	}

	for i := first; i < len(completed); i++ {
		level, ok := periodLevel(instrument, completed[i])
		if !ok {
			continue
		}
		for _, later := range periods[i+1:] {
			hi, lo, ok := extremes(later.Closes)
			if !ok {
				continue
			}
			level.HighBroken = level.HighBroken || hi > level.High
			level.LowBroken = level.LowBroken || lo < level.Low
		}
		if !s.admit(level) {
			continue
		}
		historical = append(historical, level)
	}

	prev, cur := completed[len(completed)-1], periods[len(periods)-1]
	if level, ok := periodLevel(instrument, prev); ok {
		level.Source = models.SourceSingle
		level.HighBroken, level.LowBroken = false, false
		if hi, lo, ok := extremes(cur.Closes); ok {
			level.HighBroken = hi > level.High
			level.LowBroken = lo < level.Low
		}
		if s.admit(level) {
			single = &level
		}
	}
	return single, historical
}

// Merge folds fresh historical anchors into the stored set keyed by window
// start. Broken flags only ever go from false to true. The result is
// chronological and trimmed to the retention horizon.
func (s LevelStore) Merge(stored, fresh []models.AnchorLevel) []models.AnchorLevel {
	byStart := make(map[time.Time]models.AnchorLevel, len(stored)+len(fresh))
	for _, l := range stored {
		if s.admit(l) {
			byStart[l.Window.Start.UTC()] = l
		}
	}
	for _, l := range fresh {
		if !s.admit(l) {
			continue
		}
		key := l.Window.Start.UTC()
		if old, ok := byStart[key]; ok {
			l.HighBroken = l.HighBroken || old.HighBroken
			l.LowBroken = l.LowBroken || old.LowBroken
		}
		byStart[key] = l
	}

	out := make([]models.AnchorLevel, 0, len(byStart))
	for _, l := range byStart {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Window.Start.Before(out[j].Window.Start) })
	if len(out) > s.cfg.RetentionPeriods {
		out = out[len(out)-s.cfg.RetentionPeriods:]
	}
	return out
}

// Advance sets the flags of historical anchors from series closes at or
// after each anchor's window end. It never clears a flag.
func (s LevelStore) Advance(levels []models.AnchorLevel, series models.PriceSeries) {
	for i := range levels {
		l := &levels[i]
		if l.HighBroken && l.LowBroken {
			continue
		}
		for _, b := range series.Bars {
			if b.Time.Before(l.Window.End) {
				continue
			}
			if s.cfg.barHigh(b) > l.High {
				l.HighBroken = true
			}
			if s.cfg.barLow(b) < l.Low {
				l.LowBroken = true
			}
		}
	}
}

// admit rejects malformed anchors with a warning.
func (s LevelStore) admit(l models.AnchorLevel) bool {
	if l.Valid() && !math.IsNaN(l.High) && !math.IsNaN(l.Low) {
		return true
	}
	if s.log != nil {
		s.log.Warn("skipping invalid anchor level",
			logger.String("instrument", l.Instrument),
			logger.String("source", string(l.Source)),
			logger.Float64("high", l.High),
			logger.Float64("low", l.Low),
			logger.Time("window_start", l.Window.Start),
		)
	}
	return false
}

func periodLevel(instrument string, p models.Period) (models.AnchorLevel, bool) {
	high, low, ok := extremes(p.Closes)
	if !ok {
		return models.AnchorLevel{}, false
	}
	return models.AnchorLevel{
		Instrument:    instrument,
		High:          high,
		Low:           low,
		EstablishedAt: p.End,
		Source:        models.SourceHistorical,
		Window:        models.LevelWindow{Start: p.Start, End: p.End, Bars: len(p.Closes)},
	}, true
}

// extremes returns the max and min of xs ignoring NaN and Inf values.
func (s LevelStore) barExtremes(bars []models.Bar) (high, low float64, ok bool) {
	highs, lows := make([]float64, len(bars)), make([]float64, len(bars))
	for i, b := range bars {
		highs[i], lows[i] = s.cfg.barHigh(b), s.cfg.barLow(b)
	}
	high, _, ok = extremes(highs)
	_, low, _ = extremes(lows)
	return high, low, ok
}

func extremes(xs []float64) (high, low float64, ok bool) {
	high, low = math.Inf(-1), math.Inf(1)
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		ok = true
		if x > high {
			high = x
		}
		if x < low {
			low = x
		}
	}
	return high, low, ok
}
