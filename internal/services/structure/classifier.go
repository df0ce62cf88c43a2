package structure

import (
	"MarketStructure/internal/domain/models"
)

// Classifier evaluates one anchor price in one role against the current
// series and its swings. It holds no state between calls.
type Classifier struct {
	cfg    Config
	filter DistanceFilter
}

func NewClassifier(cfg Config) Classifier {
	return Classifier{
		cfg:    cfg,
		filter: DistanceFilter{Multiplier: cfg.DistanceMultiplier, FallbackPct: cfg.DistanceFallbackPct, Fixed: cfg.FixedDistance},
	}
}

// evaluation is the working set shared by every pattern check of one call.
type evaluation struct {
	series models.PriceSeries
	closes []float64
	swings Swings
	vol    *models.VolatilityEstimate
}

func (e evaluation) n() int { return len(e.closes) }

func (e evaluation) last() float64 { return e.closes[len(e.closes)-1] }

// Reversal looks for a touch of level followed by a break of the opposite
// swing. The high role yields Short, the low role Long.
func (c Classifier) Reversal(ev evaluation, anchor models.AnchorLevel, level float64, role models.LevelRole) (models.SignalCandidate, bool) {
	w := c.cfg.ReversalWindow
	if ev.n() < w || ev.n() == 0 {
		return models.SignalCandidate{}, false
	}
	start := ev.n() - w

	touch := -1
	for i := start; i < ev.n(); i++ {
		if role == models.RoleHigh && c.high(ev, i) >= level*(1-c.cfg.TouchTolerance) ||
			role == models.RoleLow && c.low(ev, i) <= level*(1+c.cfg.TouchTolerance) {
			touch = i
			break
		}
	}
	if touch < 0 {
		return models.SignalCandidate{}, false
	}

	kind, dir := models.SwingLow, models.Short
	if role == models.RoleLow {
		kind, dir = models.SwingHigh, models.Long
	}
	swing, ok := ev.swings.LatestFrom(kind, touch)
	if !ok {
		return models.SignalCandidate{}, false
	}

	price := ev.last()
	stopEnd := start + c.cfg.StopWindow
	var stop float64
	switch dir {
	case models.Short:
		if price >= swing.Price {
			return models.SignalCandidate{}, false
		}
		stop = c.highest(ev, start, stopEnd) * (1 + c.cfg.StopBuffer)
	case models.Long:
		if price <= swing.Price {
			return models.SignalCandidate{}, false
		}
		stop = c.lowest(ev, start, stopEnd) * (1 - c.cfg.StopBuffer)
	}

	return c.candidate(ev, anchor, models.PatternReversal, dir, role, level, swing.Price, stop), true
}

// Continuation looks for an earlier close beyond a broken level followed by
// a same-kind swing that the latest close exceeds. The high role yields
// Long, the low role Short. The returned check is nil when no breakout swing
// was found, so the distance filter was never consulted.
func (c Classifier) Continuation(ev evaluation, anchor models.AnchorLevel, level float64, role models.LevelRole) (models.SignalCandidate, *models.DistanceCheck, bool) {
	w := c.cfg.ContinuationWindow
	if ev.n() < w || ev.n() == 0 {
		return models.SignalCandidate{}, nil, false
	}
	start := ev.n() - w

	cross := -1
	for i := start; i < start+c.cfg.BreakoutWindow; i++ {
		if role == models.RoleHigh && c.high(ev, i) > level || role == models.RoleLow && c.low(ev, i) < level {
			cross = i
			break
		}
	}
	if cross < 0 {
		return models.SignalCandidate{}, nil, false
	}

	kind, dir := models.SwingHigh, models.Long
	if role == models.RoleLow {
		kind, dir = models.SwingLow, models.Short
	}
	swing, ok := ev.swings.LatestFrom(kind, cross)
	if !ok {
		return models.SignalCandidate{}, nil, false
	}

	check := c.filter.Check(level, swing.Price, ev.vol)
	if !check.Accepted {
		return models.SignalCandidate{}, &check, false
	}

	price := ev.last()
	var stop float64
	switch dir {
	case models.Long:
		if price <= swing.Price {
			return models.SignalCandidate{}, &check, false
		}
		stop = level * (1 - c.cfg.StopBuffer)
	case models.Short:
		if price >= swing.Price {
			return models.SignalCandidate{}, &check, false
		}
		stop = level * (1 + c.cfg.StopBuffer)
	}

	cand := c.candidate(ev, anchor, models.PatternContinuation, dir, role, level, swing.Price, stop)
	if !check.Fallback && ev.vol.Value > 0 {
		ratio := check.Ratio
		cand.DistanceInVolatilityUnits = &ratio
	}
	return cand, &check, true
}

// Flipped evaluates a broken level as the opposite role: a broken high acts
// as support, a broken low as resistance.
func (c Classifier) Flipped(ev evaluation, anchor models.AnchorLevel, level float64, brokenRole models.LevelRole) (models.SignalCandidate, bool) {
	cand, ok := c.Reversal(ev, anchor, level, brokenRole.Opposite())
	if ok {
		cand.Flipped = true
	}
	return cand, ok
}

func (c Classifier) candidate(ev evaluation, anchor models.AnchorLevel, pattern models.PatternType, dir models.Direction,
	role models.LevelRole, level, swing, stop float64) models.SignalCandidate {
	return models.SignalCandidate{
		Instrument:      ev.series.Instrument,
		Pattern:         pattern,
		Direction:       dir,
		EntryPrice:      ev.last(),
		StopLoss:        stop,
		AnchorLevel:     anchor,
		AnchorRole:      role,
		ReferencePrice:  level,
		SwingBreakLevel: swing,
		Timestamp:       ev.series.Last().Time,
	}
}

func (c Classifier) high(ev evaluation, i int) float64 {
	if c.cfg.RangeExtremes {
		return c.cfg.barHigh(ev.series.Bars[i])
	}
	return ev.closes[i]
}

func (c Classifier) low(ev evaluation, i int) float64 {
	if c.cfg.RangeExtremes {
		return c.cfg.barLow(ev.series.Bars[i])
	}
	return ev.closes[i]
}

// highest and lowest scan bars [from, to).
func (c Classifier) highest(ev evaluation, from, to int) float64 {
	m := c.high(ev, from)
	for i := from + 1; i < to; i++ {
		if x := c.high(ev, i); x > m {
			m = x
		}
	}
	return m
}

func (c Classifier) lowest(ev evaluation, from, to int) float64 {
	m := c.low(ev, from)
	for i := from + 1; i < to; i++ {
		if x := c.low(ev, i); x < m {
			m = x
		}
	}
	return m
}
