package structure

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"MarketStructure/internal/domain/models"
	"MarketStructure/pkg/logger"
)

// instrumentState is everything the engine remembers about one instrument.
type instrumentState struct {
	mu sync.Mutex

	resetSingle *models.AnchorLevel
	historical  []models.AnchorLevel
	active      []models.AnchorLevel
	volatility  *models.VolatilityEstimate
	lastEmitted time.Time
}

// Engine detects reversal and continuation setups against tracked anchor
// levels. Calls for different instruments run in parallel; calls for the
// same instrument are serialized by the instrument's own lock.
type Engine struct {
	cfg        Config
	log        *logger.Logger
	now        func() time.Time
	levels     LevelStore
	volatility VolatilityEstimator
	classifier Classifier
	dedup      Deduplicator

	mu     sync.Mutex
	states map[string]*instrumentState
}

type Option func(*Engine)

func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithClock replaces time.Now for the dedup cooldown.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:    cfg,
		now:    time.Now,
		states: make(map[string]*instrumentState),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.levels = NewLevelStore(cfg, e.log)
	e.volatility = VolatilityEstimator{Period: cfg.VolatilityPeriod, ForceClose: cfg.ForceCloseVolatility}
	e.classifier = NewClassifier(cfg)
	e.dedup = Deduplicator{Cooldown: cfg.Cooldown}
	return e, nil
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) state(instrument string) *instrumentState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[instrument]
	if !ok {
		st = &instrumentState{}
		e.states[instrument] = st
	}
	return st
}

func (e *Engine) lookup(instrument string) (*instrumentState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[instrument]
	return st, ok
}

// Analyze returns the emitted candidates for the series, or an empty slice.
func (e *Engine) Analyze(instrument string, series models.PriceSeries) ([]models.SignalCandidate, error) {
	res, err := e.AnalyzeDetailed(instrument, series)
	if err != nil {
		return nil, err
	}
	return res.Candidates, nil
}

// AnalyzeDetailed is Analyze plus the reason for an empty result and the
// intermediate measurements.
func (e *Engine) AnalyzeDetailed(instrument string, series models.PriceSeries) (models.AnalysisResult, error) {
	return e.analyze(instrument, series, true)
}

// Explain evaluates series exactly like AnalyzeDetailed but writes nothing
// back: historical flags, the cooldown clock, the last volatility and the
// active levels stay as they were. Unknown instruments are evaluated
// against empty state and not registered.
func (e *Engine) Explain(instrument string, series models.PriceSeries) (models.AnalysisResult, error) {
	return e.analyze(instrument, series, false)
}

func (e *Engine) analyze(instrument string, series models.PriceSeries, commit bool) (models.AnalysisResult, error) {
	if instrument == "" {
		return models.AnalysisResult{}, ErrEmptyInstrument
	}
	if err := checkMonotonic(series); err != nil {
		return models.AnalysisResult{}, fmt.Errorf("analyze %s: %w", instrument, err)
	}
	series.Instrument = instrument

	res := models.AnalysisResult{Instrument: instrument, Candidates: []models.SignalCandidate{}}
	n := series.Len()
	if n < e.cfg.MinBars || (n < e.cfg.ReversalWindow && n < e.cfg.ContinuationWindow) {
		res.Reason = models.ReasonInsufficientData
		return res, nil
	}

	var st *instrumentState
	if commit {
		st = e.state(instrument)
	} else if known, ok := e.lookup(instrument); ok {
		st = known
	} else {
		st = &instrumentState{}
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	vol := e.volatility.Estimate(series)
	res.Volatility = copyVolatility(vol)

	active := e.activeLevels(st, series, commit)
	if commit {
		st.volatility = vol
		st.active = active
	}
	res.Levels = append([]models.AnchorLevel(nil), active...)
	if len(active) == 0 {
		res.Reason = models.ReasonNoAnchor
		return res, nil
	}

	swings := ExtractSwings(series, e.cfg.SwingLookback)
	res.SwingHighs, res.SwingLows = len(swings.Highs), len(swings.Lows)

	ev := evaluation{series: series, closes: series.Closes(), swings: swings, vol: vol}
	var candidates []models.SignalCandidate
	rejected := false
	for _, level := range active {
		found, checks := e.evaluate(ev, level)
		for _, c := range checks {
			if !c.Accepted {
				rejected = true
			}
		}
		res.DistanceChecks = append(res.DistanceChecks, checks...)
		candidates = appendUnique(candidates, found...)
	}

	if len(candidates) == 0 {
		res.Reason = models.ReasonNoPattern
		if rejected {
			res.Reason = models.ReasonTooFar
		}
		return res, nil
	}

	now := e.now()
	if !e.dedup.Allow(st.lastEmitted, now) {
		res.Reason = models.ReasonDuplicateSuppressed
		if e.log != nil {
			e.log.Debug("signals suppressed by cooldown",
				logger.String("instrument", instrument),
				logger.Int("candidates", len(candidates)),
				logger.Time("last_emitted", st.lastEmitted),
			)
		}
		return res, nil
	}
	if commit {
		st.lastEmitted = now
	}
	res.Candidates = candidates
	return res, nil
}

// evaluate runs every pattern check for one anchor in fixed order.
func (e *Engine) evaluate(ev evaluation, level models.AnchorLevel) ([]models.SignalCandidate, []models.DistanceCheck) {
	var (
		out    []models.SignalCandidate
		checks []models.DistanceCheck
	)
	keep := func(c models.SignalCandidate, ok bool) {
		if !ok {
			return
		}
		if !c.StopOnLossSide() {
			if e.log != nil {
				e.log.Debug("dropping candidate with stop on the wrong side",
					logger.String("instrument", c.Instrument),
					logger.String("pattern", string(c.Pattern)),
					logger.Float64("entry", c.EntryPrice),
					logger.Float64("stop", c.StopLoss),
				)
			}
			return
		}
		out = append(out, c)
	}
	continuation := func(price float64, role models.LevelRole) {
		c, check, ok := e.classifier.Continuation(ev, level, price, role)
		if check != nil {
			checks = append(checks, *check)
		}
		keep(c, ok)
	}

	if !level.HighBroken {
		keep(e.classifier.Reversal(ev, level, level.High, models.RoleHigh))
	}
	if !level.LowBroken {
		keep(e.classifier.Reversal(ev, level, level.Low, models.RoleLow))
	}
	if level.HighBroken {
		continuation(level.High, models.RoleHigh)
		keep(e.classifier.Flipped(ev, level, level.High, models.RoleHigh))
	}
	if level.LowBroken {
		continuation(level.Low, models.RoleLow)
		keep(e.classifier.Flipped(ev, level, level.Low, models.RoleLow))
	}
	return out, checks
}

// activeLevels refreshes the instrument's anchors against the series. The
// single anchor comes from the series when it spans more than one period,
// otherwise from the last period reset. Historical flags advance in place
// when commit is set, on a copy otherwise.
func (e *Engine) activeLevels(st *instrumentState, series models.PriceSeries, commit bool) []models.AnchorLevel {
	var active []models.AnchorLevel
	if e.cfg.singleEnabled() {
		if level, ok := e.levels.SingleFromSeries(series); ok && e.levels.admit(level) {
			active = append(active, level)
		} else if st.resetSingle != nil {
			active = append(active, e.levels.RefreshSingle(*st.resetSingle, series))
		}
	}
	if e.cfg.historicalEnabled() && len(st.historical) > 0 {
		historical := st.historical
		if !commit {
			historical = append([]models.AnchorLevel(nil), st.historical...)
		}
		e.levels.Advance(historical, series)
		active = append(active, historical...)
	}
	return active
}

// ResetPeriods recomputes anchors from chronological periods, the last of
// which is the current period. Historical flags merge with what is stored
// and are never cleared.
func (e *Engine) ResetPeriods(instrument string, periods []models.Period) error {
	if instrument == "" {
		return ErrEmptyInstrument
	}
	for i := 1; i < len(periods); i++ {
		if !periods[i].Start.After(periods[i-1].Start) {
			return fmt.Errorf("reset %s: period %d: %w", instrument, i, ErrNonMonotonicSeries)
		}
	}

	single, historical := e.levels.FromPeriods(instrument, periods)

	st := e.state(instrument)
	st.mu.Lock()
	defer st.mu.Unlock()

	if single != nil {
		st.resetSingle = single
	}
	st.historical = e.levels.Merge(st.historical, historical)
	st.active = nil

	if e.log != nil {
		e.log.Info("anchor levels reset",
			logger.String("instrument", instrument),
			logger.Int("periods", len(periods)),
			logger.Int("historical", len(st.historical)),
			logger.Bool("single", st.resetSingle != nil),
		)
	}
	return nil
}

// RestoreLevels merges previously exported historical anchors, e.g. from a
// snapshot taken before a restart.
func (e *Engine) RestoreLevels(instrument string, levels []models.AnchorLevel) error {
	if instrument == "" {
		return ErrEmptyInstrument
	}
	st := e.state(instrument)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.historical = e.levels.Merge(st.historical, levels)
	return nil
}

// HistoricalLevels returns a copy of the stored historical anchors.
func (e *Engine) HistoricalLevels(instrument string) []models.AnchorLevel {
	st, ok := e.lookup(instrument)
	if !ok {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]models.AnchorLevel(nil), st.historical...)
}

// GetActiveLevels returns the anchors used by the last Analyze call, or the
// reset anchors when the instrument was not analyzed since.
func (e *Engine) GetActiveLevels(instrument string) []models.AnchorLevel {
	st, ok := e.lookup(instrument)
	if !ok {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.active != nil {
		return append([]models.AnchorLevel(nil), st.active...)
	}
	var out []models.AnchorLevel
	if e.cfg.singleEnabled() && st.resetSingle != nil {
		out = append(out, *st.resetSingle)
	}
	if e.cfg.historicalEnabled() {
		out = append(out, st.historical...)
	}
	return out
}

// GetVolatility returns the last estimate, or nil when unavailable.
func (e *Engine) GetVolatility(instrument string) *models.VolatilityEstimate {
	st, ok := e.lookup(instrument)
	if !ok {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return copyVolatility(st.volatility)
}

// Instruments lists every instrument the engine holds state for.
func (e *Engine) Instruments() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.states))
	for name := range e.states {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func checkMonotonic(series models.PriceSeries) error {
	for i := 1; i < len(series.Bars); i++ {
		if !series.Bars[i].Time.After(series.Bars[i-1].Time) {
			return fmt.Errorf("bar %d at %s: %w", i, series.Bars[i].Time.Format(time.RFC3339), ErrNonMonotonicSeries)
		}
	}
	return nil
}

// appendUnique skips candidates already produced by an earlier anchor at
// the same reference price, which happens when a series-derived and a
// historical anchor cover the same period.
func appendUnique(dst []models.SignalCandidate, src ...models.SignalCandidate) []models.SignalCandidate {
	for _, c := range src {
		dup := false
		for _, d := range dst {
			if d.Pattern == c.Pattern && d.Direction == c.Direction && d.Flipped == c.Flipped &&
				d.ReferencePrice == c.ReferencePrice && d.SwingBreakLevel == c.SwingBreakLevel {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, c)
		}
	}
	return dst
}

func copyVolatility(v *models.VolatilityEstimate) *models.VolatilityEstimate {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
