package models

import "time"

// PatternType is the signal family.
type PatternType string

const (
	PatternReversal     PatternType = "reversal"     // CHOCH
	PatternContinuation PatternType = "continuation" // BOS
)

// Direction of the proposed trade.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// SwingKind tells a swing high from a swing low.
type SwingKind string

const (
	SwingHigh SwingKind = "high"
	SwingLow  SwingKind = "low"
)

// LevelRole is the side of an anchor a pattern is evaluated against.
type LevelRole string

const (
	RoleHigh LevelRole = "high"
	RoleLow  LevelRole = "low"
)

// Opposite returns the swapped role used by flipped levels.
func (r LevelRole) Opposite() LevelRole {
	if r == RoleHigh {
		return RoleLow
	}
	return RoleHigh
}

// LevelSource tells how an anchor was established.
type LevelSource string

const (
	SourceSingle     LevelSource = "single"
	SourceHistorical LevelSource = "historical"
)

// LevelWindow is the span of data an anchor was computed from.
type LevelWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Bars  int       `json:"bars"`
}

// AnchorLevel is a tracked reference high/low.
type AnchorLevel struct {
	Instrument    string      `json:"instrument"`
	High          float64     `json:"high"`
	Low           float64     `json:"low"`
	HighBroken    bool        `json:"high_broken"`
	LowBroken     bool        `json:"low_broken"`
	EstablishedAt time.Time   `json:"established_at"`
	Source        LevelSource `json:"source"`
	Window        LevelWindow `json:"window"`
}

// Valid reports whether the level satisfies high >= low.
func (l AnchorLevel) Valid() bool { return l.High >= l.Low }

// SwingPoint is a local extremum of the close series.
type SwingPoint struct {
	Price float64   `json:"price"`
	Index int       `json:"index"`
	Time  time.Time `json:"time"`
	Kind  SwingKind `json:"kind"`
}

// VolatilityMethod names the estimator used.
type VolatilityMethod string

const (
	VolatilityTrueRange  VolatilityMethod = "atr"
	VolatilityCloseClose VolatilityMethod = "close"
)

// VolatilityEstimate is a rolling dispersion measure. A nil estimate means
// unavailable.
type VolatilityEstimate struct {
	Instrument string           `json:"instrument"`
	Value      float64          `json:"value"`
	Period     int              `json:"period"`
	Method     VolatilityMethod `json:"method"`
	At         time.Time        `json:"at"`
}

// SignalCandidate is one detected setup.
type SignalCandidate struct {
	Instrument                string      `json:"instrument"`
	Pattern                   PatternType `json:"pattern"`
	Direction                 Direction   `json:"direction"`
	EntryPrice                float64     `json:"entry_price"`
	StopLoss                  float64     `json:"stop_loss"`
	AnchorLevel               AnchorLevel `json:"anchor_level"`
	AnchorRole                LevelRole   `json:"anchor_role"`
	ReferencePrice            float64     `json:"reference_price"`
	Flipped                   bool        `json:"flipped"`
	SwingBreakLevel           float64     `json:"swing_break_level"`
	DistanceInVolatilityUnits *float64    `json:"distance_in_volatility_units,omitempty"`
	Timestamp                 time.Time   `json:"timestamp"`
}

// StopOnLossSide checks the stop-loss placement invariant.
func (c SignalCandidate) StopOnLossSide() bool {
	switch c.Direction {
	case Long:
		return c.StopLoss < c.EntryPrice
	case Short:
		return c.StopLoss > c.EntryPrice
	default:
		return false
	}
}

// ReasonCode explains an empty analysis result.
type ReasonCode string

const (
	ReasonInsufficientData    ReasonCode = "INSUFFICIENT_DATA"
	ReasonNoAnchor            ReasonCode = "NO_ANCHOR"
	ReasonTooFar              ReasonCode = "TOO_FAR"
	ReasonDuplicateSuppressed ReasonCode = "DUPLICATE_SUPPRESSED"
	ReasonNoPattern           ReasonCode = "NO_PATTERN"
)

// DistanceCheck is the outcome of one distance filter evaluation.
type DistanceCheck struct {
	Anchor   float64 `json:"anchor"`
	Breakout float64 `json:"breakout"`
	Distance float64 `json:"distance"`
	Limit    float64 `json:"limit"`
	Ratio    float64 `json:"ratio"`
	Fallback bool    `json:"fallback"`
	Accepted bool    `json:"accepted"`
}

// AnalysisResult is the detailed outcome of one Analyze call.
type AnalysisResult struct {
	Instrument     string              `json:"instrument"`
	Candidates     []SignalCandidate   `json:"candidates"`
	Reason         ReasonCode          `json:"reason,omitempty"`
	Volatility     *VolatilityEstimate `json:"volatility,omitempty"`
	Levels         []AnchorLevel       `json:"levels"`
	SwingHighs     int                 `json:"swing_highs"`
	SwingLows      int                 `json:"swing_lows"`
	DistanceChecks []DistanceCheck     `json:"distance_checks,omitempty"`
}
