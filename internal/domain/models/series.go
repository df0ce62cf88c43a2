package models

import "time"

// Bar is one sampled interval of an instrument. High and Low are optional;
// a zero High/Low pair means only the close is known.
type Bar struct {
	Time  time.Time `json:"time"`
	Open  float64   `json:"open,omitempty"`
	High  float64   `json:"high,omitempty"`
	Low   float64   `json:"low,omitempty"`
	Close float64   `json:"close"`
}

// HasRange reports whether the bar carries a usable high/low pair.
func (b Bar) HasRange() bool {
	return b.High > 0 && b.Low > 0 && b.High >= b.Low
}

// PriceSeries is a chronological run of bars for one instrument.
type PriceSeries struct {
	Instrument string `json:"instrument"`
	Bars       []Bar  `json:"bars"`
}

// Len returns the number of bars.
func (s PriceSeries) Len() int { return len(s.Bars) }

// Closes returns the closing prices in order.
func (s PriceSeries) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Last returns the most recent bar, or the zero bar for an empty series.
func (s PriceSeries) Last() Bar {
	if len(s.Bars) == 0 {
		return Bar{}
	}
	return s.Bars[len(s.Bars)-1]
}

// Candle represents an OHLCV record as stored by the candle store.
type Candle struct {
	Bucket time.Time
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// ToBar drops volume and the symbol.
func (c Candle) ToBar() Bar {
	return Bar{Time: c.Bucket, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close}
}

// Period is the closes of one anchoring period (e.g. one trading day).
type Period struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Closes []float64 `json:"closes"`
}
