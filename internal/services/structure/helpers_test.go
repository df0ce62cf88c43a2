package structure

import (
	"time"

	"MarketStructure/internal/domain/models"
)

var t0 = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func closeSeries(instrument string, closes []float64) models.PriceSeries {
	bars := make([]models.Bar, len(closes))
	for i, c := range closes {
		bars[i] = models.Bar{Time: t0.Add(time.Duration(i) * time.Minute), Close: c}
	}
	return models.PriceSeries{Instrument: instrument, Bars: bars}
}

// rangedSeries gives every bar a high/low of close±spread.
func rangedSeries(instrument string, closes []float64, spread float64) models.PriceSeries {
	s := closeSeries(instrument, closes)
	for i := range s.Bars {
		s.Bars[i].High = s.Bars[i].Close + spread
		s.Bars[i].Low = s.Bars[i].Close - spread
	}
	return s
}

func flat(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// testConfig uses a 60 bar period so a 120 bar series spans exactly the
// previous and the current period.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AnchorMode = AnchorSingle
	cfg.PeriodBars = 60
	cfg.BreakLookbackBars = 20
	return cfg
}

// previousPeriod is 60 flat closes with one spike to 110 and one dip to 90.
func previousPeriod() []float64 {
	c := flat(60, 100)
	c[30] = 110
	c[40] = 90
	return c
}

// shortReversalCloses rises to touch 110, forms a swing low at 106 (index
// 105) and closes below it.
func shortReversalCloses() []float64 {
	c := append(previousPeriod(), flat(40, 100)...)
	c = append(c, 105, 107, 109.8, 108, 107, 106, 107, 108, 107.5)
	for i := 0; i < 11; i++ {
		c = append(c, 105.5-0.5*float64(i))
	}
	return c
}

// mirror reflects closes around 100, turning a short setup into a long one.
func mirror(closes []float64) []float64 {
	out := make([]float64, len(closes))
	for i, c := range closes {
		out[i] = 200 - c
	}
	return out
}

// longContinuationCloses breaks above 110 at index 95, forms a swing high
// at 112 (index 97) and rises to 116. Every value is a binary fraction so
// true ranges come out exact.
func longContinuationCloses() []float64 {
	c := append(previousPeriod(), flat(35, 100)...)
	c = append(c, 111, 111.5, 112, 111.75, 111.5, 111.25)
	for i := 0; i < 19; i++ {
		c = append(c, 111.5+0.25*float64(i))
	}
	return c
}

// flippedHighCloses breaks above 110 at index 95, forms swing highs at 113
// (97) and 112 (102), retests 110 at index 100 and rallies to 115. Both the
// continuation and the flipped reversal fire.
func flippedHighCloses() []float64 {
	c := append(previousPeriod(), flat(35, 100)...)
	c = append(c, 111, 112, 113, 112, 111, 110.3, 111, 112, 111.5, 111)
	for i := 0; i < 15; i++ {
		c = append(c, 111.5+0.25*float64(i))
	}
	return c
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
