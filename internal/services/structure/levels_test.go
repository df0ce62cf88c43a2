package structure

import (
	"math"
	"testing"
	"time"

	"MarketStructure/internal/domain/models"
	"MarketStructure/pkg/logger"
)

func day(i int, closes ...float64) models.Period {
	start := t0.AddDate(0, 0, i)
	return models.Period{Start: start, End: start.AddDate(0, 0, 1), Closes: closes}
}

func TestFromPeriodsFlagsLaterBreaks(t *testing.T) {
	s := NewLevelStore(DefaultConfig(), logger.NewNop())

	single, hist := s.FromPeriods("EUR_USD", []models.Period{
		day(0, 100, 105, 95),
		day(1, 101, 103, 99),
		day(2, 104, 106, 100), // current
	})

	if len(hist) != 2 {
		t.Fatalf("expected 2 historical anchors, got %d", len(hist))
	}
	if !hist[0].HighBroken || hist[0].LowBroken {
		t.Errorf("day 0 high 105 broken by 106, low 95 intact: %+v", hist[0])
	}
	if !hist[1].HighBroken || hist[1].LowBroken {
		t.Errorf("day 1 high 103 broken by 104, low 99 intact: %+v", hist[1])
	}
	if single == nil || single.High != 103 || single.Low != 99 || single.Source != models.SourceSingle {
		t.Fatalf("unexpected single anchor %+v", single)
	}
	if !single.HighBroken || single.LowBroken {
		t.Errorf("single flags come from the current period only: %+v", single)
	}
}

func TestFromPeriodsRetention(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetentionPeriods = 3
	s := NewLevelStore(cfg, nil)

	var periods []models.Period
	for i := 0; i < 10; i++ {
		periods = append(periods, day(i, float64(100+i)))
	}
	_, hist := s.FromPeriods("EUR_USD", periods)
	if len(hist) != 3 {
		t.Fatalf("expected 3 retained anchors, got %d", len(hist))
	}
	if hist[0].High != 106 || hist[2].High != 108 {
		t.Errorf("expected the most recent completed periods, got %v..%v", hist[0].High, hist[2].High)
	}
}

func TestFromPeriodsSkipsEmptyPeriods(t *testing.T) {
	s := NewLevelStore(DefaultConfig(), nil)
	_, hist := s.FromPeriods("EUR_USD", []models.Period{day(0), day(1, 100), day(2, 101)})
	if len(hist) != 1 {
		t.Fatalf("expected the empty period to be skipped, got %d anchors", len(hist))
	}
}

func TestHistoricalFlagsAreForwardOnly(t *testing.T) {
	e, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	first := []models.Period{day(0, 100, 105, 95), day(1, 106), day(2, 100)}
	if err := e.ResetPeriods("EUR_USD", first); err != nil {
		t.Fatal(err)
	}
	if !e.HistoricalLevels("EUR_USD")[0].HighBroken {
		t.Fatal("expected day 0 high to be broken")
	}

	// the breaking close is revised away; the flag must survive
	revised := []models.Period{day(0, 100, 105, 95), day(1, 101), day(2, 100), day(3, 102)}
	if err := e.ResetPeriods("EUR_USD", revised); err != nil {
		t.Fatal(err)
	}
	levels := e.HistoricalLevels("EUR_USD")
	if len(levels) != 3 {
		t.Fatalf("expected 3 anchors, got %d", len(levels))
	}
	if !levels[0].HighBroken {
		t.Fatal("broken flag was retracted by a later recomputation")
	}

	// analysis over a calm series must not clear it either
	e.Analyze("EUR_USD", closeSeries("EUR_USD", flat(150, 100)))
	if !e.HistoricalLevels("EUR_USD")[0].HighBroken {
		t.Fatal("broken flag was retracted by Analyze")
	}
}

func TestAdvanceUsesClosesAfterWindow(t *testing.T) {
	s := NewLevelStore(DefaultConfig(), nil)
	levels := []models.AnchorLevel{{
		High:   110,
		Low:    90,
		Window: models.LevelWindow{Start: t0.Add(-time.Hour), End: t0.Add(10 * time.Minute)},
	}}

	c := flat(20, 100)
	c[5] = 120 // inside the window, ignored
	c[15] = 80
	s.Advance(levels, closeSeries("EUR_USD", c))

	if levels[0].HighBroken {
		t.Error("close inside the anchor window must not break it")
	}
	if !levels[0].LowBroken {
		t.Error("close after the window must break the low")
	}
}

func TestAdvanceWithRangeExtremes(t *testing.T) {
	series := closeSeries("EUR_USD", flat(20, 100))
	series.Bars[12].High, series.Bars[12].Low = 111, 99
	series.Bars[14].Low = 95 // no high, so the close stands in

	for _, tc := range []struct {
		ranged bool
		broken bool
	}{{false, false}, {true, true}} {
		cfg := DefaultConfig()
		cfg.RangeExtremes = tc.ranged
		levels := []models.AnchorLevel{{High: 110, Low: 96, Window: models.LevelWindow{End: t0}}}
		NewLevelStore(cfg, nil).Advance(levels, series)
		if levels[0].HighBroken != tc.broken {
			t.Errorf("ranged=%v: high broken = %v, want %v", tc.ranged, levels[0].HighBroken, tc.broken)
		}
		if levels[0].LowBroken {
			t.Errorf("ranged=%v: a bar without a full range must not break on its low", tc.ranged)
		}
	}
}

func TestLevelStoreNeverRetainsInvalidLevels(t *testing.T) {
	e, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	bad := []models.AnchorLevel{
		{Instrument: "EUR_USD", High: 90, Low: 110, Window: models.LevelWindow{Start: t0}},
		{Instrument: "EUR_USD", High: math.NaN(), Low: 1, Window: models.LevelWindow{Start: t0.Add(time.Hour)}},
		{Instrument: "EUR_USD", High: 110, Low: 90, Window: models.LevelWindow{Start: t0.Add(2 * time.Hour)}},
	}
	if err := e.RestoreLevels("EUR_USD", bad); err != nil {
		t.Fatal(err)
	}
	for _, l := range e.HistoricalLevels("EUR_USD") {
		if !(l.High >= l.Low) {
			t.Fatalf("invalid level retained: %+v", l)
		}
	}
	if got := len(e.HistoricalLevels("EUR_USD")); got != 1 {
		t.Fatalf("expected 1 valid level, got %d", got)
	}
}

func TestSingleFromSeries(t *testing.T) {
	s := NewLevelStore(testConfig(), nil)

	if _, ok := s.SingleFromSeries(closeSeries("EUR_USD", flat(60, 100))); ok {
		t.Fatal("a series of one period has no previous period")
	}

	level, ok := s.SingleFromSeries(closeSeries("EUR_USD", shortReversalCloses()))
	if !ok {
		t.Fatal("expected an anchor")
	}
	if level.High != 110 || level.Low != 90 || level.HighBroken || level.LowBroken {
		t.Errorf("unexpected anchor %+v", level)
	}
	if level.Window.Bars != 60 || !level.Window.End.Equal(t0.Add(60*time.Minute)) {
		t.Errorf("unexpected window %+v", level.Window)
	}
}

func TestMergeTrimsToRetention(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetentionPeriods = 2
	s := NewLevelStore(cfg, nil)

	mk := func(i int) models.AnchorLevel {
		return models.AnchorLevel{High: 2, Low: 1, Window: models.LevelWindow{Start: t0.AddDate(0, 0, i)}}
	}
	out := s.Merge([]models.AnchorLevel{mk(0), mk(1)}, []models.AnchorLevel{mk(2)})
	if len(out) != 2 || !out[0].Window.Start.Equal(t0.AddDate(0, 0, 1)) {
		t.Fatalf("expected the two most recent anchors, got %+v", out)
	}
}
