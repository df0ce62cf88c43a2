package features

import (
	"testing"
	"time"

	"MarketStructure/internal/domain/models"
)

func TestTrueRangeAverageUsesPreviousClose(t *testing.T) {
	// gap up: the true range of bar 1 is high - prevClose
	bars := []models.Bar{
		{Close: 10, High: 10.5, Low: 9.5},
		{Close: 13, High: 14, Low: 12},
		{Close: 12, High: 13, Low: 11},
	}
	got, ok := TrueRangeAverage(bars, 2)
	if !ok {
		t.Fatal("expected an estimate")
	}
	// TR1 = max(2, |14-10|, |12-10|) = 4, TR2 = max(2, 0, 2) = 2
	if got != 3 {
		t.Errorf("got %v, want 3", got)
	}
}

func TestTrueRangeAverageRequiresRanges(t *testing.T) {
	bars := []models.Bar{{Close: 1, High: 1, Low: 1}, {Close: 2}, {Close: 3, High: 3, Low: 2}}
	if _, ok := TrueRangeAverage(bars, 2); ok {
		t.Fatal("bar without high/low must make the estimate unavailable")
	}
	if _, ok := TrueRangeAverage(bars[:2], 2); ok {
		t.Fatal("period+1 bars are required")
	}
}

func TestCloseToCloseAverage(t *testing.T) {
	got, ok := CloseToCloseAverage([]float64{5, 1, 2, 4, 3}, 3)
	if !ok || got != (1.0+2+1)/3 {
		t.Errorf("got %v ok=%v", got, ok)
	}
	if _, ok := CloseToCloseAverage([]float64{1, 2}, 2); ok {
		t.Error("expected unavailable with too few closes")
	}
}

func TestSplitPeriods(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	base := time.Date(2024, 3, 4, 20, 0, 0, 0, time.UTC) // 22:00 local
	var candles []models.Candle
	for i := 0; i < 6; i++ {
		candles = append(candles, models.Candle{Bucket: base.Add(time.Duration(i) * time.Hour), Close: float64(i)})
	}

	periods := SplitPeriods(candles, 24*time.Hour, loc)
	if len(periods) != 2 {
		t.Fatalf("expected 2 periods split at local midnight, got %d", len(periods))
	}
	if len(periods[0].Closes) != 2 || len(periods[1].Closes) != 4 {
		t.Errorf("unexpected split %v / %v", periods[0].Closes, periods[1].Closes)
	}
	wantStart := time.Date(2024, 3, 5, 0, 0, 0, 0, loc)
	if !periods[1].Start.Equal(wantStart) || !periods[1].End.Equal(wantStart.Add(24*time.Hour)) {
		t.Errorf("period bounds %v - %v", periods[1].Start, periods[1].End)
	}
}

func TestBarsPerPeriod(t *testing.T) {
	if got := BarsPerPeriod(24*time.Hour, 3*time.Minute); got != 480 {
		t.Errorf("got %d, want 480", got)
	}
	if got := BarsPerPeriod(time.Hour, 0); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
}
