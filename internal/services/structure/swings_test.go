package structure

import (
	"reflect"
	"testing"
	"time"

	"MarketStructure/internal/domain/models"
)

func TestExtractSwings(t *testing.T) {
	closes := []float64{1, 2, 3, 5, 3, 2, 1, 0.5, 1, 2, 3}
	s := ExtractSwings(closeSeries("X", closes), 3)

	if len(s.Highs) != 1 || s.Highs[0].Index != 3 || s.Highs[0].Price != 5 {
		t.Fatalf("unexpected highs %+v", s.Highs)
	}
	if len(s.Lows) != 1 || s.Lows[0].Index != 7 || s.Lows[0].Price != 0.5 {
		t.Fatalf("unexpected lows %+v", s.Lows)
	}
	if !s.Highs[0].Time.Equal(t0.Add(3 * time.Minute)) {
		t.Errorf("swing must carry its bar time, got %v", s.Highs[0].Time)
	}
}

func TestExtractSwingsTiesNeverSwing(t *testing.T) {
	cases := map[string][]float64{
		"flat":          flat(20, 1),
		"double top":    {1, 2, 3, 5, 5, 3, 2, 1, 0},
		"equal at edge": {5, 2, 3, 5, 3, 2, 1, 0},
		"double bottom": {5, 4, 3, 1, 1, 3, 4, 5, 6},
	}
	for name, closes := range cases {
		t.Run(name, func(t *testing.T) {
			s := ExtractSwings(closeSeries("X", closes), 3)
			if len(s.Highs) != 0 || len(s.Lows) != 0 {
				t.Fatalf("ties produced swings: highs=%+v lows=%+v", s.Highs, s.Lows)
			}
		})
	}
}

func TestExtractSwingsDeterministicAndOrdered(t *testing.T) {
	closes := shortReversalCloses()
	series := closeSeries("X", closes)

	for _, lookback := range []int{1, 3, 5} {
		a := ExtractSwings(series, lookback)
		b := ExtractSwings(series, lookback)
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("lookback %d: results differ", lookback)
		}
		for _, pts := range [][]int{indices(a.Highs), indices(a.Lows)} {
			for i := 1; i < len(pts); i++ {
				if pts[i] <= pts[i-1] {
					t.Fatalf("lookback %d: indices not strictly increasing: %v", lookback, pts)
				}
			}
		}
		all := append(append([]models.SwingPoint(nil), a.Highs...), a.Lows...)
		for _, p := range all {
			if p.Index < lookback || p.Index >= len(closes)-lookback {
				t.Errorf("lookback %d: index %d outside evaluable range", lookback, p.Index)
			}
		}
	}
}

func TestExtractSwingsShortSeries(t *testing.T) {
	s := ExtractSwings(closeSeries("X", []float64{1, 3, 1}), 3)
	if len(s.Highs)+len(s.Lows) != 0 {
		t.Fatal("series shorter than 2*lookback+1 cannot hold a swing")
	}
}

func TestLatestFrom(t *testing.T) {
	s := ExtractSwings(closeSeries("X", shortReversalCloses()), 3)
	if p, ok := s.LatestFrom(models.SwingLow, 102); !ok || p.Index != 105 {
		t.Fatalf("expected swing low at 105, got %+v ok=%v", p, ok)
	}
	if _, ok := s.LatestFrom(models.SwingLow, 106); ok {
		t.Fatal("no swing low at or after 106")
	}
}

func indices(pts []models.SwingPoint) []int {
	out := make([]int, len(pts))
	for i, p := range pts {
		out[i] = p.Index
	}
	return out
}
