package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"MarketStructure/internal/domain/models"
	"MarketStructure/internal/usecase"
	"MarketStructure/pkg/cache"
)

type countingAnalyzer struct {
	mu    sync.Mutex
	calls map[string]int
	bars  int
	err   error
}

func (a *countingAnalyzer) Run(_ context.Context, inst string, s models.PriceSeries) (*usecase.Outcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.calls == nil {
		a.calls = map[string]int{}
	}
	a.calls[inst]++
	a.bars = s.Len()
	if a.err != nil {
		return nil, a.err
	}
	return &usecase.Outcome{}, nil
}

type resetRecorder struct{ got []string }

func (r *resetRecorder) ResetAll(_ context.Context, inst []string) error {
	r.got = append(r.got, inst...)
	return nil
}

func seeded(n int) *usecase.SeriesBuffer {
	b := usecase.NewSeriesBuffer(1000)
	t0 := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	for _, inst := range []string{"EUR_USD", "GBP_USD"} {
		for i := 0; i < n; i++ {
			_ = b.Append(inst, models.Bar{Time: t0.Add(time.Duration(i) * 3 * time.Minute), Close: 1})
		}
	}
	return b
}

func TestScanOnceLoadsLatestBars(t *testing.T) {
	a := &countingAnalyzer{}
	s := New(Config{Instruments: []string{"EUR_USD", "GBP_USD"}, ScanBars: 100}, seeded(150), a, nil, nil, nil)
	s.ScanOnce(context.Background())
	if a.calls["EUR_USD"] != 1 || a.calls["GBP_USD"] != 1 {
		t.Fatalf("calls = %v", a.calls)
	}
	if a.bars != 100 {
		t.Fatalf("expected the latest 100 bars, got %d", a.bars)
	}
}

func TestScanInstrumentRespectsLock(t *testing.T) {
	locks := cache.NewMemoryCache()
	defer locks.Close()
	a := &countingAnalyzer{}
	s := New(Config{Instruments: []string{"EUR_USD"}, ScanBars: 100, LockTTL: time.Minute}, seeded(120), a, nil, locks, nil)

	ok, _ := locks.TryLock(context.Background(), "lock:scan:EUR_USD", time.Minute)
	if !ok {
		t.Fatal("could not take lock")
	}
	if err := s.ScanInstrument(context.Background(), "EUR_USD"); err != nil {
		t.Fatal(err)
	}
	if a.calls["EUR_USD"] != 0 {
		t.Fatal("scan must be skipped while another holder has the lock")
	}

	_ = locks.Unlock(context.Background(), "lock:scan:EUR_USD")
	if err := s.ScanInstrument(context.Background(), "EUR_USD"); err != nil {
		t.Fatal(err)
	}
	if a.calls["EUR_USD"] != 1 {
		t.Fatal("scan should run once the lock is free")
	}
	if held, _ := locks.Exists(context.Background(), "lock:scan:EUR_USD"); held {
		t.Fatal("lock must be released after the scan")
	}
}

func TestScanInstrumentPropagatesErrors(t *testing.T) {
	a := &countingAnalyzer{err: errors.New("boom")}
	s := New(Config{ScanBars: 10}, seeded(20), a, nil, nil, nil)
	if err := s.ScanInstrument(context.Background(), "EUR_USD"); err == nil {
		t.Fatal("expected error")
	}
}

func TestRegisterAllAndReset(t *testing.T) {
	r := &resetRecorder{}
	s := New(Config{Instruments: []string{"EUR_USD"}}, seeded(1), &countingAnalyzer{}, r, nil, nil)
	if err := s.RegisterAll("not a cron", ""); err == nil {
		t.Fatal("expected invalid spec error")
	}
	if err := s.RegisterAll("*/3 * * * *", "0 0 * * *"); err != nil {
		t.Fatal(err)
	}
	if n := len(s.cron.Entries()); n != 2 {
		t.Fatalf("entries = %d", n)
	}
	s.Start()
	if err := s.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}

	s.ResetOnce(context.Background())
	if len(r.got) != 1 || r.got[0] != "EUR_USD" {
		t.Fatalf("reset got %v", r.got)
	}
}
