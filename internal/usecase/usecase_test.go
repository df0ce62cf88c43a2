package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"MarketStructure/internal/domain/models"
	domrepo "MarketStructure/internal/domain/repository"
	"MarketStructure/internal/services/risk"
	pkgkafka "MarketStructure/pkg/kafka"
)

var t0 = time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

type fakeEngine struct {
	mu         sync.Mutex
	result     models.AnalysisResult
	err        error
	analyzed   int
	explained  int
	reset      map[string][]models.Period
	restored   map[string][]models.AnchorLevel
	historical []models.AnchorLevel
}

func (f *fakeEngine) Analyze(inst string, s models.PriceSeries) ([]models.SignalCandidate, error) {
	r, err := f.AnalyzeDetailed(inst, s)
	return r.Candidates, err
}

func (f *fakeEngine) AnalyzeDetailed(inst string, _ models.PriceSeries) (models.AnalysisResult, error) {
	f.analyzed++
	return f.detailed(inst)
}

func (f *fakeEngine) Explain(inst string, _ models.PriceSeries) (models.AnalysisResult, error) {
	f.explained++
	return f.detailed(inst)
}

func (f *fakeEngine) detailed(inst string) (models.AnalysisResult, error) {
	if f.err != nil {
		return models.AnalysisResult{}, f.err
	}
	r := f.result
	r.Instrument = inst
	return r, nil
}

func (f *fakeEngine) GetActiveLevels(string) []models.AnchorLevel     { return nil }
func (f *fakeEngine) GetVolatility(string) *models.VolatilityEstimate { return nil }
func (f *fakeEngine) HistoricalLevels(string) []models.AnchorLevel    { return f.historical }
func (f *fakeEngine) Instruments() []string                           { return nil }

func (f *fakeEngine) ResetPeriods(inst string, p []models.Period) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reset == nil {
		f.reset = map[string][]models.Period{}
	}
	f.reset[inst] = p
	return nil
}

func (f *fakeEngine) RestoreLevels(inst string, l []models.AnchorLevel) error {
	if f.restored == nil {
		f.restored = map[string][]models.AnchorLevel{}
	}
	f.restored[inst] = l
	return nil
}

type nopMetrics struct {
	mu     sync.Mutex
	errors []string
	sent   int
}

func (m *nopMetrics) RecordAnalysis(string, float64, models.AnalysisResult) {}
func (m *nopMetrics) RecordSignal(string, *models.Signal) {
	m.mu.Lock()
	m.sent++
	m.mu.Unlock()
}
func (m *nopMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors = append(m.errors, kind)
	m.mu.Unlock()
}
func (m *nopMetrics) RecordLatency(string, float64) {}

type memStore struct {
	mu   sync.Mutex
	sigs []models.Signal
	fail error
}

func (s *memStore) Init(context.Context) error { return nil }
func (s *memStore) Store(_ context.Context, sig *models.Signal) error {
	if s.fail != nil {
		return s.fail
	}
	s.mu.Lock()
	s.sigs = append(s.sigs, *sig)
	s.mu.Unlock()
	return nil
}
func (s *memStore) Query(context.Context, models.SignalQuery) ([]models.Signal, error) {
	return s.sigs, nil
}
func (s *memStore) Health(context.Context) error { return nil }
func (s *memStore) Close() error                 { return nil }

type recordingHub struct{ got []*models.Signal }

func (h *recordingHub) Broadcast(s *models.Signal) { h.got = append(h.got, s) }

type memSnapshots struct{ saved map[string][]models.AnchorLevel }

func (m *memSnapshots) Save(_ context.Context, inst string, l []models.AnchorLevel) error {
	if m.saved == nil {
		m.saved = map[string][]models.AnchorLevel{}
	}
	m.saved[inst] = l
	return nil
}

func (m *memSnapshots) Load(_ context.Context, inst string) ([]models.AnchorLevel, bool, error) {
	l, ok := m.saved[inst]
	return l, ok, nil
}

func longCandidate(entry, stop float64) models.SignalCandidate {
	return models.SignalCandidate{
		Instrument: "EUR_USD",
		Pattern:    models.PatternReversal,
		Direction:  models.Long,
		EntryPrice: entry,
		StopLoss:   stop,
		AnchorRole: models.RoleLow,
		Timestamp:  t0,
	}
}

func newTestAnalyzer(eng *fakeEngine, store *memStore, hub *recordingHub, m *nopMetrics) *AnalyzeUseCase {
	ids := 0
	return NewAnalyzeUseCase(eng, risk.NewPlanner(4, 5), m, BackendSQLite,
		WithStore(store),
		WithBroadcaster(hub),
		WithClock(func() time.Time { return t0 }, func() string {
			ids++
			return fmt.Sprintf("sig-%d", ids)
		}),
	)
}

func TestAnalyzeEnrichesAndDelivers(t *testing.T) {
	eng := &fakeEngine{result: models.AnalysisResult{Candidates: []models.SignalCandidate{
		longCandidate(1.1000, 1.0950),
		longCandidate(1.1000, 1.0999), // 1 pip stop, dropped
	}}}
	store, hub, m := &memStore{}, &recordingHub{}, &nopMetrics{}
	uc := newTestAnalyzer(eng, store, hub, m)

	out, err := uc.Run(context.Background(), "EUR_USD", models.PriceSeries{})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Signals) != 1 || out.Rejected != 1 {
		t.Fatalf("signals=%d rejected=%d", len(out.Signals), out.Rejected)
	}
	sig := out.Signals[0]
	if sig.ID != "sig-1" || sig.TakeProfit != 1.12 || sig.RiskReward != 4 || !sig.CreatedAt.Equal(t0) {
		t.Errorf("unexpected signal %+v", sig)
	}
	if len(store.sigs) != 1 || len(hub.got) != 1 {
		t.Errorf("stored=%d broadcast=%d", len(store.sigs), len(hub.got))
	}
	if len(m.errors) != 1 || m.errors[0] != "stop_too_tight" {
		t.Errorf("errors recorded: %v", m.errors)
	}
}

func TestAnalyzeReportsUndelivered(t *testing.T) {
	eng := &fakeEngine{result: models.AnalysisResult{Candidates: []models.SignalCandidate{longCandidate(1.1, 1.09)}}}
	store := &memStore{fail: errors.New("disk full")}
	hub := &recordingHub{}
	uc := newTestAnalyzer(eng, store, hub, &nopMetrics{})

	out, err := uc.Run(context.Background(), "EUR_USD", models.PriceSeries{})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Undelivered) != 1 || len(hub.got) != 0 {
		t.Fatalf("undelivered=%d broadcast=%d", len(out.Undelivered), len(hub.got))
	}
}

func TestAnalyzeEngineError(t *testing.T) {
	eng := &fakeEngine{err: errors.New("non-monotonic")}
	uc := newTestAnalyzer(eng, &memStore{}, &recordingHub{}, &nopMetrics{})
	if _, err := uc.Run(context.Background(), "EUR_USD", models.PriceSeries{}); err == nil {
		t.Fatal("expected engine error")
	}
}

func TestExplainPlansWithoutDelivering(t *testing.T) {
	eng := &fakeEngine{result: models.AnalysisResult{Candidates: []models.SignalCandidate{
		longCandidate(1.1000, 1.0950),
		longCandidate(1.1000, 1.0999),
	}}}
	store, hub, m := &memStore{}, &recordingHub{}, &nopMetrics{}
	uc := newTestAnalyzer(eng, store, hub, m)

	out, err := uc.Explain(context.Background(), "EUR_USD", models.PriceSeries{})
	if err != nil {
		t.Fatal(err)
	}
	if eng.explained != 1 || eng.analyzed != 0 {
		t.Fatalf("explain must not use the live path: explained=%d analyzed=%d", eng.explained, eng.analyzed)
	}
	if len(out.Signals) != 1 || out.Rejected != 1 || out.Signals[0].TakeProfit != 1.12 {
		t.Fatalf("signals=%+v rejected=%d", out.Signals, out.Rejected)
	}
	if len(store.sigs) != 0 || len(hub.got) != 0 || m.sent != 0 || len(m.errors) != 0 {
		t.Errorf("explain delivered or recorded: stored=%d broadcast=%d sent=%d errors=%v",
			len(store.sigs), len(hub.got), m.sent, m.errors)
	}

	eng.err = errors.New("non-monotonic")
	if _, err := uc.Explain(context.Background(), "EUR_USD", models.PriceSeries{}); err == nil {
		t.Fatal("expected engine error")
	}
}

func TestDeliverUnknownBackend(t *testing.T) {
	uc := NewAnalyzeUseCase(&fakeEngine{}, risk.NewPlanner(4, 5), &nopMetrics{}, "s3")
	if err := uc.Deliver(context.Background(), &models.Signal{}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if _, err := uc.Signals(context.Background(), models.SignalQuery{}); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("got %v", err)
	}
}

func TestSeriesBufferAppend(t *testing.T) {
	b := NewSeriesBuffer(3)
	for i := 0; i < 5; i++ {
		if err := b.Append("X", models.Bar{Time: t0.Add(time.Duration(i) * time.Minute), Close: float64(i + 1)}); err != nil {
			t.Fatal(err)
		}
	}
	if b.Len("X") != 3 {
		t.Fatalf("len = %d", b.Len("X"))
	}
	// same time replaces the in-progress bar
	if err := b.Append("X", models.Bar{Time: t0.Add(4 * time.Minute), Close: 9}); err != nil {
		t.Fatal(err)
	}
	s := b.Snapshot("X")
	if s.Len() != 3 || s.Last().Close != 9 || s.Bars[0].Close != 3 {
		t.Fatalf("unexpected window %+v", s.Bars)
	}
	if err := b.Append("X", models.Bar{Time: t0, Close: 1}); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder, got %v", err)
	}

	// snapshot is a copy
	s.Bars[0].Close = 100
	if b.Snapshot("X").Bars[0].Close == 100 {
		t.Fatal("snapshot aliases the buffer")
	}
}

func TestSeriesBufferCandleStore(t *testing.T) {
	b := NewSeriesBuffer(100)
	var bars []models.Bar
	for i := 0; i < 10; i++ {
		bars = append(bars, models.Bar{Time: t0.Add(time.Duration(i) * time.Hour), Close: float64(i)})
	}
	b.Seed("X", bars)

	var store domrepo.CandleStore = b
	got, _ := store.GetCandles(context.Background(), "X", t0.Add(2*time.Hour), t0.Add(5*time.Hour), domrepo.TF1h)
	if len(got) != 3 || got[0].Close != 2 || got[2].Close != 4 || got[0].Symbol != "X" {
		t.Fatalf("range query returned %+v", got)
	}
	last, _ := store.GetLatestNCandles(context.Background(), "X", 4, domrepo.TF1h)
	if len(last) != 4 || last[3].Close != 9 {
		t.Fatalf("latest returned %+v", last)
	}
	if s := SeriesFromCandles("X", last); s.Len() != 4 || s.Last().Close != 9 {
		t.Fatalf("series %+v", s)
	}
}

func TestPeriodResetSplitsAndSnapshots(t *testing.T) {
	b := NewSeriesBuffer(1000)
	var bars []models.Bar
	for i := 0; i < 72; i++ {
		bars = append(bars, models.Bar{Time: t0.Add(time.Duration(i) * time.Hour), Close: 1 + float64(i)/100})
	}
	b.Seed("X", bars)

	eng := &fakeEngine{historical: []models.AnchorLevel{{Instrument: "X", High: 2, Low: 1}}}
	snaps := &memSnapshots{}
	uc := NewPeriodResetUseCase(b, eng, snaps, domrepo.TF1h, 24*time.Hour, time.UTC, 90, nil)
	uc.now = func() time.Time { return t0.Add(72 * time.Hour) }

	if err := uc.ResetAll(context.Background(), []string{"X", "EMPTY"}); err != nil {
		t.Fatal(err)
	}
	if got := len(eng.reset["X"]); got != 4 {
		t.Fatalf("expected 4 day periods, got %d", got)
	}
	if _, ok := eng.reset["EMPTY"]; ok {
		t.Fatal("instrument without candles must not be reset")
	}
	if len(snaps.saved["X"]) != 1 {
		t.Fatalf("snapshot not saved: %+v", snaps.saved)
	}

	ok, err := uc.Restore(context.Background(), "X")
	if err != nil || !ok || len(eng.restored["X"]) != 1 {
		t.Fatalf("restore ok=%v err=%v restored=%v", ok, err, eng.restored)
	}
	if ok, _ := uc.Restore(context.Background(), "Y"); ok {
		t.Fatal("no snapshot for Y")
	}
}

type sinkFunc func(ctx context.Context, inst string, bar models.Bar) error

func (f sinkFunc) Ingest(ctx context.Context, inst string, bar models.Bar) error { return f(ctx, inst, bar) }

func TestBarIngestHandler(t *testing.T) {
	var (
		gotInst string
		gotBar  models.Bar
	)
	h := NewBarIngestHandler("bars", sinkFunc(func(_ context.Context, inst string, bar models.Bar) error {
		gotInst, gotBar = inst, bar
		return nil
	}), &nopMetrics{})

	if err := h.Handle(context.Background(), []byte(`{"symbol":"EUR_USD","t":1714986000000,"o":1.07,"h":1.08,"l":1.06,"c":1.075}`)); err != nil {
		t.Fatal(err)
	}
	if gotInst != "EUR_USD" || gotBar.Close != 1.075 || gotBar.Time.Unix() != 1714986000 {
		t.Fatalf("got %s %+v", gotInst, gotBar)
	}

	ctx := pkgkafka.WithMessageKey(context.Background(), []byte("GBP_USD"))
	if err := h.Handle(ctx, []byte(`{"time":"2024-05-06T09:00:00Z","c":1.25}`)); err != nil {
		t.Fatal(err)
	}
	if gotInst != "GBP_USD" {
		t.Fatalf("instrument should fall back to the message key, got %q", gotInst)
	}

	bad := map[string]string{
		"json":          `{"c":`,
		"no time":       `{"instrument":"X","c":1}`,
		"no close":      `{"instrument":"X","t":1714986000}`,
		"high<low":      `{"instrument":"X","t":1714986000,"h":1,"l":2,"c":1.5}`,
		"no instrument": `{"t":1714986000,"c":1}`,
	}
	for name, msg := range bad {
		if err := h.Handle(context.Background(), []byte(msg)); !errors.Is(err, pkgkafka.ErrNonRetryable) {
			t.Errorf("%s: expected non-retryable, got %v", name, err)
		}
	}

	h = NewBarIngestHandler("bars", sinkFunc(func(context.Context, string, models.Bar) error {
		return ErrOutOfOrder
	}), &nopMetrics{})
	if err := h.Handle(context.Background(), []byte(`{"instrument":"X","t":1714986000,"c":1}`)); !errors.Is(err, pkgkafka.ErrNonRetryable) {
		t.Errorf("out of order bars are not retried, got %v", err)
	}
}
