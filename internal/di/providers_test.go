package di

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"MarketStructure/internal/domain/models"
	"MarketStructure/internal/services/structure"
	"MarketStructure/internal/usecase"
	"MarketStructure/pkg/config"
	applogger "MarketStructure/pkg/logger"
)

func testConfig(t *testing.T, yml string) *config.Config {
	t.Helper()
	c, err := config.Parse([]byte("instruments: [EUR_USD]\n" + yml))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestEngineConfigDefaultsMatchEngine(t *testing.T) {
	if got := EngineConfig(testConfig(t, "")); got != structure.DefaultConfig() {
		t.Fatalf("yaml defaults drifted from the engine defaults:\n%+v\n%+v", got, structure.DefaultConfig())
	}
}

func TestOptionalProvidersDisabled(t *testing.T) {
	cfg := testConfig(t, "")
	if ch, err := ProvideClickHouseClient(cfg); ch != nil || err != nil {
		t.Fatalf("clickhouse should be off: %v %v", ch, err)
	}
	if p, err := ProvideKafkaProducer(cfg); p != nil || err != nil {
		t.Fatalf("producer should be off: %v %v", p, err)
	}
	if c, err := ProvideKafkaConsumer(cfg, applogger.NewNop()); c != nil || err != nil {
		t.Fatalf("consumer should be off: %v %v", c, err)
	}
	if pub := ProvideSignalPublisher(cfg, nil); pub != nil {
		t.Fatal("publisher requires the kafka backend")
	}
	buf := ProvideSeriesBuffer(cfg)
	if store := ProvideCandleStore(nil, buf, applogger.NewNop()); store != buf {
		t.Fatal("candle store should fall back to the series buffer")
	}
}

func TestSQLiteBackendEndToEnd(t *testing.T) {
	cfg := testConfig(t, "sqlite:\n  path: "+filepath.Join(t.TempDir(), "signals.db")+"\n")
	l := applogger.NewNop()

	store, err := ProvideSignalStore(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	eng, err := ProvideEngine(cfg, l)
	if err != nil {
		t.Fatal(err)
	}
	uc := ProvideAnalyzeUseCase(cfg, eng, ProvidePlanner(cfg), &nopMetrics{}, nil, store, ProvideHub(l), l)

	sig := &models.Signal{ID: "x", Candidate: models.SignalCandidate{Instrument: "EUR_USD", Pattern: models.PatternReversal, Direction: models.Long}}
	if err := uc.Deliver(context.Background(), sig); err != nil {
		t.Fatal(err)
	}
	got, err := uc.Signals(context.Background(), models.SignalQuery{Instrument: "EUR_USD"})
	if err != nil || len(got) != 1 || got[0].ID != "x" {
		t.Fatalf("got %+v err=%v", got, err)
	}

	kafkaCfg := *cfg
	kafkaCfg.Backend.Type = usecase.BackendKafka
	if s, err := ProvideSignalStore(&kafkaCfg, nil); s != nil || err != nil {
		t.Fatalf("kafka backend keeps no history: %v %v", s, err)
	}
	uc = ProvideAnalyzeUseCase(&kafkaCfg, eng, ProvidePlanner(cfg), &nopMetrics{}, nil, nil, ProvideHub(l), l)
	if _, err := uc.Signals(context.Background(), models.SignalQuery{}); !errors.Is(err, usecase.ErrNoHistory) {
		t.Fatalf("got %v", err)
	}
}

type nopMetrics struct{}

func (nopMetrics) RecordAnalysis(string, float64, models.AnalysisResult) {}
func (nopMetrics) RecordSignal(string, *models.Signal)                   {}
func (nopMetrics) RecordError(string)                                    {}
func (nopMetrics) RecordLatency(string, float64)                         {}
