package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"MarketStructure/internal/domain/models"
	domrepo "MarketStructure/internal/domain/repository"
	pkgkafka "MarketStructure/pkg/kafka"
	"MarketStructure/pkg/util"
)

// BarSink accepts one closed or in-progress bar.
type BarSink interface {
	Ingest(ctx context.Context, instrument string, bar models.Bar) error
}

// BarIngestHandler decodes bar messages from Kafka and forwards them to the
// pipeline.
type BarIngestHandler struct {
	topic   string
	sink    BarSink
	metrics domrepo.Metrics
}

func NewBarIngestHandler(topic string, sink BarSink, metrics domrepo.Metrics) *BarIngestHandler {
	return &BarIngestHandler{topic: topic, sink: sink, metrics: metrics}
}

func (h *BarIngestHandler) Topic() string { return h.topic }

// barMessage accepts {instrument|symbol, t|time, o, h, l, c}. t is unix
// seconds or milliseconds; time is RFC3339.
type barMessage struct {
	Instrument string      `json:"instrument"`
	Symbol     string      `json:"symbol"`
	T          json.Number `json:"t"`
	Time       string      `json:"time"`
	O          float64     `json:"o"`
	H          float64     `json:"h"`
	L          float64     `json:"l"`
	C          float64     `json:"c"`
}

func (h *BarIngestHandler) Handle(ctx context.Context, b []byte) error {
	instrument, bar, err := DecodeBar(b)
	if err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("%w: %v", pkgkafka.ErrNonRetryable, err)
	}
	if instrument == "" {
		if key, ok := pkgkafka.MessageKey(ctx); ok {
			instrument = key
		}
	}
	if instrument == "" {
		h.metrics.RecordError("consumer_instrument")
		return fmt.Errorf("%w: bar without instrument", pkgkafka.ErrNonRetryable)
	}
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(bar.Time).Seconds())

	if err := h.sink.Ingest(ctx, instrument, bar); err != nil {
		if errors.Is(err, ErrOutOfOrder) || errors.Is(err, ErrInvalidBar) {
			h.metrics.RecordError("consumer_bar")
			return fmt.Errorf("%w: %v", pkgkafka.ErrNonRetryable, err)
		}
		return err
	}
	return nil
}

// ErrInvalidBar is returned for bars without a usable time or close.
var ErrInvalidBar = errors.New("invalid bar")

// DecodeBar parses one bar message.
func DecodeBar(b []byte) (string, models.Bar, error) {
	var m barMessage
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return "", models.Bar{}, err
	}
	instrument := m.Instrument
	if instrument == "" {
		instrument = m.Symbol
	}

	raw := m.Time
	if raw == "" {
		raw = m.T.String()
	}
	ts, ok := util.ParseTime(raw)
	if !ok {
		return "", models.Bar{}, fmt.Errorf("%w: bad time %q", ErrInvalidBar, raw)
	}
	bar := models.Bar{Time: ts.UTC(), Open: m.O, High: m.H, Low: m.L, Close: m.C}
	if err := ValidateBar(bar); err != nil {
		return "", models.Bar{}, err
	}
	return instrument, bar, nil
}

// ValidateBar checks a bar before it enters a series.
func ValidateBar(bar models.Bar) error {
	switch {
	case bar.Time.IsZero():
		return fmt.Errorf("%w: missing time", ErrInvalidBar)
	case bar.Close <= 0:
		return fmt.Errorf("%w: close %v", ErrInvalidBar, bar.Close)
	case bar.High != 0 && bar.Low != 0 && bar.High < bar.Low:
		return fmt.Errorf("%w: high %v < low %v", ErrInvalidBar, bar.High, bar.Low)
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*BarIngestHandler)(nil)
