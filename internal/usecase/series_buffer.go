package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"MarketStructure/internal/domain/models"
	domrepo "MarketStructure/internal/domain/repository"
)

// ErrOutOfOrder is returned when a bar is older than the last buffered bar.
var ErrOutOfOrder = errors.New("bar out of order")

// SeriesBuffer keeps a bounded window of recent bars per instrument. A bar
// with the same time as the last one replaces it, so in-progress bars can be
// updated.
//
// It also serves as an in-memory CandleStore when no database is configured.
type SeriesBuffer struct {
	mu       sync.RWMutex
	capacity int
	bars     map[string][]models.Bar
}

func NewSeriesBuffer(capacity int) *SeriesBuffer {
	if capacity <= 0 {
		capacity = 1000
	}
	return &SeriesBuffer{capacity: capacity, bars: make(map[string][]models.Bar)}
}

// Append adds bar to the instrument's window.
func (b *SeriesBuffer) Append(instrument string, bar models.Bar) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := b.bars[instrument]
	if n := len(cur); n > 0 {
		last := cur[n-1].Time
		switch {
		case bar.Time.Equal(last):
			cur[n-1] = bar
			return nil
		case bar.Time.Before(last):
			return fmt.Errorf("%w: %s %s <= %s", ErrOutOfOrder, instrument,
				bar.Time.Format(time.RFC3339), last.Format(time.RFC3339))
		}
	}
	cur = append(cur, bar)
	if len(cur) > b.capacity {
		// copy so the backing array does not grow without bound
		cur = append([]models.Bar(nil), cur[len(cur)-b.capacity:]...)
	}
	b.bars[instrument] = cur
	return nil
}

// Seed replaces the instrument's window with bars, keeping the newest.
func (b *SeriesBuffer) Seed(instrument string, bars []models.Bar) {
	if len(bars) > b.capacity {
		bars = bars[len(bars)-b.capacity:]
	}
	b.mu.Lock()
	b.bars[instrument] = append([]models.Bar(nil), bars...)
	b.mu.Unlock()
}

// Snapshot returns a copy of the instrument's window.
func (b *SeriesBuffer) Snapshot(instrument string) models.PriceSeries {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return models.PriceSeries{
		Instrument: instrument,
		Bars:       append([]models.Bar(nil), b.bars[instrument]...),
	}
}

// Len returns the number of buffered bars for instrument.
func (b *SeriesBuffer) Len(instrument string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.bars[instrument])
}

// GetCandles returns buffered bars in [from, to). The timeframe is ignored;
// the buffer holds whatever resolution was ingested.
func (b *SeriesBuffer) GetCandles(_ context.Context, symbol string, from, to time.Time, _ domrepo.Timeframe) ([]models.Candle, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bars := b.bars[symbol]
	lo := sort.Search(len(bars), func(i int) bool { return !bars[i].Time.Before(from) })
	hi := sort.Search(len(bars), func(i int) bool { return !bars[i].Time.Before(to) })
	return toCandles(symbol, bars[lo:hi]), nil
}

// GetLatestNCandles returns up to n newest buffered bars in ascending order.
func (b *SeriesBuffer) GetLatestNCandles(_ context.Context, symbol string, n int, _ domrepo.Timeframe) ([]models.Candle, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bars := b.bars[symbol]
	if n < len(bars) {
		bars = bars[len(bars)-n:]
	}
	return toCandles(symbol, bars), nil
}

func toCandles(symbol string, bars []models.Bar) []models.Candle {
	out := make([]models.Candle, len(bars))
	for i, bar := range bars {
		out[i] = models.Candle{Bucket: bar.Time, Symbol: symbol, Open: bar.Open, High: bar.High, Low: bar.Low, Close: bar.Close}
	}
	return out
}

// SeriesFromCandles converts stored candles to an engine series.
func SeriesFromCandles(instrument string, candles []models.Candle) models.PriceSeries {
	bars := make([]models.Bar, len(candles))
	for i, c := range candles {
		bars[i] = c.ToBar()
	}
	return models.PriceSeries{Instrument: instrument, Bars: bars}
}

var _ domrepo.CandleStore = (*SeriesBuffer)(nil)
