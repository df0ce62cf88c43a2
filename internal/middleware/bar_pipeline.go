package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"MarketStructure/internal/domain/models"
	domrepo "MarketStructure/internal/domain/repository"
	"MarketStructure/internal/service/ratelimit"
	"MarketStructure/internal/usecase"
	applogger "MarketStructure/pkg/logger"
)

// Analyzer is what the pipeline needs from the analyze use case.
type Analyzer interface {
	Run(ctx context.Context, instrument string, series models.PriceSeries) (*usecase.Outcome, error)
	Deliver(ctx context.Context, sig *models.Signal) error
}

// BarPipeline sits between the bar feed and the engine. It validates bars,
// keeps the rolling series, throttles analysis per instrument and buffers
// signals whose delivery failed.
type BarPipeline struct {
	analyzer Analyzer
	buffer   *usecase.SeriesBuffer
	limiter  *ratelimit.Limiter
	metrics  domrepo.Metrics
	l        *applogger.Logger

	minBars int
	allowed map[string]struct{}
	bufSize int
	bufCh   chan models.Signal

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	backoffMin time.Duration
	backoffMax time.Duration
}

type PipelineOption func(*BarPipeline)

// WithBufferSize sets how many undelivered signals are kept for retry.
func WithBufferSize(n int) PipelineOption {
	return func(p *BarPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithLimiter throttles analysis per instrument. Bars are still buffered
// when analysis is throttled.
func WithLimiter(l *ratelimit.Limiter) PipelineOption {
	return func(p *BarPipeline) { p.limiter = l }
}

// WithInstruments restricts ingestion to the given instruments.
func WithInstruments(instruments []string) PipelineOption {
	return func(p *BarPipeline) {
		if len(instruments) == 0 {
			return
		}
		p.allowed = make(map[string]struct{}, len(instruments))
		for _, i := range instruments {
			p.allowed[i] = struct{}{}
		}
	}
}

// WithMinBars skips analysis until the series holds n bars.
func WithMinBars(n int) PipelineOption {
	return func(p *BarPipeline) { p.minBars = n }
}

// WithRetryBackoff bounds the redelivery backoff.
func WithRetryBackoff(min, max time.Duration) PipelineOption {
	return func(p *BarPipeline) {
		if min > 0 && max >= min {
			p.backoffMin, p.backoffMax = min, max
		}
	}
}

func WithPipelineLogger(l *applogger.Logger) PipelineOption {
	return func(p *BarPipeline) { p.l = l }
}

// NewBarPipeline creates a new pipeline.
func NewBarPipeline(analyzer Analyzer, buffer *usecase.SeriesBuffer, metrics domrepo.Metrics, opts ...PipelineOption) *BarPipeline {
	p := &BarPipeline{
		analyzer:   analyzer,
		buffer:     buffer,
		metrics:    metrics,
		bufSize:    1000,
		stopCh:     make(chan struct{}),
		backoffMin: 50 * time.Millisecond,
		backoffMax: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan models.Signal, p.bufSize)
	return p
}

// Start launches redelivery of buffered signals.
func (p *BarPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.wg.Add(1)
	go p.redeliver(ctx)
}

func (p *BarPipeline) redeliver(ctx context.Context) {
	defer p.wg.Done()
	backoff := p.backoffMin
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case sig := <-p.bufCh:
			if err := p.analyzer.Deliver(ctx, &sig); err != nil {
				p.metrics.RecordError("pipeline_redeliver")
				if backoff < p.backoffMax {
					backoff *= 2
					if backoff > p.backoffMax {
						backoff = p.backoffMax
					}
				}
				select {
				case <-time.After(backoff):
				case <-p.stopCh:
					return
				case <-ctx.Done():
					return
				}
				p.enqueue(sig)
				continue
			}
			backoff = p.backoffMin
		}
	}
}

// Stop stops redelivery and waits for the loop to exit. Signals still
// buffered are reported and dropped.
func (p *BarPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	p.wg.Wait()

	if n := len(p.bufCh); n > 0 && p.l != nil {
		p.l.Warn("pipeline stopped with undelivered signals", applogger.Int("count", n))
	}
}

// Pending returns the number of signals waiting for redelivery.
func (p *BarPipeline) Pending() int { return len(p.bufCh) }

// Ingest validates and buffers one bar, then analyzes the updated series.
func (p *BarPipeline) Ingest(ctx context.Context, instrument string, bar models.Bar) error {
	start := time.Now()
	if p.allowed != nil {
		if _, ok := p.allowed[instrument]; !ok {
			p.metrics.RecordError("pipeline_unknown_instrument")
			return nil
		}
	}
	if err := usecase.ValidateBar(bar); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if err := p.buffer.Append(instrument, bar); err != nil {
		p.metrics.RecordError("pipeline_append")
		return err
	}
	if p.buffer.Len(instrument) < p.minBars {
		return nil
	}
	if p.limiter != nil && !p.limiter.Allow(instrument) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	out, err := p.analyzer.Run(ctx, instrument, p.buffer.Snapshot(instrument))
	if err != nil {
		p.metrics.RecordError("pipeline_analyze")
		return fmt.Errorf("pipeline analyze: %w", err)
	}
	for _, sig := range out.Undelivered {
		p.enqueue(sig)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func (p *BarPipeline) enqueue(sig models.Signal) {
	select {
	case p.bufCh <- sig:
		p.metrics.RecordLatency("pipeline_buffer_depth", float64(len(p.bufCh)))
	default:
		p.metrics.RecordError("pipeline_buffer_drop")
		if p.l != nil {
			p.l.Error("undelivered signal dropped",
				applogger.String("id", sig.ID),
				applogger.String("instrument", sig.Candidate.Instrument),
			)
		}
	}
}

var _ usecase.BarSink = (*BarPipeline)(nil)
