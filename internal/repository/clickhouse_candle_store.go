package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"MarketStructure/internal/domain/models"
	domrepo "MarketStructure/internal/domain/repository"
	pkgch "MarketStructure/pkg/clickhouse"
	applogger "MarketStructure/pkg/logger"
)

// CHCandleStore implements CandleStore backed by ClickHouse.
type CHCandleStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHCandleStore(ch *pkgch.Client) *CHCandleStore {
	return &CHCandleStore{db: ch.DB(), table: ch.Database() + "." + pkgch.CandleTable}
}

// SetLogger injects a structured logger.
func (s *CHCandleStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHCandleStore) GetCandles(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Candle, error) {
	if !domrepo.IsValidTimeframe(tf) {
		return nil, fmt.Errorf("unsupported timeframe: %s", tf)
	}
	q := fmt.Sprintf(`
        SELECT bucket, symbol, open, high, low, close, vol
        FROM %s FINAL
        WHERE symbol = ? AND tf = ? AND bucket >= ? AND bucket < ?
        ORDER BY bucket ASC
    `, s.table)
	out, err := s.query(ctx, "get_candles", q, symbol, string(tf), from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}
	return out, nil
}

// GetLatestNCandles returns up to n most recent candles in ascending order.
func (s *CHCandleStore) GetLatestNCandles(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	if !domrepo.IsValidTimeframe(tf) {
		return nil, fmt.Errorf("unsupported timeframe: %s", tf)
	}
	q := fmt.Sprintf(`
        SELECT bucket, symbol, open, high, low, close, vol
        FROM %s FINAL
        WHERE symbol = ? AND tf = ?
        ORDER BY bucket DESC
        LIMIT ?
    `, s.table)
	out, err := s.query(ctx, "latest_candles", q, symbol, string(tf), n)
	if err != nil {
		return nil, fmt.Errorf("get latest candles: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *CHCandleStore) query(ctx context.Context, op, q string, args ...interface{}) ([]models.Candle, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.logErr(op, "query", err)
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Candle, 0, 512)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			s.logErr(op, "scan", err)
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		s.logErr(op, "rows", err)
		return nil, err
	}
	if s.l != nil {
		s.l.Debug("clickhouse "+op+" ok",
			applogger.String("table", s.table),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func (s *CHCandleStore) logErr(op, stage string, err error) {
	if s.l != nil {
		s.l.Error("clickhouse "+op+" "+stage+" error",
			applogger.String("table", s.table),
			applogger.Error(err),
		)
	}
}

var _ domrepo.CandleStore = (*CHCandleStore)(nil)
