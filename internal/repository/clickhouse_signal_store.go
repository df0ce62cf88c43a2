package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"MarketStructure/internal/domain/models"
	domrepo "MarketStructure/internal/domain/repository"
	pkgch "MarketStructure/pkg/clickhouse"
)

// CHSignalStore implements SignalStore for ClickHouse.
type CHSignalStore struct {
	client *pkgch.Client
	db     *sql.DB
	table  string
}

func NewCHSignalStore(ch *pkgch.Client) *CHSignalStore {
	return &CHSignalStore{client: ch, db: ch.DB(), table: ch.Database() + "." + pkgch.SignalTable}
}

func (s *CHSignalStore) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, pkgch.Schema(s.client.Database()))
}

func (s *CHSignalStore) Store(ctx context.Context, sig *models.Signal) error {
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	c := sig.Candidate
	var flipped uint8
	if c.Flipped {
		flipped = 1
	}
	q := fmt.Sprintf(`INSERT INTO %s (id, instrument, pattern, direction, anchor_role, flipped, entry, stop,
        take_profit, reference_price, swing_price, distance_vol, risk_reward, bar_time, created_at, payload)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)
	_, err = s.db.ExecContext(ctx, q,
		sig.ID,
		c.Instrument,
		string(c.Pattern),
		string(c.Direction),
		string(c.AnchorRole),
		flipped,
		c.EntryPrice,
		c.StopLoss,
		sig.TakeProfit,
		c.ReferencePrice,
		c.SwingBreakLevel,
		c.DistanceInVolatilityUnits,
		sig.RiskReward,
		c.Timestamp.UTC(),
		sig.CreatedAt.UTC(),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

func (s *CHSignalStore) Query(ctx context.Context, q models.SignalQuery) ([]models.Signal, error) {
	where, args := signalFilter(q, func(t time.Time) interface{} { return t.UTC() })
	stmt := fmt.Sprintf("SELECT payload FROM %s FINAL%s ORDER BY created_at DESC LIMIT ?", s.table, where)
	rows, err := s.db.QueryContext(ctx, stmt, append(args, queryLimit(q))...)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()
	return scanPayloads(rows)
}

func (s *CHSignalStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

// Close is a no-op; the client is owned by the caller.
func (s *CHSignalStore) Close() error { return nil }

// signalFilter builds a WHERE clause shared by the SQL stores. ts converts
// time bounds to the column representation.
func signalFilter(q models.SignalQuery, ts func(time.Time) interface{}) (string, []interface{}) {
	var conds []string
	var args []interface{}
	if q.Instrument != "" {
		conds = append(conds, "instrument = ?")
		args = append(args, q.Instrument)
	}
	if !q.From.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, ts(q.From))
	}
	if !q.To.IsZero() {
		conds = append(conds, "created_at <= ?")
		args = append(args, ts(q.To))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func queryLimit(q models.SignalQuery) int {
	if q.Limit <= 0 {
		return 50
	}
	return q.Limit
}

func scanPayloads(rows *sql.Rows) ([]models.Signal, error) {
	out := make([]models.Signal, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		var sig models.Signal
		if err := json.Unmarshal([]byte(raw), &sig); err != nil {
			return nil, fmt.Errorf("decode signal: %w", err)
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

var _ domrepo.SignalStore = (*CHSignalStore)(nil)
