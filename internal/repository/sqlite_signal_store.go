package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"MarketStructure/internal/domain/models"
	domrepo "MarketStructure/internal/domain/repository"

	_ "modernc.org/sqlite"
)

// SQLiteSignalStore persists signals to a local SQLite file.
type SQLiteSignalStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteSignalStore opens (or creates) the database at path.
func NewSQLiteSignalStore(path string) (*SQLiteSignalStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; also keeps a :memory: database on a single connection
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	}
	return &SQLiteSignalStore{db: db}, nil
}

func (s *SQLiteSignalStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS signals (
			id          TEXT PRIMARY KEY,
			instrument  TEXT NOT NULL,
			pattern     TEXT NOT NULL,
			direction   TEXT NOT NULL,
			entry       REAL,
			stop        REAL,
			take_profit REAL,
			bar_time    INTEGER NOT NULL,
			created_at  INTEGER NOT NULL,
			payload     TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_instrument_ts ON signals(instrument, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLiteSignalStore) Store(ctx context.Context, sig *models.Signal) error {
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := sig.Candidate
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO signals
		(id, instrument, pattern, direction, entry, stop, take_profit, bar_time, created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.ID, c.Instrument, string(c.Pattern), string(c.Direction),
		c.EntryPrice, c.StopLoss, sig.TakeProfit,
		c.Timestamp.UnixMilli(), sig.CreatedAt.UnixMilli(), string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

func (s *SQLiteSignalStore) Query(ctx context.Context, q models.SignalQuery) ([]models.Signal, error) {
	where, args := signalFilter(q, func(t time.Time) interface{} { return t.UnixMilli() })
	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM signals"+where+" ORDER BY created_at DESC, id LIMIT ?",
		append(args, queryLimit(q))...)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()
	return scanPayloads(rows)
}

func (s *SQLiteSignalStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteSignalStore) Close() error {
	return s.db.Close()
}

var _ domrepo.SignalStore = (*SQLiteSignalStore)(nil)
