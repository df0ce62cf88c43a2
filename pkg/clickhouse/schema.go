package clickhouse

import "fmt"

// CandleTable is the table bars are read from, one row per (symbol, tf, bucket).
const CandleTable = "candles"

// SignalTable holds emitted structure signals.
const SignalTable = "structure_signals"

// Schema returns the DDL the engine relies on, qualified with db.
func Schema(db string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    bucket DateTime64(3, 'UTC'),
    symbol LowCardinality(String),
    tf LowCardinality(String),
    open Float64,
    high Float64,
    low Float64,
    close Float64,
    vol Float64
) ENGINE = ReplacingMergeTree
PARTITION BY toYYYYMM(bucket)
ORDER BY (symbol, tf, bucket)`, db, CandleTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    id String,
    instrument LowCardinality(String),
    pattern LowCardinality(String),
    direction LowCardinality(String),
    anchor_role LowCardinality(String),
    flipped UInt8,
    entry Float64,
    stop Float64,
    take_profit Float64,
    reference_price Float64,
    swing_price Float64,
    distance_vol Nullable(Float64),
    risk_reward Float64,
    bar_time DateTime64(3, 'UTC'),
    created_at DateTime64(3, 'UTC'),
    payload String
) ENGINE = ReplacingMergeTree
PARTITION BY toYYYYMM(created_at)
ORDER BY (instrument, created_at, id)`, db, SignalTable),
	}
}
