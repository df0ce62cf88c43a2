package models

import "time"

// Signal is an emitted candidate enriched for downstream consumers.
type Signal struct {
	ID           string          `json:"id"`
	Candidate    SignalCandidate `json:"candidate"`
	TakeProfit   float64         `json:"take_profit"`
	RiskReward   float64         `json:"risk_reward"`
	StopDistance float64         `json:"stop_distance"`
	CreatedAt    time.Time       `json:"created_at"`
}

// SignalQuery filters stored signals. Zero fields are ignored.
type SignalQuery struct {
	Instrument string
	From       time.Time
	To         time.Time
	Limit      int
}
