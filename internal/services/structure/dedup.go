package structure

import "time"

// Deduplicator gates whole batches per instrument. It only holds the
// cooldown; the last emission time lives in the instrument's state.
type Deduplicator struct {
	Cooldown time.Duration
}

// Allow reports whether a batch may be emitted at now given the time of the
// last non-empty emission. A zero last means nothing was emitted yet.
func (d Deduplicator) Allow(last, now time.Time) bool {
	if last.IsZero() {
		return true
	}
	return now.Sub(last) >= d.Cooldown
}
