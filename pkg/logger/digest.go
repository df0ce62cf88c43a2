package logger

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// Publisher ships a batch of digests to a topic.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type DigestConfig struct {
	FlushInterval  time.Duration // e.g. 30s
	CountThreshold int           // unique entries before an early flush
	Topic          string
	Publisher      Publisher
}

// DigestEntry is one distinct error log with its repeat count.
type DigestEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// DigestCollector folds repeated error logs into counted entries and
// publishes them periodically, so a noisy instrument does not flood the
// error topic.
type DigestCollector struct {
	config  *DigestConfig
	entries map[string]*DigestEntry
	mu      sync.Mutex
	now     func() time.Time
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewDigestCollector(config *DigestConfig) *DigestCollector {
	ctx, cancel := context.WithCancel(context.Background())
	d := &DigestCollector{
		config:  config,
		entries: make(map[string]*DigestEntry),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}
	if config.FlushInterval > 0 {
		d.wg.Add(1)
		go d.loop()
	}
	return d
}

func (d *DigestCollector) Add(level, message string, fields map[string]interface{}, caller string) {
	now := d.now()
	key := digestKey(level, message, fields, caller)

	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.entries[key]; ok {
		e.Count++
		e.LastSeen = now
	} else {
		d.entries[key] = &DigestEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}

	if d.config.CountThreshold > 0 && len(d.entries) >= d.config.CountThreshold {
		d.flushLocked()
	}
}

// Pending returns the number of distinct entries awaiting a flush.
func (d *DigestCollector) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

func digestKey(level, message string, fields map[string]interface{}, caller string) string {
	data, _ := json.Marshal(struct {
		Level   string                 `json:"level"`
		Message string                 `json:"message"`
		Fields  map[string]interface{} `json:"fields"`
		Caller  string                 `json:"caller"`
	}{level, message, fields, caller})
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

func (d *DigestCollector) loop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.mu.Lock()
			d.flushLocked()
			d.mu.Unlock()
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *DigestCollector) flushLocked() {
	if len(d.entries) == 0 {
		return
	}
	batch := make([]DigestEntry, 0, len(d.entries))
	for _, e := range d.entries {
		batch = append(batch, *e)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].FirstSeen.Before(batch[j].FirstSeen) })
	d.entries = make(map[string]*DigestEntry)

	if d.config.Publisher == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := d.config.Publisher.PublishMessage(ctx, d.config.Topic, batch); err != nil {
			fmt.Fprintf(os.Stderr, "failed to publish log digest: %v\n", err)
		}
	}()
}

// Close stops the flush loop and publishes what is left.
func (d *DigestCollector) Close() {
	d.cancel()
	d.wg.Wait()
	d.mu.Lock()
	d.flushLocked()
	d.mu.Unlock()
}
