// Package events is the vault's append-only log: one entry per state-changing
// operation, kept in memory for the monitoring API and optionally mirrored to
// a JSONL file.
package events

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Type enumerates every state-changing operation.
type Type string

const (
	TypeDeposit                Type = "deposit"
	TypeWithdrawalRequested    Type = "withdrawal_requested"
	TypeWithdrawalExecuted     Type = "withdrawal_executed"
	TypeFeeUpdated             Type = "fee_updated"
	TypeFeeWithdrawn           Type = "fee_withdrawn"
	TypeCooldownUpdated        Type = "cooldown_updated"
	TypePriceFeedUpdated       Type = "price_feed_updated"
	TypeStalenessWindowUpdated Type = "staleness_window_updated"
	TypeProfitWithdrawn        Type = "profit_withdrawn"
	TypePaused                 Type = "paused"
	TypeUnpaused               Type = "unpaused"
)

// Event is one log entry. Fields holds the operation-specific payload
// (addresses and amounts as strings so the log round-trips through JSON).
type Event struct {
	ID        string            `json:"id"`
	Type      Type              `json:"type"`
	Fields    map[string]string `json:"fields"`
	Timestamp time.Time         `json:"timestamp"`
}

// Log keeps the most recent entries in a bounded ring and mirrors every
// entry to the sink file when one is configured.
type Log struct {
	mu      sync.Mutex
	entries []Event
	max     int
	sink    *os.File
}

const defaultMax = 4096

func NewLog() *Log {
	return &Log{max: defaultMax}
}

// NewLogWithSink mirrors entries to a JSONL file, one object per line.
func NewLogWithSink(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "events: open sink")
	}
	return &Log{max: defaultMax, sink: f}, nil
}

// Emit appends an entry. The log never fails the operation that emitted it:
// a broken sink is logged and skipped.
func (l *Log) Emit(typ Type, fields map[string]string) Event {
	ev := Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Fields:    fields,
		Timestamp: time.Now().UTC(),
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, ev)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
	if l.sink != nil {
		if raw, err := json.Marshal(ev); err == nil {
			if _, err := l.sink.Write(append(raw, '\n')); err != nil {
				log.WithError(err).Warn("events: sink write failed")
			}
		}
	}
	return ev
}

// Recent returns up to n latest entries, newest last.
func (l *Log) Recent(n int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]Event, n)
	copy(out, l.entries[len(l.entries)-n:])
	return out
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sink == nil {
		return nil
	}
	err := l.sink.Close()
	l.sink = nil
	return err
}
