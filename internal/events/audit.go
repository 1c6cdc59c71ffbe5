package events

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// LogEntry is one line of the append-only audit stream.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType string         `json:"event_type"`
	RunID     string         `json:"run_id,omitempty"`
	TaskID    string         `json:"task_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// AuditLogger writes events as JSON lines. Writes are serialized; a write
// failure is returned to the caller but subscribers via Subscriber() ignore
// it, keeping the bus contract that observability never fails a transition.
type AuditLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func NewAuditLogger(w io.Writer) *AuditLogger {
	return &AuditLogger{w: w}
}

func (l *AuditLogger) Log(entry LogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

// Subscriber adapts the logger to the bus subscriber contract.
func (l *AuditLogger) Subscriber() Subscriber {
	return func(e Event) {
		_ = l.Log(LogEntry{
			Timestamp: e.Timestamp,
			EventType: string(e.Type),
			RunID:     e.RunID,
			TaskID:    e.TaskID,
			Details:   e.Data,
		})
	}
}
