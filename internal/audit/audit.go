// Package audit keeps an in-memory trail of engine operations.
package audit

import (
	"sync"
	"time"
)

// EventType represents the type of audit event.
type EventType string

const (
	// EventTypeDecrypt represents a decryption search.
	EventTypeDecrypt EventType = "decrypt"
	// EventTypeAggregate represents an aggregation call.
	EventTypeAggregate EventType = "aggregate"
	// EventTypeSession represents session lifecycle changes.
	EventTypeSession EventType = "session"
	// EventTypeExport represents a static export.
	EventTypeExport EventType = "export"
)

// Event is a single audit log entry.
type Event struct {
	Timestamp time.Time     `json:"timestamp"`
	EventType EventType     `json:"event_type"`
	Operation string        `json:"operation"`
	SessionID string        `json:"session_id,omitempty"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration_ms"`
}

// Logger is the interface for audit logging.
type Logger interface {
	// LogDecrypt records the outcome of one decryption search.
	LogDecrypt(sessionID string, success bool, err error, duration time.Duration)

	// LogAggregate records the outcome of one aggregation call.
	LogAggregate(sessionID string, success bool, err error, duration time.Duration)

	// LogSession records a session lifecycle change.
	LogSession(sessionID, operation string)

	// LogExport records a static export of a report.
	LogExport(sessionID string, success bool, err error)

	// Events returns a copy of the retained events.
	Events() []*Event
}

// auditLogger implements Logger with a bounded in-memory ring.
type auditLogger struct {
	mu        sync.Mutex
	events    []*Event
	maxEvents int
}

// NewLogger creates an audit logger retaining at most maxEvents entries.
func NewLogger(maxEvents int) Logger {
	if maxEvents <= 0 {
		maxEvents = 1000
	}
	return &auditLogger{
		events:    make([]*Event, 0, maxEvents),
		maxEvents: maxEvents,
	}
}

func (l *auditLogger) log(event *Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, event)
	if len(l.events) > l.maxEvents {
		l.events = l.events[len(l.events)-l.maxEvents:]
	}
}

// LogDecrypt records the outcome of one decryption search.
func (l *auditLogger) LogDecrypt(sessionID string, success bool, err error, duration time.Duration) {
	event := &Event{
		Timestamp: time.Now(),
		EventType: EventTypeDecrypt,
		Operation: "decrypt",
		SessionID: sessionID,
		Success:   success,
		Duration:  duration,
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.log(event)
}

// LogAggregate records the outcome of one aggregation call.
func (l *auditLogger) LogAggregate(sessionID string, success bool, err error, duration time.Duration) {
	event := &Event{
		Timestamp: time.Now(),
		EventType: EventTypeAggregate,
		Operation: "aggregate",
		SessionID: sessionID,
		Success:   success,
		Duration:  duration,
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.log(event)
}

// LogSession records a session lifecycle change ("open", "close", "expire").
func (l *auditLogger) LogSession(sessionID, operation string) {
	l.log(&Event{
		Timestamp: time.Now(),
		EventType: EventTypeSession,
		Operation: operation,
		SessionID: sessionID,
		Success:   true,
	})
}

// LogExport records a static export of a report.
func (l *auditLogger) LogExport(sessionID string, success bool, err error) {
	event := &Event{
		Timestamp: time.Now(),
		EventType: EventTypeExport,
		Operation: "export",
		SessionID: sessionID,
		Success:   success,
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.log(event)
}

// Events returns a copy to prevent external modification.
func (l *auditLogger) Events() []*Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := make([]*Event, len(l.events))
	copy(events, l.events)
	return events
}
