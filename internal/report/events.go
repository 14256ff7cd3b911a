package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventRun        EventType = "run"
	EventSubject    EventType = "subject"
	EventAnomaly    EventType = "anomaly"
	EventDiagnostic EventType = "diagnostic"
	EventConfig     EventType = "config"
	EventError      EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// levelPriority maps event levels to numeric priorities for comparison
var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// Event represents a single event of a QC run
type Event struct {
	Timestamp time.Time         `json:"ts"`
	RunID     string            `json:"run_id"`
	Level     EventLevel        `json:"level"`
	Event     EventType         `json:"event"`
	Subject   string            `json:"subject,omitempty"`
	Scan      string            `json:"scan,omitempty"`
	Tag       string            `json:"tag,omitempty"`
	Kind      string            `json:"kind,omitempty"`
	Action    string            `json:"action,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Images    int               `json:"images,omitempty"`
	Duration  int64             `json:"duration_ms,omitempty"` // in milliseconds
	Error     string            `json:"error,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to a JSONL file
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	runID    string
	minLevel EventLevel
}

// NewEventLogger creates a new event logger with a minimum log level.
// Every event it writes carries a fresh run id.
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	runID := uuid.New().String()
	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("events-%s-%s.jsonl", timestamp, runID[:8])
	path := filepath.Join(outputDir, filename)

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		runID:    runID,
		minLevel: minLevel,
	}, nil
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil // Silently ignore if logger not initialized
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.RunID = l.runID

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return nil
}

// LogRun records the start or end of a run
func (l *EventLogger) LogRun(action string, extra map[string]string) error {
	return l.Log(&Event{
		Level:  LevelInfo,
		Event:  EventRun,
		Action: action,
		Extra:  extra,
	})
}

// LogSubject records the state decision taken for a subject
// (generate, relink or skip)
func (l *EventLogger) LogSubject(subject, state, action string) error {
	level := LevelInfo
	if action == "skip" {
		level = LevelDebug
	}
	return l.Log(&Event{
		Level:   level,
		Event:   EventSubject,
		Subject: subject,
		Action:  action,
		Reason:  state,
	})
}

// LogAnomaly records a reconciliation row that is not a plain match
func (l *EventLogger) LogAnomaly(subject, tag, file, note string) error {
	return l.Log(&Event{
		Level:   LevelWarning,
		Event:   EventAnomaly,
		Subject: subject,
		Scan:    file,
		Tag:     tag,
		Reason:  note,
	})
}

// LogDiagnostic records the outcome of one dispatched routine
func (l *EventLogger) LogDiagnostic(subject, scan, tag, kind string, images int, duration time.Duration, err error) error {
	level := LevelInfo
	errMsg := ""
	if err != nil {
		level = LevelError
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:    level,
		Event:    EventDiagnostic,
		Subject:  subject,
		Scan:     scan,
		Tag:      tag,
		Kind:     kind,
		Images:   images,
		Duration: duration.Milliseconds(),
		Error:    errMsg,
	})
}

// LogConfigIssue records a manifest tag without a diagnostic routine
func (l *EventLogger) LogConfigIssue(site, tag string) error {
	return l.Log(&Event{
		Level:  LevelWarning,
		Event:  EventConfig,
		Tag:    tag,
		Reason: "no diagnostic routine",
		Extra: map[string]string{
			"site": site,
		},
	})
}

// LogError logs an error event
func (l *EventLogger) LogError(event EventType, subject string, err error) error {
	return l.Log(&Event{
		Level:   LevelError,
		Event:   event,
		Subject: subject,
		Error:   err.Error(),
	})
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// RunID returns the id stamped on every event
func (l *EventLogger) RunID() string {
	if l == nil {
		return ""
	}
	return l.runID
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}
