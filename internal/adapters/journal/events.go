package journal

import (
	"strings"
	"time"
)

// Event is one line of the diagnostic event stream.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
}

// EventLog records broker lifecycle and pipeline errors to
// logs/mqtt-logs-<date>.json.
type EventLog struct {
	file *DailyFile
}

func NewEventLog(logDir string) *EventLog {
	return &EventLog{file: NewDailyFile(logDir, "mqtt-logs-")}
}

// Write appends one event. Levels are written upper case (INFO, ERROR).
func (e *EventLog) Write(level, message string, data any) error {
	return e.file.Append(Event{
		Timestamp: e.file.now().UTC(),
		Level:     strings.ToUpper(level),
		Message:   message,
		Data:      data,
	})
}

func (e *EventLog) Close() error { return e.file.Close() }
