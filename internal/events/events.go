// Package events publishes attendance events to downstream consumers.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/attendance/internal/ledger"
)

// Event metadata
const (
	SchemaVersion     = "1"
	EventTypeRecorded = "attendance.recorded"
)

// Source identifies where an event was produced.
type Source struct {
	Camera string `json:"camera"`
}

// AttendanceRecorded is emitted once for every event written to the ledger.
type AttendanceRecorded struct {
	SchemaVersion string    `json:"schemaVersion"`
	EventType     string    `json:"eventType"`
	EventID       string    `json:"eventId"`
	EmittedAt     time.Time `json:"emittedAt"`
	Source        Source    `json:"source"`
	Name          string    `json:"name"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	Confidence    float64   `json:"confidence"`
}

// NewAttendanceRecorded builds the event for a ledger entry.
func NewAttendanceRecorded(e ledger.Event, camera string, now time.Time) *AttendanceRecorded {
	return &AttendanceRecorded{
		SchemaVersion: SchemaVersion,
		EventType:     EventTypeRecorded,
		EventID:       uuid.NewString(),
		EmittedAt:     now.UTC(),
		Source:        Source{Camera: camera},
		Name:          e.Name,
		Date:          e.Date,
		Time:          e.Time,
		Confidence:    e.Confidence,
	}
}

// Publisher delivers attendance events.
type Publisher interface {
	Publish(ctx context.Context, e *AttendanceRecorded) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, *AttendanceRecorded) error { return nil }

// Close does nothing.
func (Nop) Close() error { return nil }
