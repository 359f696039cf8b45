// Package ledger records at most one attendance event per identity per day.
package ledger

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/roster"
)

var (
	// ErrInvalidName is returned for identity names that cannot be recorded.
	ErrInvalidName = roster.ErrInvalidName

	// ErrAlreadyRecorded is returned by a Store whose storage rejects a
	// second event for the same identity and day.
	ErrAlreadyRecorded = errors.New("attendance already recorded")
)

// Header is the exact header row of the CSV ledger.
var Header = []string{"Name", "Date", "Time", "Match %"}

// Event is a single attendance record. Date and Time are in the local time
// of the clock that produced the event.
type Event struct {
	Name       string
	Date       string // YYYY-MM-DD
	Time       string // HH:MM:SS
	Confidence float64
	RecordedAt time.Time
}

// NewEvent builds an event for name at now.
func NewEvent(name string, now time.Time, confidence float64) Event {
	return Event{
		Name:       name,
		Date:       Day(now),
		Time:       now.Format(constants.TimeLayout),
		Confidence: confidence,
		RecordedAt: now,
	}
}

// Day returns the calendar day of t in t's own location.
func Day(t time.Time) string {
	return t.Format(constants.DateLayout)
}

// FormatConfidence formats a confidence percentage with two decimals and a percent sign.
func FormatConfidence(c float64) string {
	return strconv.FormatFloat(c, 'f', 2, 64) + "%"
}

// ParseConfidence parses a value written by FormatConfidence.
func ParseConfidence(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid confidence %q: %w", s, err)
	}
	return v, nil
}

// Record returns the event as a CSV row.
func (e Event) Record() []string {
	return []string{e.Name, e.Date, e.Time, FormatConfidence(e.Confidence)}
}

// eventFromRecord parses a CSV row. RecordedAt is resolved in loc.
func eventFromRecord(rec []string, loc *time.Location) (Event, error) {
	if len(rec) != len(Header) {
		return Event{}, fmt.Errorf("expected %d fields, got %d", len(Header), len(rec))
	}
	conf, err := ParseConfidence(rec[3])
	if err != nil {
		return Event{}, err
	}
	return EventAt(rec[0], rec[1], rec[2], conf, loc)
}

// EventAt rebuilds a stored event from its date and time columns,
// resolving RecordedAt in loc.
func EventAt(name, date, clock string, confidence float64, loc *time.Location) (Event, error) {
	at, err := time.ParseInLocation(constants.DateLayout+" "+constants.TimeLayout, date+" "+clock, loc)
	if err != nil {
		return Event{}, fmt.Errorf("invalid date or time: %w", err)
	}
	return Event{Name: name, Date: date, Time: clock, Confidence: confidence, RecordedAt: at}, nil
}

// ValidateName rejects names that cannot be recorded; see roster.ValidateName.
func ValidateName(name string) error {
	return roster.ValidateName(name)
}
