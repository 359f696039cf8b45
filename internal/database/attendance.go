package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/attendance/internal/ledger"
)

// AttendanceRepository is a ledger.Store backed by the attendance table.
// The (name, day) unique key enforces the once-per-day rule across processes.
type AttendanceRepository struct {
	pool *Pool
	loc  *time.Location
}

var _ ledger.Store = (*AttendanceRepository)(nil)

// NewAttendanceRepository creates a repository on pool. Stored dates and
// times are resolved in loc; nil means time.Local.
func NewAttendanceRepository(pool *Pool, loc *time.Location) *AttendanceRepository {
	if loc == nil {
		loc = time.Local
	}
	return &AttendanceRepository{pool: pool, loc: loc}
}

// HasRecorded reports whether name already has an event on day.
func (r *AttendanceRepository) HasRecorded(ctx context.Context, name, day string) (bool, error) {
	var one int
	err := r.pool.db.QueryRowContext(ctx,
		r.pool.rebind("SELECT 1 FROM attendance WHERE name = ? AND day = ? LIMIT 1"),
		name, day,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query attendance: %w", err)
	}
	return true, nil
}

// Append inserts e. A second event for the same name and day returns
// ledger.ErrAlreadyRecorded.
func (r *AttendanceRepository) Append(ctx context.Context, e ledger.Event) error {
	recordedAt := e.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	_, err := r.pool.db.ExecContext(ctx,
		r.pool.rebind(`INSERT INTO attendance (id, name, day, time_of_day, confidence, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?)`),
		uuid.NewString(), e.Name, e.Date, e.Time, e.Confidence, recordedAt.UTC(),
	)
	if err != nil {
		if r.pool.dialect.isUnique(err) {
			return fmt.Errorf("%s on %s: %w", e.Name, e.Date, ledger.ErrAlreadyRecorded)
		}
		return fmt.Errorf("insert attendance: %w", err)
	}
	return nil
}

// Events returns every stored event in recording order.
func (r *AttendanceRepository) Events(ctx context.Context) ([]ledger.Event, error) {
	rows, err := r.pool.db.QueryContext(ctx,
		"SELECT name, day, time_of_day, confidence FROM attendance ORDER BY recorded_at, day, time_of_day, name")
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	var events []ledger.Event
	for rows.Next() {
		var (
			name, day, clock string
			confidence       float64
		)
		if err := rows.Scan(&name, &day, &clock, &confidence); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		e, err := ledger.EventAt(name, day, clock, confidence, r.loc)
		if err != nil {
			return nil, fmt.Errorf("attendance row %s/%s: %w", name, day, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", err)
	}
	return events, nil
}

// Count returns the number of stored events.
func (r *AttendanceRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM attendance").Scan(&n); err != nil {
		return 0, fmt.Errorf("count attendance: %w", err)
	}
	return n, nil
}

// Close closes the underlying pool.
func (r *AttendanceRepository) Close() error {
	return r.pool.Close()
}
