package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kozaktomas/attendance/internal/facematch"
)

// DefaultAttempts is the number of append attempts before an error is returned.
const DefaultAttempts = 2

// Hook is called after an event has been durably recorded.
type Hook func(ctx context.Context, e Event)

// Ledger serializes the check-then-append protocol over a Store so that an
// identity is recorded at most once per calendar day, however many
// goroutines call RecordIfAbsent.
type Ledger struct {
	mu       sync.Mutex
	store    Store
	logger   *slog.Logger
	attempts int
	hooks    []Hook
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(lg *Ledger) { lg.logger = l }
}

// WithAttempts sets the number of append attempts. Values below 1 mean 1.
func WithAttempts(n int) Option {
	return func(lg *Ledger) { lg.attempts = max(n, 1) }
}

// WithHook registers a hook run after every recorded event.
func WithHook(h Hook) Option {
	return func(lg *Ledger) { lg.hooks = append(lg.hooks, h) }
}

// New wraps store in a Ledger.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		logger:   slog.Default(),
		attempts: DefaultAttempts,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// HasRecordedToday reports whether name has an event on the calendar day of today.
func (l *Ledger) HasRecordedToday(ctx context.Context, name string, today time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ok, err := l.store.HasRecorded(ctx, name, Day(today))
	if err != nil {
		return false, fmt.Errorf("failed to check attendance: %w", err)
	}
	return ok, nil
}

// RecordIfAbsent appends an event for name at now unless one already exists
// for that calendar day. It reports whether a new event was written.
//
// A failed append is retried; the check runs again before every attempt so a
// partly applied attempt is never recorded twice. The event is durable when
// RecordIfAbsent returns true.
func (l *Ledger) RecordIfAbsent(ctx context.Context, name string, now time.Time, confidence float64) (bool, error) {
	if err := ValidateName(name); err != nil {
		return false, err
	}

	e := NewEvent(name, now, confidence)

	recorded, err := l.recordLocked(ctx, e)
	if err != nil {
		l.logger.Error("failed to record attendance", "name", name, "date", e.Date, "error", err)
		return false, err
	}
	if !recorded {
		l.logger.Debug("attendance already recorded", "name", name, "date", e.Date)
		return false, nil
	}

	l.logger.Info("attendance recorded",
		"name", name,
		"date", e.Date,
		"time", e.Time,
		"confidence", FormatConfidence(confidence))
	for _, h := range l.hooks {
		h(ctx, e)
	}
	return true, nil
}

func (l *Ledger) recordLocked(ctx context.Context, e Event) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= l.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		exists, err := l.store.HasRecorded(ctx, e.Name, e.Date)
		if err != nil {
			lastErr = fmt.Errorf("failed to check attendance: %w", err)
			l.logger.Warn("ledger check failed", "name", e.Name, "attempt", attempt, "error", err)
			continue
		}
		if exists {
			return false, nil
		}

		err = l.store.Append(ctx, e)
		if errors.Is(err, ErrAlreadyRecorded) {
			return false, nil
		}
		if err == nil {
			return true, nil
		}
		lastErr = err
		l.logger.Warn("ledger append failed", "name", e.Name, "attempt", attempt, "error", err)
	}
	return false, fmt.Errorf("failed to record attendance for %s after %d attempts: %w", e.Name, l.attempts, lastErr)
}

// Filter selects events in Query. Empty fields match everything. Name is
// compared ignoring case, diacritics and separators.
type Filter struct {
	Day  string
	Name string
}

// Query returns the stored events matching f, in storage order.
func (l *Ledger) Query(ctx context.Context, f Filter) ([]Event, error) {
	l.mu.Lock()
	events, err := l.store.Events(ctx)
	l.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	out := events[:0]
	for _, e := range events {
		if f.Day != "" && e.Date != f.Day {
			continue
		}
		if f.Name != "" && !facematch.SamePerson(e.Name, f.Name) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Close closes the underlying store.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Close()
}
