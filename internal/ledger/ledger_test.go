package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kozaktomas/attendance/internal/logger"
)

func openLedger(t *testing.T) (*Ledger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "attendance.csv")
	s, err := OpenCSV(path)
	if err != nil {
		t.Fatalf("OpenCSV failed: %v", err)
	}
	l := New(s, WithLogger(logger.Nop()))
	t.Cleanup(func() { l.Close() })
	return l, path
}

func TestRecordIfAbsent_OncePerDay(t *testing.T) {
	l, path := openLedger(t)
	ctx := context.Background()

	first := time.Date(2024, 1, 1, 9, 0, 0, 0, time.Local)
	recorded, err := l.RecordIfAbsent(ctx, "alice", first, 70)
	if err != nil || !recorded {
		t.Fatalf("expected first call to record, got %v, %v", recorded, err)
	}

	recorded, err = l.RecordIfAbsent(ctx, "alice", first.Add(3*time.Hour), 95)
	if err != nil {
		t.Fatal(err)
	}
	if recorded {
		t.Error("expected second call on the same day to be a no-op")
	}

	want := "Name,Date,Time,Match %\nalice,2024-01-01,09:00:00,70.00%\n"
	if got := readFile(t, path); got != want {
		t.Errorf("unexpected ledger content %q", got)
	}
}

func TestRecordIfAbsent_DifferentDays(t *testing.T) {
	l, _ := openLedger(t)
	ctx := context.Background()

	day1 := time.Date(2024, 1, 1, 23, 59, 59, 0, time.Local)
	day2 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.Local)
	for _, now := range []time.Time{day1, day2} {
		recorded, err := l.RecordIfAbsent(ctx, "alice", now, 80)
		if err != nil || !recorded {
			t.Fatalf("expected event on %s, got %v, %v", Day(now), recorded, err)
		}
	}

	events, err := l.Query(ctx, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].Date == events[1].Date {
		t.Errorf("expected two events on distinct days, got %+v", events)
	}
}

func TestRecordIfAbsent_DayInClockLocation(t *testing.T) {
	l, _ := openLedger(t)
	ctx := context.Background()

	// 00:30 CET is still the previous day in UTC.
	cet := time.FixedZone("CET", 3600)
	now := time.Date(2024, 3, 1, 0, 30, 0, 0, cet)
	if _, err := l.RecordIfAbsent(ctx, "alice", now, 75); err != nil {
		t.Fatal(err)
	}

	events, _ := l.Query(ctx, Filter{})
	if events[0].Date != "2024-03-01" || events[0].Time != "00:30:00" {
		t.Errorf("expected date and time in the clock's location, got %s %s", events[0].Date, events[0].Time)
	}
	ok, err := l.HasRecordedToday(ctx, "alice", now.Add(time.Hour))
	if err != nil || !ok {
		t.Errorf("expected alice recorded today, got %v, %v", ok, err)
	}
}

func TestLedger_ReloadConsistency(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attendance.csv")
	ctx := context.Background()
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.Local)

	s, err := OpenCSV(path)
	if err != nil {
		t.Fatal(err)
	}
	l := New(s, WithLogger(logger.Nop()))
	for _, name := range []string{"alice", "bob", "alice", "carol"} {
		if _, err := l.RecordIfAbsent(ctx, name, now, 66.6); err != nil {
			t.Fatal(err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := OpenCSV(path)
	if err != nil {
		t.Fatal(err)
	}
	l2 := New(s2, WithLogger(logger.Nop()))
	defer l2.Close()

	for _, name := range []string{"alice", "bob", "carol"} {
		ok, err := l2.HasRecordedToday(ctx, name, now)
		if err != nil || !ok {
			t.Errorf("expected %s recorded after reopen, got %v, %v", name, ok, err)
		}
	}
	if ok, _ := l2.HasRecordedToday(ctx, "dave", now); ok {
		t.Error("expected dave not recorded")
	}
	if recorded, _ := l2.RecordIfAbsent(ctx, "bob", now, 99); recorded {
		t.Error("expected bob not to be re-recorded after restart")
	}

	events, _ := l2.Query(ctx, Filter{})
	if len(events) != 3 {
		t.Errorf("expected 3 events, got %d", len(events))
	}
}

func TestRecordIfAbsent_Concurrent(t *testing.T) {
	l, _ := openLedger(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.Local)

	var wg sync.WaitGroup
	var recorded atomic.Int32
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.RecordIfAbsent(ctx, "alice", now, 88)
			if err != nil {
				t.Errorf("RecordIfAbsent failed: %v", err)
			}
			if ok {
				recorded.Add(1)
			}
		}()
	}
	wg.Wait()

	if recorded.Load() != 1 {
		t.Errorf("expected exactly one recorded call, got %d", recorded.Load())
	}
	events, _ := l.Query(ctx, Filter{})
	if len(events) != 1 {
		t.Errorf("expected exactly one event, got %d", len(events))
	}
}

func TestRecordIfAbsent_InvalidName(t *testing.T) {
	l, _ := openLedger(t)
	for _, name := range []string{"", "   ", "a\nb", "Unknown"} {
		_, err := l.RecordIfAbsent(context.Background(), name, time.Now(), 90)
		if !errors.Is(err, ErrInvalidName) {
			t.Errorf("expected ErrInvalidName for %q, got %v", name, err)
		}
	}
}

func TestRecordIfAbsent_Hooks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attendance.csv")
	s, err := OpenCSV(path)
	if err != nil {
		t.Fatal(err)
	}
	var got []Event
	l := New(s, WithLogger(logger.Nop()), WithHook(func(_ context.Context, e Event) {
		got = append(got, e)
	}))
	defer l.Close()

	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.Local)
	l.RecordIfAbsent(context.Background(), "alice", now, 70)
	l.RecordIfAbsent(context.Background(), "alice", now, 70)

	if len(got) != 1 || got[0].Name != "alice" || !got[0].RecordedAt.Equal(now) {
		t.Errorf("expected one hook call for alice, got %+v", got)
	}
}

// flakyStore is an in-memory store whose appends fail a set number of times.
type flakyStore struct {
	mu         sync.Mutex
	events     []Event
	failures   int
	landOnFail bool // persist the event even when reporting failure
	appends    int
	checkErr   error
}

func (s *flakyStore) HasRecorded(_ context.Context, name, day string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checkErr != nil {
		return false, s.checkErr
	}
	for _, e := range s.events {
		if e.Name == name && e.Date == day {
			return true, nil
		}
	}
	return false, nil
}

func (s *flakyStore) Append(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appends++
	if s.failures > 0 {
		s.failures--
		if s.landOnFail {
			s.events = append(s.events, e)
		}
		return errors.New("disk full")
	}
	s.events = append(s.events, e)
	return nil
}

func (s *flakyStore) Events(context.Context) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...), nil
}

func (s *flakyStore) Close() error { return nil }

func TestRecordIfAbsent_RetriesAppend(t *testing.T) {
	store := &flakyStore{failures: 1}
	l := New(store, WithLogger(logger.Nop()))

	recorded, err := l.RecordIfAbsent(context.Background(), "alice", time.Now(), 70)
	if err != nil || !recorded {
		t.Fatalf("expected retry to succeed, got %v, %v", recorded, err)
	}
	if store.appends != 2 || len(store.events) != 1 {
		t.Errorf("expected 2 appends and 1 event, got %d and %d", store.appends, len(store.events))
	}
}

func TestRecordIfAbsent_RetryDoesNotDuplicate(t *testing.T) {
	store := &flakyStore{failures: 1, landOnFail: true}
	l := New(store, WithLogger(logger.Nop()))

	if _, err := l.RecordIfAbsent(context.Background(), "alice", time.Now(), 70); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(store.events) != 1 {
		t.Errorf("expected exactly one event, got %d", len(store.events))
	}
}

func TestRecordIfAbsent_SurfacesPersistentFailure(t *testing.T) {
	store := &flakyStore{failures: 10}
	l := New(store, WithLogger(logger.Nop()), WithAttempts(3))

	recorded, err := l.RecordIfAbsent(context.Background(), "alice", time.Now(), 70)
	if err == nil || recorded {
		t.Fatalf("expected failure, got %v, %v", recorded, err)
	}
	if !strings.Contains(err.Error(), "after 3 attempts") || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("unexpected error %v", err)
	}
	if store.appends != 3 {
		t.Errorf("expected 3 append attempts, got %d", store.appends)
	}
}

func TestRecordIfAbsent_CheckFailure(t *testing.T) {
	store := &flakyStore{checkErr: errors.New("io error")}
	l := New(store, WithLogger(logger.Nop()), WithAttempts(0))

	if _, err := l.RecordIfAbsent(context.Background(), "alice", time.Now(), 70); err == nil {
		t.Error("expected check failure to surface")
	}
	if store.appends != 0 {
		t.Errorf("expected no append after failed check, got %d", store.appends)
	}
	if _, err := l.HasRecordedToday(context.Background(), "alice", time.Now()); err == nil {
		t.Error("expected HasRecordedToday to surface the error")
	}
}

type uniqueStore struct{ flakyStore }

func (s *uniqueStore) HasRecorded(context.Context, string, string) (bool, error) { return false, nil }
func (s *uniqueStore) Append(context.Context, Event) error                      { return ErrAlreadyRecorded }

func TestRecordIfAbsent_StoreRejectsDuplicate(t *testing.T) {
	l := New(&uniqueStore{}, WithLogger(logger.Nop()))
	recorded, err := l.RecordIfAbsent(context.Background(), "alice", time.Now(), 70)
	if err != nil || recorded {
		t.Errorf("expected duplicate rejected by storage to be a no-op, got %v, %v", recorded, err)
	}
}

func TestQuery_Filter(t *testing.T) {
	l, _ := openLedger(t)
	ctx := context.Background()
	d1 := time.Date(2024, 1, 1, 9, 0, 0, 0, time.Local)
	d2 := d1.AddDate(0, 0, 1)

	l.RecordIfAbsent(ctx, "Jan Novák", d1, 70)
	l.RecordIfAbsent(ctx, "bob", d1, 71)
	l.RecordIfAbsent(ctx, "Jan Novák", d2, 72)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 3},
		{"by day", Filter{Day: "2024-01-01"}, 2},
		{"by name without diacritics", Filter{Name: "jan novak"}, 2},
		{"by name with separators", Filter{Name: "Jan_Novak"}, 2},
		{"by name and day", Filter{Name: "jan novak", Day: "2024-01-02"}, 1},
		{"no match", Filter{Name: "carol"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.Query(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("expected %d events, got %d", tt.want, len(got))
			}
		})
	}
}
