package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/attendance/internal/constants"
)

// CSVStore is the file-backed ledger. The file is created with only the
// header row, then only ever appended to. Every append is synced to disk
// before it returns.
type CSVStore struct {
	mu   sync.Mutex
	path string
	file *os.File
	loc  *time.Location

	seen map[key]struct{}
	// stale is set after a failed append; the next read rescans the file
	// because part of the failed row may have reached it.
	stale     bool
	malformed int
}

// OpenCSV opens or creates the ledger file at path and loads its index.
func OpenCSV(path string) (*CSVStore, error) {
	s := &CSVStore{path: path, loc: time.Local}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644) //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	s.file = f

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat ledger: %w", err)
	}
	if info.Size() == 0 {
		if err := s.write([][]string{Header}); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write ledger header: %w", err)
		}
	}

	if err := s.reload(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the ledger file path.
func (s *CSVStore) Path() string {
	return s.path
}

// Malformed returns the number of rows skipped during the last scan.
func (s *CSVStore) Malformed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.malformed
}

// HasRecorded reports whether name already has an event on day.
func (s *CSVStore) HasRecorded(_ context.Context, name, day string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stale {
		if err := s.reload(); err != nil {
			return false, err
		}
	}
	_, ok := s.seen[key{name: name, day: day}]
	return ok, nil
}

// Append writes e as a new row and syncs the file.
func (s *CSVStore) Append(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write([][]string{e.Record()}); err != nil {
		s.stale = true
		return fmt.Errorf("failed to append to ledger: %w", err)
	}
	s.seen[key{name: e.Name, day: e.Date}] = struct{}{}
	return nil
}

// Events rescans the file and returns every event in file order.
func (s *CSVStore) Events(_ context.Context) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, _, _, err := s.scan()
	return events, err
}

// Close closes the ledger file.
func (s *CSVStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// write encodes records and appends them in one write, then syncs.
// A row left unterminated by an earlier failure is closed off first so the
// new row starts on its own line.
func (s *CSVStore) write(records [][]string) error {
	if s.file == nil {
		return os.ErrClosed
	}

	var buf bytes.Buffer
	terminated, err := s.endsWithNewline()
	if err != nil {
		return err
	}
	if !terminated {
		buf.WriteByte('\n')
	}

	w := csv.NewWriter(&buf)
	if err := w.WriteAll(records); err != nil {
		return err
	}

	if _, err := s.file.Write(buf.Bytes()); err != nil {
		return err
	}
	return s.file.Sync()
}

func (s *CSVStore) endsWithNewline() (bool, error) {
	info, err := s.file.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return true, nil
	}
	last := make([]byte, 1)
	if _, err := s.file.ReadAt(last, info.Size()-1); err != nil {
		return false, err
	}
	return last[0] == '\n', nil
}

func (s *CSVStore) reload() error {
	_, seen, malformed, err := s.scan()
	if err != nil {
		return err
	}
	s.seen = seen
	s.malformed = malformed
	s.stale = false
	return nil
}

// scan reads all rows after the header. A row counts as a record of its
// name and day as soon as it has both columns and a valid date, even when
// the rest of it does not parse; such rows are still counted as malformed
// and left out of the returned events.
func (s *CSVStore) scan() ([]Event, map[key]struct{}, int, error) {
	f, err := os.Open(s.path) //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to open ledger for reading: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var (
		events    []Event
		seen      = make(map[key]struct{})
		malformed int
		header    = true
	)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				malformed++
				continue
			}
			return nil, nil, 0, fmt.Errorf("failed to read ledger: %w", err)
		}
		if header {
			header = false
			if slices.Equal(rec, Header) {
				continue
			}
		}
		if len(rec) >= 2 && validDay(rec[1]) {
			seen[key{name: rec[0], day: rec[1]}] = struct{}{}
		}
		e, err := eventFromRecord(rec, s.loc)
		if err != nil {
			malformed++
			continue
		}
		events = append(events, e)
	}
	return events, seen, malformed, nil
}

func validDay(day string) bool {
	_, err := time.Parse(constants.DateLayout, day)
	return err == nil
}
