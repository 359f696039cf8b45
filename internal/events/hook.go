package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/kozaktomas/attendance/internal/ledger"
)

// hookTimeout bounds a single publish so a slow broker cannot stall the
// caller of RecordIfAbsent.
var hookTimeout = 2 * time.Second

// LedgerHook returns a ledger hook that publishes every recorded event.
// Publish failures are logged; the ledger entry stays in place.
func LedgerHook(p Publisher, camera string, logger *slog.Logger) ledger.Hook {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, e ledger.Event) {
		ev := NewAttendanceRecorded(e, camera, time.Now())
		ctx, cancel := context.WithTimeout(ctx, hookTimeout)
		defer cancel()
		if err := p.Publish(ctx, ev); err != nil {
			logger.Warn("failed to publish attendance event", "name", e.Name, "date", e.Date, "error", err)
		}
	}
}
