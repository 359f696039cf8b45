package ledger

import "context"

// Store persists attendance events. Implementations must make an event
// durable before Append returns, and HasRecorded must see every event a
// previous Append (in this or an earlier process) made durable.
type Store interface {
	HasRecorded(ctx context.Context, name, day string) (bool, error)
	Append(ctx context.Context, e Event) error
	Events(ctx context.Context) ([]Event, error)
	Close() error
}

// key identifies one identity on one calendar day.
type key struct {
	name string
	day  string
}
