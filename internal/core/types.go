package core

import (
	"context"
)

// Item is one candidate artifact discovered from the remote listing. ID is the
// sole deduplication key; Group is the containing date folder when the listing
// is hierarchical and only affects ordering, never identity.
type Item struct {
	ID       string
	FetchURL string
	Group    string
}

type Status int

const (
	StatusDelivered Status = iota
	StatusFetchFailed
	StatusDeliveryFailed
)

func (s Status) String() string {
	switch s {
	case StatusDelivered:
		return "delivered"
	case StatusFetchFailed:
		return "fetch_failed"
	case StatusDeliveryFailed:
		return "delivery_failed"
	default:
		return "unknown"
	}
}

// Result is the per-item outcome of one run. Not persisted anywhere.
type Result struct {
	Item   Item
	Status Status
	Reason string
}

// Summary accumulates outcome counts for one run.
type Summary struct {
	Delivered      int
	Skipped        int
	FetchFailed    int
	DeliveryFailed int
	Results        []Result
}

// Source produces the candidate items of one run. Items stream on the first
// channel; a failure of the listing as a whole is sent on the second and ends
// the sequence. Zero items is a valid empty sequence, not an error.
type Source interface {
	Name() string
	List(ctx context.Context) (<-chan Item, <-chan error)
}

// Fetcher resolves a fetch URL into the artifact payload.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Deliverer submits one payload to the external delivery transport.
type Deliverer interface {
	Name() string
	Deliver(ctx context.Context, id string, payload []byte) error
}

// Notifier posts a short text event.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Ledger is the engine's view of the durable delivered-set. Commit must make
// the identifier durable before returning.
type Ledger interface {
	Contains(id string) bool
	Commit(ctx context.Context, id string) error
}
