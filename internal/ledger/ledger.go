// Package ledger persists the set of identifiers that have already been
// delivered. A store loads its full snapshot at open and makes every commit
// durable before returning, so a crash between items never loses progress and
// never produces a half-written record.
package ledger

import (
	"context"
	"fmt"

	"gaceta/internal/core"
)

// Store is a ledger backend. Contains answers from the in-memory snapshot
// loaded at open; Commit updates both the snapshot and durable storage.
type Store interface {
	core.Ledger
	Len() int
	Close() error
}

type Config struct {
	Type string
	Path string
	Addr string
	Key  string
}

var factoryFuncs = map[string]func(ctx context.Context, cfg Config) (Store, error){}

func Register(ledgerType string, fn func(ctx context.Context, cfg Config) (Store, error)) {
	factoryFuncs[ledgerType] = fn
}

// Open builds the configured backend and loads its snapshot.
func Open(ctx context.Context, cfg Config) (Store, error) {
	ledgerType := cfg.Type
	if ledgerType == "" {
		ledgerType = "file"
	}

	fn, exists := factoryFuncs[ledgerType]
	if !exists {
		return nil, fmt.Errorf("unsupported ledger type: %s", ledgerType)
	}

	return fn(ctx, cfg)
}
