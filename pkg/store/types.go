// Package store persists the learning states the daemon flushes after
// each fetch batch, plus a per-account fetch history. The fetch path
// itself never touches storage.
package store

import (
	"context"

	"github.com/quotalab/quotad/pkg/engine"
	"github.com/quotalab/quotad/pkg/engine/cycle"
)

// CycleStateStore loads learning states at startup and saves them after
// each batch. Implementations must tolerate concurrent SaveAll calls.
type CycleStateStore interface {
	LoadAll(ctx context.Context) (map[cycle.Key]cycle.State, error)
	SaveAll(ctx context.Context, states map[cycle.Key]cycle.State) error
	Close() error
}

// HistoryStore records one row per completed account fetch.
type HistoryStore interface {
	// AppendHistory records the aggregates of one fetch batch.
	AppendHistory(ctx context.Context, aggregates []engine.Aggregate) error

	// History returns the most recent aggregates for one account,
	// newest first, at most limit rows.
	History(ctx context.Context, accountID string, limit int) ([]engine.Aggregate, error)
}
