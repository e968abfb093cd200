package store

import (
	"context"
	"sync"

	"github.com/quotalab/quotad/pkg/engine"
	"github.com/quotalab/quotad/pkg/engine/cycle"
)

// MemoryStore keeps everything in process memory. Used in tests and
// when the daemon runs without a database path.
type MemoryStore struct {
	mu      sync.Mutex
	states  map[cycle.Key]cycle.State
	history map[string][]engine.Aggregate
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states:  make(map[cycle.Key]cycle.State),
		history: make(map[string][]engine.Aggregate),
	}
}

func (m *MemoryStore) LoadAll(ctx context.Context) (map[cycle.Key]cycle.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[cycle.Key]cycle.State, len(m.states))
	for k, v := range m.states {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) SaveAll(ctx context.Context, states map[cycle.Key]cycle.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range states {
		m.states[k] = v
	}
	return nil
}

func (m *MemoryStore) AppendHistory(ctx context.Context, aggregates []engine.Aggregate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, agg := range aggregates {
		rows := append(m.history[agg.AccountID], agg)
		if len(rows) > historyKeep {
			rows = rows[len(rows)-historyKeep:]
		}
		m.history[agg.AccountID] = rows
	}
	return nil
}

func (m *MemoryStore) History(ctx context.Context, accountID string, limit int) ([]engine.Aggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.history[accountID]
	if limit <= 0 || limit > len(rows) {
		limit = len(rows)
	}
	out := make([]engine.Aggregate, 0, limit)
	for i := len(rows) - 1; i >= len(rows)-limit; i-- {
		out = append(out, rows[i])
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
