package engine

import (
	"sync"
	"time"

	"github.com/quotalab/quotad/pkg/provider"
)

// Projection keeps the latest aggregates in memory for the API and
// other readers, preserving account input order.
type Projection struct {
	mu        sync.RWMutex
	order     []string
	byID      map[string]Aggregate
	updatedAt time.Time
}

func NewProjection() *Projection {
	return &Projection{
		byID: make(map[string]Aggregate),
	}
}

// Update applies a batch result. results must be aligned with accounts;
// nil slots (disabled accounts) keep any previous aggregate.
func (p *Projection) Update(accounts []provider.Account, results []*Aggregate) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.order = p.order[:0]
	for i, acct := range accounts {
		p.order = append(p.order, acct.ID)
		if i < len(results) && results[i] != nil {
			p.byID[acct.ID] = *results[i]
		}
	}
	p.updatedAt = time.Now().UTC()
}

// Apply records a single-account result without touching the order.
func (p *Projection) Apply(agg Aggregate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byID[agg.AccountID] = agg
	p.updatedAt = time.Now().UTC()
}

// Latest returns the aggregates in account input order.
func (p *Projection) Latest() []Aggregate {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Aggregate, 0, len(p.order))
	for _, id := range p.order {
		if agg, ok := p.byID[id]; ok {
			out = append(out, agg)
		}
	}
	return out
}

// Get returns the latest aggregate for one account.
func (p *Projection) Get(accountID string) (Aggregate, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	agg, ok := p.byID[accountID]
	return agg, ok
}

// UpdatedAt returns when the projection last changed.
func (p *Projection) UpdatedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.updatedAt
}
