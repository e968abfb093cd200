package engine

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quotalab/quotad/pkg/engine/cycle"
	"github.com/quotalab/quotad/pkg/provider"
)

// Orchestrator runs one adapter invocation per enabled account,
// preserves input ordering in the output, isolates per-account
// failures, and enforces single-flight semantics per account and for
// batch fetches. It also owns the in-memory learning states between
// the caller's load and flush.
type Orchestrator struct {
	providers map[provider.Kind]provider.Provider

	mu     sync.Mutex // guards states
	states map[cycle.Key]cycle.State

	allInFlight atomic.Bool
	oneInFlight sync.Map // account id -> struct{}

	logf func(format string, args ...any)
	now  func() time.Time
}

// NewOrchestrator creates an orchestrator over the given provider set.
// states carries the persisted learning states loaded by the caller;
// nil starts fresh.
func NewOrchestrator(providers map[provider.Kind]provider.Provider, states map[cycle.Key]cycle.State) *Orchestrator {
	if states == nil {
		states = make(map[cycle.Key]cycle.State)
	}
	return &Orchestrator{
		providers: providers,
		states:    states,
		logf:      log.Printf,
		now:       time.Now,
	}
}

// SetLogf redirects the orchestrator's log output.
func (o *Orchestrator) SetLogf(logf func(format string, args ...any)) {
	o.logf = logf
}

// FetchAll fetches every account concurrently. The returned slice is
// aligned index-for-index with accounts; disabled accounts yield nil
// slots. A batch already in flight makes this call a no-op: it returns
// (nil, false) immediately without starting any network work.
func (o *Orchestrator) FetchAll(ctx context.Context, accounts []provider.Account) ([]*Aggregate, bool) {
	if !o.allInFlight.CompareAndSwap(false, true) {
		return nil, false
	}
	defer o.allInFlight.Store(false)

	results := make([]*Aggregate, len(accounts))
	var wg sync.WaitGroup
	for i, acct := range accounts {
		if !acct.Enabled {
			continue
		}
		if acct.Credential == "" {
			results[i] = o.credentialMissing(acct)
			continue
		}
		wg.Add(1)
		go func(i int, acct provider.Account) {
			defer wg.Done()
			results[i] = o.fetchAccount(ctx, acct)
		}(i, acct)
	}
	wg.Wait()
	return results, true
}

// FetchOne fetches a single account. A duplicate call for the same
// account while one is outstanding is a no-op returning (nil, false).
// The per-account guard is independent of the batch guard.
func (o *Orchestrator) FetchOne(ctx context.Context, acct provider.Account) (*Aggregate, bool) {
	if _, loaded := o.oneInFlight.LoadOrStore(acct.ID, struct{}{}); loaded {
		return nil, false
	}
	defer o.oneInFlight.Delete(acct.ID)

	if acct.Credential == "" {
		return o.credentialMissing(acct), true
	}
	return o.fetchAccount(ctx, acct), true
}

// States returns a copy of the current learning states for the caller
// to flush to external storage.
func (o *Orchestrator) States() map[cycle.Key]cycle.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[cycle.Key]cycle.State, len(o.states))
	for k, v := range o.states {
		out[k] = v
	}
	return out
}

func (o *Orchestrator) credentialMissing(acct provider.Account) *Aggregate {
	QuotadFetchTotal.WithLabelValues(acct.ID, "error").Inc()
	return errorAggregate(acct, provider.ErrMissingCredential().Error(), o.now().UTC())
}

// fetchAccount performs the adapter call and resolves both cycle slots
// against the learning engine. Adapter errors never escape: they become
// error aggregates with all quota fields absent.
func (o *Orchestrator) fetchAccount(ctx context.Context, acct provider.Account) *Aggregate {
	now := o.now().UTC()

	prov, ok := o.providers[acct.Kind]
	if !ok {
		o.logf("no adapter registered for provider %s (account %s)", acct.Kind, acct.ID)
		QuotadFetchTotal.WithLabelValues(acct.ID, "error").Inc()
		return errorAggregate(acct, "unsupported provider: "+string(acct.Kind), now)
	}

	snap, err := prov.Fetch(ctx, acct)
	if err != nil {
		o.logf("fetch failed for account %s (%s): %v", acct.ID, acct.Kind, err)
		QuotadFetchTotal.WithLabelValues(acct.ID, "error").Inc()
		return errorAggregate(acct, err.Error(), now)
	}

	agg := &Aggregate{
		AccountID: acct.ID,
		Provider:  acct.Kind,
		Plan:      snap.Plan,
		FetchedAt: now,
	}

	// Engine invocations are serialized per account by the single-flight
	// guards; the lock only protects the shared states map itself.
	o.mu.Lock()
	agg.Primary = o.resolveSlot(acct.ID, cycle.SlotPrimary, snap.Primary, now)
	if snap.Secondary.HasData() {
		agg.Secondary = o.resolveSlot(acct.ID, cycle.SlotSecondary, snap.Secondary, now)
	}
	o.mu.Unlock()

	QuotadFetchTotal.WithLabelValues(acct.ID, "success").Inc()
	QuotadUsagePercent.WithLabelValues(acct.ID, string(cycle.SlotPrimary)).Set(agg.Primary.UsagePercent)
	if agg.Primary.ResetAt != nil {
		QuotadResetSeconds.WithLabelValues(acct.ID, string(cycle.SlotPrimary)).Set(time.Until(*agg.Primary.ResetAt).Seconds())
	}
	return agg
}

func (o *Orchestrator) resolveSlot(accountID string, slot cycle.Slot, metrics provider.CycleMetrics, now time.Time) CycleStatus {
	key := cycle.Key{AccountID: accountID, Slot: slot}
	res, next := cycle.Resolve(now, metrics.ResetAt, o.states[key])
	o.states[key] = next

	QuotadLearnedIntervalSeconds.WithLabelValues(accountID, string(slot)).Set(next.LearnedInterval.Seconds())
	QuotadConfidence.WithLabelValues(accountID, string(slot)).Set(next.Confidence)

	return buildCycleStatus(metrics, res)
}
