package main

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/quotalab/quotad/pkg/config"
	"github.com/quotalab/quotad/pkg/engine"
	"github.com/quotalab/quotad/pkg/provider"
	"github.com/quotalab/quotad/pkg/store"
)

// daemon ties the config manager, orchestrator, projection, and stores
// together: it owns the poll loop and backs the API's refresh endpoint.
type daemon struct {
	manager *config.Manager
	orch    *engine.Orchestrator
	proj    *engine.Projection
	states  store.CycleStateStore
	history store.HistoryStore

	interval time.Duration
	batch    atomic.Bool
	logf     func(format string, args ...any)
}

func newDaemon(manager *config.Manager, orch *engine.Orchestrator, proj *engine.Projection, states store.CycleStateStore, history store.HistoryStore, interval time.Duration, logf func(format string, args ...any)) *daemon {
	return &daemon{
		manager:  manager,
		orch:     orch,
		proj:     proj,
		states:   states,
		history:  history,
		interval: interval,
		logf:     logf,
	}
}

// Run polls all accounts on the configured interval until ctx is
// cancelled. The first fetch happens immediately.
func (d *daemon) Run(ctx context.Context) {
	d.tryRunBatch(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tryRunBatch(ctx)
		}
	}
}

// RefreshAll kicks off an out-of-schedule batch fetch in the
// background. It reports false when a batch is already running.
func (d *daemon) RefreshAll(ctx context.Context) bool {
	if !d.batch.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer d.batch.Store(false)
		cctx, cancel := context.WithTimeout(context.Background(), d.interval)
		defer cancel()
		d.runBatch(cctx)
	}()
	return true
}

// RefreshOne fetches a single account synchronously. It reports
// whether a fetch started and whether the account is configured.
func (d *daemon) RefreshOne(ctx context.Context, accountID string) (bool, bool) {
	acct, ok := d.findAccount(accountID)
	if !ok {
		return false, false
	}
	agg, started := d.orch.FetchOne(ctx, acct)
	if !started {
		return false, true
	}
	d.proj.Apply(*agg)
	d.persist(ctx, []*engine.Aggregate{agg})
	return true, true
}

func (d *daemon) tryRunBatch(ctx context.Context) {
	if !d.batch.CompareAndSwap(false, true) {
		return
	}
	defer d.batch.Store(false)
	cctx, cancel := context.WithTimeout(ctx, d.interval)
	defer cancel()
	d.runBatch(cctx)
}

func (d *daemon) runBatch(ctx context.Context) {
	accounts := d.manager.Accounts()
	results, ok := d.orch.FetchAll(ctx, accounts)
	if !ok {
		return
	}
	d.proj.Update(accounts, results)
	d.persist(ctx, results)
}

// persist flushes learning states and appends fetch results to
// history. Failures are logged, not fatal: the projection already
// serves the fresh data.
func (d *daemon) persist(ctx context.Context, results []*engine.Aggregate) {
	if d.states != nil {
		if err := d.states.SaveAll(ctx, d.orch.States()); err != nil {
			d.logf(`{"level":"error","msg":"state_flush_failed","error":"%v"}`, err)
		}
	}
	if d.history != nil {
		aggs := make([]engine.Aggregate, 0, len(results))
		for _, r := range results {
			if r != nil {
				aggs = append(aggs, *r)
			}
		}
		if err := d.history.AppendHistory(ctx, aggs); err != nil {
			d.logf(`{"level":"error","msg":"history_append_failed","error":"%v"}`, err)
		}
	}
}

func (d *daemon) findAccount(accountID string) (provider.Account, bool) {
	for _, acct := range d.manager.Accounts() {
		if acct.ID == accountID {
			return acct, true
		}
	}
	return provider.Account{}, false
}
