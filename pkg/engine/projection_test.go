package engine

import (
	"testing"
	"time"

	"github.com/quotalab/quotad/pkg/provider"
)

func agg(id string, pct float64) *Aggregate {
	return &Aggregate{
		AccountID: id,
		Provider:  provider.KindAnthropic,
		Primary:   CycleStatus{UsagePercent: pct},
		FetchedAt: time.Now(),
	}
}

func TestProjection_UpdatePreservesAccountOrder(t *testing.T) {
	p := NewProjection()
	accounts := []provider.Account{
		{ID: "b", Kind: provider.KindAnthropic, Enabled: true},
		{ID: "a", Kind: provider.KindAnthropic, Enabled: true},
		{ID: "c", Kind: provider.KindAnthropic, Enabled: true},
	}
	p.Update(accounts, []*Aggregate{agg("b", 10), agg("a", 20), agg("c", 30)})

	latest := p.Latest()
	if len(latest) != 3 {
		t.Fatalf("expected 3 aggregates, got %d", len(latest))
	}
	for i, want := range []string{"b", "a", "c"} {
		if latest[i].AccountID != want {
			t.Errorf("position %d: got %s, want %s", i, latest[i].AccountID, want)
		}
	}
}

func TestProjection_NilSlotKeepsPrevious(t *testing.T) {
	p := NewProjection()
	accounts := []provider.Account{
		{ID: "a", Kind: provider.KindAnthropic, Enabled: true},
		{ID: "b", Kind: provider.KindAnthropic, Enabled: true},
	}
	p.Update(accounts, []*Aggregate{agg("a", 10), agg("b", 20)})

	// Second batch: "b" disabled, result slot nil
	p.Update(accounts, []*Aggregate{agg("a", 50), nil})

	latest := p.Latest()
	if len(latest) != 2 {
		t.Fatalf("expected 2 aggregates, got %d", len(latest))
	}
	if latest[0].Primary.UsagePercent != 50 {
		t.Errorf("a not updated: %v", latest[0].Primary.UsagePercent)
	}
	if latest[1].Primary.UsagePercent != 20 {
		t.Errorf("b should keep previous value: %v", latest[1].Primary.UsagePercent)
	}
}

func TestProjection_RemovedAccountDropsFromLatest(t *testing.T) {
	p := NewProjection()
	two := []provider.Account{
		{ID: "a", Kind: provider.KindAnthropic, Enabled: true},
		{ID: "b", Kind: provider.KindAnthropic, Enabled: true},
	}
	p.Update(two, []*Aggregate{agg("a", 10), agg("b", 20)})

	one := two[:1]
	p.Update(one, []*Aggregate{agg("a", 15)})

	latest := p.Latest()
	if len(latest) != 1 || latest[0].AccountID != "a" {
		t.Fatalf("expected only account a, got %+v", latest)
	}
	// Direct lookup still serves the last known value
	if _, ok := p.Get("b"); !ok {
		t.Error("expected Get to keep serving the removed account")
	}
}

func TestProjection_ApplySingle(t *testing.T) {
	p := NewProjection()
	accounts := []provider.Account{{ID: "a", Kind: provider.KindAnthropic, Enabled: true}}
	p.Update(accounts, []*Aggregate{agg("a", 10)})
	before := p.UpdatedAt()

	time.Sleep(time.Millisecond)
	p.Apply(*agg("a", 75))

	got, ok := p.Get("a")
	if !ok {
		t.Fatal("account missing after Apply")
	}
	if got.Primary.UsagePercent != 75 {
		t.Errorf("unexpected usage percent: %v", got.Primary.UsagePercent)
	}
	if !p.UpdatedAt().After(before) {
		t.Error("UpdatedAt did not advance")
	}
}

func TestProjection_EmptyLatest(t *testing.T) {
	p := NewProjection()
	if got := p.Latest(); len(got) != 0 {
		t.Errorf("expected empty, got %d", len(got))
	}
	if !p.UpdatedAt().IsZero() {
		t.Error("expected zero UpdatedAt before first update")
	}
}
