package provider

import (
	"context"
	"time"
)

// Kind identifies a supported quota provider integration.
type Kind string

const (
	KindAnthropic Kind = "anthropic"
	KindOpenAI    Kind = "openai"
	KindZai       Kind = "zai"
	KindKiro      Kind = "kiro"
	KindCursor    Kind = "cursor"
	KindCopilot   Kind = "copilot"
)

// Kinds lists every supported provider kind.
func Kinds() []Kind {
	return []Kind{KindAnthropic, KindOpenAI, KindZai, KindKiro, KindCursor, KindCopilot}
}

// Account is one user-configured provider account. It is owned by the
// external configuration store and immutable for the duration of a fetch.
type Account struct {
	ID         string `json:"id"`
	Kind       Kind   `json:"provider"`
	Credential string `json:"credential"`
	Enabled    bool   `json:"enabled"`
}

// CycleMetrics holds the quota numbers for one quota window.
// Any of the pointers may be nil when the provider did not report that field.
type CycleMetrics struct {
	Remaining   *float64   `json:"remaining,omitempty"`
	Used        *float64   `json:"used,omitempty"`
	Total       *float64   `json:"total,omitempty"`
	ResetAt     *time.Time `json:"reset_at,omitempty"`
	PercentOnly bool       `json:"percent_only,omitempty"`
}

// HasData reports whether at least one quota field is populated.
func (m CycleMetrics) HasData() bool {
	return m.Remaining != nil || m.Used != nil || m.Total != nil || m.ResetAt != nil
}

// Coverage counts how many of the four quota fields are populated.
// Used to break ties when choosing the primary cycle.
func (m CycleMetrics) Coverage() int {
	n := 0
	if m.Remaining != nil {
		n++
	}
	if m.Used != nil {
		n++
	}
	if m.Total != nil {
		n++
	}
	if m.ResetAt != nil {
		n++
	}
	return n
}

// UsageSnapshot is the normalized result of a single provider fetch.
type UsageSnapshot struct {
	Primary   CycleMetrics `json:"primary"`
	Secondary CycleMetrics `json:"secondary"`
	Plan      string       `json:"plan,omitempty"`
	Message   string       `json:"message,omitempty"`
	FetchedAt time.Time    `json:"fetched_at"`
}

// HasData reports whether either cycle carries quota data.
func (s UsageSnapshot) HasData() bool {
	return s.Primary.HasData() || s.Secondary.HasData()
}

// OrderCycles assigns the window with the soonest reset as primary.
// Ties (including both resets absent) go to the window with richer
// field coverage.
func OrderCycles(a, b CycleMetrics) (primary, secondary CycleMetrics) {
	switch {
	case a.ResetAt != nil && b.ResetAt == nil:
		return a, b
	case a.ResetAt == nil && b.ResetAt != nil:
		return b, a
	case a.ResetAt != nil && b.ResetAt != nil && !a.ResetAt.Equal(*b.ResetAt):
		if a.ResetAt.Before(*b.ResetAt) {
			return a, b
		}
		return b, a
	}
	if b.Coverage() > a.Coverage() {
		return b, a
	}
	return a, b
}

// Provider is the capability every quota integration implements.
// Fetch performs read-only network calls and must not mutate shared state.
type Provider interface {
	// Kind returns the provider kind this integration serves.
	Kind() Kind

	// Fetch retrieves the current usage snapshot for one account.
	Fetch(ctx context.Context, acct Account) (UsageSnapshot, error)
}

// Float64 returns a pointer to v. Convenience for building snapshots.
func Float64(v float64) *float64 {
	return &v
}

// Time returns a pointer to t.
func Time(t time.Time) *time.Time {
	return &t
}
