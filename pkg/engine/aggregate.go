package engine

import (
	"time"

	"github.com/quotalab/quotad/pkg/engine/cycle"
	"github.com/quotalab/quotad/pkg/provider"
)

// CycleStatus is the externally consumed view of one quota window,
// combining the provider's numbers with the resolved reset time.
type CycleStatus struct {
	Remaining      *float64   `json:"remaining,omitempty"`
	Used           *float64   `json:"used,omitempty"`
	Total          *float64   `json:"total,omitempty"`
	UsagePercent   float64    `json:"usage_percent"`
	PercentOnly    bool       `json:"percent_only,omitempty"`
	ResetAt        *time.Time `json:"reset_at,omitempty"`
	ResetEstimated bool       `json:"reset_estimated,omitempty"`
}

// Aggregate is the final per-account record handed to storage and UI.
// It is rebuilt on every fetch cycle.
type Aggregate struct {
	AccountID string        `json:"account_id"`
	Provider  provider.Kind `json:"provider"`
	Plan      string        `json:"plan,omitempty"`
	Error     string        `json:"error,omitempty"`
	Primary   CycleStatus   `json:"primary"`
	Secondary CycleStatus   `json:"secondary"`
	FetchedAt time.Time     `json:"fetched_at"`
}

func usagePercent(m provider.CycleMetrics) float64 {
	if m.Used == nil || m.Total == nil || *m.Total <= 0 {
		return 0
	}
	pct := *m.Used / *m.Total * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

func buildCycleStatus(m provider.CycleMetrics, res cycle.Resolution) CycleStatus {
	cs := CycleStatus{
		Remaining:    m.Remaining,
		Used:         m.Used,
		Total:        m.Total,
		UsagePercent: usagePercent(m),
		PercentOnly:  m.PercentOnly,
		ResetAt:      m.ResetAt,
	}
	if res.ResetAt != nil {
		cs.ResetAt = res.ResetAt
		cs.ResetEstimated = res.Estimated
	}
	return cs
}

func errorAggregate(acct provider.Account, msg string, at time.Time) *Aggregate {
	return &Aggregate{
		AccountID: acct.ID,
		Provider:  acct.Kind,
		Error:     msg,
		FetchedAt: at,
	}
}
