package client

import "time"

// CycleStatus mirrors the daemon's per-window quota view.
type CycleStatus struct {
	Remaining      *float64   `json:"remaining,omitempty"`
	Used           *float64   `json:"used,omitempty"`
	Total          *float64   `json:"total,omitempty"`
	UsagePercent   float64    `json:"usage_percent"`
	PercentOnly    bool       `json:"percent_only,omitempty"`
	ResetAt        *time.Time `json:"reset_at,omitempty"`
	ResetEstimated bool       `json:"reset_estimated,omitempty"`
}

// Quota is the daemon's per-account aggregate.
type Quota struct {
	AccountID string      `json:"account_id"`
	Provider  string      `json:"provider"`
	Plan      string      `json:"plan,omitempty"`
	Error     string      `json:"error,omitempty"`
	Primary   CycleStatus `json:"primary"`
	Secondary CycleStatus `json:"secondary"`
	FetchedAt time.Time   `json:"fetched_at"`
}

// Health is the /v1/health response.
type Health struct {
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QuotasResult is the /v1/quotas response.
type QuotasResult struct {
	Quotas    []Quota   `json:"quotas"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Account is one configured account, credential redacted.
type Account struct {
	ID            string `json:"id"`
	Provider      string `json:"provider"`
	Enabled       bool   `json:"enabled"`
	HasCredential bool   `json:"has_credential"`
}

type accountsResult struct {
	Accounts []Account `json:"accounts"`
}

// RefreshResult is the /v1/refresh response.
type RefreshResult struct {
	Status string `json:"status"`
}

// Started reports whether the refresh actually kicked off a new fetch
// rather than finding one already in flight.
func (r RefreshResult) Started() bool {
	return r.Status == "started"
}

// HistoryResult is the /v1/history response.
type HistoryResult struct {
	AccountID string  `json:"account_id"`
	Entries   []Quota `json:"entries"`
}
