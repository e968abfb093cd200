package api

import (
	"time"

	"github.com/quotalab/quotad/pkg/engine"
)

// HealthResponse is returned by GET /v1/health.
type HealthResponse struct {
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QuotasResponse is returned by GET /v1/quotas.
type QuotasResponse struct {
	Quotas    []engine.Aggregate `json:"quotas"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// AccountView is one account with the credential redacted.
type AccountView struct {
	ID            string `json:"id"`
	Provider      string `json:"provider"`
	Enabled       bool   `json:"enabled"`
	HasCredential bool   `json:"has_credential"`
}

// AccountsResponse is returned by GET /v1/accounts.
type AccountsResponse struct {
	Accounts []AccountView `json:"accounts"`
}

// RefreshResponse is returned by POST /v1/refresh.
type RefreshResponse struct {
	Status string `json:"status"` // "started" or "already_running"
}

// HistoryResponse is returned by GET /v1/history.
type HistoryResponse struct {
	AccountID string             `json:"account_id"`
	Entries   []engine.Aggregate `json:"entries"`
}
