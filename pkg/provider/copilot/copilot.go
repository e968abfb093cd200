// Package copilot fetches GitHub Copilot premium-request quota. The
// fallback candidate reads the core REST rate limit, which carries no
// subscription quota but at least proves the token and yields a
// request window.
package copilot

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/quotalab/quotad/pkg/provider"
)

const defaultBaseURL = "https://api.github.com"

type Provider struct {
	baseURL string
	client  *http.Client
}

func New() *Provider {
	return &Provider{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func NewWithBaseURL(baseURL string) *Provider {
	p := New()
	p.baseURL = strings.TrimRight(baseURL, "/")
	return p
}

func (p *Provider) Kind() provider.Kind {
	return provider.KindCopilot
}

func (p *Provider) Fetch(ctx context.Context, acct provider.Account) (provider.UsageSnapshot, error) {
	token := strings.TrimSpace(acct.Credential)
	if token == "" {
		return provider.UsageSnapshot{}, provider.ErrMissingCredential()
	}
	return provider.RunChain(ctx, []provider.Candidate{
		{Name: "copilot-usage", Run: func(ctx context.Context) (provider.UsageSnapshot, error) {
			return p.fetchCopilotUsage(ctx, token)
		}},
		{Name: "rate-limit", Run: func(ctx context.Context) (provider.UsageSnapshot, error) {
			return p.fetchRateLimit(ctx, token)
		}},
	})
}

func (p *Provider) fetchCopilotUsage(ctx context.Context, token string) (provider.UsageSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+"/copilot/usage", nil)
	if err != nil {
		return provider.UsageSnapshot{}, provider.TransportError(err)
	}
	req.Header.Set("Authorization", "token "+token)
	req.Header.Set("Accept", "application/vnd.github+json")

	body, err := provider.DoRequest(p.client, req)
	if err != nil {
		return provider.UsageSnapshot{}, err
	}

	var payload struct {
		QuotaSnapshots struct {
			PremiumInteractions struct {
				Entitlement      *float64 `json:"entitlement,omitempty"`
				Remaining        *float64 `json:"remaining,omitempty"`
				PercentRemaining *float64 `json:"percent_remaining,omitempty"`
			} `json:"premium_interactions"`
		} `json:"quota_snapshots"`
		QuotaResetDate string `json:"quota_reset_date"` // "2006-01-02"
		CopilotPlan    string `json:"copilot_plan"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return provider.UsageSnapshot{}, provider.DecodingError(err)
	}

	premium := payload.QuotaSnapshots.PremiumInteractions
	m := provider.CycleMetrics{
		Total:     premium.Entitlement,
		Remaining: premium.Remaining,
	}
	if m.Total != nil && m.Remaining != nil {
		used := *m.Total - *m.Remaining
		if used < 0 {
			used = 0
		}
		m.Used = provider.Float64(used)
	}
	if payload.QuotaResetDate != "" {
		if t, err := time.Parse("2006-01-02", payload.QuotaResetDate); err == nil {
			m.ResetAt = provider.Time(t.UTC())
		}
	}

	return provider.UsageSnapshot{
		Primary: m,
		Plan:    payload.CopilotPlan,
	}, nil
}

func (p *Provider) fetchRateLimit(ctx context.Context, token string) (provider.UsageSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+"/rate_limit", nil)
	if err != nil {
		return provider.UsageSnapshot{}, provider.TransportError(err)
	}
	req.Header.Set("Authorization", "token "+token)

	body, err := provider.DoRequest(p.client, req)
	if err != nil {
		return provider.UsageSnapshot{}, err
	}

	var payload struct {
		Resources struct {
			Core struct {
				Limit     *float64 `json:"limit,omitempty"`
				Remaining *float64 `json:"remaining,omitempty"`
				Reset     int64    `json:"reset"`
			} `json:"core"`
		} `json:"resources"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return provider.UsageSnapshot{}, provider.DecodingError(err)
	}

	core := payload.Resources.Core
	m := provider.CycleMetrics{
		Total:     core.Limit,
		Remaining: core.Remaining,
	}
	if m.Total != nil && m.Remaining != nil {
		m.Used = provider.Float64(*m.Total - *m.Remaining)
	}
	if core.Reset > 0 {
		m.ResetAt = provider.Time(time.Unix(core.Reset, 0).UTC())
	}
	return provider.UsageSnapshot{Primary: m}, nil
}
