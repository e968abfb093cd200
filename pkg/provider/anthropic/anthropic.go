// Package anthropic fetches Claude subscription usage. The primary
// endpoint reports utilization percentages for a five-hour and a
// seven-day window; the legacy organization endpoint is kept as a
// fallback and parsed through the generic extractor.
package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/quotalab/quotad/pkg/extract"
	"github.com/quotalab/quotad/pkg/provider"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	betaFlag       = "oauth-2025-04-20"
	userAgent      = "quotad/1.0"
)

type Provider struct {
	baseURL string
	client  *http.Client
}

func New() *Provider {
	return &Provider{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 12 * time.Second},
	}
}

// NewWithBaseURL overrides the API host, used by tests.
func NewWithBaseURL(baseURL string) *Provider {
	p := New()
	p.baseURL = strings.TrimRight(baseURL, "/")
	return p
}

func (p *Provider) Kind() provider.Kind {
	return provider.KindAnthropic
}

func (p *Provider) Fetch(ctx context.Context, acct provider.Account) (provider.UsageSnapshot, error) {
	token := strings.TrimSpace(acct.Credential)
	if token == "" {
		return provider.UsageSnapshot{}, provider.ErrMissingCredential()
	}
	return provider.RunChain(ctx, []provider.Candidate{
		{Name: "oauth-usage", Run: func(ctx context.Context) (provider.UsageSnapshot, error) {
			return p.fetchOAuthUsage(ctx, token)
		}},
		{Name: "org-usage", Run: func(ctx context.Context) (provider.UsageSnapshot, error) {
			return p.fetchOrgUsage(ctx, token)
		}},
	})
}

type windowUsage struct {
	Utilization float64 `json:"utilization"`
	ResetsAt    string  `json:"resets_at"`
}

func (p *Provider) fetchOAuthUsage(ctx context.Context, token string) (provider.UsageSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+"/api/oauth/usage", nil)
	if err != nil {
		return provider.UsageSnapshot{}, provider.TransportError(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("anthropic-beta", betaFlag)
	req.Header.Set("User-Agent", userAgent)

	body, err := provider.DoRequest(p.client, req)
	if err != nil {
		return provider.UsageSnapshot{}, err
	}

	var payload struct {
		FiveHour         windowUsage `json:"five_hour"`
		SevenDay         windowUsage `json:"seven_day"`
		SubscriptionType string      `json:"subscription_type"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return provider.UsageSnapshot{}, provider.DecodingError(err)
	}

	five := windowMetrics(payload.FiveHour)
	seven := windowMetrics(payload.SevenDay)
	primary, secondary := provider.OrderCycles(five, seven)

	return provider.UsageSnapshot{
		Primary:   primary,
		Secondary: secondary,
		Plan:      payload.SubscriptionType,
	}, nil
}

// windowMetrics maps a utilization window onto percent-only metrics:
// used holds the utilization, total is fixed at 100.
func windowMetrics(w windowUsage) provider.CycleMetrics {
	m := provider.CycleMetrics{
		Used:        provider.Float64(w.Utilization),
		Total:       provider.Float64(100),
		PercentOnly: true,
	}
	if t, err := time.Parse(time.RFC3339, w.ResetsAt); err == nil {
		m.ResetAt = provider.Time(t.UTC())
	}
	return m
}

func (p *Provider) fetchOrgUsage(ctx context.Context, token string) (provider.UsageSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+"/api/organization/usage", nil)
	if err != nil {
		return provider.UsageSnapshot{}, provider.TransportError(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", userAgent)

	body, err := provider.DoRequest(p.client, req)
	if err != nil {
		return provider.UsageSnapshot{}, err
	}

	container, ok := extract.FindBestContainer(gjson.ParseBytes(body), []string{"usage", "quota"})
	if !ok {
		return provider.UsageSnapshot{}, nil
	}
	return provider.UsageSnapshot{
		Primary: provider.MetricsFromFields(extract.ParseQuota(container)),
	}, nil
}
