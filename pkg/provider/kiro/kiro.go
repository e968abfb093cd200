// Package kiro fetches Kiro (CodeWhisperer) usage limits. The
// getUsageLimits endpoint returns per-resource breakdowns; the reset
// time is frequently absent there, which is exactly the case the
// learning engine fills in. The legacy getUsage endpoint is a fallback
// parsed through the generic extractor.
package kiro

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/quotalab/quotad/pkg/extract"
	"github.com/quotalab/quotad/pkg/provider"
)

const defaultBaseURL = "https://codewhisperer.us-east-1.amazonaws.com"

type Provider struct {
	baseURL string
	client  *http.Client
}

func New() *Provider {
	return &Provider{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func NewWithBaseURL(baseURL string) *Provider {
	p := New()
	p.baseURL = strings.TrimRight(baseURL, "/")
	return p
}

func (p *Provider) Kind() provider.Kind {
	return provider.KindKiro
}

func (p *Provider) Fetch(ctx context.Context, acct provider.Account) (provider.UsageSnapshot, error) {
	token := strings.TrimSpace(acct.Credential)
	if token == "" {
		return provider.UsageSnapshot{}, provider.ErrMissingCredential()
	}
	return provider.RunChain(ctx, []provider.Candidate{
		{Name: "usage-limits", Run: func(ctx context.Context) (provider.UsageSnapshot, error) {
			return p.fetchUsageLimits(ctx, token)
		}},
		{Name: "legacy-usage", Run: func(ctx context.Context) (provider.UsageSnapshot, error) {
			return p.fetchLegacyUsage(ctx, token)
		}},
	})
}

type usageBreakdown struct {
	ResourceType string   `json:"resourceType"`
	UsageLimit   *float64 `json:"usageLimit,omitempty"`
	CurrentUsage *float64 `json:"currentUsage,omitempty"`
}

func (p *Provider) fetchUsageLimits(ctx context.Context, token string) (provider.UsageSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/getUsageLimits", bytes.NewReader([]byte("{}")))
	if err != nil {
		return provider.UsageSnapshot{}, provider.TransportError(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	body, err := provider.DoRequest(p.client, req)
	if err != nil {
		return provider.UsageSnapshot{}, err
	}

	var payload struct {
		DaysUntilReset *int     `json:"daysUntilReset,omitempty"`
		NextDateReset  *float64 `json:"nextDateReset,omitempty"` // epoch seconds
		Subscription   *struct {
			Title string `json:"title"`
		} `json:"subscription,omitempty"`
		Breakdowns []usageBreakdown `json:"breakdowns,omitempty"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return provider.UsageSnapshot{}, provider.DecodingError(err)
	}

	var resetAt *time.Time
	switch {
	case payload.NextDateReset != nil && *payload.NextDateReset > 0:
		resetAt = provider.Time(time.Unix(int64(*payload.NextDateReset), 0).UTC())
	case payload.DaysUntilReset != nil && *payload.DaysUntilReset > 0:
		resetAt = provider.Time(time.Now().Add(time.Duration(*payload.DaysUntilReset) * 24 * time.Hour).UTC())
	}

	var metrics []provider.CycleMetrics
	for _, b := range payload.Breakdowns {
		if b.UsageLimit == nil && b.CurrentUsage == nil {
			continue
		}
		m := provider.CycleMetrics{Total: b.UsageLimit, Used: b.CurrentUsage, ResetAt: resetAt}
		if m.Total != nil && m.Used != nil {
			remaining := *m.Total - *m.Used
			if remaining < 0 {
				remaining = 0
			}
			m.Remaining = provider.Float64(remaining)
		}
		metrics = append(metrics, m)
	}

	snap := provider.UsageSnapshot{}
	if payload.Subscription != nil {
		snap.Plan = payload.Subscription.Title
	}
	switch len(metrics) {
	case 0:
	case 1:
		snap.Primary = metrics[0]
	default:
		snap.Primary, snap.Secondary = provider.OrderCycles(metrics[0], metrics[1])
	}
	return snap, nil
}

func (p *Provider) fetchLegacyUsage(ctx context.Context, token string) (provider.UsageSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/getUsage", bytes.NewReader([]byte("{}")))
	if err != nil {
		return provider.UsageSnapshot{}, provider.TransportError(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	body, err := provider.DoRequest(p.client, req)
	if err != nil {
		return provider.UsageSnapshot{}, err
	}

	container, ok := extract.FindBestContainer(gjson.ParseBytes(body), []string{"usage", "credit"})
	if !ok {
		return provider.UsageSnapshot{}, nil
	}
	return provider.UsageSnapshot{
		Primary: provider.MetricsFromFields(extract.ParseQuota(container)),
	}, nil
}
