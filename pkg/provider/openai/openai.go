// Package openai fetches ChatGPT/Codex subscription usage. The wham
// usage endpoint exposes primary/secondary rate-limit windows as
// used-percent values plus an optional credit balance; the legacy
// usage endpoint is a fallback parsed through the generic extractor.
package openai

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

const defaultBaseURL = "https://chatgpt.com/backend-api"

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

func NewWithBaseURL(baseURL string) *Provider {
	p := New()
	p.baseURL = strings.TrimRight(baseURL, "/")
	return p
}

func (p *Provider) Kind() provider.Kind {
	return provider.KindOpenAI
}

func (p *Provider) Fetch(ctx context.Context, acct provider.Account) (provider.UsageSnapshot, error) {
	token := strings.TrimSpace(acct.Credential)
	if token == "" {
		return provider.UsageSnapshot{}, provider.ErrMissingCredential()
	}
	return provider.RunChain(ctx, []provider.Candidate{
		{Name: "wham-usage", Run: func(ctx context.Context) (provider.UsageSnapshot, error) {
			return p.fetchWhamUsage(ctx, token)
		}},
		{Name: "legacy-usage", Run: func(ctx context.Context) (provider.UsageSnapshot, error) {
			return p.fetchLegacyUsage(ctx, token)
		}},
	})
}

type usageWindow struct {
	UsedPercent       *float64 `json:"used_percent,omitempty"`
	ResetsAt          int64    `json:"resets_at,omitempty"`
	ResetAfterSeconds int      `json:"reset_after_seconds,omitempty"`
}

type rateLimitDetails struct {
	Primary   *usageWindow `json:"primary,omitempty"`
	Secondary *usageWindow `json:"secondary,omitempty"`
}

func (p *Provider) fetchWhamUsage(ctx context.Context, token string) (provider.UsageSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+"/wham/usage", nil)
	if err != nil {
		return provider.UsageSnapshot{}, provider.TransportError(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	body, err := provider.DoRequest(p.client, req)
	if err != nil {
		return provider.UsageSnapshot{}, err
	}

	var payload struct {
		PlanType  string            `json:"plan_type"`
		RateLimit *rateLimitDetails `json:"rate_limit,omitempty"`
		Credits   *struct {
			Balance *float64 `json:"balance,omitempty"`
		} `json:"credits,omitempty"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return provider.UsageSnapshot{}, provider.DecodingError(err)
	}

	snap := provider.UsageSnapshot{Plan: payload.PlanType}
	if payload.RateLimit != nil {
		now := time.Now()
		a := windowMetrics(payload.RateLimit.Primary, now)
		b := windowMetrics(payload.RateLimit.Secondary, now)
		snap.Primary, snap.Secondary = provider.OrderCycles(a, b)
	}
	return snap, nil
}

func windowMetrics(w *usageWindow, now time.Time) provider.CycleMetrics {
	if w == nil {
		return provider.CycleMetrics{}
	}
	m := provider.CycleMetrics{PercentOnly: true}
	if w.UsedPercent != nil {
		m.Used = provider.Float64(*w.UsedPercent)
		m.Total = provider.Float64(100)
	}
	switch {
	case w.ResetsAt > 0:
		m.ResetAt = provider.Time(time.Unix(w.ResetsAt, 0).UTC())
	case w.ResetAfterSeconds > 0:
		m.ResetAt = provider.Time(now.Add(time.Duration(w.ResetAfterSeconds) * time.Second).UTC())
	}
	return m
}

func (p *Provider) fetchLegacyUsage(ctx context.Context, token string) (provider.UsageSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+"/usage", nil)
	if err != nil {
		return provider.UsageSnapshot{}, provider.TransportError(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	body, err := provider.DoRequest(p.client, req)
	if err != nil {
		return provider.UsageSnapshot{}, err
	}

	container, ok := extract.FindBestContainer(gjson.ParseBytes(body), []string{"token", "usage"})
	if !ok {
		return provider.UsageSnapshot{}, nil
	}
	return provider.UsageSnapshot{
		Primary: provider.MetricsFromFields(extract.ParseQuota(container)),
	}, nil
}
