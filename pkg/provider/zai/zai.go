// Package zai fetches Z.AI coding-plan quota. The monitor API wraps
// everything in a {code, success, data} envelope; data holds typed
// limit rows (token and time windows). The coding-plan endpoint is a
// fallback fed whole to the generic extractor.
package zai

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

const defaultBaseURL = "https://api.z.ai"

const (
	limitTypeTokens = "TOKENS_LIMIT"
	limitTypeTime   = "TIME_LIMIT"
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

func NewWithBaseURL(baseURL string) *Provider {
	p := New()
	p.baseURL = strings.TrimRight(baseURL, "/")
	return p
}

func (p *Provider) Kind() provider.Kind {
	return provider.KindZai
}

func (p *Provider) Fetch(ctx context.Context, acct provider.Account) (provider.UsageSnapshot, error) {
	key := strings.TrimSpace(acct.Credential)
	if key == "" {
		return provider.UsageSnapshot{}, provider.ErrMissingCredential()
	}
	return provider.RunChain(ctx, []provider.Candidate{
		{Name: "quota-limit", Run: func(ctx context.Context) (provider.UsageSnapshot, error) {
			return p.fetchQuotaLimit(ctx, key)
		}},
		{Name: "coding-quota", Run: func(ctx context.Context) (provider.UsageSnapshot, error) {
			return p.fetchCodingQuota(ctx, key)
		}},
	})
}

type limitRow struct {
	Type          string   `json:"type"`
	Percentage    *float64 `json:"percentage,omitempty"`
	CurrentValue  *float64 `json:"currentValue,omitempty"`
	Usage         *float64 `json:"usage,omitempty"`
	NextResetTime *int64   `json:"nextResetTime,omitempty"` // epoch millis
}

func (p *Provider) fetchQuotaLimit(ctx context.Context, key string) (provider.UsageSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+"/api/monitor/usage/quota/limit", nil)
	if err != nil {
		return provider.UsageSnapshot{}, provider.TransportError(err)
	}
	req.Header.Set("Authorization", "Bearer "+key)

	body, err := provider.DoRequest(p.client, req)
	if err != nil {
		return provider.UsageSnapshot{}, err
	}

	var envelope struct {
		Code    int        `json:"code"`
		Success bool       `json:"success"`
		Message string     `json:"message"`
		Data    []limitRow `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return provider.UsageSnapshot{}, provider.DecodingError(err)
	}
	if !envelope.Success {
		return provider.UsageSnapshot{}, provider.ProtocolError(envelope.Code, envelope.Message)
	}

	var tokens, window provider.CycleMetrics
	for _, row := range envelope.Data {
		switch row.Type {
		case limitTypeTokens:
			tokens = rowMetrics(row)
		case limitTypeTime:
			window = rowMetrics(row)
		}
	}

	snap := provider.UsageSnapshot{}
	snap.Primary, snap.Secondary = provider.OrderCycles(tokens, window)
	return snap, nil
}

// rowMetrics maps a limit row: usage is the cap, currentValue the
// consumption. Rows reporting only a percentage become percent-only
// metrics.
func rowMetrics(row limitRow) provider.CycleMetrics {
	var m provider.CycleMetrics
	switch {
	case row.Usage != nil && row.CurrentValue != nil:
		m.Total = row.Usage
		m.Used = row.CurrentValue
		remaining := *row.Usage - *row.CurrentValue
		if remaining < 0 {
			remaining = 0
		}
		m.Remaining = provider.Float64(remaining)
	case row.Percentage != nil:
		m.Used = row.Percentage
		m.Total = provider.Float64(100)
		m.PercentOnly = true
	}
	if row.NextResetTime != nil && *row.NextResetTime > 0 {
		m.ResetAt = provider.Time(time.UnixMilli(*row.NextResetTime).UTC())
	}
	return m
}

func (p *Provider) fetchCodingQuota(ctx context.Context, key string) (provider.UsageSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+"/api/coding/quota", nil)
	if err != nil {
		return provider.UsageSnapshot{}, provider.TransportError(err)
	}
	req.Header.Set("Authorization", "Bearer "+key)

	body, err := provider.DoRequest(p.client, req)
	if err != nil {
		return provider.UsageSnapshot{}, err
	}

	container, ok := extract.FindBestContainer(gjson.ParseBytes(body), []string{"quota", "token"})
	if !ok {
		return provider.UsageSnapshot{}, nil
	}
	return provider.UsageSnapshot{
		Primary: provider.MetricsFromFields(extract.ParseQuota(container)),
	}, nil
}
