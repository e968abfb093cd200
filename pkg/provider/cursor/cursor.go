// Package cursor fetches Cursor usage. Cursor's response schema has
// shifted repeatedly, so both candidates run the whole body through
// the generic extractor: one keyword hint set locates the message/cap
// window, the other the token window.
package cursor

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/quotalab/quotad/pkg/extract"
	"github.com/quotalab/quotad/pkg/provider"
)

const defaultBaseURL = "https://cursor.com"

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
	return provider.KindCursor
}

func (p *Provider) Fetch(ctx context.Context, acct provider.Account) (provider.UsageSnapshot, error) {
	token := strings.TrimSpace(acct.Credential)
	if token == "" {
		return provider.UsageSnapshot{}, provider.ErrMissingCredential()
	}
	return provider.RunChain(ctx, []provider.Candidate{
		{Name: "usage-summary", Run: func(ctx context.Context) (provider.UsageSnapshot, error) {
			return p.fetchAndExtract(ctx, token, "/api/usage-summary")
		}},
		{Name: "legacy-usage", Run: func(ctx context.Context) (provider.UsageSnapshot, error) {
			return p.fetchAndExtract(ctx, token, "/api/usage")
		}},
	})
}

func (p *Provider) fetchAndExtract(ctx context.Context, token, path string) (provider.UsageSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+path, nil)
	if err != nil {
		return provider.UsageSnapshot{}, provider.TransportError(err)
	}
	req.Header.Set("Cookie", "WorkosCursorSessionToken="+token)

	body, err := provider.DoRequest(p.client, req)
	if err != nil {
		return provider.UsageSnapshot{}, err
	}
	return extractWindows(gjson.ParseBytes(body)), nil
}

// extractWindows locates the two cycle containers with different
// keyword hints. When both hints land on the same container only one
// cycle is reported.
func extractWindows(root gjson.Result) provider.UsageSnapshot {
	var a, b provider.CycleMetrics
	msgContainer, msgOK := extract.FindBestContainer(root, []string{"message", "cap"})
	if msgOK {
		a = provider.MetricsFromFields(extract.ParseQuota(msgContainer))
	}
	tokContainer, tokOK := extract.FindBestContainer(root, []string{"token"})
	if tokOK && !(msgOK && sameContainer(msgContainer, tokContainer)) {
		b = provider.MetricsFromFields(extract.ParseQuota(tokContainer))
	}

	snap := provider.UsageSnapshot{}
	snap.Primary, snap.Secondary = provider.OrderCycles(a, b)
	return snap
}

func sameContainer(a, b gjson.Result) bool {
	return a.Index == b.Index && a.Raw == b.Raw
}
