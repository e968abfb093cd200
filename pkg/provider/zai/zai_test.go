package zai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/quotalab/quotad/pkg/provider"
)

func TestFetch_QuotaLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/monitor/usage/quota/limit" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"code": 200, "success": true,
			"data": [
				{"type": "TOKENS_LIMIT", "currentValue": 75500, "usage": 100000, "nextResetTime": 1748786400000},
				{"type": "TIME_LIMIT", "percentage": 40.0, "nextResetTime": 1749131999000}
			]
		}`))
	}))
	defer server.Close()

	p := NewWithBaseURL(server.URL)
	snap, err := p.Fetch(context.Background(), provider.Account{Credential: "zk"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	// Token row resets sooner and must be primary.
	if snap.Primary.Used == nil || *snap.Primary.Used != 75500 {
		t.Errorf("wrong primary used: %+v", snap.Primary)
	}
	if snap.Primary.Total == nil || *snap.Primary.Total != 100000 {
		t.Errorf("wrong primary total: %v", snap.Primary.Total)
	}
	if snap.Primary.Remaining == nil || *snap.Primary.Remaining != 24500 {
		t.Errorf("expected remaining 24500, got %v", snap.Primary.Remaining)
	}
	want := time.UnixMilli(1748786400000).UTC()
	if snap.Primary.ResetAt == nil || !snap.Primary.ResetAt.Equal(want) {
		t.Errorf("millisecond reset mishandled: %v", snap.Primary.ResetAt)
	}
	if !snap.Secondary.PercentOnly || snap.Secondary.Used == nil || *snap.Secondary.Used != 40.0 {
		t.Errorf("wrong secondary window: %+v", snap.Secondary)
	}
}

func TestFetch_EnvelopeFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/monitor/usage/quota/limit":
			w.Write([]byte(`{"code": 1001, "success": false, "message": "account suspended"}`))
		case "/api/coding/quota":
			w.Write([]byte(`{"quota": {"totalQuota": 1000, "usedQuota": 400}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	// Envelope failure falls through to the coding-quota endpoint.
	p := NewWithBaseURL(server.URL)
	snap, err := p.Fetch(context.Background(), provider.Account{Credential: "zk"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if snap.Primary.Remaining == nil || *snap.Primary.Remaining != 600 {
		t.Errorf("expected derived remaining 600, got %+v", snap.Primary)
	}
}

func TestFetch_AllCandidatesEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code": 200, "success": true, "data": []}`))
	}))
	defer server.Close()

	p := NewWithBaseURL(server.URL)
	_, err := p.Fetch(context.Background(), provider.Account{Credential: "zk"})
	fe, ok := provider.AsFetchError(err)
	if !ok || fe.Class != provider.ErrNoUsableData {
		t.Errorf("expected no_usable_data, got %v", err)
	}
}
