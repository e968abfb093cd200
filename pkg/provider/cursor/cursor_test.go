package cursor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/quotalab/quotad/pkg/provider"
)

func TestFetch_TwoWindows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/usage-summary" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if !strings.Contains(r.Header.Get("Cookie"), "WorkosCursorSessionToken=sess") {
			t.Errorf("missing session cookie, got %q", r.Header.Get("Cookie"))
		}
		w.Write([]byte(`{
			"messages": {"used": 120, "cap": 500, "resets_at": "2025-06-01T00:00:00Z"},
			"tokens": {"tokens_used": 40000, "token_limit": 100000}
		}`))
	}))
	defer server.Close()

	p := NewWithBaseURL(server.URL)
	snap, err := p.Fetch(context.Background(), provider.Account{Credential: "sess"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	// The message window carries a reset anchor, so it is primary.
	if snap.Primary.Used == nil || *snap.Primary.Used != 120 {
		t.Errorf("wrong primary: %+v", snap.Primary)
	}
	if snap.Primary.Remaining == nil || *snap.Primary.Remaining != 380 {
		t.Errorf("expected derived remaining 380, got %v", snap.Primary.Remaining)
	}
	want := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if snap.Primary.ResetAt == nil || !snap.Primary.ResetAt.Equal(want) {
		t.Errorf("wrong primary reset: %v", snap.Primary.ResetAt)
	}
	if snap.Secondary.Used == nil || *snap.Secondary.Used != 40000 {
		t.Errorf("wrong token window: %+v", snap.Secondary)
	}
	if snap.Secondary.Remaining == nil || *snap.Secondary.Remaining != 60000 {
		t.Errorf("expected derived remaining 60000, got %v", snap.Secondary.Remaining)
	}
}

func TestFetch_BothHintsSameContainer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"usage": {"tokens_used": 100, "cap": 400}}`))
	}))
	defer server.Close()

	p := NewWithBaseURL(server.URL)
	snap, err := p.Fetch(context.Background(), provider.Account{Credential: "sess"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if snap.Primary.Used == nil || *snap.Primary.Used != 100 {
		t.Errorf("wrong primary: %+v", snap.Primary)
	}
	if snap.Secondary.HasData() {
		t.Errorf("same container must not be reported twice: %+v", snap.Secondary)
	}
}

func TestFetch_FallsBackToLegacyUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/usage-summary":
			w.WriteHeader(http.StatusInternalServerError)
		case "/api/usage":
			w.Write([]byte(`{"wallet": {"totalQuota": 1000, "usedQuota": 400}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	p := NewWithBaseURL(server.URL)
	snap, err := p.Fetch(context.Background(), provider.Account{Credential: "sess"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if snap.Primary.Remaining == nil || *snap.Primary.Remaining != 600 {
		t.Errorf("expected derived remaining 600, got %+v", snap.Primary)
	}
}

func TestFetch_GarbageBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok": true, "items": [1, 2, 3]}`))
	}))
	defer server.Close()

	p := NewWithBaseURL(server.URL)
	_, err := p.Fetch(context.Background(), provider.Account{Credential: "sess"})
	fe, ok := provider.AsFetchError(err)
	if !ok || fe.Class != provider.ErrNoUsableData {
		t.Errorf("expected no_usable_data, got %v", err)
	}
}
