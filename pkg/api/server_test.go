package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/quotalab/quotad/pkg/engine"
	"github.com/quotalab/quotad/pkg/provider"
)

type stubQuotas struct {
	quotas    []engine.Aggregate
	updatedAt time.Time
}

func (s *stubQuotas) Latest() []engine.Aggregate { return s.quotas }

func (s *stubQuotas) Get(id string) (engine.Aggregate, bool) {
	for _, q := range s.quotas {
		if q.AccountID == id {
			return q, true
		}
	}
	return engine.Aggregate{}, false
}

func (s *stubQuotas) UpdatedAt() time.Time { return s.updatedAt }

type stubRefresher struct {
	allStarted bool
	oneStarted bool
	known      map[string]bool
	calls      int
}

func (s *stubRefresher) RefreshAll(ctx context.Context) bool {
	s.calls++
	return s.allStarted
}

func (s *stubRefresher) RefreshOne(ctx context.Context, id string) (bool, bool) {
	s.calls++
	return s.oneStarted, s.known[id]
}

type stubAccounts struct {
	accounts []provider.Account
}

func (s *stubAccounts) Accounts() []provider.Account { return s.accounts }

type stubHistory struct {
	entries []engine.Aggregate
	err     error
}

func (s *stubHistory) History(ctx context.Context, id string, limit int) ([]engine.Aggregate, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit < len(s.entries) {
		return s.entries[:limit], nil
	}
	return s.entries, nil
}

func newTestServer(quotas *stubQuotas, refresher *stubRefresher, accounts *stubAccounts, history HistorySource) *httptest.Server {
	if quotas == nil {
		quotas = &stubQuotas{}
	}
	if refresher == nil {
		refresher = &stubRefresher{}
	}
	if accounts == nil {
		accounts = &stubAccounts{}
	}
	s := NewServer(quotas, refresher, accounts, history, "")
	return httptest.NewServer(s.Handler())
}

func getJSON(t *testing.T, url string, wantStatus int, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s: status %d, want %d", url, resp.StatusCode, wantStatus)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
}

func TestHealth(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ts := newTestServer(&stubQuotas{updatedAt: at}, nil, nil, nil)
	defer ts.Close()

	var resp HealthResponse
	getJSON(t, ts.URL+"/v1/health", http.StatusOK, &resp)
	if resp.Status != "ok" || !resp.UpdatedAt.Equal(at) {
		t.Errorf("wrong health response: %+v", resp)
	}
}

func TestQuotas_ListAndSingle(t *testing.T) {
	quotas := &stubQuotas{quotas: []engine.Aggregate{
		{AccountID: "work", Provider: provider.KindAnthropic, Primary: engine.CycleStatus{UsagePercent: 72.5}},
		{AccountID: "side", Provider: provider.KindOpenAI, Error: "no usable quota data from any endpoint"},
	}}
	ts := newTestServer(quotas, nil, nil, nil)
	defer ts.Close()

	var list QuotasResponse
	getJSON(t, ts.URL+"/v1/quotas", http.StatusOK, &list)
	if len(list.Quotas) != 2 || list.Quotas[0].AccountID != "work" {
		t.Errorf("wrong list: %+v", list.Quotas)
	}

	var one engine.Aggregate
	getJSON(t, ts.URL+"/v1/quotas?account=side", http.StatusOK, &one)
	if one.AccountID != "side" || one.Error == "" {
		t.Errorf("wrong single aggregate: %+v", one)
	}

	getJSON(t, ts.URL+"/v1/quotas?account=nope", http.StatusNotFound, nil)
}

func TestAccounts_CredentialsRedacted(t *testing.T) {
	accounts := &stubAccounts{accounts: []provider.Account{
		{ID: "work", Kind: provider.KindAnthropic, Credential: "sk-secret", Enabled: true},
		{ID: "bare", Kind: provider.KindKiro, Enabled: false},
	}}
	ts := newTestServer(nil, nil, accounts, nil)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/accounts")
	if err != nil {
		t.Fatalf("GET accounts: %v", err)
	}
	defer resp.Body.Close()

	var body AccountsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(body.Accounts))
	}
	if !body.Accounts[0].HasCredential || body.Accounts[1].HasCredential {
		t.Errorf("credential presence flags wrong: %+v", body.Accounts)
	}

	// The raw credential must never appear anywhere in the response.
	raw, _ := json.Marshal(body)
	if strings.Contains(string(raw), "sk-secret") {
		t.Error("credential leaked into accounts response")
	}
}

func TestRefresh_StartedVsAlreadyRunning(t *testing.T) {
	refresher := &stubRefresher{allStarted: true}
	ts := newTestServer(nil, refresher, nil, nil)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/refresh", "application/json", nil)
	if err != nil {
		t.Fatalf("POST refresh: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("expected 202 for a started refresh, got %d", resp.StatusCode)
	}

	refresher.allStarted = false
	resp, err = http.Post(ts.URL+"/v1/refresh", "application/json", nil)
	if err != nil {
		t.Fatalf("POST refresh: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for an in-flight refresh, got %d", resp.StatusCode)
	}
}

func TestRefresh_SingleAccount(t *testing.T) {
	refresher := &stubRefresher{oneStarted: true, known: map[string]bool{"work": true}}
	ts := newTestServer(nil, refresher, nil, nil)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/refresh?account=work", "application/json", nil)
	if err != nil {
		t.Fatalf("POST refresh: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("expected 202, got %d", resp.StatusCode)
	}

	resp, err = http.Post(ts.URL+"/v1/refresh?account=ghost", "application/json", nil)
	if err != nil {
		t.Fatalf("POST refresh: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown account, got %d", resp.StatusCode)
	}

	// GET must be rejected.
	getJSON(t, ts.URL+"/v1/refresh", http.StatusMethodNotAllowed, nil)
}

func TestHistory(t *testing.T) {
	history := &stubHistory{entries: []engine.Aggregate{
		{AccountID: "work", Primary: engine.CycleStatus{UsagePercent: 80}},
		{AccountID: "work", Primary: engine.CycleStatus{UsagePercent: 70}},
	}}
	ts := newTestServer(nil, nil, nil, history)
	defer ts.Close()

	var resp HistoryResponse
	getJSON(t, ts.URL+"/v1/history?account=work&limit=1", http.StatusOK, &resp)
	if resp.AccountID != "work" || len(resp.Entries) != 1 {
		t.Errorf("wrong history: %+v", resp)
	}

	getJSON(t, ts.URL+"/v1/history", http.StatusBadRequest, nil)
	getJSON(t, ts.URL+"/v1/history?account=work&limit=zero", http.StatusBadRequest, nil)
}

func TestHistory_Unavailable(t *testing.T) {
	ts := newTestServer(nil, nil, nil, nil)
	defer ts.Close()
	getJSON(t, ts.URL+"/v1/history?account=work", http.StatusNotImplemented, nil)
}

func TestTraceIDHeader(t *testing.T) {
	ts := newTestServer(nil, nil, nil, nil)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("X-Trace-ID") == "" {
		t.Error("missing X-Trace-ID response header")
	}

	req, _ := http.NewRequest("GET", ts.URL+"/v1/health", nil)
	req.Header.Set("X-Trace-ID", "custom-trace")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("X-Trace-ID") != "custom-trace" {
		t.Errorf("trace id not propagated: %q", resp.Header.Get("X-Trace-ID"))
	}
}
