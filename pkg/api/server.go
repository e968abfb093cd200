// Package api serves the daemon's HTTP status surface: current quota
// aggregates, account listing, manual refresh, fetch history, and
// Prometheus metrics.
package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quotalab/quotad/pkg/engine"
	"github.com/quotalab/quotad/pkg/provider"
)

type contextKey string

const traceIDKey contextKey = "trace_id"

// Interfaces for dependencies to enable mocking

// QuotaSource yields the latest per-account aggregates.
type QuotaSource interface {
	Latest() []engine.Aggregate
	Get(accountID string) (engine.Aggregate, bool)
	UpdatedAt() time.Time
}

// Refresher triggers out-of-schedule fetches. RefreshAll reports false
// when a batch is already in flight; RefreshOne additionally reports
// whether the account exists.
type Refresher interface {
	RefreshAll(ctx context.Context) (started bool)
	RefreshOne(ctx context.Context, accountID string) (started bool, known bool)
}

// AccountSource yields the currently configured accounts.
type AccountSource interface {
	Accounts() []provider.Account
}

// HistorySource yields recent fetch results for one account.
type HistorySource interface {
	History(ctx context.Context, accountID string, limit int) ([]engine.Aggregate, error)
}

// Server encapsulates the HTTP API server.
type Server struct {
	quotas    QuotaSource
	refresher Refresher
	accounts  AccountSource
	history   HistorySource
	server    *http.Server
	handler   http.Handler
}

// NewServer creates the API server. history may be nil when the daemon
// runs without a persistent store.
func NewServer(quotas QuotaSource, refresher Refresher, accounts AccountSource, history HistorySource, addr string) *Server {
	s := &Server{
		quotas:    quotas,
		refresher: refresher,
		accounts:  accounts,
		history:   history,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", s.handleHealth)
	mux.HandleFunc("/v1/quotas", s.handleQuotas)
	mux.HandleFunc("/v1/accounts", s.handleAccounts)
	mux.HandleFunc("/v1/refresh", s.handleRefresh)
	mux.HandleFunc("/v1/history", s.handleHistory)
	mux.Handle("/metrics", promhttp.Handler())

	// Middleware: Logging, Panic Recovery, Security Headers
	s.handler = withLogging(withRecovery(withSecureHeaders(mux)))

	if addr == "" {
		addr = ":8095"
	}
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	return s
}

// Handler exposes the middleware-wrapped handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start runs the HTTP server (blocking).
func (s *Server) Start() error {
	fmt.Printf(`{"level":"info","msg":"server_starting","addr":"%s"}`+"\n", s.server.Addr)
	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	fmt.Println(`{"level":"info","msg":"server_stopping"}`)
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		UpdatedAt: s.quotas.UpdatedAt(),
	})
}

func (s *Server) handleQuotas(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	if accountID := r.URL.Query().Get("account"); accountID != "" {
		agg, ok := s.quotas.Get(accountID)
		if !ok {
			http.Error(w, `{"error":"account_not_found"}`, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, agg)
		return
	}

	quotas := s.quotas.Latest()
	if quotas == nil {
		quotas = []engine.Aggregate{}
	}
	writeJSON(w, http.StatusOK, QuotasResponse{
		Quotas:    quotas,
		UpdatedAt: s.quotas.UpdatedAt(),
	})
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	accounts := s.accounts.Accounts()
	views := make([]AccountView, 0, len(accounts))
	for _, acct := range accounts {
		views = append(views, AccountView{
			ID:            acct.ID,
			Provider:      string(acct.Kind),
			Enabled:       acct.Enabled,
			HasCredential: acct.Credential != "",
		})
	}
	writeJSON(w, http.StatusOK, AccountsResponse{Accounts: views})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	if accountID := r.URL.Query().Get("account"); accountID != "" {
		started, known := s.refresher.RefreshOne(r.Context(), accountID)
		if !known {
			http.Error(w, `{"error":"account_not_found"}`, http.StatusNotFound)
			return
		}
		writeRefresh(w, started)
		return
	}
	writeRefresh(w, s.refresher.RefreshAll(r.Context()))
}

// writeRefresh maps the single-flight outcome: a newly started fetch is
// a 202, a duplicate request answers 200 without doing anything.
func writeRefresh(w http.ResponseWriter, started bool) {
	if started {
		writeJSON(w, http.StatusAccepted, RefreshResponse{Status: "started"})
		return
	}
	writeJSON(w, http.StatusOK, RefreshResponse{Status: "already_running"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	if s.history == nil {
		http.Error(w, `{"error":"history_unavailable"}`, http.StatusNotImplemented)
		return
	}

	accountID := r.URL.Query().Get("account")
	if accountID == "" {
		http.Error(w, `{"error":"missing_account_parameter"}`, http.StatusBadRequest)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, `{"error":"invalid_limit"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := s.history.History(r.Context(), accountID, limit)
	if err != nil {
		fmt.Printf(`{"level":"error","msg":"history_query_failed","trace_id":"%s","error":"%v"}`+"\n", getTraceID(r.Context()), err)
		http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []engine.Aggregate{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{AccountID: accountID, Entries: entries})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Printf(`{"level":"error","msg":"failed_to_encode_response","error":"%v"}`+"\n", err)
	}
}

// Middleware: Panic Recovery
func withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				fmt.Printf(`{"level":"error","msg":"panic_recovered","error":"%v","path":"%s"}`+"\n", err, r.URL.Path)
				http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Middleware: Request Logging
func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = generateTraceID()
		}

		ctx := context.WithValue(r.Context(), traceIDKey, traceID)
		r = r.WithContext(ctx)

		// Wrap writer to capture status code
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		w.Header().Set("X-Trace-ID", traceID)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		fmt.Printf(`{"level":"info","msg":"http_request","trace_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`+"\n",
			traceID, r.Method, r.URL.Path, ww.status, duration.Milliseconds())
	})
}

func generateTraceID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func getTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// statusWriter captures HTTP status code
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Middleware: Secure Headers
func withSecureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")

		next.ServeHTTP(w, r)
	})
}
