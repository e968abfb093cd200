package provider

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

// Candidate is one endpoint/interpretation an adapter can try.
type Candidate struct {
	Name string
	Run  func(ctx context.Context) (UsageSnapshot, error)
}

// RunChain tries candidates in priority order and returns the first
// snapshot that carries plausible data. Failures fall through to the
// next candidate; the first auth-class error seen is remembered and
// preferred over a generic "no data" error once the chain is exhausted.
func RunChain(ctx context.Context, candidates []Candidate) (UsageSnapshot, error) {
	var authErr *FetchError
	for _, cand := range candidates {
		snap, err := cand.Run(ctx)
		if err != nil {
			if fe, ok := AsFetchError(err); ok && fe.AuthRelated() && authErr == nil {
				authErr = fe
			}
			continue
		}
		if snap.HasData() {
			if snap.FetchedAt.IsZero() {
				snap.FetchedAt = time.Now().UTC()
			}
			return snap, nil
		}
	}
	if authErr != nil {
		return UsageSnapshot{}, authErr
	}
	return UsageSnapshot{}, ErrNoData()
}

const maxErrorBodySize = 512

// DoRequest executes req and returns the response body, mapping
// failures onto the adapter error taxonomy. Non-2xx statuses become
// protocol errors carrying a truncated body excerpt as the message.
func DoRequest(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, TransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, ProtocolError(resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, TransportError(err)
	}
	return body, nil
}
