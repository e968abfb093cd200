// Package client is the Go SDK for the quotad HTTP API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const getAttempts = 3

// Client talks to a running quotad daemon.
type Client struct {
	endpoint string
	http     *http.Client
	backoff  BackoffStrategy
}

// NewClient creates a new quotad client.
// endpoint defaults to "http://127.0.0.1:8095" if empty.
func NewClient(endpoint string) *Client {
	if endpoint == "" {
		endpoint = "http://127.0.0.1:8095"
	}
	return &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		backoff: DefaultBackoff(),
	}
}

// Health checks the daemon.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.getJSON(ctx, "/v1/health", &out)
	return out, err
}

// GetQuotas returns the latest aggregates for every account, in the
// configured account order.
func (c *Client) GetQuotas(ctx context.Context) (QuotasResult, error) {
	var out QuotasResult
	err := c.getJSON(ctx, "/v1/quotas", &out)
	return out, err
}

// GetQuota returns the latest aggregate for one account.
func (c *Client) GetQuota(ctx context.Context, accountID string) (Quota, error) {
	var out Quota
	err := c.getJSON(ctx, "/v1/quotas?account="+url.QueryEscape(accountID), &out)
	return out, err
}

// GetAccounts lists the configured accounts with credentials redacted.
func (c *Client) GetAccounts(ctx context.Context) ([]Account, error) {
	var out accountsResult
	if err := c.getJSON(ctx, "/v1/accounts", &out); err != nil {
		return nil, err
	}
	return out.Accounts, nil
}

// Refresh triggers a fetch of all accounts.
func (c *Client) Refresh(ctx context.Context) (RefreshResult, error) {
	return c.postRefresh(ctx, "/v1/refresh")
}

// RefreshAccount triggers a fetch of one account.
func (c *Client) RefreshAccount(ctx context.Context, accountID string) (RefreshResult, error) {
	return c.postRefresh(ctx, "/v1/refresh?account="+url.QueryEscape(accountID))
}

// GetHistory returns recent fetch results for one account, newest
// first. limit <= 0 uses the daemon's default.
func (c *Client) GetHistory(ctx context.Context, accountID string, limit int) (HistoryResult, error) {
	path := "/v1/history?account=" + url.QueryEscape(accountID)
	if limit > 0 {
		path += fmt.Sprintf("&limit=%d", limit)
	}
	var out HistoryResult
	err := c.getJSON(ctx, path, &out)
	return out, err
}

// getJSON performs a GET with retries on transient failures (network
// errors and 5xx responses), backing off between attempts.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	var lastErr error
	for attempt := 0; attempt < getAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.backoff.Next(attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, "GET", c.endpoint+path, nil)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("request failed after %d attempts: %w", getAttempts, lastErr)
}

func (c *Client) postRefresh(ctx context.Context, path string) (RefreshResult, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint+path, nil)
	if err != nil {
		return RefreshResult{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return RefreshResult{}, err
	}
	defer resp.Body.Close()

	// 202 means a fetch started, 200 means one was already running.
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return RefreshResult{}, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var out RefreshResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return RefreshResult{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return out, nil
}
