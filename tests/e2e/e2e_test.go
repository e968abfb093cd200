package e2e_test

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/quotalab/quotad/pkg/client"
)

// Runs against a live daemon: E2E=true QUOTAD_ENDPOINT=... go test ./tests/e2e
func TestEndToEnd(t *testing.T) {
	if os.Getenv("E2E") != "true" {
		t.Skip("Skipping e2e test")
	}

	endpoint := os.Getenv("QUOTAD_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:8095"
	}

	c := client.NewClient(endpoint)

	// Poll health until the daemon is up
	var err error
	for i := 0; i < 30; i++ {
		_, err = c.Health(context.Background())
		if err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		t.Fatal("Failed to reach daemon after 30 seconds")
	}

	accounts, err := c.GetAccounts(context.Background())
	if err != nil {
		t.Fatalf("GetAccounts failed: %v", err)
	}

	quotas, err := c.GetQuotas(context.Background())
	if err != nil {
		t.Fatalf("GetQuotas failed: %v", err)
	}
	if len(quotas.Quotas) != len(accounts) {
		t.Errorf("expected one aggregate per account: %d accounts, %d quotas", len(accounts), len(quotas.Quotas))
	}

	// Trigger a refresh and poll until the data timestamp moves
	before := quotas.UpdatedAt
	result, err := c.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if result.Started() {
		deadline := time.Now().Add(30 * time.Second)
		for time.Now().Before(deadline) {
			quotas, err = c.GetQuotas(context.Background())
			if err == nil && quotas.UpdatedAt.After(before) {
				break
			}
			time.Sleep(time.Second)
		}
		if !quotas.UpdatedAt.After(before) {
			t.Error("refresh never advanced the data timestamp")
		}
	}

	// Metrics endpoint is serving
	resp, err := http.Get(endpoint + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 from /metrics, got %d", resp.StatusCode)
	}
}
