package provider

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MockProvider returns scripted snapshots for testing. It supports
// injected errors, artificial latency, and counts every Fetch call.
type MockProvider struct {
	kind    Kind
	mu      sync.Mutex
	script  []UsageSnapshot
	next    int
	err     error
	latency time.Duration
	calls   atomic.Int64
}

// NewMockProvider creates a mock with a single default snapshot.
func NewMockProvider(kind Kind) *MockProvider {
	m := &MockProvider{kind: kind}
	m.Script(UsageSnapshot{
		Primary: CycleMetrics{
			Used:    Float64(0),
			Total:   Float64(5000),
			ResetAt: Time(time.Now().Add(1 * time.Hour)),
		},
	})
	return m
}

// Script replaces the snapshot sequence. The last entry repeats once
// the script is exhausted.
func (m *MockProvider) Script(snaps ...UsageSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = snaps
	m.next = 0
}

// SetError makes every subsequent Fetch fail with err (nil clears it).
func (m *MockProvider) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetLatency adds an artificial delay before each Fetch returns.
func (m *MockProvider) SetLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
}

// Calls returns how many times Fetch has been invoked.
func (m *MockProvider) Calls() int64 {
	return m.calls.Load()
}

func (m *MockProvider) Kind() Kind {
	return m.kind
}

func (m *MockProvider) Fetch(ctx context.Context, acct Account) (UsageSnapshot, error) {
	m.calls.Add(1)

	m.mu.Lock()
	latency := m.latency
	err := m.err
	m.mu.Unlock()

	if latency > 0 {
		select {
		case <-ctx.Done():
			return UsageSnapshot{}, TransportError(ctx.Err())
		case <-time.After(latency):
		}
	}

	if err != nil {
		return UsageSnapshot{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.script[m.next]
	if m.next < len(m.script)-1 {
		m.next++
	}
	snap.FetchedAt = time.Now().UTC()
	return snap, nil
}
