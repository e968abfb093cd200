package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/quotalab/quotad/pkg/engine/cycle"
)

// fakeClient implements Client over a plain map.
type fakeClient struct {
	values map[string]string
	sets   map[string]map[string]bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		values: make(map[string]string),
		sets:   make(map[string]map[string]bool),
	}
}

func (f *fakeClient) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *goredis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		f.values[key] = string(v)
	case string:
		f.values[key] = v
	}
	return goredis.NewStatusResult("OK", nil)
}

func (f *fakeClient) SAdd(ctx context.Context, key string, members ...interface{}) *goredis.IntCmd {
	set := f.sets[key]
	if set == nil {
		set = make(map[string]bool)
		f.sets[key] = set
	}
	var added int64
	for _, m := range members {
		s, _ := m.(string)
		if !set[s] {
			set[s] = true
			added++
		}
	}
	return goredis.NewIntResult(added, nil)
}

func (f *fakeClient) SMembers(ctx context.Context, key string) *goredis.StringSliceCmd {
	var out []string
	for member := range f.sets[key] {
		out = append(out, member)
	}
	return goredis.NewStringSliceResult(out, nil)
}

func (f *fakeClient) MGet(ctx context.Context, keys ...string) *goredis.SliceCmd {
	out := make([]interface{}, len(keys))
	for i, key := range keys {
		if v, ok := f.values[key]; ok {
			out[i] = v
		}
	}
	return goredis.NewSliceResult(out, nil)
}

func TestStateStore_RoundTrip(t *testing.T) {
	client := newFakeClient()
	s := NewStateStore(client)
	ctx := context.Background()

	anchor := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	states := map[cycle.Key]cycle.State{
		{AccountID: "work", Slot: cycle.SlotPrimary}: {
			ObservedResets:  []time.Time{anchor},
			LearnedInterval: 6 * time.Hour,
			Confidence:      0.7,
			LastObservedAt:  anchor,
		},
		{AccountID: "side", Slot: cycle.SlotSecondary}: {Confidence: 0.25},
	}
	if err := s.SaveAll(ctx, states); err != nil {
		t.Fatalf("SaveAll failed: %v", err)
	}

	loaded, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 states, got %d", len(loaded))
	}
	got := loaded[cycle.Key{AccountID: "work", Slot: cycle.SlotPrimary}]
	if got.LearnedInterval != 6*time.Hour || got.Confidence != 0.7 {
		t.Errorf("state lost: %+v", got)
	}
	if len(got.ObservedResets) != 1 || !got.ObservedResets[0].Equal(anchor) {
		t.Errorf("observations lost: %v", got.ObservedResets)
	}
}

func TestStateStore_EmptyLoad(t *testing.T) {
	s := NewStateStore(newFakeClient())
	loaded, err := s.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("expected empty map, got %d entries", len(loaded))
	}
}

func TestStateStore_CorruptValueSkipped(t *testing.T) {
	client := newFakeClient()
	s := NewStateStore(client)
	ctx := context.Background()

	key := cycle.Key{AccountID: "a", Slot: cycle.SlotPrimary}
	if err := s.SaveAll(ctx, map[cycle.Key]cycle.State{key: {Confidence: 0.6}}); err != nil {
		t.Fatalf("SaveAll failed: %v", err)
	}
	client.values["quotad:cycle:bad:primary"] = "{not json"
	client.sets[keysSet]["quotad:cycle:bad:primary"] = true

	loaded, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(loaded) != 1 || loaded[key].Confidence != 0.6 {
		t.Errorf("corrupt value not skipped cleanly: %+v", loaded)
	}
}
