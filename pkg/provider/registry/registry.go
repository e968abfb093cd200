// Package registry builds provider adapters from the closed kind set.
// Adding a provider means implementing the interface and listing it
// here; the orchestrator never changes.
package registry

import (
	"fmt"

	"github.com/quotalab/quotad/pkg/provider"
	"github.com/quotalab/quotad/pkg/provider/anthropic"
	"github.com/quotalab/quotad/pkg/provider/copilot"
	"github.com/quotalab/quotad/pkg/provider/cursor"
	"github.com/quotalab/quotad/pkg/provider/kiro"
	"github.com/quotalab/quotad/pkg/provider/openai"
	"github.com/quotalab/quotad/pkg/provider/zai"
)

// New creates the adapter for one provider kind.
func New(kind provider.Kind) (provider.Provider, error) {
	switch kind {
	case provider.KindAnthropic:
		return anthropic.New(), nil
	case provider.KindOpenAI:
		return openai.New(), nil
	case provider.KindZai:
		return zai.New(), nil
	case provider.KindKiro:
		return kiro.New(), nil
	case provider.KindCursor:
		return cursor.New(), nil
	case provider.KindCopilot:
		return copilot.New(), nil
	}
	return nil, fmt.Errorf("unknown provider kind: %s", kind)
}

// BuildAll creates one adapter per supported kind.
func BuildAll() map[provider.Kind]provider.Provider {
	out := make(map[provider.Kind]provider.Provider, len(provider.Kinds()))
	for _, kind := range provider.Kinds() {
		p, err := New(kind)
		if err != nil {
			continue
		}
		out[kind] = p
	}
	return out
}
