package cycle

import (
	"time"
)

// Slot names the two independent quota windows a provider can expose.
type Slot string

const (
	SlotPrimary   Slot = "primary"
	SlotSecondary Slot = "secondary"
)

// Key identifies one learning state: account x cycle slot.
type Key struct {
	AccountID string `json:"account_id"`
	Slot      Slot   `json:"slot"`
}

// State is the persisted learning state for one account/slot pair.
// It is created lazily on first resolution and mutated only by Resolve.
type State struct {
	// ObservedResets holds distinct reset timestamps, ascending,
	// deduplicated within a 60s tolerance, capped to the 8 most recent.
	ObservedResets []time.Time `json:"observed_resets,omitempty"`

	// LearnedInterval is the derived periodic interval. Zero means no
	// interval has been learned yet.
	LearnedInterval time.Duration `json:"learned_interval,omitempty"`

	// Confidence in [0,1] that the learned interval is stable.
	Confidence float64 `json:"confidence"`

	// LastObservedAt is when the most recent real (non-predicted)
	// observation was recorded. Zero means never.
	LastObservedAt time.Time `json:"last_observed_at,omitempty"`
}

// Resolution is the per-slot outcome of a Resolve call.
type Resolution struct {
	// ResetAt is the resolved reset time, nil when neither the provider
	// nor prediction could supply one.
	ResetAt *time.Time

	// Estimated is true when ResetAt came from prediction rather than
	// the provider.
	Estimated bool
}
