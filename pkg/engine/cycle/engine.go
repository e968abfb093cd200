// Package cycle learns the periodic interval between quota cycle
// resets and fills in reset times providers do not report themselves.
package cycle

import (
	"sort"
	"time"
)

const (
	dedupeTolerance = 60 * time.Second
	maxObservations = 8
	minDelta        = 5 * time.Minute

	minInterval = 30 * time.Minute
	maxInterval = 45 * 24 * time.Hour

	adoptConfidence  = 0.60
	driftTolerance   = 0.20
	blendOldWeight   = 0.6
	blendNewWeight   = 0.4
	confidenceRaise  = 0.10
	raiseFloor       = 0.55
	confidenceDrop   = 0.20
	dropFloor        = 0.25
	regimeThreshold  = 0.40
	regimeConfidence = 0.55

	predictMinConfidence = 0.55
	observationMaxAge    = 21 * 24 * time.Hour
	maxPredictSteps      = 128
)

// Resolve records or predicts the reset time for one cycle slot.
// observed is the reset time reported by the provider, nil when it did
// not report one. Resolve is pure over (now, observed, state): callers
// own persistence of the returned state.
func Resolve(now time.Time, observed *time.Time, state State) (Resolution, State) {
	state = sanitize(state)

	if observed != nil {
		state = recordObservation(now, *observed, state)
		state = updateInterval(state)
		return Resolution{ResetAt: observed, Estimated: false}, state
	}

	if predicted, ok := predictReset(now, state); ok {
		return Resolution{ResetAt: &predicted, Estimated: true}, state
	}
	return Resolution{}, state
}

// sanitize treats malformed or implausible persisted state as absent
// rather than failing.
func sanitize(state State) State {
	if state.LearnedInterval != 0 && (state.LearnedInterval < minInterval || state.LearnedInterval > maxInterval) {
		state.LearnedInterval = 0
	}
	if state.Confidence < 0 {
		state.Confidence = 0
	}
	if state.Confidence > 1 {
		state.Confidence = 1
	}
	if len(state.ObservedResets) > 0 {
		resets := append([]time.Time(nil), state.ObservedResets...)
		sort.Slice(resets, func(i, j int) bool { return resets[i].Before(resets[j]) })
		if len(resets) > maxObservations {
			resets = resets[len(resets)-maxObservations:]
		}
		state.ObservedResets = resets
	}
	return state
}

func recordObservation(now, reset time.Time, state State) State {
	duplicate := false
	for _, existing := range state.ObservedResets {
		if absDuration(reset.Sub(existing)) <= dedupeTolerance {
			duplicate = true
			break
		}
	}
	if !duplicate {
		resets := append(append([]time.Time(nil), state.ObservedResets...), reset)
		sort.Slice(resets, func(i, j int) bool { return resets[i].Before(resets[j]) })
		if len(resets) > maxObservations {
			resets = resets[len(resets)-maxObservations:]
		}
		state.ObservedResets = resets
	}
	state.LastObservedAt = now
	return state
}

// updateInterval derives the median delta between consecutive observed
// resets and folds it into the learned interval per the drift rules.
func updateInterval(state State) State {
	deltas := resetDeltas(state.ObservedResets)
	if len(deltas) == 0 {
		return state
	}
	median := medianDuration(deltas)
	if median < minInterval || median > maxInterval {
		// Implausible interval, no update this round.
		return state
	}

	if state.LearnedInterval == 0 {
		state.LearnedInterval = median
		state.Confidence = adoptConfidence
		return state
	}

	drift := absDuration(median-state.LearnedInterval).Seconds() / state.LearnedInterval.Seconds()
	if drift <= driftTolerance {
		blended := time.Duration(float64(state.LearnedInterval)*blendOldWeight + float64(median)*blendNewWeight)
		state.LearnedInterval = blended
		c := state.Confidence
		if c < raiseFloor {
			c = raiseFloor
		}
		c += confidenceRaise
		if c > 1 {
			c = 1
		}
		state.Confidence = c
		return state
	}

	c := state.Confidence - confidenceDrop
	if c < dropFloor {
		c = dropFloor
	}
	state.Confidence = c
	if c < regimeThreshold {
		// Regime change rather than noise: adopt the new rhythm.
		state.LearnedInterval = median
		state.Confidence = regimeConfidence
	}
	return state
}

// resetDeltas returns the sorted, deduplicated deltas between
// consecutive observations, dropping anything at or below 5 minutes.
func resetDeltas(resets []time.Time) []time.Duration {
	var deltas []time.Duration
	for i := 1; i < len(resets); i++ {
		d := resets[i].Sub(resets[i-1])
		if d <= minDelta {
			continue
		}
		deltas = append(deltas, d)
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i] < deltas[j] })

	deduped := deltas[:0]
	var prev time.Duration = -1
	for _, d := range deltas {
		if d == prev {
			continue
		}
		deduped = append(deduped, d)
		prev = d
	}
	return deduped
}

// predictReset extrapolates the next reset from the latest observation.
// It refuses to predict when the learned interval is absent or tiny,
// confidence is too low, the last real observation is stale, or there
// is no anchor to extrapolate from. The iteration count is bounded to
// guard against corrupted interval state.
func predictReset(now time.Time, state State) (time.Time, bool) {
	if state.LearnedInterval <= 5*time.Minute {
		return time.Time{}, false
	}
	if state.Confidence < predictMinConfidence {
		return time.Time{}, false
	}
	if state.LastObservedAt.IsZero() || now.Sub(state.LastObservedAt) > observationMaxAge {
		return time.Time{}, false
	}
	if len(state.ObservedResets) == 0 {
		return time.Time{}, false
	}

	next := state.ObservedResets[len(state.ObservedResets)-1]
	for i := 0; i < maxPredictSteps; i++ {
		next = next.Add(state.LearnedInterval)
		if next.After(now) {
			return next, true
		}
	}
	return time.Time{}, false
}

func medianDuration(sorted []time.Duration) time.Duration {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
