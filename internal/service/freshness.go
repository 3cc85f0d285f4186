package service

import "time"

// State is the outcome of a freshness check.
type State int

const (
	// StateFresh serves the in-memory table as is.
	StateFresh State = iota
	// StateStale adopts a newer document from the shared store (careful refresh).
	StateStale
	// StateExpired goes back to the feed (straight refresh).
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// freshnessInput is everything the state machine looks at.
type freshnessInput struct {
	now time.Time
	ttl time.Duration

	// what this instance last ingested
	loaded bool
	marker time.Time

	// timestamp of the valid document currently in the store, if any
	hasShared bool
	shared    time.Time
}

// evaluateFreshness decides whether a rate request needs a refresh first.
//
// The expiry check runs against the shared document when there is one, so an
// instance never goes to the network while a sibling's newer document is still
// within the TTL. A zero TTL never expires but still follows the shared store.
func evaluateFreshness(in freshnessInput) State {
	effective := in.marker
	if in.hasShared {
		effective = in.shared
	}

	if in.ttl > 0 && in.now.After(effective.Add(in.ttl)) {
		return StateExpired
	}
	if !in.loaded || (in.hasShared && !in.shared.Equal(in.marker)) {
		return StateStale
	}
	return StateFresh
}
