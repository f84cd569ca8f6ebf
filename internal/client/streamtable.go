package client

import "sync"

// StreamTable is the client's coarse-locked {hear_targets, stream_buffers,
// dynamic_jitter_target} shared state (spec.md §5). Grounded on
// _examples/Zokiio-ovc/voice-client/internal/client/voice_client.go's
// playerBuffers map plus its single playersMu guarding it, generalized to
// also own the hear-target set and the adaptive jitter target so they
// mutate under the same lock spec.md requires.
type StreamTable struct {
	mu          sync.Mutex
	streams     map[string]*StreamState
	hearTargets map[string]struct{}
	targetFill  int
}

// NewStreamTable creates an empty table with the default jitter target.
func NewStreamTable() *StreamTable {
	return &StreamTable{
		streams:     make(map[string]*StreamState),
		hearTargets: make(map[string]struct{}),
		targetFill:  DefaultTargetFill,
	}
}

// getOrCreate returns the StreamState for senderID, creating one (with the
// current dynamic jitter target) if this is a new sender, per spec.md
// §4.3 ("creates a StreamState for a new sender and pushes").
func (t *StreamTable) getOrCreate(senderID string) *StreamState {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.streams[senderID]
	if !ok {
		s = NewStreamState(t.targetFill)
		t.streams[senderID] = s
	}
	return s
}

// SetHearTargets replaces the hear set. Per spec.md §8, this is idempotent
// and any sender removed from the set has its StreamState destroyed
// (spec.md §9: "destruction on set_hear_targets mutation is by removing
// from the map").
func (t *StreamTable) SetHearTargets(targets []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := make(map[string]struct{}, len(targets))
	for _, id := range targets {
		next[id] = struct{}{}
	}
	for id := range t.hearTargets {
		if _, keep := next[id]; !keep {
			delete(t.streams, id)
		}
	}
	t.hearTargets = next
}

// HearTargetsSnapshot returns a copy of the current hear set, for the
// Mixer to iterate without holding the lock across pop_for_mix calls.
func (t *StreamTable) HearTargetsSnapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, 0, len(t.hearTargets))
	for id := range t.hearTargets {
		out = append(out, id)
	}
	return out
}

// Lookup returns the StreamState for id if one exists and id is currently
// in the hear set.
func (t *StreamTable) Lookup(id string) (*StreamState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, heard := t.hearTargets[id]; !heard {
		return nil, false
	}
	s, ok := t.streams[id]
	return s, ok
}

// SetTargetFill applies a new jitter target to every existing StreamState
// and records it as the initial value for future ones (spec.md §4.10).
func (t *StreamTable) SetTargetFill(fill int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.targetFill = fill
	for _, s := range t.streams {
		s.SetTargetFill(fill)
	}
}

// TargetFill returns the current dynamic jitter target.
func (t *StreamTable) TargetFill() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.targetFill
}

// StreamCount reports how many StreamStates currently exist, for tests and
// Stats().
func (t *StreamTable) StreamCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.streams)
}
