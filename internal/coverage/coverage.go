// Package coverage implements the shared feedback table keyed on broker
// response bytes: the mechanism by which one worker's discovery becomes
// every worker's seed corpus.
package coverage

import (
	"math/rand"
	"sync"

	"mqttfume/fume/internal/packets"
)

// Table maps a broker response's exact bytes to the packet sequence that
// first produced it. Entries are never removed or mutated once inserted;
// cardinality grows monotonically. It is safe for concurrent use: many
// concurrent Observe calls are allowed, each under a short critical
// section (one map lookup, or one insert).
type Table struct {
	mu      sync.RWMutex
	entries map[string]*packets.Sequence
	keys    []string
}

// New returns an empty coverage table.
func New() *Table {
	return &Table{entries: make(map[string]*packets.Sequence)}
}

// Observe records that response was seen for input. If response is a new
// key, (response -> clone(input)) is inserted and Observe returns true;
// otherwise the table is left untouched and Observe returns false. The
// check-then-insert happens under an exclusive lock that re-checks key
// absence, so concurrent callers racing on the same new key never both win.
func (t *Table) Observe(response []byte, input *packets.Sequence) bool {
	key := string(response)

	t.mu.RLock()
	_, exists := t.entries[key]
	t.mu.RUnlock()
	if exists {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.entries[key]; exists {
		return false
	}
	t.entries[key] = input.Clone()
	t.keys = append(t.keys, key)
	return true
}

// Sample uniformly picks an existing value and returns a clone of it. It
// panics if the table is empty; callers must check IsEmpty first.
func (t *Table) Sample(rng *rand.Rand) *packets.Sequence {
	t.mu.RLock()
	defer t.mu.RUnlock()
	key := t.keys[rng.Intn(len(t.keys))]
	return t.entries[key].Clone()
}

// IsEmpty reports whether the table has no entries.
func (t *Table) IsEmpty() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.keys) == 0
}

// Len returns the current entry count.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.keys)
}

// Seed inserts (key -> seq) if key is not already present; an existing entry
// is left untouched, as with Observe. It is meant for startup population only
// (loading a persisted snapshot or the CVE corpus), never for use from a
// worker session.
func (t *Table) Seed(key []byte, seq *packets.Sequence) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := string(key)
	if _, exists := t.entries[k]; exists {
		return
	}
	t.entries[k] = seq.Clone()
	t.keys = append(t.keys, k)
}

// Snapshot returns a copy of every (key, sequence) pair currently held, for
// persistence. The returned sequences are clones safe for the caller to
// hold onto after the table continues mutating.
func (t *Table) Snapshot() map[string]*packets.Sequence {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]*packets.Sequence, len(t.keys))
	for _, k := range t.keys {
		out[k] = t.entries[k].Clone()
	}
	return out
}
