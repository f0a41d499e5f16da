// Package presence tracks which identities are currently in view and reports
// arrivals and departures between processed frames.
package presence

import (
	"sync"

	"github.com/kozaktomas/face-attendance/internal/identity"
)

// Tracker holds the set of identities considered present.
//
// With departAfter == 1 an update is a pure set difference against the
// previous processed frame. Larger values require that many consecutive
// frames without an identity before it departs.
type Tracker struct {
	mu          sync.RWMutex
	departAfter int
	present     identity.Set
	misses      map[identity.Identity]int
}

// NewTracker creates an empty tracker. Values below 1 are treated as 1.
func NewTracker(departAfter int) *Tracker {
	if departAfter < 1 {
		departAfter = 1
	}
	return &Tracker{
		departAfter: departAfter,
		present:     identity.NewSet(),
		misses:      make(map[identity.Identity]int),
	}
}

// Update applies one processed frame's observed set and returns the
// identities that arrived and departed with it.
func (t *Tracker) Update(observed identity.Set) (arrived, departed identity.Set) {
	t.mu.Lock()
	defer t.mu.Unlock()

	arrived = observed.Minus(t.present)
	departed = identity.NewSet()

	for id := range t.present {
		if observed.Has(id) {
			delete(t.misses, id)
			continue
		}
		t.misses[id]++
		if t.misses[id] >= t.departAfter {
			departed[id] = struct{}{}
		}
	}

	for id := range departed {
		delete(t.present, id)
		delete(t.misses, id)
	}
	for id := range arrived {
		t.present[id] = struct{}{}
	}

	return arrived, departed
}

// Present returns the identities currently present in lexical order.
func (t *Tracker) Present() []identity.Identity {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.present.Sorted()
}

// DepartAfter returns the configured departure window.
func (t *Tracker) DepartAfter() int {
	return t.departAfter
}
