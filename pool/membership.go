package pool

import (
	"sort"
	"sync"

	"github.com/sandialabs/faodel-sub003/cmn"
)

// Membership is a pool's ordered member list. Ordering is by NodeID so
// every node in the pool computes the same placement index from the
// same membership snapshot (spec §4.6: "ordered membership list").
//
// The core consumes a resolved membership list only (spec §1: "the
// core consumes a resolved membership list only") -- a directory
// manager or other out-of-band mechanism is responsible for deciding
// who is allowed to join a pool before a node ever reaches this type.
type Membership struct {
	mu      sync.RWMutex
	members []cmn.NodeID
}

// NewMembership builds a Membership from an already-resolved set of
// member node IDs.
func NewMembership(members []cmn.NodeID) *Membership {
	m := &Membership{}
	for _, n := range members {
		m.insert(n)
	}
	return m
}

// Add inserts node into the ordered membership list (a no-op if it is
// already present). Used when an externally-resolved list grows, e.g.
// a node the directory manager has already vetted joining a running
// pool.
func (m *Membership) Add(node cmn.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insert(node)
}

func (m *Membership) insert(node cmn.NodeID) {
	for _, n := range m.members {
		if n == node {
			return
		}
	}
	m.members = append(m.members, node)
	sort.Slice(m.members, func(i, j int) bool { return m.members[i] < m.members[j] })
}

// Snapshot returns a copy of the current ordered membership.
func (m *Membership) Snapshot() []cmn.NodeID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]cmn.NodeID, len(m.members))
	copy(out, m.members)
	return out
}

// Remove drops node from the membership (a peer leaving or evicted).
func (m *Membership) Remove(node cmn.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, n := range m.members {
		if n == node {
			m.members = append(m.members[:i], m.members[i+1:]...)
			return
		}
	}
}
