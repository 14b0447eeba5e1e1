// Package srp implements the Safety Report protocol: SPEC_FULL.md treats
// SR as BP's degenerate client, a one-hop neighbour table refreshed purely
// by "I am alive" beacons, sharing the array-AVL-backed fixed-capacity
// storage pattern used elsewhere in this substrate.
package srp

import (
	"sync"
	"time"

	"github.com/dcp-vardis/dcp-vardis-go/internal/shm"
	"github.com/dcp-vardis/dcp-vardis-go/internal/wire"
)

// Neighbour is one row of the neighbour table: the last time a station's
// safety beacon was seen.
type Neighbour struct {
	NodeId   wire.NodeId
	LastSeen time.Time
}

// Table is the fixed-capacity neighbour table, array-AVL-indexed by a
// NodeId folded into a uint64 key (the tree is generic over uint64 keys;
// this is the same reuse the original's srp_store_fixedmem.h makes of its
// array-backed table for any fixed-key-space lookup).
type Table struct {
	mu        sync.Mutex
	tree      *shm.ArrayAVL
	neighbors []Neighbour // index == AVL node value, reused as the backing store
	freeSlots []int32
	staleAfter time.Duration
}

func nodeIdKey(n wire.NodeId) uint64 {
	var k uint64
	for _, b := range n {
		k = (k << 8) | uint64(b)
	}
	return k
}

// NewTable allocates a table holding at most capacity neighbours, each
// considered stale (and evictable) after staleAfter without a fresh
// beacon.
func NewTable(capacity int, staleAfter time.Duration) *Table {
	free := make([]int32, capacity)
	for i := range free {
		free[i] = int32(capacity - 1 - i)
	}
	return &Table{
		tree:       shm.NewArrayAVL(capacity),
		neighbors:  make([]Neighbour, capacity),
		freeSlots:  free,
		staleAfter: staleAfter,
	}
}

// Refresh records a received safety beacon, inserting a new row or
// updating an existing one's LastSeen.
func (t *Table) Refresh(b wire.SafetyBeacon, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := nodeIdKey(b.SenderId)
	if slot, ok := t.tree.Get(key); ok {
		t.neighbors[slot].LastSeen = now
		return true
	}
	if len(t.freeSlots) == 0 {
		return false
	}
	slot := t.freeSlots[len(t.freeSlots)-1]
	t.freeSlots = t.freeSlots[:len(t.freeSlots)-1]
	if !t.tree.Insert(key, slot) {
		t.freeSlots = append(t.freeSlots, slot)
		return false
	}
	t.neighbors[slot] = Neighbour{NodeId: b.SenderId, LastSeen: now}
	return true
}

// Contains reports whether id currently has a live row.
func (t *Table) Contains(id wire.NodeId) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.tree.Get(nodeIdKey(id))
	return ok
}

// EvictStale drops every row whose LastSeen is older than staleAfter
// relative to now, returning how many rows were evicted.
func (t *Table) EvictStale(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	var stale []wire.NodeId
	t.tree.InOrder(func(key uint64, slot int32) {
		if now.Sub(t.neighbors[slot].LastSeen) > t.staleAfter {
			stale = append(stale, t.neighbors[slot].NodeId)
		}
	})
	for _, id := range stale {
		key := nodeIdKey(id)
		if slot, ok := t.tree.Get(key); ok {
			t.tree.Remove(key)
			t.neighbors[slot] = Neighbour{}
			t.freeSlots = append(t.freeSlots, slot)
		}
	}
	return len(stale)
}

// Snapshot returns every live neighbour in NodeId order.
func (t *Table) Snapshot() []Neighbour {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Neighbour, 0, t.tree.Len())
	t.tree.InOrder(func(key uint64, slot int32) {
		out = append(out, t.neighbors[slot])
	})
	return out
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tree.Len()
}
