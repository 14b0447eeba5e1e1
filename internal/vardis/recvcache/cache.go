// Package recvcache provides a bounded duplicate-suppression cache for
// inbound VarUpdate records, a cheap short-circuit for the repetitive
// traffic a beaconing substrate produces (the same VarUpdate for a live
// variable recurring every window). Summaries are not passed through it.
// A skipped repeat is not always a no-op: the update handler would
// otherwise re-request a create for an unknown variable, or re-arm our
// own newer update for a lagging peer, on every copy it sees.
package recvcache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/dcp-vardis/dcp-vardis-go/internal/wire"
)

// Cache remembers the most recently observed VarSeqno for each VarId seen
// on the wire, bounded to a fixed capacity by eviction of the
// least-recently-used entry (mirrors the teacher's use of
// hashicorp/golang-lru for its bounded host/key caches).
type Cache struct {
	lru *lru.Cache
}

// New builds a Cache holding at most capacity entries.
func New(capacity int) (*Cache, error) {
	l, err := lru.New(capacity)
	if err != nil {
		return nil, fmt.Errorf("recvcache: %w", err)
	}
	return &Cache{lru: l}, nil
}

// Seen reports whether (varId, seqno) is bit-for-bit identical to the
// last record cached for varId — an exact repeat, not merely an older
// one — and remembers (varId, seqno) for next time. Using exact equality
// rather than circular recency means only an immediate repeat of the last
// record seen for varId is reported, never an older or newer seqno.
func (c *Cache) Seen(varId wire.VarId, seqno wire.VarSeqno) bool {
	v, ok := c.lru.Get(varId)
	wasSeen := ok && v.(wire.VarSeqno) == seqno
	c.lru.Add(varId, seqno)
	return wasSeen
}

// Purge drops any remembered seqno for varId, used when a variable is
// deleted or replaced so a stale high-water mark can't suppress its
// eventual re-creation under the same id.
func (c *Cache) Purge(varId wire.VarId) {
	c.lru.Remove(varId)
}

func (c *Cache) Len() int { return c.lru.Len() }
