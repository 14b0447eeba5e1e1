package vardis

import (
	"sync"
	"time"

	"github.com/dcp-vardis/dcp-vardis-go/internal/vardis/recvcache"
	"github.com/dcp-vardis/dcp-vardis-go/internal/wire"
)

// Entry is one RTDB row (§3 "RTDB entry"). Exactly one lock — Store.mu —
// serializes all reads and writes to every Entry, including those from the
// rx driver, the tx driver, and the CRUD handlers (§5 "RTDB" ordering
// rule).
type Entry struct {
	Spec        wire.VarSpec
	Seqno       wire.VarSeqno
	Value       wire.VarValue
	TStamp      time.Time
	CountCreate wire.VarRepCnt
	CountUpdate wire.VarRepCnt
	CountDelete wire.VarRepCnt
	ToBeDeleted bool
}

func (e *Entry) isOwnVariable(own wire.NodeId) bool { return e.Spec.Producer == own }

// Store is the fixed-capacity RTDB: a slice sized at Config.StoreCapacity
// indexed directly by VarId, generalizing the teacher's flat-array +
// presence-bitmap pattern (kryptco-kr's Profile cache keyed by a bounded
// id space) to the variable store's array-backed layout named in §2.
type Store struct {
	mu       sync.Mutex
	entries  []*Entry // index == VarId; nil == absent
	queues   sixQueues
	ownNode  wire.NodeId
	cfg      Config
	dupCache *recvcache.Cache
}

func newStore(own wire.NodeId, cfg Config) *Store {
	dupCache, _ := recvcache.New(cfg.StoreCapacity)
	return &Store{
		entries:  make([]*Entry, cfg.StoreCapacity),
		queues:   newSixQueues(),
		ownNode:  own,
		cfg:      cfg,
		dupCache: dupCache,
	}
}

func (s *Store) get(id wire.VarId) *Entry {
	if int(id) >= len(s.entries) {
		return nil
	}
	return s.entries[int(id)]
}

func (s *Store) set(id wire.VarId, e *Entry) { s.entries[int(id)] = e }

func (s *Store) remove(id wire.VarId) {
	s.entries[int(id)] = nil
	s.queues.purgeAll(id)
	s.dupCache.Purge(id)
}

// DescribedVariable is the introspection snapshot returned by
// DescribeDatabase/DescribeVariable (§4.7).
type DescribedVariable struct {
	VarId       wire.VarId
	Spec        wire.VarSpec
	Seqno       wire.VarSeqno
	CountCreate wire.VarRepCnt
	CountUpdate wire.VarRepCnt
	CountDelete wire.VarRepCnt
	TStamp      time.Time
	IsDeleted   bool
	Value       wire.VarValue // populated only by DescribeVariable
}

// DescribeDatabase snapshots every active VarId under the store lock.
func (s *Store) DescribeDatabase() []DescribedVariable {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DescribedVariable, 0, len(s.entries))
	for i, e := range s.entries {
		if e == nil {
			continue
		}
		out = append(out, DescribedVariable{
			VarId: wire.VarId(i), Spec: e.Spec, Seqno: e.Seqno,
			CountCreate: e.CountCreate, CountUpdate: e.CountUpdate, CountDelete: e.CountDelete,
			TStamp: e.TStamp, IsDeleted: e.ToBeDeleted,
		})
	}
	return out
}

// DescribeVariable returns one variable's full snapshot including value.
func (s *Store) DescribeVariable(id wire.VarId) (DescribedVariable, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(id)
	if e == nil {
		return DescribedVariable{}, false
	}
	return DescribedVariable{
		VarId: id, Spec: e.Spec, Seqno: e.Seqno,
		CountCreate: e.CountCreate, CountUpdate: e.CountUpdate, CountDelete: e.CountDelete,
		TStamp: e.TStamp, IsDeleted: e.ToBeDeleted, Value: append(wire.VarValue(nil), e.Value...),
	}, true
}
