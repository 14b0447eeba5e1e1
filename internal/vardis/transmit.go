package vardis

import (
	"github.com/dcp-vardis/dcp-vardis-go/internal/wire"
)

// containerOrder is the fixed serialization order of §4.4.
var containerOrder = []wire.ICKind{
	wire.ICCreates, wire.ICDeletes, wire.ICUpdates,
	wire.ICSummaries, wire.ICReqUpdates, wire.ICReqCreates,
}

// ComposePayload builds one VD payload bounded by maxPayloadSize,
// serializing up to six instruction containers in the fixed order
// Creates, Deletes, Updates, Summaries, ReqUpdates, ReqCreates (§4.4).
func (s *Store) ComposePayload(maxPayloadSize int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropStaleIds()

	enc := wire.NewEncoder(maxPayloadSize)
	remaining := maxPayloadSize

	for _, kind := range containerOrder {
		remaining -= s.emitContainer(enc, kind, remaining)
	}
	return enc.Bytes()
}

// dropStaleIds is Step A of §4.4: walk every queue head-to-tail and drop
// ids whose backing entry no longer justifies the announcement.
func (s *Store) dropStaleIds() {
	s.queues.createQ.filterInPlace(func(id wire.VarId) bool {
		e := s.get(id)
		return e != nil && !e.ToBeDeleted
	})
	s.queues.deleteQ.filterInPlace(func(id wire.VarId) bool {
		return s.get(id) != nil
	})
	s.queues.updateQ.filterInPlace(func(id wire.VarId) bool {
		e := s.get(id)
		return e != nil && !e.ToBeDeleted
	})
	s.queues.summaryQ.filterInPlace(func(id wire.VarId) bool {
		e := s.get(id)
		return e != nil && !e.ToBeDeleted
	})
	s.queues.reqUpdQ.filterInPlace(func(id wire.VarId) bool {
		e := s.get(id)
		return e != nil && !e.ToBeDeleted
	})
	s.queues.reqCreateQ.filterInPlace(func(id wire.VarId) bool {
		e := s.get(id)
		return e == nil || e.ToBeDeleted
	})
}

// emitContainer runs Steps B-D of §4.4 for one container kind, returning
// the number of bytes it wrote (0 if the container was skipped). Emitted
// ids are popped from the queue's head and, where still live, re-pushed
// at the tail — this is what gives summaryQ (and any container whose
// entries survive) round-robin rotation across successive beacons.
func (s *Store) emitContainer(enc *wire.Encoder, kind wire.ICKind, remaining int) int {
	q := s.queueFor(kind)
	ids := q.snapshot()

	limit := 255
	if kind == wire.ICSummaries && s.cfg.MaxSummaries < limit {
		limit = s.cfg.MaxSummaries
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}

	k := s.fitPrefix(kind, ids, remaining-wire.FixedSizeICHeader)
	if k == 0 {
		return 0
	}

	written := 0
	wire.EncodeICHeader(enc, wire.ICHeader{Kind: kind, Count: uint8(k)})
	written += wire.FixedSizeICHeader

	for i := 0; i < k; i++ {
		id, ok := q.pop()
		if !ok {
			break
		}
		written += s.emitRecord(enc, kind, id, q)
	}
	return written
}

// fitPrefix computes the largest k such that the serialized sizes of
// ids[:k] fit within budget (Step B).
func (s *Store) fitPrefix(kind wire.ICKind, ids []wire.VarId, budget int) int {
	used := 0
	k := 0
	for _, id := range ids {
		e := s.get(id)
		if e == nil {
			break
		}
		size := s.recordSize(kind, e)
		if used+size > budget {
			break
		}
		used += size
		k++
	}
	return k
}

func (s *Store) recordSize(kind wire.ICKind, e *Entry) int {
	switch kind {
	case wire.ICCreates:
		return wire.EncodedSizeVarCreate(wire.VarCreate{Spec: e.Spec, Update: wire.VarUpdate{VarId: e.Spec.VarId, Seqno: e.Seqno, Value: e.Value}})
	case wire.ICDeletes:
		return wire.EncodedSizeVarDelete()
	case wire.ICUpdates:
		return wire.EncodedSizeVarUpdate(wire.VarUpdate{VarId: e.Spec.VarId, Seqno: e.Seqno, Value: e.Value})
	case wire.ICSummaries:
		return wire.EncodedSizeVarSummary()
	case wire.ICReqUpdates:
		return wire.EncodedSizeVarReqUpdate()
	case wire.ICReqCreates:
		return wire.EncodedSizeVarReqCreate()
	default:
		return 0
	}
}

// emitRecord serializes one record (already popped from q) and applies
// Step D: decrement the relevant counter, then re-push at q's tail if the
// entry is still live, returning bytes written.
func (s *Store) emitRecord(enc *wire.Encoder, kind wire.ICKind, id wire.VarId, q *idQueue) int {
	e := s.get(id)
	if e == nil {
		return 0
	}
	before := enc.Len()

	switch kind {
	case wire.ICCreates:
		wire.EncodeVarCreate(enc, wire.VarCreate{Spec: e.Spec, Update: wire.VarUpdate{VarId: id, Seqno: e.Seqno, Value: e.Value}})
		if e.CountCreate > 0 {
			e.CountCreate--
		}
		if e.CountCreate > 0 {
			q.push(id)
		}
	case wire.ICDeletes:
		wire.EncodeVarDelete(enc, wire.VarDelete{VarId: id})
		if e.CountDelete > 0 {
			e.CountDelete--
		}
		if e.CountDelete == 0 {
			s.remove(id)
		} else {
			q.push(id)
		}
	case wire.ICUpdates:
		wire.EncodeVarUpdate(enc, wire.VarUpdate{VarId: id, Seqno: e.Seqno, Value: e.Value})
		if e.CountUpdate > 0 {
			e.CountUpdate--
		}
		if e.CountUpdate > 0 {
			q.push(id)
		}
	case wire.ICSummaries:
		wire.EncodeVarSummary(enc, wire.VarSummary{VarId: id, Seqno: e.Seqno})
		q.push(id) // Summaries are always re-enqueued (Step D), giving round-robin
	case wire.ICReqUpdates:
		wire.EncodeVarReqUpdate(enc, wire.VarReqUpdate{VarId: id, Seqno: e.Seqno})
		// a request is one-shot, not repeat-counted: do not re-push
	case wire.ICReqCreates:
		wire.EncodeVarReqCreate(enc, wire.VarReqCreate{VarId: id})
		// one-shot, not re-pushed
	}
	return enc.Len() - before
}

func (s *Store) queueFor(kind wire.ICKind) *idQueue {
	switch kind {
	case wire.ICCreates:
		return &s.queues.createQ
	case wire.ICDeletes:
		return &s.queues.deleteQ
	case wire.ICUpdates:
		return &s.queues.updateQ
	case wire.ICSummaries:
		return &s.queues.summaryQ
	case wire.ICReqUpdates:
		return &s.queues.reqUpdQ
	case wire.ICReqCreates:
		return &s.queues.reqCreateQ
	default:
		return nil
	}
}
