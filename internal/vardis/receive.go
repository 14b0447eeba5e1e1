package vardis

import (
	"time"

	"github.com/dcp-vardis/dcp-vardis-go/internal/wire"
)

// applyCreate implements the VarCreate receive handler (§4.5). Acceptance
// bounds mirror Store.Create's local validation exactly, plus the
// "producer != ownNodeId" rule that only applies to remote records.
func (s *Store) applyCreate(c wire.VarCreate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	varId := c.Spec.VarId
	if s.get(varId) != nil {
		return
	}
	if c.Spec.Producer == s.ownNode {
		return
	}
	if len(c.Spec.Description) == 0 || len(c.Spec.Description) > s.cfg.MaxDescrLen {
		return
	}
	if len(c.Update.Value) == 0 || len(c.Update.Value) > s.cfg.MaxValueLen {
		return
	}
	if c.Spec.RepCnt == 0 || int(c.Spec.RepCnt) > s.cfg.MaxRepCnt {
		return
	}

	e := &Entry{
		Spec:        c.Spec,
		Seqno:       c.Update.Seqno,
		Value:       append(wire.VarValue(nil), c.Update.Value...),
		TStamp:      time.Now(),
		CountCreate: c.Spec.RepCnt,
	}
	s.set(varId, e)
	s.queues.purgeAll(varId)
	s.queues.createQ.push(varId)
	s.queues.summaryQ.push(varId)
}

// applyDelete implements the VarDelete receive handler.
func (s *Store) applyDelete(d wire.VarDelete) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.get(d.VarId)
	if e == nil || e.ToBeDeleted {
		return
	}
	if e.isOwnVariable(s.ownNode) {
		return
	}
	e.ToBeDeleted = true
	e.CountDelete = e.Spec.RepCnt
	e.CountCreate = 0
	e.CountUpdate = 0
	s.queues.purgeModifying(d.VarId)
	s.queues.deleteQ.push(d.VarId)
}

// applyUpdate implements the VarUpdate receive handler: absent variables
// request a create; producers and to-be-deleted entries ignore it;
// otherwise seqno comparison decides whether we teach the peer our newer
// value or adopt theirs.
func (s *Store) applyUpdate(u wire.VarUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.get(u.VarId)
	if e == nil {
		s.queues.reqCreateQ.push(u.VarId)
		return
	}
	if e.ToBeDeleted || e.isOwnVariable(s.ownNode) {
		return
	}
	if len(u.Value) == 0 || len(u.Value) > s.cfg.MaxValueLen {
		return
	}
	if u.Seqno == e.Seqno {
		return
	}
	if wire.MoreRecent(e.Seqno, u.Seqno) {
		e.CountUpdate = e.Spec.RepCnt
		s.queues.updateQ.push(u.VarId)
		return
	}
	e.Value = append(wire.VarValue(nil), u.Value...)
	e.Seqno = u.Seqno
	e.TStamp = time.Now()
	e.CountUpdate = e.Spec.RepCnt
	s.queues.updateQ.push(u.VarId)
	s.queues.reqUpdQ.remove(u.VarId)
}

// applySummary implements the VarSummary receive handler: same three-way
// branch as applyUpdate, but without a carried value.
func (s *Store) applySummary(sm wire.VarSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.get(sm.VarId)
	if e == nil {
		s.queues.reqCreateQ.push(sm.VarId)
		return
	}
	if e.ToBeDeleted || e.isOwnVariable(s.ownNode) {
		return
	}
	if sm.Seqno == e.Seqno {
		return
	}
	if wire.MoreRecent(e.Seqno, sm.Seqno) {
		e.CountUpdate = e.Spec.RepCnt
		s.queues.updateQ.push(sm.VarId)
		return
	}
	e.CountUpdate = 0 // no value carried; request it explicitly
	s.queues.reqUpdQ.push(sm.VarId)
}

// applyReqUpdate implements the VarReqUpdate receive handler.
func (s *Store) applyReqUpdate(r wire.VarReqUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.get(r.VarId)
	if e == nil {
		s.queues.reqCreateQ.push(r.VarId)
		return
	}
	if e.ToBeDeleted {
		return
	}
	// requester already at or ahead of us: nothing to teach them.
	if r.Seqno == e.Seqno || wire.MoreRecent(r.Seqno, e.Seqno) {
		return
	}
	e.CountUpdate = e.Spec.RepCnt
	s.queues.updateQ.push(r.VarId)
}

// applyReqCreate implements the VarReqCreate receive handler.
func (s *Store) applyReqCreate(r wire.VarReqCreate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.get(r.VarId)
	if e == nil {
		s.queues.reqCreateQ.push(r.VarId)
		return
	}
	if e.ToBeDeleted {
		return
	}
	e.CountCreate = e.Spec.RepCnt
	s.queues.createQ.push(r.VarId)
}
