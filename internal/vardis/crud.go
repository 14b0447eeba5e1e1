package vardis

import (
	"time"

	"github.com/dcp-vardis/dcp-vardis-go/internal/wire"
)

// Create implements RTDB-Create (§4.6). The caller is always the
// producer: seqno starts at 0 and repCnt bounds CountCreate.
func (s *Store) Create(active bool, varId wire.VarId, descr wire.VarDescription, repCnt wire.VarRepCnt, value wire.VarValue) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !active {
		return StatusInactive
	}
	if s.get(varId) != nil {
		return StatusVariableExists
	}
	if len(descr) == 0 || len(descr) > s.cfg.MaxDescrLen {
		return StatusVariableDescriptionTooLong
	}
	if len(value) == 0 {
		return StatusEmptyValue
	}
	if len(value) > s.cfg.MaxValueLen {
		return StatusValueTooLong
	}
	if repCnt == 0 || int(repCnt) > s.cfg.MaxRepCnt {
		return StatusIllegalRepCount
	}

	e := &Entry{
		Spec:        wire.VarSpec{VarId: varId, Producer: s.ownNode, RepCnt: repCnt, Description: descr},
		Seqno:       0,
		Value:       append(wire.VarValue(nil), value...),
		TStamp:      time.Now(),
		CountCreate: repCnt,
	}
	s.set(varId, e)
	s.queues.purgeAll(varId)
	s.queues.createQ.push(varId)
	s.queues.summaryQ.push(varId)
	return StatusOk
}

// Update implements RTDB-Update (§4.6).
func (s *Store) Update(active bool, varId wire.VarId, value wire.VarValue) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !active {
		return StatusInactive
	}
	e := s.get(varId)
	if e == nil {
		return StatusVariableDoesNotExist
	}
	if !e.isOwnVariable(s.ownNode) {
		return StatusNotProducer
	}
	if e.ToBeDeleted {
		return StatusVariableBeingDeleted
	}
	if len(value) == 0 {
		return StatusEmptyValue
	}
	if len(value) > s.cfg.MaxValueLen {
		return StatusValueTooLong
	}

	e.Seqno = wire.VarSeqno((int(e.Seqno) + 1) % 256)
	e.Value = append(wire.VarValue(nil), value...)
	e.TStamp = time.Now()
	e.CountUpdate = e.Spec.RepCnt
	s.queues.updateQ.push(varId)
	return StatusOk
}

// Delete implements RTDB-Delete (§4.6).
func (s *Store) Delete(active bool, varId wire.VarId) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !active {
		return StatusInactive
	}
	e := s.get(varId)
	if e == nil {
		return StatusVariableDoesNotExist
	}
	if !e.isOwnVariable(s.ownNode) {
		return StatusNotProducer
	}
	if e.ToBeDeleted {
		return StatusVariableBeingDeleted
	}

	e.ToBeDeleted = true
	e.CountDelete = e.Spec.RepCnt
	e.CountCreate = 0
	e.CountUpdate = 0
	s.queues.purgeModifying(varId)
	s.queues.deleteQ.push(varId)
	return StatusOk
}

// ReadResult is what RTDB-Read returns on success.
type ReadResult struct {
	Value  wire.VarValue
	TStamp time.Time
}

// Read implements RTDB-Read (§4.6).
func (s *Store) Read(active bool, varId wire.VarId) (ReadResult, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !active {
		return ReadResult{}, StatusInactive
	}
	e := s.get(varId)
	if e == nil {
		return ReadResult{}, StatusVariableDoesNotExist
	}
	if e.ToBeDeleted {
		return ReadResult{}, StatusVariableBeingDeleted
	}
	return ReadResult{Value: append(wire.VarValue(nil), e.Value...), TStamp: e.TStamp}, StatusOk
}
