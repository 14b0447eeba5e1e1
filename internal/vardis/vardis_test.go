package vardis

import (
	"testing"

	"github.com/dcp-vardis/dcp-vardis-go/internal/wire"
)

func testEntryStore() *Store {
	return newStore(wire.NodeId{1, 1, 1, 1, 1, 1}, DefaultConfig())
}

// TestCreateReadRoundTrip covers Testable Property 3.
func TestCreateReadRoundTrip(t *testing.T) {
	s := testEntryStore()
	status := s.Create(true, 10, "temp", 3, []byte{0x2a})
	if status != StatusOk {
		t.Fatalf("create failed: %v", status)
	}
	res, status := s.Read(true, 10)
	if status != StatusOk {
		t.Fatalf("read failed: %v", status)
	}
	if len(res.Value) != 1 || res.Value[0] != 0x2a {
		t.Fatalf("unexpected value: %v", res.Value)
	}
	if s.get(10).Seqno != 0 {
		t.Fatalf("expected seqno 0, got %d", s.get(10).Seqno)
	}
}

// TestUpdateIncrementsSeqno covers Testable Property 4.
func TestUpdateIncrementsSeqno(t *testing.T) {
	s := testEntryStore()
	s.Create(true, 10, "temp", 3, []byte{1})
	status := s.Update(true, 10, []byte{2})
	if status != StatusOk {
		t.Fatalf("update failed: %v", status)
	}
	e := s.get(10)
	if e.Seqno != 1 {
		t.Fatalf("expected seqno 1, got %d", e.Seqno)
	}
	if len(e.Value) != 1 || e.Value[0] != 2 {
		t.Fatalf("unexpected value: %v", e.Value)
	}
}

func TestCreateRejectsDuplicateAndBounds(t *testing.T) {
	s := testEntryStore()
	if status := s.Create(true, 10, "d", 2, []byte{1}); status != StatusOk {
		t.Fatalf("first create failed: %v", status)
	}
	if status := s.Create(true, 10, "d", 2, []byte{1}); status != StatusVariableExists {
		t.Fatalf("expected VariableExists, got %v", status)
	}
	if status := s.Create(true, 11, "", 2, []byte{1}); status != StatusVariableDescriptionTooLong {
		t.Fatalf("expected empty-description rejection, got %v", status)
	}
	if status := s.Create(true, 12, "d", 2, nil); status != StatusEmptyValue {
		t.Fatalf("expected EmptyValue, got %v", status)
	}
	if status := s.Create(true, 13, "d", 0, []byte{1}); status != StatusIllegalRepCount {
		t.Fatalf("expected IllegalRepCount, got %v", status)
	}
	if status := s.Create(false, 14, "d", 2, []byte{1}); status != StatusInactive {
		t.Fatalf("expected Inactive, got %v", status)
	}
}

// TestDeleteRepCntExhaustion covers Testable Property 5 / scenario S5 at
// the store level: a VarDelete container is emitted exactly repCnt times.
func TestDeleteRepCntExhaustion(t *testing.T) {
	s := testEntryStore()
	s.Create(true, 10, "d", 1, []byte{1})
	status := s.Delete(true, 10)
	if status != StatusOk {
		t.Fatalf("delete failed: %v", status)
	}

	const repCnt = 3
	s.get(10).Spec.RepCnt = repCnt
	s.get(10).CountDelete = repCnt

	seen := 0
	for i := 0; i < repCnt+2; i++ {
		payload := s.ComposePayload(1024)
		if containsDelete(payload, 10) {
			seen++
		}
		if s.get(10) == nil {
			break
		}
	}
	if seen != repCnt {
		t.Fatalf("expected exactly %d VarDelete emissions, got %d", repCnt, seen)
	}
	if s.get(10) != nil {
		t.Fatal("expected entry removed after countDelete exhausted")
	}
}

func containsDelete(payload []byte, varId wire.VarId) bool {
	d := wire.NewDecoder(payload)
	for d.Remaining() > 0 {
		h, err := wire.DecodeICHeader(d)
		if err != nil {
			return false
		}
		for i := 0; i < int(h.Count); i++ {
			switch h.Kind {
			case wire.ICDeletes:
				rec, err := wire.DecodeVarDelete(d)
				if err != nil {
					return false
				}
				if rec.VarId == varId {
					return true
				}
			case wire.ICCreates:
				if _, err := wire.DecodeVarCreate(d); err != nil {
					return false
				}
			case wire.ICUpdates:
				if _, err := wire.DecodeVarUpdate(d); err != nil {
					return false
				}
			case wire.ICSummaries:
				if _, err := wire.DecodeVarSummary(d); err != nil {
					return false
				}
			case wire.ICReqUpdates:
				if _, err := wire.DecodeVarReqUpdate(d); err != nil {
					return false
				}
			case wire.ICReqCreates:
				if _, err := wire.DecodeVarReqCreate(d); err != nil {
					return false
				}
			}
		}
	}
	return false
}

// TestApplyCreateThenSummaryConvergence exercises §4.5's three-way branch
// for VarSummary (scenario S3's shape, at the single-node receive level).
func TestApplyCreateThenSummaryConvergence(t *testing.T) {
	remote := wire.NodeId{9, 9, 9, 9, 9, 9}
	s := testEntryStore()
	s.applyCreate(wire.VarCreate{
		Spec:   wire.VarSpec{VarId: 10, Producer: remote, RepCnt: 3, Description: "d"},
		Update: wire.VarUpdate{VarId: 10, Seqno: 5, Value: []byte{1}},
	})
	if e := s.get(10); e == nil || e.Seqno != 5 {
		t.Fatalf("expected entry at seqno 5, got %+v", e)
	}

	// peer is newer (seqno 7): we should end up requesting an update.
	s.applySummary(wire.VarSummary{VarId: 10, Seqno: 7})
	if !s.queues.reqUpdQ.contains(10) {
		t.Fatal("expected reqUpdQ to contain VarId 10 after newer peer summary")
	}

	// simulate the peer's answering update.
	s.applyUpdate(wire.VarUpdate{VarId: 10, Seqno: 7, Value: []byte{0x55}})
	e := s.get(10)
	if e.Seqno != 7 || e.Value[0] != 0x55 {
		t.Fatalf("expected converged state seqno=7 value=0x55, got %+v", e)
	}
}

// TestComposePayloadOrdering checks the fixed container order of §4.4.
func TestComposePayloadOrdering(t *testing.T) {
	s := testEntryStore()
	s.Create(true, 1, "a", 2, []byte{1})
	s.Create(true, 2, "b", 2, []byte{2})
	s.Delete(true, 2)

	payload := s.ComposePayload(1024)
	d := wire.NewDecoder(payload)
	h1, err := wire.DecodeICHeader(d)
	if err != nil {
		t.Fatal(err)
	}
	if h1.Kind != wire.ICCreates {
		t.Fatalf("expected first container to be Creates, got %v", h1.Kind)
	}
}
