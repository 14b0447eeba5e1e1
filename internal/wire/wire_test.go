package wire

import (
	"bytes"
	"testing"
)

func TestBPHeaderRoundTrip(t *testing.T) {
	h := BPHeader{
		Magic:       BPMagic,
		Version:     BPVersion,
		SenderId:    NodeId{1, 2, 3, 4, 5, 6},
		Length:      42,
		NumPayloads: 3,
		Seqno:       123456,
	}
	e := NewEncoder(FixedSizeBPHeader)
	EncodeBPHeader(e, h)
	if e.Len() != FixedSizeBPHeader {
		t.Fatalf("expected %d bytes, got %d", FixedSizeBPHeader, e.Len())
	}
	got, err := DecodeBPHeader(NewDecoder(e.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: %+v != %+v", got, h)
	}
}

func TestBPHeaderValid(t *testing.T) {
	own := NodeId{1, 1, 1, 1, 1, 1}
	other := NodeId{2, 2, 2, 2, 2, 2}

	good := BPHeader{Magic: BPMagic, Version: BPVersion, SenderId: other, Length: 10}
	if !good.Valid(own, 20) {
		t.Fatal("expected valid header to pass")
	}
	selfSent := BPHeader{Magic: BPMagic, Version: BPVersion, SenderId: own, Length: 10}
	if selfSent.Valid(own, 20) {
		t.Fatal("own senderId must be rejected")
	}
	badMagic := BPHeader{Magic: 0xDEAD, Version: BPVersion, SenderId: other, Length: 10}
	if badMagic.Valid(own, 20) {
		t.Fatal("bad magic must be rejected")
	}
	tooLong := BPHeader{Magic: BPMagic, Version: BPVersion, SenderId: other, Length: 100}
	if tooLong.Valid(own, 20) {
		t.Fatal("length exceeding remaining bytes must be rejected")
	}
}

func TestVarCreateRoundTrip(t *testing.T) {
	c := VarCreate{
		Spec: VarSpec{
			VarId:       7,
			Producer:    NodeId{9, 9, 9, 9, 9, 9},
			RepCnt:      3,
			Description: "temperature",
		},
		Update: VarUpdate{VarId: 7, Seqno: 0, Value: []byte{0x2A}},
	}
	e := NewEncoder(32)
	EncodeVarCreate(e, c)
	got, err := DecodeVarCreate(NewDecoder(e.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if got.Spec.VarId != c.Spec.VarId || got.Spec.Description != c.Spec.Description ||
		got.Spec.RepCnt != c.Spec.RepCnt || !bytes.Equal(got.Update.Value, c.Update.Value) {
		t.Fatalf("round trip mismatch: %+v != %+v", got, c)
	}
}

func TestICHeaderRejectsZeroCount(t *testing.T) {
	e := NewEncoder(2)
	EncodeICHeader(e, ICHeader{Kind: ICCreates, Count: 0})
	if _, err := DecodeICHeader(NewDecoder(e.Bytes())); err != ErrMalformed {
		t.Fatalf("expected ErrMalformed for zero count, got %v", err)
	}
}

func TestICHeaderRejectsUnknownKind(t *testing.T) {
	e := NewEncoder(2)
	e.PutUint8(99)
	e.PutUint8(1)
	if _, err := DecodeICHeader(NewDecoder(e.Bytes())); err != ErrMalformed {
		t.Fatalf("expected ErrMalformed for unknown kind, got %v", err)
	}
}

// TestMoreRecentCircular verifies Testable Property 8.
func TestMoreRecentCircular(t *testing.T) {
	for a := 0; a < 256; a++ {
		av := VarSeqno(a)
		if MoreRecent(av, av) {
			t.Fatalf("more_recent(a, a) must be false, a=%d", a)
		}
	}
	for a := 0; a < 256; a++ {
		for b := 0; b < 256; b++ {
			if a == b {
				continue
			}
			av, bv := VarSeqno(a), VarSeqno(b)
			diff := (a - b + 256) % 256
			if diff == 128 {
				// antipode: neither direction is "more recent" under strict half-window
				continue
			}
			ab := MoreRecent(av, bv)
			ba := MoreRecent(bv, av)
			if ab == ba {
				t.Fatalf("more_recent(%d,%d) xor more_recent(%d,%d) should hold, got %v %v", a, b, b, a, ab, ba)
			}
		}
	}
}

func TestMoreRecentExample(t *testing.T) {
	// S6: circular comparison of the wrapped seqno 0 against peers at 0 and 250.
	if MoreRecent(VarSeqno(0), VarSeqno(0)) {
		t.Fatal("0 not more recent than itself")
	}
	if !MoreRecent(VarSeqno(0), VarSeqno(250)) {
		t.Fatal("0 should be more recent than 250 (wraps forward)")
	}
	if MoreRecent(VarSeqno(0), VarSeqno(0)) {
		t.Fatal("peer holding seqno=0 receiving Summary(0) should not request anything")
	}
}
