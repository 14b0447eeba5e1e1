package srp

import (
	"testing"
	"time"

	"github.com/dcp-vardis/dcp-vardis-go/internal/wire"
)

func node(b byte) wire.NodeId { return wire.NodeId{b, b, b, b, b, b} }

func TestTableRefreshAndLookup(t *testing.T) {
	tbl := NewTable(4, time.Second)
	now := time.Now()

	if !tbl.Refresh(wire.SafetyBeacon{SenderId: node(1)}, now) {
		t.Fatal("expected refresh to succeed")
	}
	if !tbl.Contains(node(1)) {
		t.Fatal("expected node 1 present")
	}
	if tbl.Len() != 1 {
		t.Fatalf("expected len 1, got %d", tbl.Len())
	}

	// refreshing again updates in place, not a second row.
	later := now.Add(500 * time.Millisecond)
	if !tbl.Refresh(wire.SafetyBeacon{SenderId: node(1)}, later) {
		t.Fatal("expected re-refresh to succeed")
	}
	if tbl.Len() != 1 {
		t.Fatalf("expected len still 1 after re-refresh, got %d", tbl.Len())
	}
}

func TestTableCapacityLimit(t *testing.T) {
	tbl := NewTable(2, time.Second)
	now := time.Now()
	if !tbl.Refresh(wire.SafetyBeacon{SenderId: node(1)}, now) {
		t.Fatal("expected first refresh to succeed")
	}
	if !tbl.Refresh(wire.SafetyBeacon{SenderId: node(2)}, now) {
		t.Fatal("expected second refresh to succeed")
	}
	if tbl.Refresh(wire.SafetyBeacon{SenderId: node(3)}, now) {
		t.Fatal("expected third refresh to fail: table is full")
	}
	if tbl.Len() != 2 {
		t.Fatalf("expected len 2, got %d", tbl.Len())
	}
}

func TestTableEvictStale(t *testing.T) {
	tbl := NewTable(4, 100*time.Millisecond)
	now := time.Now()
	tbl.Refresh(wire.SafetyBeacon{SenderId: node(1)}, now)
	tbl.Refresh(wire.SafetyBeacon{SenderId: node(2)}, now.Add(90*time.Millisecond))

	evicted := tbl.EvictStale(now.Add(150 * time.Millisecond))
	if evicted != 1 {
		t.Fatalf("expected exactly 1 eviction, got %d", evicted)
	}
	if tbl.Contains(node(1)) {
		t.Fatal("expected node 1 evicted")
	}
	if !tbl.Contains(node(2)) {
		t.Fatal("expected node 2 still present")
	}
}

func TestSafetyBeaconWireRoundTrip(t *testing.T) {
	b := wire.SafetyBeacon{SenderId: node(7), TimeStamp: 123456}
	enc := wire.NewEncoder(wire.FixedSizeSafetyBeacon)
	wire.EncodeSafetyBeacon(enc, b)
	got, err := wire.DecodeSafetyBeacon(wire.NewDecoder(enc.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if got != b {
		t.Fatalf("expected %+v, got %+v", b, got)
	}
}
