package bp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/op/go-logging"

	"github.com/dcp-vardis/dcp-vardis-go/internal/dcplog"
	"github.com/dcp-vardis/dcp-vardis-go/internal/transport"
	"github.com/dcp-vardis/dcp-vardis-go/internal/wire"
)

// loopbackBroadcaster delivers every Send to every other loopbackBroadcaster
// sharing the same bus, emulating a single-hop broadcast medium without a
// real socket.
type loopbackBroadcaster struct {
	own  wire.NodeId
	bus  chan []byte
	subs []*loopbackBroadcaster
}

func newLoopback(own wire.NodeId) *loopbackBroadcaster {
	return &loopbackBroadcaster{own: own, bus: make(chan []byte, 16)}
}

func link(peers ...*loopbackBroadcaster) {
	for _, p := range peers {
		p.subs = peers
	}
}

func (l *loopbackBroadcaster) Send(payload []byte) error {
	for _, s := range l.subs {
		if s == l {
			continue
		}
		cp := make([]byte, len(payload))
		copy(cp, payload)
		s.bus <- cp
	}
	return nil
}

func (l *loopbackBroadcaster) Receive(ctx context.Context) (transport.Frame, error) {
	select {
	case b := <-l.bus:
		return transport.Frame{Src: l.own, EtherType: wire.BPMagic, Payload: b}, nil
	case <-ctx.Done():
		return transport.Frame{}, ctx.Err()
	}
}

func (l *loopbackBroadcaster) Close() error { return nil }

func testLogger() *logging.Logger {
	return dcplog.Setup("bptest", logging.DEBUG, false)
}

func testConfig(t *testing.T, own wire.NodeId) Config {
	cfg := DefaultConfig(own)
	cfg.AvgBeaconPeriod = 20 * time.Millisecond
	cfg.JitterFraction = 0.05
	cfg.ShmDir = t.TempDir()
	return cfg
}

// TestEngineRegisterRejectsDuplicateAndOversize covers Register's
// validation order (Testable Property 1-style invariant checks).
func TestEngineRegisterRejectsDuplicateAndOversize(t *testing.T) {
	own := wire.NodeId{1, 2, 3, 4, 5, 6}
	bc := newLoopback(own)
	link(bc)
	e, err := NewEngine(testConfig(t, own), bc, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	_, _, status := e.Register(wire.ProtocolId(10), "demo", 64, Once, 0, false, false, "bp-test-reg-1")
	if status != Ok {
		t.Fatalf("expected Ok, got %v", status)
	}
	_, _, status = e.Register(wire.ProtocolId(10), "demo2", 64, Once, 0, false, false, "bp-test-reg-2")
	if status != AlreadyRegistered {
		t.Fatalf("expected AlreadyRegistered, got %v", status)
	}
	_, _, status = e.Register(wire.ProtocolId(11), "big", e.cfg.MaxBeaconSize, Once, 0, false, false, "bp-test-reg-3")
	if status != IllegalMaxPayloadSize {
		t.Fatalf("expected IllegalMaxPayloadSize, got %v", status)
	}
	_, _, status = e.Register(wire.ProtocolId(12), "dropper", 32, QueueDropTail, 0, false, false, "bp-test-reg-4")
	if status != IllegalDroppingQueueSize {
		t.Fatalf("expected IllegalDroppingQueueSize, got %v", status)
	}
}

// TestEngineEndToEndBeaconDelivery wires two engines over a loopback bus
// and checks a payload transmitted on one side (Once mode) arrives on the
// other's registered protocol and is counted as incoming there.
func TestEngineEndToEndBeaconDelivery(t *testing.T) {
	nodeA := wire.NodeId{0xa, 0, 0, 0, 0, 1}
	nodeB := wire.NodeId{0xb, 0, 0, 0, 0, 1}
	bcA, bcB := newLoopback(nodeA), newLoopback(nodeB)
	link(bcA, bcB)

	eA, err := NewEngine(testConfig(t, nodeA), bcA, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	eB, err := NewEngine(testConfig(t, nodeB), bcB, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	const pid = wire.ProtocolId(42)
	tokA, _, status := eA.Register(pid, "demo", 32, Once, 0, false, false, "bp-e2e-a")
	if status != Ok {
		t.Fatalf("register on A failed: %v", status)
	}
	_, _, status = eB.Register(pid, "demo", 32, Once, 0, false, false, "bp-e2e-b")
	if status != Ok {
		t.Fatalf("register on B failed: %v", status)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eA.Run(ctx)
	go eB.Run(ctx)
	eA.Activate()
	eB.Activate()

	if err := eA.TransmitPayload(pid, tokA, []byte("hello")); err != nil {
		t.Fatal(err)
	}

	payload, ok, err := eB.ReceivePayload(pid, 500*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected payload delivered to B within timeout")
	}
	if !bytes.Equal(payload, []byte("hello")) {
		t.Fatalf("payload mismatch: got %q", payload)
	}

	stats := eB.GetStatistics()
	if stats.CntIncomingPayloads[pid] == 0 {
		t.Fatal("expected incoming payload counter to be nonzero")
	}
}

// TestCommandServerRegisterRoundTrip drives the HTTP-over-unix-socket
// handlers directly via httptest, mirroring the teacher's control-server
// test style.
func TestCommandServerRegisterRoundTrip(t *testing.T) {
	own := wire.NodeId{9, 9, 9, 9, 9, 9}
	bc := newLoopback(own)
	link(bc)
	e, err := NewEngine(testConfig(t, own), bc, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	cs := &CommandServer{engine: e, log: testLogger()}

	req := RegisterRequest{
		ClientVersion: "1.0.0", ProtocolId: wire.ProtocolId(7), Name: "cs-test",
		MaxPayloadSize: 16, Mode: Once, ShmName: "bp-cs-test",
	}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	httpReq, err := http.NewRequest("POST", "/register", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	recorder := httptest.NewRecorder()
	cs.handleRegister(recorder, httpReq)
	resp := recorder.Result()
	var regResp RegisterResponse
	if err := json.NewDecoder(resp.Body).Decode(&regResp); err != nil {
		t.Fatal(err)
	}
	if regResp.Status != Ok {
		t.Fatalf("expected Ok, got %v", regResp.Status)
	}

	req.ClientVersion = "2.0.0"
	badBody, _ := json.Marshal(req)
	badHTTPReq, _ := http.NewRequest("POST", "/register", bytes.NewReader(badBody))
	badRecorder := httptest.NewRecorder()
	cs.handleRegister(badRecorder, badHTTPReq)
	if badRecorder.Result().StatusCode != http.StatusUpgradeRequired {
		t.Fatalf("expected version mismatch to be rejected, got %d", badRecorder.Result().StatusCode)
	}
}
