// Package bp implements the Beaconing Protocol engine: registry,
// transmit scheduler, receive sniffer, payload collector and command
// server of spec.md §4.1/§4.2, plus the client library other protocols
// (VD, SR) ride on.
package bp

import (
	"fmt"
	"time"

	"github.com/dcp-vardis/dcp-vardis-go/internal/wire"
)

// QueueingMode governs how a client's pending payloads are admitted and
// retransmitted, per §4.1.
type QueueingMode uint8

const (
	Once QueueingMode = iota
	Repeat
	QueueDropHead
	QueueDropTail
)

func (m QueueingMode) String() string {
	switch m {
	case Once:
		return "Once"
	case Repeat:
		return "Repeat"
	case QueueDropHead:
		return "QueueDropHead"
	case QueueDropTail:
		return "QueueDropTail"
	default:
		return "Unknown"
	}
}

// RegisterStatus is the result of a Register call.
type RegisterStatus uint16

const (
	Ok RegisterStatus = iota
	AlreadyRegistered
	IllegalMaxPayloadSize
	IllegalDroppingQueueSize
	InternalError
)

func (s RegisterStatus) Error() string {
	switch s {
	case Ok:
		return "ok"
	case AlreadyRegistered:
		return "protocol already registered"
	case IllegalMaxPayloadSize:
		return "illegal max payload size"
	case IllegalDroppingQueueSize:
		return "dropping queue mode requires maxEntries >= 1"
	case InternalError:
		return "internal error"
	default:
		return "unknown status"
	}
}

// FixedSizeBeaconOverhead bounds how much of MaxBeaconSize a single client
// payload may consume: a full BPHeader plus one PayloadHeader.
const FixedSizeBeaconOverhead = wire.FixedSizeBPHeader + wire.FixedSizePayloadHeader

// Config holds the per-daemon parameters of §4.1/§4.2, all constructor
// arguments rather than file-parsed configuration (config-file parsing is
// out of scope per §1).
type Config struct {
	OwnNodeId      wire.NodeId
	EtherType      uint16 // frame tag the receive filter of §4.2 matches against
	MaxBeaconSize  int
	AvgBeaconPeriod time.Duration
	JitterFraction float64 // in [0,1)
	EWMAAlpha      float64 // weight given to the previous average
	ShmDir         string  // directory backing shared memory pools (tests use a temp dir)
}

// DefaultConfig returns sane defaults matching a typical 802.11 MTU.
func DefaultConfig(own wire.NodeId) Config {
	return Config{
		OwnNodeId:       own,
		EtherType:       wire.BPMagic,
		MaxBeaconSize:   1400,
		AvgBeaconPeriod: 100 * time.Millisecond,
		JitterFraction:  0.1,
		EWMAAlpha:       0.9,
	}
}

func (c Config) validate() error {
	if c.AvgBeaconPeriod <= 0 {
		return fmt.Errorf("bp: AvgBeaconPeriod must be positive")
	}
	if c.JitterFraction < 0 || c.JitterFraction >= 1 {
		return fmt.Errorf("bp: JitterFraction must be in [0,1)")
	}
	if c.AvgBeaconPeriod.Seconds()*(1-c.JitterFraction) <= 0 {
		return fmt.Errorf("bp: avgPeriod*(1-jitter) must be > 0")
	}
	return nil
}

// Statistics is the introspection snapshot returned by GetStatistics,
// supplementing the bare counters spec.md names (SPEC_FULL.md §D.1).
type Statistics struct {
	BPSeqno                    uint32
	AvgBeaconSize              float64
	AvgInterBeaconTime         time.Duration
	CntOutgoingPayloads        map[wire.ProtocolId]uint64
	CntDroppedOutgoingPayloads map[wire.ProtocolId]uint64
	CntIncomingPayloads        map[wire.ProtocolId]uint64
	CntDroppedIncomingPayloads map[wire.ProtocolId]uint64
	CntDroppedIncomingUnknownProtocol uint64
}
