package wire

import (
	"bytes"
	"fmt"
)

// NodeId is a station's unique id, traditionally an Ethernet MAC, totally
// ordered by lexicographic byte compare.
type NodeId [6]byte

func (n NodeId) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", n[0], n[1], n[2], n[3], n[4], n[5])
}

// Less implements the lexicographic byte-compare total order over NodeId.
func (n NodeId) Less(other NodeId) bool {
	return bytes.Compare(n[:], other[:]) < 0
}

func (n NodeId) Equal(other NodeId) bool { return n == other }

// BroadcastNodeId is the destination address of every BP beacon.
var BroadcastNodeId = NodeId{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ParseNodeId parses a colon-separated hex MAC address ("aa:bb:cc:dd:ee:ff")
// into a NodeId, the form daemon command-line flags accept for -node.
func ParseNodeId(s string) (NodeId, error) {
	var n NodeId
	var parts [6]string
	count, err := fmt.Sscanf(s, "%2s:%2s:%2s:%2s:%2s:%2s", &parts[0], &parts[1], &parts[2], &parts[3], &parts[4], &parts[5])
	if err != nil || count != 6 {
		return n, fmt.Errorf("wire: invalid node id %q", s)
	}
	for i, p := range parts {
		var b int
		if _, err := fmt.Sscanf(p, "%x", &b); err != nil || b > 0xff {
			return NodeId{}, fmt.Errorf("wire: invalid node id %q", s)
		}
		n[i] = byte(b)
	}
	return n, nil
}

func (n NodeId) encode(e *Encoder) { e.PutBytes(n[:]) }

func decodeNodeId(d *Decoder) (NodeId, error) {
	b, err := d.GetBytes(6)
	if err != nil {
		return NodeId{}, err
	}
	var n NodeId
	copy(n[:], b)
	return n, nil
}

// ProtocolId multiplexes client protocols under BP.
type ProtocolId uint16

const (
	ProtocolSR ProtocolId = 0x0001
	ProtocolVD ProtocolId = 0x0002
)

// VarId is a variable identifier, namespace-local to the swarm.
type VarId uint8

// VarLen is a variable value length; zero is illegal wherever a value is
// required.
type VarLen uint8

// VarRepCnt is the remaining retransmission budget for an instruction
// record about a variable, range 0..15.
type VarRepCnt uint8

const MaxRepCnt VarRepCnt = 15

// VarSeqno is an 8-bit circular sequence number compared with RFC
// 1982-style semantics.
type VarSeqno uint8

const seqnoModulus = 256

// MoreRecent reports whether a is more recent than b under the
// half-modulus circular-comparison rule: a != b and
// ((a - b) mod M) < M/2.
func MoreRecent(a, b VarSeqno) bool {
	if a == b {
		return false
	}
	diff := (int(a) - int(b) + seqnoModulus) % seqnoModulus
	return diff < seqnoModulus/2
}

// VarValue is a length-prefixed byte string (length prefix carried
// separately on the wire as VarLen).
type VarValue []byte

// VarDescription is a length-prefixed human-readable description with no
// embedded NUL terminator.
type VarDescription string

const (
	MaxDescriptionLen = 255
	MaxValueLen       = 255
)

// VarSpec is the static part of a variable's identity.
type VarSpec struct {
	VarId       VarId
	Producer    NodeId
	RepCnt      VarRepCnt
	Description VarDescription
}

// VarUpdate is an updated value together with its sequence number.
type VarUpdate struct {
	VarId  VarId
	Seqno  VarSeqno
	Value  VarValue
}

// VarCreate is the initial announcement of a variable, including its
// first value.
type VarCreate struct {
	Spec   VarSpec
	Update VarUpdate
}

// VarSummary is a compact "I know this variable at this seqno" record.
type VarSummary struct {
	VarId VarId
	Seqno VarSeqno
}

// VarDelete is a tombstone announcement.
type VarDelete struct {
	VarId VarId
}

// VarReqCreate requests a VarCreate for a variable id.
type VarReqCreate struct {
	VarId VarId
}

// VarReqUpdate requests any value newer than the given seqno.
type VarReqUpdate struct {
	VarId VarId
	Seqno VarSeqno
}

// ICKind discriminates instruction-container contents.
type ICKind uint8

const (
	ICSummaries ICKind = iota + 1
	ICUpdates
	ICReqUpdates
	ICReqCreates
	ICCreates
	ICDeletes
)

func (k ICKind) Valid() bool { return k >= ICSummaries && k <= ICDeletes }

func (k ICKind) String() string {
	switch k {
	case ICSummaries:
		return "Summaries"
	case ICUpdates:
		return "Updates"
	case ICReqUpdates:
		return "ReqUpdates"
	case ICReqCreates:
		return "ReqCreates"
	case ICCreates:
		return "Creates"
	case ICDeletes:
		return "Deletes"
	default:
		return "Unknown"
	}
}

// ICHeader is the instruction-container header; Count must be >= 1.
type ICHeader struct {
	Kind  ICKind
	Count uint8
}

const FixedSizeICHeader = 2
