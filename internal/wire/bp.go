package wire

// BPMagic/BPVersion identify a well-formed beacon frame, per spec.md §6.
const (
	BPMagic   uint16 = 0x497E
	BPVersion uint8  = 1
)

const (
	// FixedSizeBPHeader is the byte size of a BPHeader on the wire:
	// magic(2) + version(1) + senderId(6) + length(2) + numPayloads(1) + seqno(4).
	FixedSizeBPHeader = 2 + 1 + 6 + 2 + 1 + 4

	// FixedSizePayloadHeader is protocolId(2) + length(2).
	FixedSizePayloadHeader = 2 + 2
)

// BPHeader is the fixed header prefixing every BP beacon.
type BPHeader struct {
	Magic       uint16
	Version     uint8
	SenderId    NodeId
	Length      uint16
	NumPayloads uint8
	Seqno       uint32
}

func EncodeBPHeader(e *Encoder, h BPHeader) {
	e.PutUint16(h.Magic)
	e.PutUint8(h.Version)
	h.SenderId.encode(e)
	e.PutUint16(h.Length)
	e.PutUint8(h.NumPayloads)
	e.PutUint32(h.Seqno)
}

func DecodeBPHeader(d *Decoder) (BPHeader, error) {
	var h BPHeader
	magic, err := d.GetUint16()
	if err != nil {
		return h, err
	}
	version, err := d.GetUint8()
	if err != nil {
		return h, err
	}
	sender, err := decodeNodeId(d)
	if err != nil {
		return h, err
	}
	length, err := d.GetUint16()
	if err != nil {
		return h, err
	}
	numPayloads, err := d.GetUint8()
	if err != nil {
		return h, err
	}
	seqno, err := d.GetUint32()
	if err != nil {
		return h, err
	}
	h = BPHeader{
		Magic:       magic,
		Version:     version,
		SenderId:    sender,
		Length:      length,
		NumPayloads: numPayloads,
		Seqno:       seqno,
	}
	return h, nil
}

// Valid checks the invariants of Testable Property 2/13: correct magic,
// correct version, and sender is not ourselves.
func (h BPHeader) Valid(ownNodeId NodeId, remainingBytes int) bool {
	return h.Magic == BPMagic &&
		h.Version == BPVersion &&
		h.SenderId != ownNodeId &&
		int(h.Length) <= remainingBytes
}

// PayloadHeader prefixes one client-protocol payload body within a beacon.
type PayloadHeader struct {
	ProtocolId ProtocolId
	Length     uint16
}

func EncodePayloadHeader(e *Encoder, h PayloadHeader) {
	e.PutUint16(uint16(h.ProtocolId))
	e.PutUint16(h.Length)
}

func DecodePayloadHeader(d *Decoder) (PayloadHeader, error) {
	pid, err := d.GetUint16()
	if err != nil {
		return PayloadHeader{}, err
	}
	length, err := d.GetUint16()
	if err != nil {
		return PayloadHeader{}, err
	}
	return PayloadHeader{ProtocolId: ProtocolId(pid), Length: length}, nil
}
