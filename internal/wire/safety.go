package wire

// SafetyBeacon is SR's one on-wire record: a bare "I am alive" announcement
// carrying the sender's id and a seconds-resolution timestamp, the minimal
// payload named in SPEC_FULL.md's SR supplement. It reuses Encoder/Decoder
// rather than inventing a second codec.
type SafetyBeacon struct {
	SenderId  NodeId
	TimeStamp uint32 // seconds since Unix epoch
}

const FixedSizeSafetyBeacon = 6 + 4

func EncodeSafetyBeacon(e *Encoder, b SafetyBeacon) {
	b.SenderId.encode(e)
	e.PutUint32(b.TimeStamp)
}

func DecodeSafetyBeacon(d *Decoder) (SafetyBeacon, error) {
	sender, err := decodeNodeId(d)
	if err != nil {
		return SafetyBeacon{}, err
	}
	ts, err := d.GetUint32()
	if err != nil {
		return SafetyBeacon{}, err
	}
	return SafetyBeacon{SenderId: sender, TimeStamp: ts}, nil
}
