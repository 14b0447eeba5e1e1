package wire

// Per-record encodings exactly as specified in spec.md §3 / §6: all
// multi-byte integers big-endian, length prefixes 8-bit.

func EncodeVarSpec(e *Encoder, s VarSpec) {
	e.PutUint8(uint8(s.VarId))
	s.Producer.encode(e)
	e.PutUint8(uint8(s.RepCnt))
	e.PutLenBytes([]byte(s.Description))
}

func DecodeVarSpec(d *Decoder) (VarSpec, error) {
	var s VarSpec
	vid, err := d.GetUint8()
	if err != nil {
		return s, err
	}
	producer, err := decodeNodeId(d)
	if err != nil {
		return s, err
	}
	rep, err := d.GetUint8()
	if err != nil {
		return s, err
	}
	descr, err := d.GetLenBytes()
	if err != nil {
		return s, err
	}
	s.VarId = VarId(vid)
	s.Producer = producer
	s.RepCnt = VarRepCnt(rep)
	s.Description = VarDescription(descr)
	return s, nil
}

func EncodeVarUpdate(e *Encoder, u VarUpdate) {
	e.PutUint8(uint8(u.VarId))
	e.PutUint8(uint8(u.Seqno))
	e.PutLenBytes(u.Value)
}

func DecodeVarUpdate(d *Decoder) (VarUpdate, error) {
	var u VarUpdate
	vid, err := d.GetUint8()
	if err != nil {
		return u, err
	}
	seq, err := d.GetUint8()
	if err != nil {
		return u, err
	}
	val, err := d.GetLenBytes()
	if err != nil {
		return u, err
	}
	if len(val) == 0 {
		return u, ErrMalformed
	}
	u.VarId = VarId(vid)
	u.Seqno = VarSeqno(seq)
	u.Value = val
	return u, nil
}

func EncodeVarCreate(e *Encoder, c VarCreate) {
	EncodeVarSpec(e, c.Spec)
	EncodeVarUpdate(e, c.Update)
}

func DecodeVarCreate(d *Decoder) (VarCreate, error) {
	var c VarCreate
	spec, err := DecodeVarSpec(d)
	if err != nil {
		return c, err
	}
	upd, err := DecodeVarUpdate(d)
	if err != nil {
		return c, err
	}
	c.Spec = spec
	c.Update = upd
	return c, nil
}

func EncodeVarSummary(e *Encoder, s VarSummary) {
	e.PutUint8(uint8(s.VarId))
	e.PutUint8(uint8(s.Seqno))
}

func DecodeVarSummary(d *Decoder) (VarSummary, error) {
	var s VarSummary
	vid, err := d.GetUint8()
	if err != nil {
		return s, err
	}
	seq, err := d.GetUint8()
	if err != nil {
		return s, err
	}
	s.VarId = VarId(vid)
	s.Seqno = VarSeqno(seq)
	return s, nil
}

func EncodeVarDelete(e *Encoder, del VarDelete) { e.PutUint8(uint8(del.VarId)) }

func DecodeVarDelete(d *Decoder) (VarDelete, error) {
	vid, err := d.GetUint8()
	if err != nil {
		return VarDelete{}, err
	}
	return VarDelete{VarId: VarId(vid)}, nil
}

func EncodeVarReqCreate(e *Encoder, r VarReqCreate) { e.PutUint8(uint8(r.VarId)) }

func DecodeVarReqCreate(d *Decoder) (VarReqCreate, error) {
	vid, err := d.GetUint8()
	if err != nil {
		return VarReqCreate{}, err
	}
	return VarReqCreate{VarId: VarId(vid)}, nil
}

func EncodeVarReqUpdate(e *Encoder, r VarReqUpdate) {
	e.PutUint8(uint8(r.VarId))
	e.PutUint8(uint8(r.Seqno))
}

func DecodeVarReqUpdate(d *Decoder) (VarReqUpdate, error) {
	var r VarReqUpdate
	vid, err := d.GetUint8()
	if err != nil {
		return r, err
	}
	seq, err := d.GetUint8()
	if err != nil {
		return r, err
	}
	r.VarId = VarId(vid)
	r.Seqno = VarSeqno(seq)
	return r, nil
}

// EncodedSize* helpers let the transmit driver compute how many records of
// a given kind fit in the remaining payload budget without re-serializing.

func EncodedSizeVarSpec(s VarSpec) int   { return 1 + 6 + 1 + 1 + len(s.Description) }
func EncodedSizeVarUpdate(u VarUpdate) int { return 1 + 1 + 1 + len(u.Value) }
func EncodedSizeVarCreate(c VarCreate) int { return EncodedSizeVarSpec(c.Spec) + EncodedSizeVarUpdate(c.Update) }
func EncodedSizeVarSummary() int           { return 2 }
func EncodedSizeVarDelete() int            { return 1 }
func EncodedSizeVarReqCreate() int         { return 1 }
func EncodedSizeVarReqUpdate() int         { return 2 }

func EncodeICHeader(e *Encoder, h ICHeader) {
	e.PutUint8(uint8(h.Kind))
	e.PutUint8(h.Count)
}

func DecodeICHeader(d *Decoder) (ICHeader, error) {
	kind, err := d.GetUint8()
	if err != nil {
		return ICHeader{}, err
	}
	count, err := d.GetUint8()
	if err != nil {
		return ICHeader{}, err
	}
	h := ICHeader{Kind: ICKind(kind), Count: count}
	if !h.Kind.Valid() || h.Count == 0 {
		return h, ErrMalformed
	}
	return h, nil
}
