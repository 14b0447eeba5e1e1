// Package wire implements the bit-exact on-wire types and codecs of the
// beaconing substrate (BP) and the variable-dissemination protocol (VD),
// following a cursor-based encode/decode style.
package wire

import (
	"encoding/binary"
	"errors"
)

// ErrTruncated is returned by any Decode call that runs out of input bytes
// before a complete value could be read.
var ErrTruncated = errors.New("wire: truncated input")

// ErrMalformed is returned when a decoded discriminator or length field
// carries a value the format does not allow (e.g. VarLen == 0, an unknown
// ICKind).
var ErrMalformed = errors.New("wire: malformed input")

// Encoder appends big-endian encoded values to a growing byte buffer.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an Encoder that appends to a fresh buffer, optionally
// reserving cap bytes of backing capacity.
func NewEncoder(capHint int) *Encoder {
	return &Encoder{buf: make([]byte, 0, capHint)}
}

func (e *Encoder) Bytes() []byte { return e.buf }
func (e *Encoder) Len() int      { return len(e.buf) }

func (e *Encoder) PutUint8(v uint8) { e.buf = append(e.buf, v) }

func (e *Encoder) PutUint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) PutUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) PutBytes(v []byte) { e.buf = append(e.buf, v...) }

// PutLenBytes appends an 8-bit length prefix followed by the bytes
// themselves; it is the caller's responsibility to ensure len(v) <= 255.
func (e *Encoder) PutLenBytes(v []byte) {
	e.PutUint8(uint8(len(v)))
	e.PutBytes(v)
}

// Decoder consumes big-endian encoded values from a fixed byte slice,
// advancing an internal cursor.
type Decoder struct {
	buf []byte
	pos int
}

func NewDecoder(buf []byte) *Decoder { return &Decoder{buf: buf} }

// Remaining reports how many undecoded bytes are left.
func (d *Decoder) Remaining() int { return len(d.buf) - d.pos }

func (d *Decoder) require(n int) error {
	if d.Remaining() < n {
		return ErrTruncated
	}
	return nil
}

func (d *Decoder) GetUint8() (uint8, error) {
	if err := d.require(1); err != nil {
		return 0, err
	}
	v := d.buf[d.pos]
	d.pos++
	return v, nil
}

func (d *Decoder) GetUint16() (uint16, error) {
	if err := d.require(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(d.buf[d.pos:])
	d.pos += 2
	return v, nil
}

func (d *Decoder) GetUint32() (uint32, error) {
	if err := d.require(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *Decoder) GetBytes(n int) ([]byte, error) {
	if err := d.require(n); err != nil {
		return nil, err
	}
	v := make([]byte, n)
	copy(v, d.buf[d.pos:d.pos+n])
	d.pos += n
	return v, nil
}

// GetLenBytes reads an 8-bit length prefix followed by that many bytes.
func (d *Decoder) GetLenBytes() ([]byte, error) {
	n, err := d.GetUint8()
	if err != nil {
		return nil, err
	}
	return d.GetBytes(int(n))
}
