package shm

import (
	"encoding/binary"
	"fmt"
)

// Descriptor is the fixed-size element stored in a RingBuffer: it refers
// to payload bytes living at bufferBase+DataOffset, never an absolute
// pointer (Design Note: raw pointer graphs through shared memory).
type Descriptor struct {
	SlotIndex  uint32
	DataOffset uint32
	UsedLength uint32
	MaxLength  uint32
}

const descriptorSize = 16

func putDescriptor(b []byte, d Descriptor) {
	binary.BigEndian.PutUint32(b[0:4], d.SlotIndex)
	binary.BigEndian.PutUint32(b[4:8], d.DataOffset)
	binary.BigEndian.PutUint32(b[8:12], d.UsedLength)
	binary.BigEndian.PutUint32(b[12:16], d.MaxLength)
}

func getDescriptor(b []byte) Descriptor {
	return Descriptor{
		SlotIndex:  binary.BigEndian.Uint32(b[0:4]),
		DataOffset: binary.BigEndian.Uint32(b[4:8]),
		UsedLength: binary.BigEndian.Uint32(b[8:12]),
		MaxLength:  binary.BigEndian.Uint32(b[12:16]),
	}
}

// RingBufferSize returns the byte footprint of a ring buffer with
// capacity N: an 8-byte head/tail pair followed by (N+1) descriptor
// slots (one slot is always reserved to distinguish full from empty).
func RingBufferSize(capacity int) int {
	return 8 + (capacity+1)*descriptorSize
}

// RingBuffer is a fixed-capacity FIFO of Descriptors backed by a byte
// window (typically a slice of a Pool's control segment, but a plain
// byte slice works identically — the data structure itself is lock-free
// only in the sense that it has no internal locking; callers serialize
// access externally via Pool.Lock, matching §4.3).
type RingBuffer struct {
	buf      []byte
	capacity int // usable capacity; backing array has capacity+1 slots
}

// NewRingBuffer wraps buf (which must be exactly RingBufferSize(capacity)
// bytes) as a ring buffer of the given capacity. initialize zeroes the
// head/tail fields; pass false when attaching to an already-initialized
// segment.
func NewRingBuffer(buf []byte, capacity int, initialize bool) (*RingBuffer, error) {
	want := RingBufferSize(capacity)
	if len(buf) != want {
		return nil, fmt.Errorf("shm: ring buffer window is %d bytes, want %d", len(buf), want)
	}
	rb := &RingBuffer{buf: buf, capacity: capacity}
	if initialize {
		binary.BigEndian.PutUint32(rb.buf[0:4], 0)
		binary.BigEndian.PutUint32(rb.buf[4:8], 0)
	}
	return rb, nil
}

func (rb *RingBuffer) head() uint32 { return binary.BigEndian.Uint32(rb.buf[0:4]) }
func (rb *RingBuffer) tail() uint32 { return binary.BigEndian.Uint32(rb.buf[4:8]) }
func (rb *RingBuffer) setHead(v uint32) { binary.BigEndian.PutUint32(rb.buf[0:4], v) }
func (rb *RingBuffer) setTail(v uint32) { binary.BigEndian.PutUint32(rb.buf[4:8], v) }

func (rb *RingBuffer) slotSlice(idx uint32) []byte {
	off := 8 + int(idx)*descriptorSize
	return rb.buf[off : off+descriptorSize]
}

// Count returns (tail - head) mod (N+1), the invariant of §3.
func (rb *RingBuffer) Count() int {
	n1 := uint32(rb.capacity + 1)
	return int((rb.tail() - rb.head() + n1) % n1)
}

func (rb *RingBuffer) Empty() bool { return rb.Count() == 0 }
func (rb *RingBuffer) Full() bool  { return rb.Count() == rb.capacity }

// Push appends d at the tail. It reports false if the buffer is full.
func (rb *RingBuffer) Push(d Descriptor) bool {
	if rb.Full() {
		return false
	}
	putDescriptor(rb.slotSlice(rb.tail()), d)
	n1 := uint32(rb.capacity + 1)
	rb.setTail((rb.tail() + 1) % n1)
	return true
}

// Pop removes and returns the descriptor at the head. ok is false if the
// buffer was empty.
func (rb *RingBuffer) Pop() (d Descriptor, ok bool) {
	if rb.Empty() {
		return Descriptor{}, false
	}
	d = getDescriptor(rb.slotSlice(rb.head()))
	n1 := uint32(rb.capacity + 1)
	rb.setHead((rb.head() + 1) % n1)
	return d, true
}

// Peek returns the head descriptor without removing it.
func (rb *RingBuffer) Peek() (d Descriptor, ok bool) {
	if rb.Empty() {
		return Descriptor{}, false
	}
	return getDescriptor(rb.slotSlice(rb.head())), true
}
