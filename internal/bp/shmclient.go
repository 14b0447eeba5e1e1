package bp

import (
	"sync"
	"time"

	"github.com/dcp-vardis/dcp-vardis-go/internal/shm"
)

// clientChannel is the shared-memory transport for one registered client
// protocol: an outgoing holding area (mode-specific admission/pull
// semantics, §4.1) and an incoming indication ring (daemon-to-client,
// drop-on-full, §4.2), both carved out of one Pool's slot arena.
type clientChannel struct {
	pool *shm.Pool

	mu      sync.Mutex
	free    *shm.RingBuffer
	outHold *shm.RingBuffer // pending outgoing payloads, order = admission order
	rxInd   *shm.RingBuffer // pending inbound indications for the client to drain

	mode      QueueingMode
	maxEntries int
}

// newClientChannel creates (owns) a shm pool sized for 2*capacity slots of
// slotSize bytes, all on one free list shared by outgoing holding and
// inbound indications (neither side has slots reserved for it).
func newClientChannel(dir, shmName string, mode QueueingMode, maxEntries, slotSize int) (*clientChannel, error) {
	capacity := maxEntries
	if capacity < 1 {
		capacity = 1
	}
	totalSlots := capacity * 2
	ctrlLen := 3 * shm.RingBufferSize(totalSlots)
	pool, err := shm.Create(dir, shmName, ctrlLen, slotSize, totalSlots)
	if err != nil {
		return nil, err
	}
	ctrl := pool.Control()
	sz := shm.RingBufferSize(totalSlots)
	free, err := shm.NewRingBuffer(ctrl[0:sz], totalSlots, true)
	if err != nil {
		pool.Close()
		return nil, err
	}
	outHold, err := shm.NewRingBuffer(ctrl[sz:2*sz], totalSlots, true)
	if err != nil {
		pool.Close()
		return nil, err
	}
	rxInd, err := shm.NewRingBuffer(ctrl[2*sz:3*sz], totalSlots, true)
	if err != nil {
		pool.Close()
		return nil, err
	}
	for i := 0; i < totalSlots; i++ {
		free.Push(shm.Descriptor{SlotIndex: uint32(i), MaxLength: uint32(slotSize)})
	}
	return &clientChannel{
		pool: pool, free: free, outHold: outHold, rxInd: rxInd,
		mode: mode, maxEntries: capacity,
	}, nil
}

// openClientChannel attaches to a channel created by another process's
// newClientChannel call, by shm segment name, without taking ownership of
// it (§5 "shared-resource policy": clients map but do not destroy).
func openClientChannel(dir, shmName string, mode QueueingMode, maxEntries int) (*clientChannel, error) {
	ctrlLen := 0 // computed below from maxEntries as newClientChannel does; controlLen passed to Open must match Create's
	capacity := maxEntries
	if capacity < 1 {
		capacity = 1
	}
	totalSlots := capacity * 2
	ctrlLen = 3 * shm.RingBufferSize(totalSlots)

	pool, err := shm.Open(dir, shmName, ctrlLen)
	if err != nil {
		return nil, err
	}
	ctrl := pool.Control()
	sz := shm.RingBufferSize(totalSlots)
	free, err := shm.NewRingBuffer(ctrl[0:sz], totalSlots, false)
	if err != nil {
		pool.Close()
		return nil, err
	}
	outHold, err := shm.NewRingBuffer(ctrl[sz:2*sz], totalSlots, false)
	if err != nil {
		pool.Close()
		return nil, err
	}
	rxInd, err := shm.NewRingBuffer(ctrl[2*sz:3*sz], totalSlots, false)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &clientChannel{
		pool: pool, free: free, outHold: outHold, rxInd: rxInd,
		mode: mode, maxEntries: capacity,
	}, nil
}

func (c *clientChannel) close() error { return c.pool.Close() }

// admitOutgoing applies §4.1's per-mode admission rule and reports
// whether the payload was dropped (and why, for statistics).
func (c *clientChannel) admitOutgoing(payload []byte) (dropped bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.mode {
	case Once, Repeat:
		// Single-slot buffer: overwrite whatever is pending.
		if d, ok := c.outHold.Pop(); ok {
			c.free.Push(d)
		}
		return !c.writeOne(payload)
	case QueueDropTail:
		if c.outHold.Count() >= c.maxEntries {
			return true
		}
		return !c.writeOne(payload)
	case QueueDropHead:
		if c.outHold.Count() >= c.maxEntries {
			if d, ok := c.outHold.Pop(); ok {
				c.free.Push(d)
			}
		}
		return !c.writeOne(payload)
	default:
		return true
	}
}

// writeOne grabs a free slot, copies payload into it, and pushes the
// descriptor onto outHold. Returns false if no free slot was available.
func (c *clientChannel) writeOne(payload []byte) bool {
	d, ok := c.free.Pop()
	if !ok {
		return false
	}
	slot := c.pool.Slot(int(d.SlotIndex))
	copy(slot, payload)
	d.UsedLength = uint32(len(payload))
	c.outHold.Push(d)
	return true
}

// pullOutgoing returns at most one pending outgoing payload, honoring the
// mode's retention rule: Repeat leaves the slot in place so the next
// beacon window can resend it; Once and the dropping-queue modes consume
// the slot (strict FIFO for the queue modes).
func (c *clientChannel) pullOutgoing() ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.outHold.Peek()
	if !ok {
		return nil, false
	}
	slot := c.pool.Slot(int(d.SlotIndex))
	payload := make([]byte, d.UsedLength)
	copy(payload, slot[:d.UsedLength])

	switch c.mode {
	case Repeat:
		// leave d in place; caller may retransmit it every window until
		// ClearBuffer or an overwrite.
	default:
		c.outHold.Pop()
		c.free.Push(d)
	}
	return payload, true
}

// clearOutgoing empties the holding area (ClearBuffer primitive).
func (c *clientChannel) clearOutgoing() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		d, ok := c.outHold.Pop()
		if !ok {
			break
		}
		c.free.Push(d)
	}
}

func (c *clientChannel) numBuffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outHold.Count()
}

// pushIndication delivers an inbound payload to the client's rx ring,
// dropping it if the ring (or the shared free list) is full.
func (c *clientChannel) pushIndication(payload []byte) (dropped bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.free.Pop()
	if !ok {
		return true
	}
	slot := c.pool.Slot(int(d.SlotIndex))
	copy(slot, payload)
	d.UsedLength = uint32(len(payload))
	if !c.rxInd.Push(d) {
		c.free.Push(d)
		return true
	}
	return false
}

// PullIndication drains one inbound payload for the client, used by the
// client library (bp.Client.ReceivePayload).
func (c *clientChannel) pullIndication(timeout time.Duration) ([]byte, bool) {
	deadline := time.Now().Add(timeout)
	for {
		c.mu.Lock()
		d, ok := c.rxInd.Pop()
		if ok {
			slot := c.pool.Slot(int(d.SlotIndex))
			payload := make([]byte, d.UsedLength)
			copy(payload, slot[:d.UsedLength])
			c.free.Push(d)
			c.mu.Unlock()
			return payload, true
		}
		c.mu.Unlock()
		if time.Now().After(deadline) {
			return nil, false
		}
		time.Sleep(time.Millisecond)
	}
}
