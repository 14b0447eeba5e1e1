package shm

import (
	"fmt"
	"sync"
	"time"
)

// ErrQueueTimeout is returned by WaitPush/WaitPop when the predicate was
// not satisfied before the deadline; callers must treat this as "try
// again", not a failure (§4.3, §5).
var ErrQueueTimeout = fmt.Errorf("shm: finite queue wait timed out")

// ErrQueueClosed is returned once Close has been called.
var ErrQueueClosed = fmt.Errorf("shm: finite queue closed")

// FiniteQueue is a bounded MPMC queue of variable-length byte messages,
// backed by a fixed arena of slotCount slots of slotSize bytes each (the
// Pool's buffer segment), a free-list FIFO and a ready-list FIFO of
// Descriptors, one mutex, and two condition variables (cond_empty,
// cond_full). The HasData() predicate mirrors "ready list nonempty" and
// gates cond_empty, exactly as specified in §3/§4.3.
//
// The original C++ queue uses a process-shared pthread mutex/condvar pair
// so producers and consumers in different OS processes can block on the
// same predicate. Go's standard library has no process-shared condition
// variable without cgo; this implementation keeps the real shared-memory
// arena (slots, free list, ready list all live in the Pool and are valid
// cross-process) but realizes the blocking discipline with an in-process
// sync.Mutex/sync.Cond pair, so blocking semantics are exact for callers
// that share a process (daemon-internal producers/consumers) and
// cross-process callers fall back to the timeout-and-retry path already
// mandated by §4.3 for lock contention. See DESIGN.md.
type FiniteQueue struct {
	pool  *Pool
	ready *RingBuffer
	free  *RingBuffer

	mu        sync.Mutex
	condEmpty *sync.Cond
	condFull  *sync.Cond
	closed    bool
}

// FiniteQueueControlSize returns the control-segment footprint needed for
// a finite queue with the given slot count (a ready-list plus a free-list
// ring buffer, each of that capacity).
func FiniteQueueControlSize(slotCount int) int {
	return 2 * RingBufferSize(slotCount)
}

// NewFiniteQueue builds a finite queue over ctrl (exactly
// FiniteQueueControlSize(pool.SlotCount) bytes) and pool's buffer slots.
// initialize seeds the free list with every slot; pass false when
// attaching to an already-initialized segment.
func NewFiniteQueue(pool *Pool, ctrl []byte, initialize bool) (*FiniteQueue, error) {
	n := pool.SlotCount
	want := FiniteQueueControlSize(n)
	if len(ctrl) != want {
		return nil, fmt.Errorf("shm: finite queue control window is %d bytes, want %d", len(ctrl), want)
	}
	readySize := RingBufferSize(n)
	ready, err := NewRingBuffer(ctrl[:readySize], n, initialize)
	if err != nil {
		return nil, err
	}
	free, err := NewRingBuffer(ctrl[readySize:], n, initialize)
	if err != nil {
		return nil, err
	}
	fq := &FiniteQueue{pool: pool, ready: ready, free: free}
	fq.condEmpty = sync.NewCond(&fq.mu)
	fq.condFull = sync.NewCond(&fq.mu)
	if initialize {
		for i := 0; i < n; i++ {
			free.Push(Descriptor{SlotIndex: uint32(i), MaxLength: uint32(pool.SlotSize)})
		}
	}
	return fq, nil
}

// HasData mirrors the has_data predicate: true iff the ready list is
// nonempty.
func (fq *FiniteQueue) HasData() bool {
	fq.mu.Lock()
	defer fq.mu.Unlock()
	return !fq.ready.Empty()
}

// Len reports the number of messages currently queued.
func (fq *FiniteQueue) Len() int {
	fq.mu.Lock()
	defer fq.mu.Unlock()
	return fq.ready.Count()
}

// PushWait enqueues msg, waiting up to timeout for a free slot if the
// queue is currently full. Spurious wakeups are tolerated by re-checking
// the predicate in a loop.
func (fq *FiniteQueue) PushWait(msg []byte, timeout time.Duration) error {
	if len(msg) > fq.pool.SlotSize {
		return fmt.Errorf("shm: message of %d bytes exceeds slot size %d", len(msg), fq.pool.SlotSize)
	}
	deadline := time.Now().Add(timeout)

	fq.mu.Lock()
	defer fq.mu.Unlock()
	for fq.free.Empty() {
		if fq.closed {
			return ErrQueueClosed
		}
		if !fq.waitUntil(fq.condFull, deadline) {
			return ErrQueueTimeout
		}
	}
	if fq.closed {
		return ErrQueueClosed
	}
	d, _ := fq.free.Pop()
	slot := fq.pool.Slot(int(d.SlotIndex))
	copy(slot, msg)
	d.DataOffset = uint32(int(d.SlotIndex) * fq.pool.SlotSize)
	d.UsedLength = uint32(len(msg))
	fq.ready.Push(d)
	fq.condEmpty.Broadcast()
	return nil
}

// PopWait dequeues the oldest message, waiting up to timeout if the queue
// is currently empty.
func (fq *FiniteQueue) PopWait(timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)

	fq.mu.Lock()
	defer fq.mu.Unlock()
	for fq.ready.Empty() {
		if fq.closed {
			return nil, ErrQueueClosed
		}
		if !fq.waitUntil(fq.condEmpty, deadline) {
			return nil, ErrQueueTimeout
		}
	}
	if fq.ready.Empty() {
		return nil, ErrQueueTimeout
	}
	d, _ := fq.ready.Pop()
	slot := fq.pool.Slot(int(d.SlotIndex))
	msg := make([]byte, d.UsedLength)
	copy(msg, slot[:d.UsedLength])
	d.UsedLength = 0
	fq.free.Push(d)
	fq.condFull.Broadcast()
	return msg, nil
}

// waitUntil blocks on cond until woken or deadline passes, returning
// false on timeout. sync.Cond has no native deadline support, so a timer
// goroutine broadcasts once the deadline elapses to unblock this waiter
// (and any others waiting on the same predicate, who will simply re-check
// and re-wait — tolerating the spurious wakeup per §4.3).
func (fq *FiniteQueue) waitUntil(cond *sync.Cond, deadline time.Time) bool {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return false
	}
	timer := time.AfterFunc(remaining, func() {
		fq.mu.Lock()
		cond.Broadcast()
		fq.mu.Unlock()
	})
	defer timer.Stop()
	cond.Wait()
	return true
}

// Close wakes all blocked waiters with ErrQueueClosed.
func (fq *FiniteQueue) Close() {
	fq.mu.Lock()
	fq.closed = true
	fq.condEmpty.Broadcast()
	fq.condFull.Broadcast()
	fq.mu.Unlock()
}
