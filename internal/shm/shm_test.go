package shm

import (
	"math/rand"
	"testing"
	"time"
)

func TestRingBufferFIFOAndFullEmpty(t *testing.T) {
	buf := make([]byte, RingBufferSize(2))
	rb, err := NewRingBuffer(buf, 2, true)
	if err != nil {
		t.Fatal(err)
	}
	if !rb.Empty() || rb.Full() {
		t.Fatal("new ring buffer should be empty")
	}
	if !rb.Push(Descriptor{SlotIndex: 1}) {
		t.Fatal("push 1 should succeed")
	}
	if !rb.Push(Descriptor{SlotIndex: 2}) {
		t.Fatal("push 2 should succeed")
	}
	if !rb.Full() {
		t.Fatal("buffer should be full at capacity")
	}
	if rb.Push(Descriptor{SlotIndex: 3}) {
		t.Fatal("push beyond capacity should fail")
	}
	d, ok := rb.Pop()
	if !ok || d.SlotIndex != 1 {
		t.Fatalf("expected FIFO order, got %+v ok=%v", d, ok)
	}
	d, ok = rb.Pop()
	if !ok || d.SlotIndex != 2 {
		t.Fatalf("expected FIFO order, got %+v ok=%v", d, ok)
	}
	if !rb.Empty() {
		t.Fatal("buffer should be empty after draining")
	}
	if _, ok := rb.Pop(); ok {
		t.Fatal("pop on empty buffer should fail")
	}
}

func newTestPool(t *testing.T, slotSize, slotCount int) *Pool {
	t.Helper()
	dir := t.TempDir()
	p, err := Create(dir, "test-"+t.Name(), FiniteQueueControlSize(slotCount), slotSize, slotCount)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestFiniteQueuePushPop(t *testing.T) {
	p := newTestPool(t, 16, 4)
	fq, err := NewFiniteQueue(p, p.Control(), true)
	if err != nil {
		t.Fatal(err)
	}
	if fq.HasData() {
		t.Fatal("new queue should be empty")
	}
	if err := fq.PushWait([]byte("hello"), time.Second); err != nil {
		t.Fatal(err)
	}
	if !fq.HasData() {
		t.Fatal("queue should report data after push")
	}
	msg, err := fq.PopWait(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if string(msg) != "hello" {
		t.Fatalf("expected hello, got %q", msg)
	}
}

func TestFiniteQueuePopTimesOutWhenEmpty(t *testing.T) {
	p := newTestPool(t, 16, 2)
	fq, err := NewFiniteQueue(p, p.Control(), true)
	if err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	_, err = fq.PopWait(30 * time.Millisecond)
	if err != ErrQueueTimeout {
		t.Fatalf("expected ErrQueueTimeout, got %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("should not return before the timeout elapses")
	}
}

func TestFiniteQueueFullBlocksUntilPop(t *testing.T) {
	p := newTestPool(t, 16, 1)
	fq, err := NewFiniteQueue(p, p.Control(), true)
	if err != nil {
		t.Fatal(err)
	}
	if err := fq.PushWait([]byte("a"), time.Second); err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() {
		done <- fq.PushWait([]byte("b"), time.Second)
	}()
	time.Sleep(20 * time.Millisecond)
	if _, err := fq.PopWait(time.Second); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("second push should succeed once a slot frees up: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("second push should have unblocked after the pop")
	}
}

func TestArrayAVLBalanceAndOrder(t *testing.T) {
	tree := NewArrayAVL(1000)
	r := rand.New(rand.NewSource(1))
	keys := r.Perm(500)
	for _, k := range keys {
		if !tree.Insert(uint64(k), int32(k)) {
			t.Fatalf("insert %d should succeed within capacity", k)
		}
		if !tree.CheckBalance() {
			t.Fatalf("tree unbalanced after inserting %d", k)
		}
	}
	var last int64 = -1
	count := 0
	tree.InOrder(func(key uint64, value int32) {
		if int64(key) <= last {
			t.Fatalf("in-order traversal not strictly increasing at key %d", key)
		}
		last = int64(key)
		count++
	})
	if count != 500 {
		t.Fatalf("expected 500 entries, got %d", count)
	}
	for i, k := range keys {
		if i%2 == 0 {
			if !tree.Remove(uint64(k)) {
				t.Fatalf("remove %d should succeed", k)
			}
			if !tree.CheckBalance() {
				t.Fatalf("tree unbalanced after removing %d", k)
			}
		}
	}
}

func TestArrayAVLFullCapacity(t *testing.T) {
	tree := NewArrayAVL(4)
	for i := 0; i < 4; i++ {
		if !tree.Insert(uint64(i), int32(i)) {
			t.Fatalf("insert %d should succeed within capacity", i)
		}
	}
	if tree.Insert(uint64(4), 4) {
		t.Fatal("insert beyond capacity should fail")
	}
	if !tree.Full() {
		t.Fatal("tree should report full")
	}
}
