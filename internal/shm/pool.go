// Package shm implements the shared substrate of §4.3: a named shared
// buffer pool split into a control segment (magic number, mutex, ring
// buffers) and a buffer segment of equal-size slots, plus the ring buffer,
// finite queue and array-AVL tree data structures that live inside it.
package shm

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// PoolMagic is re-verified on every scoped lock acquisition; a mismatch is
// fatal (it indicates segment corruption or aliasing).
const PoolMagic uint64 = 0x4711497E01020304

// Default lock-acquisition timeouts (§4.3).
const (
	LongLockTimeout  = time.Second
	ShortLockTimeout = 20 * time.Millisecond
)

// ErrLockTimeout is returned by a Pool method when the control-segment
// mutex could not be acquired within the requested deadline. It is
// recoverable: callers should retry.
var ErrLockTimeout = fmt.Errorf("shm: mutex acquisition timed out")

// ErrMagicMismatch indicates the control segment's magic number does not
// match PoolMagic — segment corruption or a stale/aliased mapping. This is
// always a fatal condition for the owning daemon.
var ErrMagicMismatch = fmt.Errorf("shm: control segment magic number mismatch")

// control-segment layout, all integers big-endian:
//
//	[0:8)   magic number
//	[8:16)  slotSize  (uint64)
//	[16:24) slotCount (uint64)
const controlHeaderSize = 24

// MaxControlSegmentSize is the largest control segment (header included)
// Create accepts.
const MaxControlSegmentSize = 64 * 1024

// Pool is a named shared memory segment: a control segment (bounded at
// 64 KiB per §6) in front of a buffer segment of slotCount slots of
// slotSize bytes each, slot size rounded up to a multiple of 8. Pointers
// never cross the process boundary — every reference into the buffer
// segment is an integer offset resolved against Pool.base, which is held
// only in local, per-process memory (Design Note: raw pointer graphs
// through shared memory).
type Pool struct {
	Name       string
	IsCreator  bool
	SlotSize   int
	SlotCount  int
	path       string
	file       *os.File
	base       []byte // mmap'd region: control segment followed by buffer segment
	controlLen int
}

func shmPath(dir, name string) string {
	if dir == "" {
		dir = "/dev/shm"
		if _, err := os.Stat(dir); err != nil {
			dir = os.TempDir()
		}
	}
	return filepath.Join(dir, "dcp-"+name+".shm")
}

func roundUp8(n int) int { return (n + 7) &^ 7 }

// Create allocates a new named shared buffer pool, sized for controlLen
// bytes of control-segment metadata (ring buffers, finite-queue headers)
// plus slotCount slots of slotSize bytes (rounded up to a multiple of 8).
// The caller becomes the pool's owner: Close on an owner removes the
// backing file.
func Create(dir, name string, controlLen, slotSize, slotCount int) (*Pool, error) {
	if controlHeaderSize+controlLen > MaxControlSegmentSize {
		return nil, fmt.Errorf("shm: control segment of %d bytes exceeds %d", controlHeaderSize+controlLen, MaxControlSegmentSize)
	}
	slotSize = roundUp8(slotSize)
	total := controlHeaderSize + controlLen + slotSize*slotCount
	path := shmPath(dir, name)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("shm: create %s: %w", path, err)
	}
	if err := f.Truncate(int64(total)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("shm: truncate %s: %w", path, err)
	}

	base, err := unix.Mmap(int(f.Fd()), 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("shm: mmap %s: %w", path, err)
	}

	p := &Pool{
		Name: name, IsCreator: true, SlotSize: slotSize, SlotCount: slotCount,
		path: path, file: f, base: base, controlLen: controlHeaderSize + controlLen,
	}
	binary.BigEndian.PutUint64(base[0:8], PoolMagic)
	binary.BigEndian.PutUint64(base[8:16], uint64(slotSize))
	binary.BigEndian.PutUint64(base[16:24], uint64(slotCount))
	return p, nil
}

// Open maps an existing pool created by another process/daemon. The
// caller does not own the segment and must not remove it.
func Open(dir, name string, controlLen int) (*Pool, error) {
	path := shmPath(dir, name)
	f, err := os.OpenFile(path, os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("shm: open %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	base, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: mmap %s: %w", path, err)
	}
	magic := binary.BigEndian.Uint64(base[0:8])
	if magic != PoolMagic {
		unix.Munmap(base)
		f.Close()
		return nil, ErrMagicMismatch
	}
	slotSize := int(binary.BigEndian.Uint64(base[8:16]))
	slotCount := int(binary.BigEndian.Uint64(base[16:24]))
	return &Pool{
		Name: name, IsCreator: false, SlotSize: slotSize, SlotCount: slotCount,
		path: path, file: f, base: base, controlLen: controlHeaderSize + controlLen,
	}, nil
}

// CheckMagic re-verifies the magic number, per §4.3's "re-verified on every
// scoped lock acquisition" rule.
func (p *Pool) CheckMagic() error {
	if binary.BigEndian.Uint64(p.base[0:8]) != PoolMagic {
		return ErrMagicMismatch
	}
	return nil
}

// Control returns the mutable control-segment window (metadata for ring
// buffers / finite queues), sized to controlLen as passed to Create/Open.
func (p *Pool) Control() []byte { return p.base[controlHeaderSize:p.controlLen] }

// Slot returns the mutable window for buffer slot i.
func (p *Pool) Slot(i int) []byte {
	off := p.controlLen + i*p.SlotSize
	return p.base[off : off+p.SlotSize]
}

// Lock acquires the process-wide advisory file lock backing this pool's
// control-segment mutex, waiting up to timeout. It mirrors the
// timed_lock discipline of §4.3: a timeout is reported as ErrLockTimeout,
// not a crash.
func (p *Pool) Lock(timeout time.Duration) (unlock func(), err error) {
	deadline := time.Now().Add(timeout)
	for {
		ferr := unix.Flock(int(p.file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if ferr == nil {
			if cerr := p.CheckMagic(); cerr != nil {
				unix.Flock(int(p.file.Fd()), unix.LOCK_UN)
				return nil, cerr
			}
			return func() { unix.Flock(int(p.file.Fd()), unix.LOCK_UN) }, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		time.Sleep(time.Millisecond)
	}
}

// Close unmaps the segment; an owner also removes the backing file.
func (p *Pool) Close() error {
	err := unix.Munmap(p.base)
	p.file.Close()
	if p.IsCreator {
		os.Remove(p.path)
	}
	return err
}
