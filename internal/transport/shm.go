package transport

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"github.com/WestonVoglesonger/cortex/internal/wire"
)

// Shared-memory ring layout. A single mmap'd region holds two
// independent single-producer/single-consumer rings back to back, one
// per direction, so harness and adapter never contend on the same
// cursor pair.
//
//	[ring A header][ring A slots...][ring B header][ring B slots...]
//
// Each ring is a fixed number of fixed-size slots addressed by
// monotonically increasing write/read counters modulo the slot count,
// so a message always lands in exactly one slot and Send/Recv never
// need to handle a message split across the end of the buffer.
const (
	shmRingHeaderSize = 64
	shmSlotCount      = 64
	shmSlotSize       = 4 + 16384 // 4-byte length prefix + up to 16 KiB of frame bytes; Send rejects larger
	shmRingDataSize   = shmSlotCount * shmSlotSize
	shmRingSize       = shmRingHeaderSize + shmRingDataSize
	shmRegionSize     = 2 * shmRingSize

	shmPollInterval = time.Millisecond
)

type shmRing struct {
	base unsafe.Pointer // points at this ring's header
}

func (r *shmRing) writeCursor() *uint64 {
	return (*uint64)(r.base)
}

func (r *shmRing) readCursor() *uint64 {
	return (*uint64)(unsafe.Pointer(uintptr(r.base) + 8))
}

func (r *shmRing) slot(index uint64) []byte {
	slotIdx := index % shmSlotCount
	p := unsafe.Pointer(uintptr(r.base) + shmRingHeaderSize + uintptr(slotIdx)*shmSlotSize)
	return unsafe.Slice((*byte)(p), shmSlotSize)
}

// shmTransport implements Transport over a POSIX shared-memory region
// mapped from a file under /dev/shm. One side (the harness, typically
// the creator) writes into ringOut and reads from ringIn; the other
// side has the roles swapped. There is no blocking wakeup primitive in
// shared memory, so Recv polls at shmPollInterval until data appears or
// the timeout elapses.
type shmTransport struct {
	mapping []byte
	ringOut *shmRing
	ringIn  *shmRing
	path    string
	owner   bool
	pending []byte // bytes of the last received message that did not fit the caller's buffer
}

// NewSharedMemoryHarness creates (or truncates) the backing file at
// /dev/shm/<name> and maps it as the harness side of the ring pair.
func NewSharedMemoryHarness(u URI) (Transport, error) {
	return newShmTransport(u, true, true)
}

// NewSharedMemoryAdapter opens the existing backing file created by the
// harness and maps it as the adapter side, with ring roles swapped.
func NewSharedMemoryAdapter(u URI) (Transport, error) {
	return newShmTransport(u, false, false)
}

func shmFilePath(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("shm uri must specify a region name")
	}
	return filepath.Join("/dev/shm", filepath.Base(name)), nil
}

func newShmTransport(u URI, create bool, swapped bool) (Transport, error) {
	path, err := shmFilePath(u.Path)
	if err != nil {
		return nil, err
	}

	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0600)
	if err != nil {
		return nil, fmt.Errorf("open shm backing file %s: %w", path, err)
	}
	defer f.Close()

	if create {
		if err := f.Truncate(int64(shmRegionSize)); err != nil {
			os.Remove(path)
			return nil, fmt.Errorf("truncate shm region: %w", err)
		}
	}

	addr, _, errno := syscall.Syscall6(
		syscall.SYS_MMAP,
		0,
		uintptr(shmRegionSize),
		syscall.PROT_READ|syscall.PROT_WRITE,
		syscall.MAP_SHARED,
		f.Fd(),
		0,
	)
	if errno != 0 {
		if create {
			os.Remove(path)
		}
		return nil, fmt.Errorf("mmap shm region: %w", errno)
	}

	base := unsafe.Pointer(addr)
	ringA := &shmRing{base: base}
	ringB := &shmRing{base: unsafe.Pointer(uintptr(base) + shmRingSize)}

	t := &shmTransport{
		mapping: unsafe.Slice((*byte)(base), shmRegionSize),
		path:    path,
		owner:   create,
	}
	if swapped {
		t.ringOut, t.ringIn = ringB, ringA
	} else {
		t.ringOut, t.ringIn = ringA, ringB
	}
	return t, nil
}

// Send writes data into the next free slot of the outbound ring. A
// frame too large for one slot, or a ring with no free slot because the
// consumer has fallen shmSlotCount messages behind, is a caller/protocol
// bug rather than a condition Send recovers from.
func (t *shmTransport) Send(data []byte) error {
	if len(data)+4 > shmSlotSize {
		return connResetErr("shm_send", fmt.Errorf("frame of %d bytes exceeds slot capacity", len(data)))
	}
	wc := t.ringOut.writeCursor()
	rc := t.ringOut.readCursor()
	if atomic.LoadUint64(wc)-atomic.LoadUint64(rc) >= shmSlotCount {
		return connResetErr("shm_send", fmt.Errorf("outbound ring full, consumer has not caught up"))
	}

	slot := t.ringOut.slot(atomic.LoadUint64(wc))
	wire.PutU32(slot, 0, uint32(len(data)))
	copy(slot[4:], data)

	atomic.AddUint64(wc, 1)
	return nil
}

// Recv polls the inbound ring's write cursor until the next slot is
// populated or timeout elapses. Bytes of a message that do not fit buf
// are kept and returned by the next Recv.
func (t *shmTransport) Recv(buf []byte, timeout time.Duration) (int, error) {
	if len(t.pending) > 0 {
		n := copy(buf, t.pending)
		t.pending = t.pending[n:]
		return n, nil
	}
	deadline := time.Now().Add(timeout)
	rc := t.ringIn.readCursor()
	wc := t.ringIn.writeCursor()

	for {
		if atomic.LoadUint64(wc) > atomic.LoadUint64(rc) {
			slot := t.ringIn.slot(atomic.LoadUint64(rc))
			msgLen := int(wire.U32(slot, 0))
			n := copy(buf, slot[4:4+msgLen])
			if n < msgLen {
				t.pending = append([]byte{}, slot[4+n:4+msgLen]...)
			}
			atomic.AddUint64(rc, 1)
			return n, nil
		}
		if time.Now().After(deadline) {
			return 0, timeoutErr("shm_recv")
		}
		time.Sleep(shmPollInterval)
	}
}

func (t *shmTransport) Close() error {
	if t.mapping != nil {
		addr := uintptr(unsafe.Pointer(&t.mapping[0]))
		_, _, _ = syscall.Syscall(syscall.SYS_MUNMAP, addr, uintptr(len(t.mapping)), 0)
		t.mapping = nil
	}
	if t.owner {
		_ = os.Remove(t.path)
	}
	return nil
}

func (t *shmTransport) MonotonicTimestampNs() int64 {
	return monotonicNowNs()
}
