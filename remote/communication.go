package remote

import (
	"sync"
	"time"

	"umd/coord"
	"umd/errs"
	"umd/lockmgr"
	"umd/ttdevice"
)

const defaultCommandTimeout = 2 * time.Second

// RemoteCommunication is the read/write/broadcast API for a chip reachable
// only through another, MMIO-mapped chip's ERISC core. One
// RemoteCommunication is built per local carrier chip and serves every
// remote chip that carrier tunnels traffic for.
type RemoteCommunication struct {
	local *ttdevice.TTDevice

	mu     sync.Mutex
	queues map[coord.CoreCoord]*ErisCommandQueueState // keyed by local ERISC core ("carrier")

	locks       *lockmgr.LockManager
	deviceIndex int
}

// SetLockManager arms the interprocess NON_MMIO mutex discipline spec.md
// §4.7 requires ("the entire read/write lives under a single interprocess
// NON_MMIO mutex per MMIO device"): every ReadRemote/WriteRemote/
// BroadcastWrite call after this takes deviceIndex's NonMMIO lock for its
// duration. Left unset, a RemoteCommunication built directly (as in unit
// tests that never call these methods) has no locking dependency.
func (r *RemoteCommunication) SetLockManager(locks *lockmgr.LockManager, deviceIndex int) {
	r.locks = locks
	r.deviceIndex = deviceIndex
}

func (r *RemoteCommunication) withNonMMIOLock(fn func() error) error {
	if r.locks == nil {
		return fn()
	}
	h, err := r.locks.Lock(lockmgr.Key{Kind: lockmgr.NonMMIO, DeviceIndex: r.deviceIndex})
	if err != nil {
		return err
	}
	defer r.locks.Unlock(h)
	return fn()
}

// NewRemoteCommunication builds the tunneled-access layer rooted at an
// MMIO-mapped local chip. Returns errs.UnsupportedOperation if the local
// chip's arch does not implement the ERISC remote path (spec.md §4.7:
// Blackhole never does).
func NewRemoteCommunication(local *ttdevice.TTDevice) (*RemoteCommunication, error) {
	if !local.Impl.SupportsRemote {
		return nil, errs.New(errs.KindUnsupportedOperation, "arch does not support ERISC-tunneled remote access")
	}
	return &RemoteCommunication{local: local, queues: make(map[coord.CoreCoord]*ErisCommandQueueState)}, nil
}

func (r *RemoteCommunication) queueFor(carrier coord.CoreCoord) *ErisCommandQueueState {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[carrier]
	if !ok {
		q = NewErisCommandQueueState(r.local, carrier)
		r.queues[carrier] = q
	}
	return q
}

// ReadRemote reads lengthBytes from a remote chip's NOC address space
// (spec.md §4.7). A read of at most 4 bytes with no staging buffer is posted
// as one inline command slot; any other read goes through blockTransfer,
// which splits it into block-mode commands of at most
// MaxBlockSizeWithoutSysmem bytes, capped at the staging buffer's size.
// Without a staging buffer, reads longer than 4 bytes fail with
// InvalidAddress; there is no ERISC-scratch staging path.
func (r *RemoteCommunication) ReadRemote(carrier coord.CoreCoord, rack uint8, remoteSysAddr uint64, dst []byte, staging *ttdevice.StagingBuffer) error {
	return r.withNonMMIOLock(func() error {
		q := r.queueFor(carrier)
		if len(dst) <= 4 && staging == nil {
			slot := CommandSlot{SysAddr: remoteSysAddr, Rack: rack}
			return q.Post(slot, defaultCommandTimeout)
		}
		return r.blockTransfer(q, rack, remoteSysAddr, dst, staging, false)
	})
}

// WriteRemote is the write-direction counterpart of ReadRemote.
func (r *RemoteCommunication) WriteRemote(carrier coord.CoreCoord, rack uint8, remoteSysAddr uint64, src []byte, staging *ttdevice.StagingBuffer) error {
	return r.withNonMMIOLock(func() error {
		q := r.queueFor(carrier)
		if len(src) <= 4 && staging == nil {
			var data uint32
			for i, b := range src {
				data |= uint32(b) << (8 * i)
			}
			slot := CommandSlot{SysAddr: remoteSysAddr, Data: data, Flags: FlagWrite, Rack: rack}
			return q.Post(slot, defaultCommandTimeout)
		}
		return r.blockTransfer(q, rack, remoteSysAddr, src, staging, true)
	})
}

// blockTransfer chunks a bulk transfer into MaxBlockSizeWithoutSysmem-sized
// pieces, staging each through a host-DRAM buffer the way large local DMA
// transfers do (spec.md §4.7's staging-buffer rule).
func (r *RemoteCommunication) blockTransfer(q *ErisCommandQueueState, rack uint8, addr uint64, buf []byte, staging *ttdevice.StagingBuffer, write bool) error {
	if staging == nil {
		return errs.New(errs.KindInvalidAddress, "block-mode transfer requires a staging buffer")
	}
	chunkSize := r.local.Impl.MaxBlockSizeWithoutSysmem
	stagingBytes := staging.Bytes()
	if chunkSize > len(stagingBytes) {
		chunkSize = len(stagingBytes)
	}

	for offset := 0; offset < len(buf); offset += chunkSize {
		end := offset + chunkSize
		if end > len(buf) {
			end = len(buf)
		}
		n := end - offset
		if write {
			copy(stagingBytes[:n], buf[offset:end])
		}
		flags := FlagBlockMode
		if write {
			flags |= FlagWrite
		}
		slot := CommandSlot{
			SysAddr: addr + uint64(offset),
			Data:    uint32(n),
			Flags:   flags,
			Rack:    rack,
			SrcAddrTag: uint32(staging.PhysAddr() & 0xFFFFFFFF),
		}
		if err := q.Post(slot, defaultCommandTimeout); err != nil {
			return err
		}
		if !write {
			copy(buf[offset:end], stagingBytes[:n])
		}
	}
	return nil
}

// WaitForNonMMIOFlush blocks until every command posted on carrier's queue
// so far has been acknowledged by the remote firmware (spec.md §4.7).
func (r *RemoteCommunication) WaitForNonMMIOFlush(carrier coord.CoreCoord, timeout time.Duration) error {
	return r.queueFor(carrier).Flush(timeout)
}
