package remote

import (
	"sync"
	"time"

	"umd/coord"
	"umd/errs"
	"umd/ttdevice"
)

// QueueDepth is the fixed number of command slots in each direction's
// ring, living in the ERISC core's L1 alongside the firmware.
const QueueDepth = 16

const (
	ringBaseOffset = 0x1000 // ERISC L1 offset the command ring starts at
	wptrOffset     = ringBaseOffset - 8
	rptrOffset     = ringBaseOffset - 4
)

// ErisCommandQueueState is the host-side view of one ERISC core's command
// ring: local write/read pointers mirroring the hardware ring, guarded so
// only one in-flight command is posted at a time (the ERISC firmware
// processes commands strictly in order). Alongside wptr/rptr it tracks an
// outgoing-txn counter and an ack counter (SPEC_FULL.md §4's supplement to
// spec.md §4.7/§3), so spec.md §8 invariant 6 ("wptr = rptr and txn = ack
// on every carrier") is a direct field comparison rather than something
// only true in narrative.
type ErisCommandQueueState struct {
	dev       *ttdevice.TTDevice
	eriscCore coord.CoreCoord

	mu   sync.Mutex
	wptr uint32
	rptr uint32
	txn  uint64 // commands posted to the ring so far
	ack  uint64 // commands the firmware has acknowledged (rptr advanced past them)
}

// NewErisCommandQueueState builds the queue state for the ERISC core on
// dev that tunnels traffic to a remote chip.
func NewErisCommandQueueState(dev *ttdevice.TTDevice, eriscCore coord.CoreCoord) *ErisCommandQueueState {
	return &ErisCommandQueueState{dev: dev, eriscCore: eriscCore}
}

// Post writes slot into the next ring position and bumps the write
// pointer, then waits (up to timeout) for the firmware's read pointer to
// advance past it, meaning the command completed.
func (q *ErisCommandQueueState) Post(slot CommandSlot, timeout time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.wptr % QueueDepth
	wire := slot.Encode()
	if err := q.dev.WriteToDevice(q.eriscCore, ringBaseOffset+uint64(idx)*CommandSlotSize, wire[:]); err != nil {
		return err
	}
	q.wptr++
	q.txn++
	if err := q.dev.BarWrite32(q.eriscCore, wptrOffset, q.wptr); err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	for {
		rptr, err := q.dev.BarRead32(q.eriscCore, rptrOffset)
		if err != nil {
			return err
		}
		if rptr >= q.wptr {
			q.rptr = rptr
			q.ack = q.txn
			return nil
		}
		if time.Now().After(deadline) {
			return errs.New(errs.KindTimeout, "erisc command queue did not drain in time")
		}
		time.Sleep(time.Millisecond)
	}
}

// Flush blocks until the firmware has drained every command posted so far
// and the outgoing-txn/ack counters agree, used by wait_for_non_mmio_flush
// (spec.md §4.7, §8 invariant 6).
func (q *ErisCommandQueueState) Flush(timeout time.Duration) error {
	q.mu.Lock()
	targetWptr := q.wptr
	targetTxn := q.txn
	q.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for {
		rptr, err := q.dev.BarRead32(q.eriscCore, rptrOffset)
		if err != nil {
			return err
		}
		q.mu.Lock()
		if rptr >= targetWptr {
			q.rptr = rptr
			q.ack = q.txn
		}
		done := q.rptr >= targetWptr && q.wptr == q.rptr && q.txn == q.ack && q.txn >= targetTxn
		q.mu.Unlock()
		if done {
			return nil
		}
		if time.Now().After(deadline) {
			return errs.New(errs.KindTimeout, "flush did not complete in time")
		}
		time.Sleep(time.Millisecond)
	}
}

// Stats returns the host-observed ring pointers and txn/ack counters, the
// quantities spec.md §8 invariant 6 compares across every carrier.
func (q *ErisCommandQueueState) Stats() (wptr, rptr uint32, txn, ack uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.wptr, q.rptr, q.txn, q.ack
}
