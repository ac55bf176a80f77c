// Package ttdevice implements the TTDevice façade: the single per-chip
// object everything else in this module (chip, cluster, diag) talks
// through for register/DMA access, ARC messaging, and hang detection
// (spec.md §4.1, §4.4). It owns the chip's kernel.Device, tlb.Allocator,
// and coord.SocDescriptor, and serializes the state transitions the rest
// of the driver assumes (Created -> Initialized -> closed).
package ttdevice

import (
	"sync"

	"umd/arch"
	"umd/coord"
	"umd/errs"
	"umd/kernel"
	"umd/tlb"
)

// State is TTDevice's lifecycle, grounded on controller.go's
// CheckDeviceState/OpenDevice split between "opened" and "initialized".
type State int

const (
	StateCreated State = iota
	StateInitialized
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// TTDevice is the façade for one locally-attached (PCIe) accelerator chip.
type TTDevice struct {
	Soc  *coord.SocDescriptor
	Impl *arch.Impl

	kdev  *kernel.Device
	alloc *tlb.Allocator

	mu    sync.RWMutex
	state State

	arcMsgr ArcMessenger
	tracer  *Tracer

	scratchMu sync.Mutex
	scratch   *tlb.Window // small cached window reused for register-sized accesses
}

// Open opens the PCIe character device at path and builds a TTDevice for
// it, grounded on controller.go's OpenDevice strategy-selection entry
// point (here there's only one local backend: the kernel character
// device; JTAG is a distinct alternate transport in package jtag).
func Open(path string, soc *coord.SocDescriptor) (*TTDevice, error) {
	kdev, err := kernel.OpenDevice(path)
	if err != nil {
		return nil, err
	}
	impl := arch.For(soc.Arch)
	alloc, err := tlb.NewAllocator(kdev, impl)
	if err != nil {
		_ = kdev.Close()
		return nil, err
	}
	d := &TTDevice{Soc: soc, Impl: impl, kdev: kdev, alloc: alloc, state: StateCreated}
	d.arcMsgr = newArcMessenger(d)
	return d, nil
}

// Initialize transitions the device from Created to Initialized: it does
// not itself touch hardware (that's initializeASIC's job in the original
// controller.go); here it only checks that the device is Created and flips
// the state to Initialized, since everything else in
// this package is pure register/DMA plumbing with no boot sequence of its
// own to run.
func (d *TTDevice) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateCreated {
		return errs.New(errs.KindInvalidAddress, "device must be Created to Initialize")
	}
	d.state = StateInitialized
	return nil
}

func (d *TTDevice) requireInitialized() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.state != StateInitialized {
		return errs.New(errs.KindInvalidAddress, "device is not initialized")
	}
	return nil
}

// Close releases the cached scratch window, the tracer if attached, and
// the underlying kernel device.
func (d *TTDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateClosed {
		return nil
	}
	if d.scratch != nil {
		d.scratch.Release()
		d.scratch = nil
	}
	if d.tracer != nil {
		_ = d.tracer.Close()
	}
	d.state = StateClosed
	return d.kdev.Close()
}

// Kdev exposes the underlying kernel device for callers that need raw
// hugepage/DMA access below the TLB-windowed register API, namely
// package sysmem's per-device staging-buffer channels.
func (d *TTDevice) Kdev() *kernel.Device { return d.kdev }

// window returns a cached small-class window sized for register access,
// allocating it on first use — the "cached window per TTDevice"
// optimization spec.md §4.2 calls for so every register poke doesn't pay
// an allocate/free round trip.
func (d *TTDevice) window(minSize uint64) (*tlb.Window, error) {
	d.scratchMu.Lock()
	defer d.scratchMu.Unlock()
	if d.scratch != nil && d.scratch.Size() >= minSize {
		return d.scratch, nil
	}
	w, err := d.alloc.Allocate(minSize)
	if err != nil {
		return nil, err
	}
	if d.scratch != nil {
		d.scratch.Release()
	}
	d.scratch = w
	return w, nil
}
