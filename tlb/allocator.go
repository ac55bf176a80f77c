// Package tlb implements the fixed-size TLB window allocator that sits
// between package kernel's raw ioctl layer and package ttdevice's
// read/write API (spec.md §4.2, §6.1). Windows are a scarce, fixed-count
// resource per size class; this package is the free-list allocator plus
// the cached-configuration optimization that avoids a reconfigure ioctl
// when consecutive accesses target the same NOC address.
package tlb

import (
	"sync"

	"umd/arch"
	"umd/errs"
	"umd/kernel"
)

// Window is one allocated, currently-configured TLB aperture. All access
// through a single Window is serialized by its own mutex — concurrent
// callers sharing a Window must not interleave ReadBlock/WriteBlock calls
// that assume a stable configured address (spec.md §4.2).
type Window struct {
	a         *Allocator
	handle    kernel.TlbHandle
	sizeClass int
	size      uint64
	bar       *kernel.BarMapping
	barOffset uint64

	mu          sync.Mutex
	configured  bool
	currentAddr uint64
	mapping     arch.TlbMapping
	ordering    arch.TlbOrdering
}

// Allocator hands out Windows from the fixed per-size-class pool the
// kernel driver exposes, smallest-size-class-first so a register poke
// doesn't steal a multi-gigabyte aperture from a bulk transfer.
type Allocator struct {
	dev  *kernel.Device
	impl *arch.Impl

	mu    sync.Mutex
	free  [][]*Window // indexed by size class
}

// NewAllocator maps one BAR per arch size class and builds its free list.
// BAR index N is conventionally wired to size class N by the kernel
// driver, matching the fixed per-size-class window table spec.md §4.2
// describes.
func NewAllocator(dev *kernel.Device, impl *arch.Impl) (*Allocator, error) {
	a := &Allocator{dev: dev, impl: impl, free: make([][]*Window, len(impl.TlbSizeClasses))}
	for classIdx, class := range impl.TlbSizeClasses {
		bar, err := dev.MapBar(classIdx, int(class.Size)*class.Count)
		if err != nil {
			return nil, err
		}
		for i := 0; i < class.Count; i++ {
			a.free[classIdx] = append(a.free[classIdx], &Window{
				a: a, sizeClass: classIdx, size: class.Size,
				bar: bar, barOffset: uint64(i) * class.Size,
			})
		}
	}
	return a, nil
}

// Allocate returns a Window whose aperture is at least sizeHint bytes,
// preferring the smallest size class that fits. Returns errs.OutOfTlbs
// (recoverable: callers may retry against a different address range or
// fall back to host-DRAM staging, spec.md §4.7) only once every class
// that could fit sizeHint is exhausted.
func (a *Allocator) Allocate(sizeHint uint64) (*Window, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for classIdx, class := range a.impl.TlbSizeClasses {
		if class.Size < sizeHint {
			continue
		}
		pool := a.free[classIdx]
		if len(pool) == 0 {
			continue
		}
		w := pool[len(pool)-1]
		handle, err := a.dev.AllocateTlb(classIdx)
		if err != nil {
			// Kernel's own accounting disagrees with our free list (another
			// process raced us for this size class); don't hand out a
			// window we don't actually hold.
			continue
		}
		a.free[classIdx] = pool[:len(pool)-1]
		w.handle = handle
		return w, nil
	}
	return nil, errs.New(errs.KindOutOfTlbs, "no TLB window available for requested size")
}

// allocateNoKernel runs the free-list selection Allocate uses without
// touching the kernel ioctl layer, so the size-class preference and
// exhaustion behavior can be tested without a real device.
func (a *Allocator) allocateNoKernel(sizeHint uint64) (*Window, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for classIdx, class := range a.impl.TlbSizeClasses {
		if class.Size < sizeHint {
			continue
		}
		pool := a.free[classIdx]
		if len(pool) == 0 {
			continue
		}
		w := pool[len(pool)-1]
		a.free[classIdx] = pool[:len(pool)-1]
		return w, nil
	}
	return nil, errs.New(errs.KindOutOfTlbs, "no TLB window available for requested size")
}

// Release returns w to its size class's free list and frees its kernel-side
// allocation, invalidating any cached configuration.
func (w *Window) Release() {
	w.mu.Lock()
	w.configured = false
	w.mu.Unlock()

	_ = w.a.dev.FreeTlb(w.handle)

	w.a.mu.Lock()
	w.a.free[w.sizeClass] = append(w.a.free[w.sizeClass], w)
	w.a.mu.Unlock()
}

// Size returns the aperture size in bytes.
func (w *Window) Size() uint64 { return w.size }
