package kernel

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"

	"umd/arch"
	"umd/errs"
)

// TlbHandle identifies one kernel-allocated TLB window (an index into the
// fixed per-size-class window table the arch.Impl describes).
type TlbHandle struct {
	ID        uint32
	SizeClass int
}

// AllocateTlb asks the kernel driver for a free window in the given size
// class, grounded on spec.md §6.1's allocate_tlb and the ioctl shape of
// ioctl.go's GetDeviceInfoViaIOCTL/DiscoverIOCTLs. Returns errs.OutOfTlbs
// when the size class is exhausted, a recoverable condition the allocator
// in package tlb retries against other size classes.
func (d *Device) AllocateTlb(sizeClassIndex int) (TlbHandle, error) {
	wire := allocateTlbWire{SizeClassIndex: uint32(sizeClassIndex)}
	if err := d.ioctl(cmdAllocateTlb, unsafe.Pointer(&wire)); err != nil {
		if isOutOfResources(err) {
			return TlbHandle{}, errs.Wrap(errs.KindOutOfTlbs, "no free TLB window in size class", err)
		}
		return TlbHandle{}, err
	}
	return TlbHandle{ID: wire.TlbID, SizeClass: sizeClassIndex}, nil
}

// FreeTlb releases a previously allocated window back to the kernel driver.
func (d *Device) FreeTlb(h TlbHandle) error {
	id := h.ID
	return d.ioctl(cmdFreeTlb, unsafe.Pointer(&id))
}

// ConfigureTlb programs a window to alias a NOC-relative address with the
// given mapping/ordering discipline (spec.md §6.1 configure_tlb).
func (d *Device) ConfigureTlb(h TlbHandle, address uint64, mapping arch.TlbMapping, ordering arch.TlbOrdering) error {
	wire := configureTlbWire{
		TlbID:    h.ID,
		Address:  address,
		Mapping:  uint8(mapping),
		Ordering: uint8(ordering),
	}
	return d.ioctl(cmdConfigureTlb, unsafe.Pointer(&wire))
}

// isOutOfResources reports whether the wrapped errno is ENOSPC/EBUSY, the
// kernel driver's signal that a size class's fixed window table is full.
func isOutOfResources(err error) bool {
	var e *errs.Error
	if !errors.As(err, &e) {
		return false
	}
	return errors.Is(e.Cause, unix.ENOSPC) || errors.Is(e.Cause, unix.EBUSY)
}
