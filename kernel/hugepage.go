package kernel

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"umd/errs"
)

// HugepageMapping is one host-DRAM buffer pinned and mapped for device DMA,
// backing package sysmem's staging-buffer channels (spec.md §6.1
// allocate_hugepage, §4.7 host-DRAM staging).
type HugepageMapping struct {
	PhysAddr uint64
	Handle   uint64
	mem      []byte
}

// Bytes returns the host-virtual mapping of the pinned buffer.
func (h *HugepageMapping) Bytes() []byte { return h.mem }

// AllocateHugepage pins sizeBytes of host DRAM via the kernel driver
// (which backs it with real hugepages so the IOMMU mapping stays stable
// for the lifetime of the DMA channel) and maps it into this process.
func (d *Device) AllocateHugepage(sizeBytes int) (*HugepageMapping, error) {
	wire := allocateDmaBufWire{SizeBytes: uint64(sizeBytes)}
	if err := d.ioctl(cmdAllocateDmaBuf, unsafe.Pointer(&wire)); err != nil {
		return nil, errs.Wrap(errs.KindIoError, "allocating hugepage dma buffer", err)
	}
	mem, err := unix.Mmap(int(d.file.Fd()), int64(wire.Handle), sizeBytes, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = d.freeDmaBuf(wire.Handle)
		return nil, errs.Wrap(errs.KindIoError, "mmap hugepage dma buffer", err)
	}
	return &HugepageMapping{PhysAddr: wire.PhysAddr, Handle: wire.Handle, mem: mem}, nil
}

// FreeHugepage unmaps and releases a previously allocated DMA buffer.
func (d *Device) FreeHugepage(h *HugepageMapping) error {
	if err := unix.Munmap(h.mem); err != nil {
		return errs.Wrap(errs.KindIoError, "munmap hugepage", err)
	}
	return d.freeDmaBuf(h.Handle)
}

func (d *Device) freeDmaBuf(handle uint64) error {
	if err := d.ioctl(cmdFreeDmaBuf, unsafe.Pointer(&handle)); err != nil {
		return errs.Wrap(errs.KindIoError, fmt.Sprintf("freeing dma buffer %#x", handle), err)
	}
	return nil
}

// DmaSetup programs the device-side DMA engine to read/write the given
// host-physical address range, used by package ttdevice's dma_read/
// dma_write (spec.md §6.1 dma_setup).
func (d *Device) DmaSetup(hugepage *HugepageMapping, deviceOffset uint64, lengthBytes int, write bool) error {
	if lengthBytes <= 0 || uint64(lengthBytes) > uint64(len(hugepage.mem)) {
		return errs.New(errs.KindInvalidAddress, "dma length exceeds hugepage mapping")
	}
	wire := configureTlbWire{
		TlbID:    0, // DMA setup reuses the configure path with ID 0 reserved by the kernel driver for the DMA engine
		Address:  deviceOffset,
		Mapping:  uint8(boolToUint8(write)),
		Ordering: 0,
	}
	return d.ioctl(cmdConfigureTlb, unsafe.Pointer(&wire))
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
