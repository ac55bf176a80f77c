package kernel

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"umd/errs"
)

type pciDeviceInfoWire struct {
	VendorID uint16
	DeviceID uint16
	Bus      uint8
	Slot     uint8
	Function uint8
	_        uint8
}

type allocateTlbWire struct {
	SizeClassIndex uint32
	TlbID          uint32 // out
}

type configureTlbWire struct {
	TlbID    uint32
	Address  uint64
	Mapping  uint8
	Ordering uint8
	_        [2]byte
}

type allocateDmaBufWire struct {
	SizeBytes  uint64
	PhysAddr   uint64 // out
	Handle     uint64 // out
}

// PciDeviceInfo is the host-visible identity of one accelerator endpoint,
// returned by GetPCIDeviceInfo (spec.md §6.1).
type PciDeviceInfo struct {
	VendorID, DeviceID uint16
	Bus, Slot, Function uint8
}

// Device is one open character-device handle to a single accelerator PCIe
// endpoint, along with its mapped BARs. All operations are safe to call
// from multiple goroutines in the same process; cross-process safety is
// the job of package lockmgr layered on top (spec.md §4.3).
type Device struct {
	path string
	file *os.File

	mu   sync.Mutex
	bars map[int]*BarMapping
}

// BarMapping is one mmap'd PCIe base-address-register window.
type BarMapping struct {
	Index int
	mem   []byte
}

// Bytes returns the mapped region. Callers must not retain it past Unmap.
func (b *BarMapping) Bytes() []byte { return b.mem }

// OpenDevice opens the accelerator's character device, e.g.
// "/dev/tenstorrent/0", grounded on ioctl.go's OpenIOCTLDevice.
func OpenDevice(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errs.Wrap(errs.KindIoError, fmt.Sprintf("opening %s", path), err)
	}
	return &Device{path: path, file: f, bars: make(map[int]*BarMapping)}, nil
}

// Close unmaps every BAR and closes the device file.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range d.bars {
		_ = unix.Munmap(b.mem)
	}
	d.bars = nil
	return d.file.Close()
}

// MapBar mmaps BAR index for sizeBytes, grounded on
// other_examples/920b1d47_aamcrae-pru__pru.go.go's unix.Mmap-over-uio
// pattern: PROT_READ|PROT_WRITE, MAP_SHARED, offset encodes the BAR index
// the way uio encodes its map regions.
func (d *Device) MapBar(index int, sizeBytes int) (*BarMapping, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.bars[index]; ok {
		return b, nil
	}
	offset := int64(index) * barMmapStride
	mem, err := unix.Mmap(int(d.file.Fd()), offset, sizeBytes, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errs.Wrap(errs.KindIoError, fmt.Sprintf("mmap bar %d", index), err)
	}
	b := &BarMapping{Index: index, mem: mem}
	d.bars[index] = b
	return b, nil
}

// UnmapBar releases a previously mapped BAR.
func (d *Device) UnmapBar(index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.bars[index]
	if !ok {
		return nil
	}
	delete(d.bars, index)
	if err := unix.Munmap(b.mem); err != nil {
		return errs.Wrap(errs.KindIoError, "munmap bar", err)
	}
	return nil
}

// barMmapStride is the per-BAR offset convention the kernel driver's mmap
// fault handler uses to disambiguate which BAR an mmap(offset=...) call
// targets. One GB exceeds every BAR mapping tlb.NewAllocator requests except
// Blackhole's 4 GB class (8 x 4 GB), which is that arch's last BAR index, so
// no other BAR's offset lies inside it.
const barMmapStride = 1 << 30

// GetPCIDeviceInfo queries bus/slot/function and PCI IDs via ioctl,
// grounded on ioctl.go's GetDeviceInfoViaIOCTL.
func (d *Device) GetPCIDeviceInfo() (PciDeviceInfo, error) {
	var wire pciDeviceInfoWire
	if err := d.ioctl(cmdGetDeviceInfo, unsafe.Pointer(&wire)); err != nil {
		return PciDeviceInfo{}, err
	}
	return PciDeviceInfo{
		VendorID: wire.VendorID, DeviceID: wire.DeviceID,
		Bus: wire.Bus, Slot: wire.Slot, Function: wire.Function,
	}, nil
}

// QueryWarmResetSupport reports whether the kernel driver can trigger a
// warm (link-preserving) reset without a full PCI re-enumeration.
func (d *Device) QueryWarmResetSupport() (bool, error) {
	var supported uint8
	if err := d.ioctl(cmdQueryWarmReset, unsafe.Pointer(&supported)); err != nil {
		return false, err
	}
	return supported != 0, nil
}

// TriggerWarmReset asks the kernel driver to reset the ASIC in place.
func (d *Device) TriggerWarmReset() error {
	return d.ioctl(cmdTriggerWarmReset, nil)
}

// ioctl issues a raw ioctl(2), grounded on ioctl.go's TryIOCTL which calls
// syscall.Syscall(syscall.SYS_IOCTL, ...) directly rather than through a
// higher-level wrapper, since ioctl payload structs here are driver-ABI
// specific, not something x/sys/unix has typed helpers for.
func (d *Device) ioctl(cmd uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.file.Fd(), cmd, uintptr(arg))
	if errno != 0 {
		return errs.Wrap(errs.KindIoError, "ioctl", errno)
	}
	return nil
}
