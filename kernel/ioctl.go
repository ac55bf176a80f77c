// Package kernel wraps the one non-portable layer of the driver: the
// character-device ioctl interface used to map BARs, carve TLB windows,
// pin hugepages for DMA, and trigger a warm reset (spec.md §6.1). It is
// grounded on the teacher's internal/driver/device/ioctl.go IOC helpers and
// on other_examples/920b1d47_aamcrae-pru__pru.go.go's mmap-over-a-character
// device pattern.
package kernel

// The IOC_* bit layout and constructors below are a direct port of the
// Linux ioctl() encoding the teacher's ioctl.go already implements; kept
// unchanged because it's not driver-specific, just the kernel ABI.
const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2

	iocNrBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14
	iocDirBits  = 2

	iocNrShift   = 0
	iocTypeShift = iocNrShift + iocNrBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return (dir << iocDirShift) | (typ << iocTypeShift) | (nr << iocNrShift) | (size << iocSizeShift)
}

func io(typ, nr uintptr) uintptr { return ioc(iocNone, typ, nr, 0) }

func ior(typ, nr, size uintptr) uintptr { return ioc(iocRead, typ, nr, size) }

func iow(typ, nr, size uintptr) uintptr { return ioc(iocWrite, typ, nr, size) }

func iowr(typ, nr, size uintptr) uintptr { return ioc(iocRead|iocWrite, typ, nr, size) }

// ttIoctlType is this driver family's ioctl magic number, matching the
// character-device ABI the kernel module registers under.
const ttIoctlType = 0xFA

// ioctl command numbers. Payload sizes are the marshaled size of the
// corresponding request/response struct in device.go.
var (
	cmdGetDeviceInfo     = ior(ttIoctlType, 0, 8)  // pciDeviceInfoWire
	cmdAllocateTlb       = iowr(ttIoctlType, 1, 8) // allocateTlbWire
	cmdFreeTlb           = iow(ttIoctlType, 2, 4)  // uint32 tlb id
	cmdConfigureTlb      = iow(ttIoctlType, 3, 16) // configureTlbWire
	cmdAllocateDmaBuf    = iowr(ttIoctlType, 4, 24) // allocateDmaBufWire
	cmdFreeDmaBuf        = iow(ttIoctlType, 5, 8)  // uint64 handle
	cmdQueryWarmReset    = ior(ttIoctlType, 6, 1)  // uint8 bool
	cmdTriggerWarmReset  = io(ttIoctlType, 7)
)
