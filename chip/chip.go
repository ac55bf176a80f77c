// Package chip is the first layer that presents a uniform "one chip,
// however it's reached" API: LocalChip for PCIe/MMIO-mapped chips and
// RemoteChip for chips reachable only through another chip's ERISC
// tunnel (spec.md §4.1, §4.6). Both implement Chip so package cluster can
// treat a cluster's chips uniformly regardless of how each is wired up.
package chip

import "umd/coord"

// Chip is the uniform per-chip API package cluster builds a cluster out
// of.
type Chip interface {
	// ID is this chip's position in cluster-wide enumeration order.
	ID() int
	// Soc returns the chip's coordinate/harvesting descriptor.
	Soc() *coord.SocDescriptor
	// ReadFromDevice reads len(dst) bytes from core's local address space
	// at byte offset, over whatever transport reaches this chip (spec.md
	// §2's unified read_from_device call flow).
	ReadFromDevice(core coord.CoreCoord, offset uint64, dst []byte) error
	// WriteToDevice is the write-direction counterpart of ReadFromDevice.
	WriteToDevice(core coord.CoreCoord, offset uint64, src []byte) error
	// DeassertRiscResets releases the tensix RISC cores from reset after
	// firmware has been staged into their L1, the last step of bringing a
	// chip up (spec.md §4.1).
	DeassertRiscResets() error
	// AssertRiscResets holds every tensix RISC core in reset, the first
	// step of start_device/close_device (spec.md §4.10).
	AssertRiscResets() error
	// GetClock returns the chip's current AI clock in MHz.
	GetClock() (uint32, error)
	// MemBarrier blocks until every write issued by this process to this
	// chip so far is guaranteed visible to any subsequent read, local or
	// remote (spec.md §4.3).
	MemBarrier() error
	// Close releases this chip's resources. Safe to call once.
	Close() error
}
