// Package sysmem manages the host-DRAM hugepage channels used as DMA
// staging buffers for bulk local and remote transfers (spec.md §4.7,
// §6.1). It wraps package kernel's raw hugepage ioctl with host-memory
// headroom checks so pinning a multi-gigabyte buffer doesn't push the
// host into OOM territory, grounded on the teacher's gopsutil-based host
// stats collection in controller.go's DeviceStats.
package sysmem

import (
	"fmt"
	"sync"

	"github.com/shirou/gopsutil/v3/mem"

	"umd/errs"
	"umd/kernel"
	"umd/ttdevice"
)

// minFreeHeadroomRatio is the fraction of total host memory that must
// remain free after pinning a hugepage channel, a conservative guard
// against starving the rest of the host (the teacher checks host memory
// for diagnostics only; this module acts on it before allocating).
const minFreeHeadroomRatio = 0.10

// SysmemManager owns the hugepage DMA channels for one locally-attached
// chip.
type SysmemManager struct {
	dev *kernel.Device

	mu       sync.Mutex
	channels map[int]*ttdevice.StagingBuffer
}

// NewSysmemManager builds a manager bound to dev.
func NewSysmemManager(dev *kernel.Device) *SysmemManager {
	return &SysmemManager{dev: dev, channels: make(map[int]*ttdevice.StagingBuffer)}
}

// CheckHostMemoryAvailable reports an error if pinning requiredBytes more
// host memory would leave less than minFreeHeadroomRatio of total memory
// free.
func CheckHostMemoryAvailable(requiredBytes uint64) error {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return errs.Wrap(errs.KindIoError, "reading host memory stats", err)
	}
	minFree := uint64(float64(vm.Total) * minFreeHeadroomRatio)
	if vm.Available < requiredBytes+minFree {
		return errs.New(errs.KindIoError, fmt.Sprintf(
			"insufficient host memory: need %d bytes plus %d headroom, have %d available",
			requiredBytes, minFree, vm.Available))
	}
	return nil
}

// AllocateChannel pins and maps a new hugepage-backed DMA channel,
// replacing any existing mapping at the same index.
func (m *SysmemManager) AllocateChannel(channel int, sizeBytes int) (*ttdevice.StagingBuffer, error) {
	if err := CheckHostMemoryAvailable(uint64(sizeBytes)); err != nil {
		return nil, err
	}
	hp, err := m.dev.AllocateHugepage(sizeBytes)
	if err != nil {
		return nil, err
	}
	buf := ttdevice.NewStagingBuffer(hp)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[channel] = buf
	return buf, nil
}

// FreeChannel releases a previously allocated channel.
func (m *SysmemManager) FreeChannel(channel int) error {
	m.mu.Lock()
	buf, ok := m.channels[channel]
	delete(m.channels, channel)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return m.dev.FreeHugepage(buf.Hugepage())
}

// GetHugepageMapping returns the staging buffer backing channel, if any.
func (m *SysmemManager) GetHugepageMapping(channel int) (*ttdevice.StagingBuffer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf, ok := m.channels[channel]
	return buf, ok
}

// WriteToSysmem copies data into channel's staging buffer at byte offset.
func (m *SysmemManager) WriteToSysmem(channel int, offset uint64, data []byte) error {
	buf, ok := m.GetHugepageMapping(channel)
	if !ok {
		return errs.New(errs.KindInvalidAddress, "no such sysmem channel")
	}
	mem := buf.Bytes()
	if offset+uint64(len(data)) > uint64(len(mem)) {
		return errs.New(errs.KindInvalidAddress, "write exceeds sysmem channel size")
	}
	copy(mem[offset:], data)
	return nil
}

// ReadFromSysmem copies len(dst) bytes from channel's staging buffer at
// byte offset into dst.
func (m *SysmemManager) ReadFromSysmem(channel int, offset uint64, dst []byte) error {
	buf, ok := m.GetHugepageMapping(channel)
	if !ok {
		return errs.New(errs.KindInvalidAddress, "no such sysmem channel")
	}
	mem := buf.Bytes()
	if offset+uint64(len(dst)) > uint64(len(mem)) {
		return errs.New(errs.KindInvalidAddress, "read exceeds sysmem channel size")
	}
	copy(dst, mem[offset:])
	return nil
}
