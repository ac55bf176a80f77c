package ttdevice

import "umd/kernel"

// StagingBuffer is a host-DRAM buffer pinned for DMA, produced by package
// sysmem and consumed here by DmaRead/DmaWrite (spec.md §4.7).
type StagingBuffer struct {
	hugepage *kernel.HugepageMapping
}

// NewStagingBuffer wraps an already-allocated hugepage mapping.
func NewStagingBuffer(h *kernel.HugepageMapping) *StagingBuffer {
	return &StagingBuffer{hugepage: h}
}

// Bytes returns the host-virtual view of the pinned buffer.
func (s *StagingBuffer) Bytes() []byte { return s.hugepage.Bytes() }

// PhysAddr returns the physical address the device-side DMA engine uses.
func (s *StagingBuffer) PhysAddr() uint64 { return s.hugepage.PhysAddr }

// Hugepage returns the underlying kernel-level mapping, so package sysmem
// can free it through the same kernel.Device that allocated it.
func (s *StagingBuffer) Hugepage() *kernel.HugepageMapping { return s.hugepage }
