package cluster

import (
	"fmt"

	"umd/chip"
	"umd/coord"
	"umd/errs"
	"umd/remote"
	"umd/topology"
)

// ReadFromDevice reads len(dst) bytes from core's local address space at
// byte offset on the named chip, dispatching to whichever transport
// reaches it (MMIO or ERISC tunnel), per spec.md §2's unified call flow.
func (c *Cluster) ReadFromDevice(id int, core coord.CoreCoord, offset uint64, dst []byte) error {
	if len(dst) == 0 {
		return nil
	}
	ch, ok := c.Chip(id)
	if !ok {
		return errs.New(errs.KindInvalidAddress, fmt.Sprintf("no such chip id %d", id))
	}
	return ch.ReadFromDevice(core, offset, dst)
}

// WriteToDevice is the write-direction counterpart of ReadFromDevice.
func (c *Cluster) WriteToDevice(id int, core coord.CoreCoord, offset uint64, src []byte) error {
	if len(src) == 0 {
		return nil
	}
	ch, ok := c.Chip(id)
	if !ok {
		return errs.New(errs.KindInvalidAddress, fmt.Sprintf("no such chip id %d", id))
	}
	return ch.WriteToDevice(core, offset, src)
}

// BroadcastOptions narrows a cluster-wide broadcast write (spec.md §4.10).
// Tensix and DRAM broadcasts must not mix in one call — the firmware
// cannot route both in one packet — so CoreType picks exactly one target
// class per call.
type BroadcastOptions struct {
	CoreType      coord.CoreType
	ChipsExclude  map[int]bool
	RowsExclude   map[int]bool
	ColsExclude   map[int]bool
}

// broadcastStagingChannel/broadcastStagingSize are the sysmem channel and
// size this cluster reuses to stage ERISC broadcast headers (spec.md
// §4.7's "Broadcasts require sysmem"); the header itself is only
// remote.BroadcastHeaderSize bytes, but staging buffers are page-granular.
const (
	broadcastStagingChannel = 0
	broadcastStagingSize    = 4096
)

// BroadcastWrite writes data to offset on every included core of
// opts.CoreType across every chip in the cluster. Per spec.md §4.10 it
// prefers each MMIO-local chip's hardware NOC multicast (one TLB-windowed
// write across the whole included rectangle) and each remote chip's
// ERISC-broadcast command (one command fanned out by firmware, header
// carrying the rack/shelf/chip-id masks and row/column excludes) over a
// fan-out loop; it falls back to per-core fan-out wherever the fast path
// doesn't apply (excludes poke a hole in a chip's rectangle, a remote
// chip's MMIO carrier has no sysmem channel configured, or the payload
// isn't the 4 bytes the inline broadcast command carries).
func (c *Cluster) BroadcastWrite(opts BroadcastOptions, offset uint64, data []byte) error {
	if opts.CoreType != coord.Tensix && opts.CoreType != coord.Dram {
		return errs.New(errs.KindInvalidAddress, "broadcast target must be Tensix or Dram")
	}
	for _, id := range c.order {
		if opts.ChipsExclude[int(id)] {
			continue
		}
		ch := c.chips[id]
		cores, err := ch.Soc().GetCores(opts.CoreType, coord.Translated)
		if err != nil {
			return err
		}
		included := cores[:0:0]
		for _, core := range cores {
			if opts.RowsExclude[core.Y] || opts.ColsExclude[core.X] {
				continue
			}
			included = append(included, core)
		}
		if len(included) == 0 {
			continue
		}

		if lc, ok := ch.(*chip.LocalChip); ok {
			if minX, minY, maxX, maxY, exact := rectangleOf(included); exact {
				if err := lc.Device().NocMulticastWrite(minX, minY, maxX, maxY, offset, data); err != nil {
					return err
				}
				continue
			}
		}

		if rc, ok := ch.(*chip.RemoteChip); ok && len(data) == 4 {
			if mgr, ok := c.sysmemMgrs[topology.ChipId(rc.CarrierChipID())]; ok {
				buf, ok := mgr.GetHugepageMapping(broadcastStagingChannel)
				if !ok {
					buf, err = mgr.AllocateChannel(broadcastStagingChannel, broadcastStagingSize)
					if err != nil {
						return err
					}
				}
				loc := c.desc.ChipLocations[id]
				header := remote.BroadcastHeader{
					RackMask:   1 << uint(loc.Rack%32),
					ShelfMask:  1 << uint(loc.Shelf%32),
					ChipIDMask: 1 << uint(int(id)%32),
					RowExclude: bitmaskOf(opts.RowsExclude),
					ColExclude: bitmaskOf(opts.ColsExclude),
				}
				word := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24
				if err := rc.BroadcastWrite(header, offset, word, buf); err != nil {
					return err
				}
				continue
			}
		}

		for _, core := range included {
			if err := ch.WriteToDevice(core, offset, data); err != nil {
				return err
			}
		}
	}
	return nil
}

// rectangleOf reports the bounding box of cores and whether that box is
// exactly filled (no excluded core leaves a hole inside it) — hardware NOC
// multicast and ERISC broadcast headers both only describe rectangles/row-
// or-column masks, not arbitrary point sets, so a hole forces per-core
// fan-out for that chip (spec.md §4.2, §4.10).
func rectangleOf(cores []coord.CoreCoord) (minX, minY, maxX, maxY int, exact bool) {
	minX, minY = cores[0].X, cores[0].Y
	maxX, maxY = cores[0].X, cores[0].Y
	for _, c := range cores[1:] {
		if c.X < minX {
			minX = c.X
		}
		if c.X > maxX {
			maxX = c.X
		}
		if c.Y < minY {
			minY = c.Y
		}
		if c.Y > maxY {
			maxY = c.Y
		}
	}
	want := (maxX - minX + 1) * (maxY - minY + 1)
	if want != len(cores) {
		return minX, minY, maxX, maxY, false
	}
	seen := make(map[[2]int]bool, len(cores))
	for _, c := range cores {
		seen[[2]int{c.X, c.Y}] = true
	}
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			if !seen[[2]int{x, y}] {
				return minX, minY, maxX, maxY, false
			}
		}
	}
	return minX, minY, maxX, maxY, true
}

// bitmaskOf packs a row/column exclude set into the 32-bit mask an ERISC
// broadcast header carries; indices outside [0,32) can't be represented
// and are dropped (no chip in this driver's arch tables has a grid that
// large).
func bitmaskOf(set map[int]bool) uint32 {
	var m uint32
	for k, v := range set {
		if v && k >= 0 && k < 32 {
			m |= 1 << uint(k)
		}
	}
	return m
}

// StartDevice brings every chip in the cluster up: assert all tensix
// resets, deassert them (current driver has no per-core reset
// selection, so "user-selected subset" is "every surviving core"),
// then mark each chip Busy (spec.md §4.10). Returns the first error
// encountered; partial bring-up is left in place for the caller to
// retry or Close.
func (c *Cluster) StartDevice() error {
	for _, id := range c.order {
		ch := c.chips[id]
		if err := ch.AssertRiscResets(); err != nil {
			return err
		}
		if err := ch.DeassertRiscResets(); err != nil {
			return err
		}
		c.mu.Lock()
		c.power[id] = Busy
		c.mu.Unlock()
	}
	return nil
}

// CloseDevice lowers every chip to LongIdle and asserts all RISC resets,
// the mirror image of StartDevice (spec.md §4.10). Remote chips are
// handled exactly like local ones: there is no check for a carrier MMIO
// chip that has already been reset.
func (c *Cluster) CloseDevice() error {
	var first error
	for i := len(c.order) - 1; i >= 0; i-- {
		id := c.order[i]
		ch := c.chips[id]
		if err := ch.AssertRiscResets(); err != nil && first == nil {
			first = err
		}
		c.mu.Lock()
		c.power[id] = LongIdle
		c.mu.Unlock()
	}
	return first
}

// PowerState returns the last power state this process set for chip id.
func (c *Cluster) PowerState(id int) (PowerState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.power[topology.ChipId(id)]
	return p, ok
}
