package ttdevice

import (
	"encoding/binary"

	"umd/arch"
	"umd/coord"
	"umd/errs"
)

// ReadFromDevice reads len(dst) bytes starting at byte offset within
// core's local address space into dst (spec.md §4.2 read_from_device).
func (d *TTDevice) ReadFromDevice(core coord.CoreCoord, offset uint64, dst []byte) error {
	if err := d.requireInitialized(); err != nil {
		return err
	}
	w, err := d.window(uint64(len(dst)))
	if err != nil {
		return err
	}
	addr := nocAddress(core.X, core.Y, offset)
	return w.ConfigureAndRead(addr, arch.Uncached, arch.Strict, dst)
}

// WriteToDevice writes src to core's local address space at byte offset
// (spec.md §4.2 write_to_device).
func (d *TTDevice) WriteToDevice(core coord.CoreCoord, offset uint64, src []byte) error {
	if err := d.requireInitialized(); err != nil {
		return err
	}
	w, err := d.window(uint64(len(src)))
	if err != nil {
		return err
	}
	addr := nocAddress(core.X, core.Y, offset)
	return w.ConfigureAndWrite(addr, arch.WriteCombining, arch.Posted, src)
}

// BarRead32 reads a single 32-bit register at core/offset.
func (d *TTDevice) BarRead32(core coord.CoreCoord, offset uint64) (uint32, error) {
	var buf [4]byte
	if err := d.ReadFromDevice(core, offset, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// BarWrite32 writes a single 32-bit register at core/offset.
func (d *TTDevice) BarWrite32(core coord.CoreCoord, offset uint64, value uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	return d.WriteToDevice(core, offset, buf[:])
}

// NocMulticastWrite broadcasts src to every core in the rectangle
// [start, end] (inclusive; the coordinates go into the multicast address
// as given, and package cluster passes Translated ones) using the NOC's hardware
// multicast rather than one transaction per core (spec.md §4.2, §4.6
// broadcast split between tensix/DRAM fan-out and ERISC broadcast).
func (d *TTDevice) NocMulticastWrite(startX, startY, endX, endY int, offset uint64, src []byte) error {
	if err := d.requireInitialized(); err != nil {
		return err
	}
	if endX < startX || endY < startY {
		return errs.New(errs.KindInvalidAddress, "multicast rectangle is inverted")
	}
	w, err := d.window(uint64(len(src)))
	if err != nil {
		return err
	}
	addr := multicastAddress(startX, startY, endX, endY, offset)
	return w.ConfigureAndWrite(addr, arch.WriteCombining, arch.Posted, src)
}

// DmaRead reads lengthBytes from core/offset into the given host-pinned
// staging buffer via the kernel driver's DMA engine, used for transfers
// too large to route through register-sized TLB windows efficiently
// (spec.md §4.7's DMA primitive, also exercised directly on the local
// read/write path, not only remote).
func (d *TTDevice) DmaRead(core coord.CoreCoord, offset uint64, staging *StagingBuffer, lengthBytes int) error {
	if err := d.requireInitialized(); err != nil {
		return err
	}
	addr := nocAddress(core.X, core.Y, offset)
	if err := d.kdev.DmaSetup(staging.hugepage, addr, lengthBytes, false); err != nil {
		return err
	}
	return nil
}

// DmaWrite is the write-direction counterpart of DmaRead.
func (d *TTDevice) DmaWrite(core coord.CoreCoord, offset uint64, staging *StagingBuffer, lengthBytes int) error {
	if err := d.requireInitialized(); err != nil {
		return err
	}
	addr := nocAddress(core.X, core.Y, offset)
	return d.kdev.DmaSetup(staging.hugepage, addr, lengthBytes, true)
}
