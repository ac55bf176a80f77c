// Package remote implements ERISC-tunneled access to chips reachable only
// over Ethernet, not PCIe (spec.md §4.7). An ERISC core on a local,
// MMIO-mapped chip relays NOC reads/writes to a remote chip's ERISC core
// over a dedicated command queue living in that core's L1; this package is
// the wire format and the read/write/broadcast algorithms built on top of
// it. Blackhole does not implement this path (arch.Impl.SupportsRemote is
// false) and every entry point here returns errs.UnsupportedOperation for
// it, per spec.md §4.7.
package remote

import "encoding/binary"

// CommandSlot is one 8-word (32 bytes) ERISC command queue entry.
type CommandSlot struct {
	SysAddr         uint64
	Data            uint32
	Flags           uint32
	Rack            uint8
	SrcRespBufIndex uint8
	LocalBufIndex   uint8
	SrcRespQId      uint8
	HostMemTxnID    uint32
	SrcAddrTag      uint32
	_padding        uint32
}

const CommandSlotSize = 32

// Command flag bits.
const (
	FlagWrite     uint32 = 1 << 0
	FlagBlockMode uint32 = 1 << 1
	FlagBroadcast uint32 = 1 << 2
)

// Encode packs the slot into its 8-word wire representation.
func (c CommandSlot) Encode() [CommandSlotSize]byte {
	var buf [CommandSlotSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], c.SysAddr)
	binary.LittleEndian.PutUint32(buf[8:12], c.Data)
	binary.LittleEndian.PutUint32(buf[12:16], c.Flags)
	buf[16] = c.Rack
	buf[17] = c.SrcRespBufIndex
	buf[18] = c.LocalBufIndex
	buf[19] = c.SrcRespQId
	binary.LittleEndian.PutUint32(buf[20:24], c.HostMemTxnID)
	binary.LittleEndian.PutUint32(buf[24:28], c.SrcAddrTag)
	return buf
}

// DecodeCommandSlot unpacks a wire-format slot.
func DecodeCommandSlot(buf [CommandSlotSize]byte) CommandSlot {
	return CommandSlot{
		SysAddr:         binary.LittleEndian.Uint64(buf[0:8]),
		Data:            binary.LittleEndian.Uint32(buf[8:12]),
		Flags:           binary.LittleEndian.Uint32(buf[12:16]),
		Rack:            buf[16],
		SrcRespBufIndex: buf[17],
		LocalBufIndex:   buf[18],
		SrcRespQId:      buf[19],
		HostMemTxnID:    binary.LittleEndian.Uint32(buf[20:24]),
		SrcAddrTag:      binary.LittleEndian.Uint32(buf[24:28]),
	}
}
