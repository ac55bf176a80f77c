package remote

import (
	"encoding/binary"

	"umd/coord"
	"umd/errs"
	"umd/ttdevice"
)

// BroadcastHeader is the 5-word header spec.md §4.10 says a cluster-wide
// ERISC broadcast carries: which racks/shelves/chip ids the firmware
// should fan the write out to, and which rows/columns of the target
// core-type grid to skip (the host-side equivalent of
// cluster.BroadcastOptions' exclude sets, already resolved to bitmasks by
// the caller).
type BroadcastHeader struct {
	RackMask   uint32
	ShelfMask  uint32
	ChipIDMask uint32
	RowExclude uint32
	ColExclude uint32
}

// BroadcastHeaderSize is the header's wire size: 5 words, 4 bytes each.
const BroadcastHeaderSize = 20

// Encode packs the header into its wire representation.
func (h BroadcastHeader) Encode() [BroadcastHeaderSize]byte {
	var buf [BroadcastHeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], h.RackMask)
	binary.LittleEndian.PutUint32(buf[4:8], h.ShelfMask)
	binary.LittleEndian.PutUint32(buf[8:12], h.ChipIDMask)
	binary.LittleEndian.PutUint32(buf[12:16], h.RowExclude)
	binary.LittleEndian.PutUint32(buf[16:20], h.ColExclude)
	return buf
}

// BroadcastWrite posts a broadcast-flagged command so the ERISC firmware
// fans a 4-byte write out to every chip/row/column header selects, rather
// than the caller issuing one WriteRemote per destination (spec.md
// §4.6/§4.10). Broadcasts require sysmem (spec.md §4.7's "Broadcasts
// require sysmem"): the header is staged at the front of staging's buffer
// and its physical address carried in the command's SrcAddrTag field, the
// same staging convention blockTransfer uses for bulk reads/writes.
func (r *RemoteCommunication) BroadcastWrite(carrier coord.CoreCoord, header BroadcastHeader, remoteOffset uint64, data uint32, staging *ttdevice.StagingBuffer) error {
	if staging == nil {
		return errs.New(errs.KindUnsupportedOperation, "broadcast requires a sysmem staging buffer")
	}
	hdr := header.Encode()
	stagingBytes := staging.Bytes()
	if len(stagingBytes) < len(hdr) {
		return errs.New(errs.KindInvalidAddress, "staging buffer too small for broadcast header")
	}
	copy(stagingBytes[:len(hdr)], hdr[:])

	return r.withNonMMIOLock(func() error {
		q := r.queueFor(carrier)
		slot := CommandSlot{
			SysAddr:    remoteOffset,
			Data:       data,
			Flags:      FlagWrite | FlagBroadcast,
			SrcAddrTag: uint32(staging.PhysAddr() & 0xFFFFFFFF),
		}
		return q.Post(slot, defaultCommandTimeout)
	})
}
