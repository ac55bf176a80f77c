package ttdevice

// NOC addresses pack the target core's coordinate into the high bits of a
// 64-bit value and a core-relative byte offset into the low 32 bits; both
// WormholeB0 and Blackhole use the same 32-bit local address space per
// core, just different grid extents, so one shift layout covers both
// (spec.md §4.2).
const (
	nocAddrOffsetBits = 32
	nocYShift         = nocAddrOffsetBits + 6
	nocXShift         = nocAddrOffsetBits
	nocCoordMask      = 0x3F // 6 bits: covers both archs' grid extents
)

func nocAddress(x, y int, offset uint64) uint64 {
	return uint64(y&nocCoordMask)<<nocYShift | uint64(x&nocCoordMask)<<nocXShift | (offset & (1<<nocAddrOffsetBits - 1))
}

// multicastAddress sets the multicast flag bit (following controller.go's
// convention of a dedicated flag bit rather than a magic coordinate value)
// and packs an (x_start,y_start)-(x_end,y_end) rectangle into the high
// bits for a NOC multicast transaction.
func multicastAddress(xStart, yStart, xEnd, yEnd int, offset uint64) uint64 {
	const (
		multicastFlag = uint64(1) << 63
		xEndShift     = nocYShift + 6
		yEndShift     = xEndShift + 6
	)
	base := nocAddress(xStart, yStart, offset)
	base |= uint64(xEnd&nocCoordMask) << xEndShift
	base |= uint64(yEnd&nocCoordMask) << yEndShift
	return base | multicastFlag
}
