package remote

import (
	"time"

	"umd/coord"
	"umd/errs"
)

// arcScratchTriggerBit/arcScratchDoneBit mirror ttdevice's scratch ARC
// protocol constants (spec.md §4.4): this is the tunneled counterpart of
// ttdevice's scratchArcMessenger, used to message a remote chip's ARC
// processor before it has a chip.RemoteChip wrapper of its own — topology
// discovery's only way to learn a newly-seen peer's identity (spec.md §4.9
// step 3, §5's REMOTE_ARC_MSG mutex).
const (
	arcScratchTriggerBit = uint32(1) << 31
	arcScratchDoneBit    = uint32(1) << 30
	arcScratchPoll       = 5 * time.Millisecond
)

// ArcResponse is a remote ARC message's decoded reply.
type ArcResponse struct {
	Status uint8
	Data   [7]uint16
}

// SendArcMessage writes an ARC-scratch-protocol request to arcCore on the
// chip at the far end of carrier's tunnel and polls for the response,
// using plain 4-byte WriteRemote/ReadRemote calls against the same
// register layout ttdevice's scratchArcMessenger uses locally. scratchBase
// is the target chip's arch.Impl.ArcScratchBase.
func (r *RemoteCommunication) SendArcMessage(carrier coord.CoreCoord, rack uint8, arcCore coord.CoreCoord, scratchBase uint64, opcode uint16, args [7]uint16, timeout time.Duration) (ArcResponse, error) {
	header := arcScratchTriggerBit | uint32(opcode)
	headerAddr := SysAddr(arcCore.X, arcCore.Y, scratchBase)
	var headerBuf [4]byte
	headerBuf[0] = byte(header)
	headerBuf[1] = byte(header >> 8)
	headerBuf[2] = byte(header >> 16)
	headerBuf[3] = byte(header >> 24)
	if err := r.WriteRemote(carrier, rack, headerAddr, headerBuf[:], nil); err != nil {
		return ArcResponse{}, err
	}
	for i, arg := range args {
		var buf [4]byte
		buf[0], buf[1] = byte(arg), byte(arg>>8)
		addr := SysAddr(arcCore.X, arcCore.Y, scratchBase+4+uint64(i)*4)
		if err := r.WriteRemote(carrier, rack, addr, buf[:], nil); err != nil {
			return ArcResponse{}, err
		}
	}

	statusAddr := SysAddr(arcCore.X, arcCore.Y, scratchBase)
	deadline := time.Now().Add(timeout)
	for {
		var statusBuf [4]byte
		if err := r.ReadRemote(carrier, rack, statusAddr, statusBuf[:], nil); err != nil {
			return ArcResponse{}, err
		}
		status := uint32(statusBuf[0]) | uint32(statusBuf[1])<<8 | uint32(statusBuf[2])<<16 | uint32(statusBuf[3])<<24
		if status&arcScratchDoneBit != 0 {
			var resp ArcResponse
			resp.Status = uint8(status & 0xFF)
			for i := range resp.Data {
				var buf [4]byte
				addr := SysAddr(arcCore.X, arcCore.Y, scratchBase+36+uint64(i)*4)
				if err := r.ReadRemote(carrier, rack, addr, buf[:], nil); err != nil {
					return ArcResponse{}, err
				}
				resp.Data[i] = uint16(buf[0]) | uint16(buf[1])<<8
			}
			switch {
			case resp.Status < errs.ArcResponseOkLimit:
				return resp, nil
			case resp.Status == errs.ArcResponseUnknownStatus:
				return resp, errs.ArcUnknownMessage(resp.Status)
			default:
				return resp, errs.ArcFailed(resp.Status)
			}
		}
		if time.Now().After(deadline) {
			return ArcResponse{}, errs.New(errs.KindTimeout, "remote arc message timed out")
		}
		time.Sleep(arcScratchPoll)
	}
}
