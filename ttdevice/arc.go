package ttdevice

import (
	"time"

	"umd/arch"
	"umd/coord"
	"umd/errs"
)

// ArcMessage is one request sent to the on-chip ARC management processor.
type ArcMessage struct {
	Opcode uint16
	Args   [7]uint16
}

// ArcResponse is the ARC's reply to an ArcMessage.
type ArcResponse struct {
	Status uint8
	Data   [7]uint16
}

// ArcMessenger sends synchronous request/response messages to the ARC
// firmware. Two wire protocols exist (spec.md §4.4): WormholeB0 uses a
// fixed scratch-register ping-pong, Blackhole uses an in-memory CSM ring
// queue; ArcMessenger hides the difference behind one interface, the way
// controller.go's OpenDevice hides CGMiner/kernel-device/USB behind one
// Device façade.
type ArcMessenger interface {
	Send(msg ArcMessage, timeout time.Duration) (ArcResponse, error)
}

func newArcMessenger(d *TTDevice) ArcMessenger {
	switch d.Impl.ArcProtocol {
	case arch.ArcProtocolQueue:
		return &queueArcMessenger{d: d}
	default:
		return &scratchArcMessenger{d: d}
	}
}

// SendArcMessage is the public entry point TTDevice exposes; the
// underlying protocol choice is resolved once in newArcMessenger.
func (d *TTDevice) SendArcMessage(msg ArcMessage, timeout time.Duration) (ArcResponse, error) {
	if err := d.requireInitialized(); err != nil {
		return ArcResponse{}, err
	}
	return d.arcMsgr.Send(msg, timeout)
}

func (d *TTDevice) arcCore() coord.CoreCoord {
	cores := d.Soc.Manager().CoresOf(coord.Arc, false)
	if len(cores) == 0 {
		cores = d.Soc.Manager().CoresOf(coord.Arc, true)
	}
	return cores[0]
}

// scratchArcMessenger implements the fixed-register protocol: the request
// is written into a block of scratch registers starting at
// Impl.ArcScratchBase, the trigger bit in register 0 is set, and the
// caller polls register 0's done bit (grounded on controller.go's
// buildTxConfigPacket + parseRxStatusResponse polling style).
type scratchArcMessenger struct {
	d *TTDevice
}

const (
	scratchRegTriggerBit = uint32(1) << 31
	scratchRegDoneBit    = uint32(1) << 30
	scratchPollInterval  = 2 * time.Millisecond
)

func (m *scratchArcMessenger) Send(msg ArcMessage, timeout time.Duration) (ArcResponse, error) {
	core := m.d.arcCore()
	base := m.d.Impl.ArcScratchBase

	header := scratchRegTriggerBit | uint32(msg.Opcode)
	if err := m.d.BarWrite32(core, base, header); err != nil {
		return ArcResponse{}, err
	}
	for i, arg := range msg.Args {
		if err := m.d.BarWrite32(core, base+4+uint64(i)*4, uint32(arg)); err != nil {
			return ArcResponse{}, err
		}
	}

	deadline := time.Now().Add(timeout)
	for {
		status, err := m.d.BarRead32(core, base)
		if err != nil {
			return ArcResponse{}, err
		}
		if status&scratchRegDoneBit != 0 {
			var resp ArcResponse
			resp.Status = uint8(status & 0xFF)
			for i := range resp.Data {
				v, err := m.d.BarRead32(core, base+36+uint64(i)*4)
				if err != nil {
					return ArcResponse{}, err
				}
				resp.Data[i] = uint16(v)
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
			return ArcResponse{}, errs.New(errs.KindTimeout, "arc scratch message timed out")
		}
		time.Sleep(scratchPollInterval)
	}
}

// queueArcMessenger implements the in-memory CSM ring protocol: requests
// are appended to a ring buffer in ARC CSM memory and a write-pointer
// register is bumped; the ARC firmware drains the ring and appends
// responses to a second ring, whose read-pointer the host advances after
// consuming each entry (spec.md §4.4).
type queueArcMessenger struct {
	d    *TTDevice
	wptr uint32
	rptr uint32
}

const (
	csmRequestSlotSize  = 16 // bytes: opcode(2) + 7*args(2) = 16
	csmResponseSlotSize = 16
	csmRingSlots        = 32
	csmWptrOffset       = 0
	csmRptrOffset       = 4
	csmRequestRingBase  = 64
)

func (m *queueArcMessenger) Send(msg ArcMessage, timeout time.Duration) (ArcResponse, error) {
	core := m.d.arcCore()
	base := m.d.Impl.ArcCsmBase

	slot := m.wptr % csmRingSlots
	var buf [csmRequestSlotSize]byte
	buf[0] = byte(msg.Opcode)
	buf[1] = byte(msg.Opcode >> 8)
	for i, arg := range msg.Args {
		buf[2+i*2] = byte(arg)
		buf[2+i*2+1] = byte(arg >> 8)
	}
	offset := base + csmRequestRingBase + uint64(slot)*csmRequestSlotSize
	if err := m.d.WriteToDevice(core, offset, buf[:]); err != nil {
		return ArcResponse{}, err
	}
	m.wptr++
	if err := m.d.BarWrite32(core, base+csmWptrOffset, m.wptr); err != nil {
		return ArcResponse{}, err
	}

	responseRingBase := base + csmRequestRingBase + csmRingSlots*csmRequestSlotSize
	deadline := time.Now().Add(timeout)
	for {
		ackWptr, err := m.d.BarRead32(core, base+csmWptrOffset+8)
		if err != nil {
			return ArcResponse{}, err
		}
		if ackWptr > m.rptr {
			respSlot := m.rptr % csmRingSlots
			var rbuf [csmResponseSlotSize]byte
			if err := m.d.ReadFromDevice(core, responseRingBase+uint64(respSlot)*csmResponseSlotSize, rbuf[:]); err != nil {
				return ArcResponse{}, err
			}
			m.rptr++
			if err := m.d.BarWrite32(core, base+csmRptrOffset, m.rptr); err != nil {
				return ArcResponse{}, err
			}
			var resp ArcResponse
			resp.Status = rbuf[0]
			for i := 0; i < 7; i++ {
				resp.Data[i] = uint16(rbuf[2+i*2]) | uint16(rbuf[2+i*2+1])<<8
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
			return ArcResponse{}, errs.New(errs.KindTimeout, "arc queue message timed out")
		}
		time.Sleep(scratchPollInterval)
	}
}
