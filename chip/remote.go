package chip

import (
	"time"

	"umd/coord"
	"umd/errs"
	"umd/remote"
	"umd/ttdevice"
)

const remoteFlushTimeout = 2 * time.Second

var _ Chip = (*RemoteChip)(nil)

// RemoteChip is a chip reached only through a carrier chip's ERISC tunnel.
type RemoteChip struct {
	id      int
	soc     *coord.SocDescriptor
	comm    *remote.RemoteCommunication
	carrier coord.CoreCoord
	rack    uint8

	// carrierChipID is the cluster-logical id of the MMIO chip that hosts
	// comm/carrier, so cluster.BroadcastWrite can look up that chip's
	// sysmem staging buffer for the ERISC broadcast path (spec.md §4.7
	// "Broadcasts require sysmem").
	carrierChipID int

	resetRegOffset uint64
	clockRegOffset uint64
}

// NewRemoteChip builds a RemoteChip reached via comm's carrier/rack,
// using resetRegOffset/clockRegOffset from the chip's own arch.Impl
// (ResetRegOffset and a fixed telemetry-clock offset inside the ARC scratch
// block above ArcScratchBase,
// matching LocalChip's use of the same registers over a local BAR).
// carrierChipID is the cluster-logical id of the MMIO chip comm/carrier
// belong to.
func NewRemoteChip(id int, soc *coord.SocDescriptor, comm *remote.RemoteCommunication, carrier coord.CoreCoord, rack uint8, carrierChipID int, resetRegOffset, clockRegOffset uint64) *RemoteChip {
	return &RemoteChip{
		id: id, soc: soc, comm: comm, carrier: carrier, rack: rack,
		carrierChipID:  carrierChipID,
		resetRegOffset: resetRegOffset, clockRegOffset: clockRegOffset,
	}
}

func (c *RemoteChip) ID() int                   { return c.id }
func (c *RemoteChip) Soc() *coord.SocDescriptor { return c.soc }

// CarrierChipID returns the cluster-logical id of the MMIO chip this
// remote chip's traffic tunnels through.
func (c *RemoteChip) CarrierChipID() int { return c.carrierChipID }

// BroadcastWrite tunnels an ERISC-broadcast command through this chip's
// carrier (spec.md §4.10): header selects the racks/shelves/chip ids and
// excluded rows/columns, staging provides the sysmem buffer spec.md §4.7
// requires for any broadcast.
func (c *RemoteChip) BroadcastWrite(header remote.BroadcastHeader, offset uint64, data uint32, staging *ttdevice.StagingBuffer) error {
	return c.comm.BroadcastWrite(c.carrier, header, offset, data, staging)
}

func (c *RemoteChip) arcCore() (coord.CoreCoord, error) {
	cores := c.soc.Manager().CoresOf(coord.Arc, false)
	if len(cores) == 0 {
		return coord.CoreCoord{}, errs.New(errs.KindTopologyError, "remote chip has no surviving ARC core")
	}
	return cores[0], nil
}

// ReadFromDevice reads from core's local address space by tunneling
// through the carrier chip's ERISC queue (spec.md §2, §4.7).
func (c *RemoteChip) ReadFromDevice(core coord.CoreCoord, offset uint64, dst []byte) error {
	addr := remote.SysAddr(core.X, core.Y, offset)
	return c.comm.ReadRemote(c.carrier, c.rack, addr, dst, nil)
}

// WriteToDevice is the write-direction counterpart of ReadFromDevice.
func (c *RemoteChip) WriteToDevice(core coord.CoreCoord, offset uint64, src []byte) error {
	addr := remote.SysAddr(core.X, core.Y, offset)
	return c.comm.WriteRemote(c.carrier, c.rack, addr, src, nil)
}

// DeassertRiscResets clears the remote chip's reset register over the
// ERISC tunnel.
func (c *RemoteChip) DeassertRiscResets() error {
	arcCore, err := c.arcCore()
	if err != nil {
		return err
	}
	addr := remote.SysAddr(arcCore.X, arcCore.Y, c.resetRegOffset)
	var zero [4]byte
	return c.comm.WriteRemote(c.carrier, c.rack, addr, zero[:], nil)
}

// AssertRiscResets holds every RISC core on the remote chip in reset over
// the ERISC tunnel, the remote-path counterpart of LocalChip's.
func (c *RemoteChip) AssertRiscResets() error {
	arcCore, err := c.arcCore()
	if err != nil {
		return err
	}
	addr := remote.SysAddr(arcCore.X, arcCore.Y, c.resetRegOffset)
	var mask [4]byte
	mask[0], mask[1], mask[2], mask[3] = 0xFF, 0xFF, 0xFF, 0xFF
	return c.comm.WriteRemote(c.carrier, c.rack, addr, mask[:], nil)
}

// GetClock reads the remote chip's clock register over the ERISC tunnel.
func (c *RemoteChip) GetClock() (uint32, error) {
	arcCore, err := c.arcCore()
	if err != nil {
		return 0, err
	}
	addr := remote.SysAddr(arcCore.X, arcCore.Y, c.clockRegOffset)
	var buf [4]byte
	if err := c.comm.ReadRemote(c.carrier, c.rack, addr, buf[:], nil); err != nil {
		return 0, err
	}
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24, nil
}

// MemBarrier waits for the carrier's ERISC queue to fully drain, the
// remote-path equivalent of LocalChip's ordered-read barrier: once the
// queue is flushed every write this process issued to this chip has been
// applied (spec.md §4.3, §4.7's wait_for_non_mmio_flush).
func (c *RemoteChip) MemBarrier() error {
	return c.comm.WaitForNonMMIOFlush(c.carrier, remoteFlushTimeout)
}

// Close is a no-op: RemoteChip holds no resources of its own beyond the
// shared RemoteCommunication and carrier TTDevice, which outlive any
// single RemoteChip and are closed by whoever owns the carrier.
func (c *RemoteChip) Close() error { return nil }
