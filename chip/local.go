package chip

import (
	"umd/coord"
	"umd/errs"
	"umd/lockmgr"
	"umd/ttdevice"
)

var _ Chip = (*LocalChip)(nil)

// LocalChip is a chip reachable directly over PCIe/MMIO.
type LocalChip struct {
	id    int
	dev   *ttdevice.TTDevice
	locks *lockmgr.LockManager

	telemetry *ttdevice.ArcTelemetryReader
}

// NewLocalChip wraps an already-opened, already-initialized TTDevice.
func NewLocalChip(id int, dev *ttdevice.TTDevice, locks *lockmgr.LockManager) *LocalChip {
	return &LocalChip{id: id, dev: dev, locks: locks, telemetry: ttdevice.NewArcTelemetryReader(dev)}
}

func (c *LocalChip) ID() int                    { return c.id }
func (c *LocalChip) Soc() *coord.SocDescriptor  { return c.dev.Soc }
func (c *LocalChip) Device() *ttdevice.TTDevice { return c.dev }

// assertAllResetMask holds every tensix RISC core in reset (spec.md §4.10
// start_device/close_device's "assert all tensix resets" step). There is
// a single reset register per core rather than a per-RISC bit layout in
// this model, so asserting writes all bits set and deasserting clears
// them, matching the coarse reset/boot register controller.go pokes in
// initializeASIC.
const assertAllResetMask = 0xFFFFFFFF

// ReadFromDevice reads from core's local address space over this chip's
// TTDevice/TLB path (spec.md §2).
func (c *LocalChip) ReadFromDevice(core coord.CoreCoord, offset uint64, dst []byte) error {
	return c.dev.ReadFromDevice(core, offset, dst)
}

// WriteToDevice is the write-direction counterpart of ReadFromDevice.
func (c *LocalChip) WriteToDevice(core coord.CoreCoord, offset uint64, src []byte) error {
	return c.dev.WriteToDevice(core, offset, src)
}

// DeassertRiscResets clears the per-core reset bits in the chip's reset
// register, the mirror image of controller.go's initializeASIC boot
// sequence's final step.
func (c *LocalChip) DeassertRiscResets() error {
	h, err := c.locks.Lock(lockmgr.Key{Kind: lockmgr.ArcMsg, DeviceIndex: c.id})
	if err != nil {
		return err
	}
	defer c.locks.Unlock(h)

	arcCores := c.dev.Soc.Manager().CoresOf(coord.Arc, false)
	if len(arcCores) == 0 {
		return errs.New(errs.KindTopologyError, "chip has no surviving ARC core")
	}
	return c.dev.BarWrite32(arcCores[0], c.dev.Impl.ResetRegOffset, 0)
}

// AssertRiscResets holds every tensix RISC core in reset, the first step
// of bringing a chip down or restarting it (spec.md §4.10).
func (c *LocalChip) AssertRiscResets() error {
	h, err := c.locks.Lock(lockmgr.Key{Kind: lockmgr.ArcMsg, DeviceIndex: c.id})
	if err != nil {
		return err
	}
	defer c.locks.Unlock(h)

	arcCores := c.dev.Soc.Manager().CoresOf(coord.Arc, false)
	if len(arcCores) == 0 {
		return errs.New(errs.KindTopologyError, "chip has no surviving ARC core")
	}
	return c.dev.BarWrite32(arcCores[0], c.dev.Impl.ResetRegOffset, assertAllResetMask)
}

// GetClock reads the chip's current AI clock from ARC telemetry.
func (c *LocalChip) GetClock() (uint32, error) {
	t, err := c.telemetry.Read()
	if err != nil {
		return 0, err
	}
	return uint32(t.ClockMHz), nil
}

// MemBarrier issues a strictly-ordered read after any outstanding posted
// writes to force them to retire before returning, under the MemBarrier
// named mutex so concurrent callers don't race the ordering guarantee
// against each other (spec.md §4.3).
func (c *LocalChip) MemBarrier() error {
	h, err := c.locks.Lock(lockmgr.Key{Kind: lockmgr.MemBarrier, DeviceIndex: c.id})
	if err != nil {
		return err
	}
	defer c.locks.Unlock(h)

	arcCores := c.dev.Soc.Manager().CoresOf(coord.Arc, false)
	if len(arcCores) == 0 {
		return errs.New(errs.KindTopologyError, "chip has no surviving ARC core")
	}
	_, err = c.dev.BarRead32(arcCores[0], c.dev.Impl.ResetRegOffset)
	return err
}

func (c *LocalChip) Close() error { return c.dev.Close() }
