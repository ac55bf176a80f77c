package ttdevice

import "umd/errs"

// hangSentinel is what every PCIe register read returns once the link (or
// the ASIC itself) has gone away: every bit pulled high, grounded on
// controller.go's checkDeviceHealth treating an all-1s status read as the
// hardware having wedged rather than a legitimate value.
const hangSentinel = 0xFFFFFFFF

// CheckHang probes a known-live register (the reset register, which is
// never legitimately all-ones) and reports whether the chip looks hung.
func (d *TTDevice) CheckHang() (bool, error) {
	core := d.arcCore()
	v, err := d.BarRead32(core, d.Impl.ResetRegOffset)
	if err != nil {
		return false, err
	}
	return v == hangSentinel, nil
}

// requireNotHung is a convenience wrapper SendArcMessage-style callers can
// use before starting a multi-step protocol, rather than discovering the
// hang thirty timeouts later.
func (d *TTDevice) requireNotHung() error {
	hung, err := d.CheckHang()
	if err != nil {
		return err
	}
	if hung {
		return errs.New(errs.KindHardwareHung, "device is not responding (all-ones register read)")
	}
	return nil
}
