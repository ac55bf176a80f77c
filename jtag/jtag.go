// Package jtag implements the USB-JTAG alternate transport: a low-level
// path to a chip's debug/boot registers over a USB JTAG probe, usable
// before the kernel driver is loaded or when it isn't available at all
// (spec.md §4.1's "alternate backend slotted into the same transport
// interface"). It is grounded directly on the teacher's
// internal/driver/device/usb_device.go USB-over-gousb open sequence,
// generalized from a single fixed VID/PID ASIC to any configured probe.
package jtag

import (
	"context"
	"time"

	"github.com/google/gousb"

	"umd/errs"
)

// Default JTAG probe identifiers (FTDI FT232H-class USB-JTAG adapters,
// the common probe used for accelerator bring-up); callers on a
// different probe pass their own VID/PID to Open.
const (
	DefaultVendorID  = 0x0403
	DefaultProductID = 0x6014
)

// Device is one open USB-JTAG probe, grounded on usb_device.go's
// USBDevice: ctx/device/config/interface/endpoints, opened in the same
// Config(1)/Interface(0,0)/endpoint-lookup order.
type Device struct {
	ctx    *gousb.Context
	dev    *gousb.Device
	cfg    *gousb.Config
	intf   *gousb.Interface
	epOut  *gousb.OutEndpoint
	epIn   *gousb.InEndpoint
}

// Open claims the first USB-JTAG probe matching vid/pid, grounded on
// usb_device.go's OpenUSBDevice.
func Open(vid, pid gousb.ID) (*Device, error) {
	ctx := gousb.NewContext()
	dev, err := ctx.OpenDeviceWithVIDPID(vid, pid)
	if err != nil {
		ctx.Close()
		return nil, errs.Wrap(errs.KindIoError, "opening usb jtag probe", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, errs.New(errs.KindIoError, "no usb jtag probe found for vid/pid")
	}

	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, errs.Wrap(errs.KindIoError, "selecting usb config", err)
	}
	intf, err := cfg.Interface(0, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, errs.Wrap(errs.KindIoError, "claiming usb interface", err)
	}

	d := &Device{ctx: ctx, dev: dev, cfg: cfg, intf: intf}
	for _, ep := range intf.Setting.Endpoints {
		if ep.Direction == gousb.EndpointDirectionOut && d.epOut == nil {
			d.epOut, err = intf.OutEndpoint(ep.Number)
			if err != nil {
				d.Close()
				return nil, errs.Wrap(errs.KindIoError, "opening out endpoint", err)
			}
		}
		if ep.Direction == gousb.EndpointDirectionIn && d.epIn == nil {
			d.epIn, err = intf.InEndpoint(ep.Number)
			if err != nil {
				d.Close()
				return nil, errs.Wrap(errs.KindIoError, "opening in endpoint", err)
			}
		}
	}
	if d.epOut == nil || d.epIn == nil {
		d.Close()
		return nil, errs.New(errs.KindIoError, "usb jtag probe is missing bulk endpoints")
	}
	return d, nil
}

// Close releases the interface, config, device, and context, in the
// reverse order Open acquired them.
func (d *Device) Close() error {
	if d.intf != nil {
		d.intf.Close()
	}
	if d.cfg != nil {
		d.cfg.Close()
	}
	var err error
	if d.dev != nil {
		err = d.dev.Close()
	}
	if d.ctx != nil {
		d.ctx.Close()
	}
	if err != nil {
		return errs.Wrap(errs.KindIoError, "closing usb jtag probe", err)
	}
	return nil
}

const usbTimeout = 2 * time.Second

// WriteBlock sends a raw command buffer over the probe's bulk-out
// endpoint, grounded on usb_device.go's SendPacket.
func (d *Device) WriteBlock(data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), usbTimeout)
	defer cancel()
	_, err := d.epOut.WriteContext(ctx, data)
	if err != nil {
		return errs.Wrap(errs.KindIoError, "usb jtag write", err)
	}
	return nil
}

// ReadBlock reads up to len(buf) bytes from the probe's bulk-in endpoint,
// grounded on usb_device.go's ReadPacket.
func (d *Device) ReadBlock(buf []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), usbTimeout)
	defer cancel()
	n, err := d.epIn.ReadContext(ctx, buf)
	if err != nil {
		return n, errs.Wrap(errs.KindIoError, "usb jtag read", err)
	}
	return n, nil
}

// ReadRegister issues a JTAG register-read command and returns its
// 32-bit result, the JTAG-probe analogue of ttdevice.BarRead32 for boards
// without a working kernel driver.
func (d *Device) ReadRegister(addr uint32) (uint32, error) {
	cmd := encodeJtagCommand(jtagOpRead, addr, 0)
	if err := d.WriteBlock(cmd); err != nil {
		return 0, err
	}
	var resp [4]byte
	if _, err := d.ReadBlock(resp[:]); err != nil {
		return 0, err
	}
	return uint32(resp[0]) | uint32(resp[1])<<8 | uint32(resp[2])<<16 | uint32(resp[3])<<24, nil
}

// WriteRegister issues a JTAG register-write command.
func (d *Device) WriteRegister(addr, value uint32) error {
	cmd := encodeJtagCommand(jtagOpWrite, addr, value)
	return d.WriteBlock(cmd)
}

const (
	jtagOpRead  = 0x01
	jtagOpWrite = 0x02
)

func encodeJtagCommand(op byte, addr, value uint32) []byte {
	buf := make([]byte, 9)
	buf[0] = op
	buf[1] = byte(addr)
	buf[2] = byte(addr >> 8)
	buf[3] = byte(addr >> 16)
	buf[4] = byte(addr >> 24)
	buf[5] = byte(value)
	buf[6] = byte(value >> 8)
	buf[7] = byte(value >> 16)
	buf[8] = byte(value >> 24)
	return buf
}
