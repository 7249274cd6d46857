// Package device layers typed commands for one XC2 device on top of a
// bus: execution-mode probing, resets, the bootloader command set, and
// the register table client.
package device

import (
	"context"
	"errors"
	"time"

	"github.com/golang/glog"
	pkgerrors "github.com/pkg/errors"

	"github.com/joselara-terraform/test-rig-sub000/pkg/bus"
	"github.com/joselara-terraform/test-rig-sub000/pkg/xc2"
)

// Mode is the execution mode a device reports through its echo reply.
type Mode int

const (
	ModeUnreachable Mode = iota
	ModeApplication
	ModeBootloader
)

// String returns the mode for logs.
func (m Mode) String() string {
	switch m {
	case ModeApplication:
		return "application"
	case ModeBootloader:
		return "bootloader"
	}
	return "unreachable"
}

// Device binds a bus to one device address. Not safe for concurrent
// use; a device belongs to a single session at a time.
type Device struct {
	b    bus.Bus
	addr xc2.Addr
	src  xc2.Addr

	registry *Registry
}

// New creates a device handle commanding addr from the master address.
func New(b bus.Bus, addr xc2.Addr) *Device {
	return &Device{b: b, addr: addr, src: xc2.AddrMaster}
}

// Bus returns the current bus handle.
func (d *Device) Bus() bus.Bus { return d.b }

// SetBus swaps the bus handle, used when a reconnect produced a fresh
// session. The previous bus is not closed here.
func (d *Device) SetBus(b bus.Bus) { d.b = b }

// Addr returns the device address.
func (d *Device) Addr() xc2.Addr { return d.addr }

func (d *Device) command(ctx context.Context, cmd xc2.Command, data []byte, timeout time.Duration) ([]byte, error) {
	return d.b.Command(ctx, d.src, d.addr, cmd, data, timeout)
}

// Echo issues the echo command and returns the reply id interpreted as
// a big-endian integer.
func (d *Device) Echo(ctx context.Context) (uint64, error) {
	data, err := d.command(ctx, xc2.CmdEcho, nil, 0)
	if err != nil {
		return 0, err
	}
	var id uint64
	for _, b := range data {
		id = id<<8 | uint64(b)
	}
	return id, nil
}

// Mode probes the device with an echo. A timeout maps to
// ModeUnreachable without an error; other failures are returned.
func (d *Device) Mode(ctx context.Context) (Mode, error) {
	id, err := d.Echo(ctx)
	if err != nil {
		if errors.Is(err, bus.ErrTimeout) {
			return ModeUnreachable, nil
		}
		return ModeUnreachable, err
	}
	if id == uint64(xc2.EchoBootloader) {
		return ModeBootloader, nil
	}
	return ModeApplication, nil
}

// Reset reboots the device. The device answers with silence, so this is
// fire-and-forget.
func (d *Device) Reset() error {
	glog.V(1).Infof("device %#03x: reset", uint16(d.addr))
	return d.b.Send(d.src, d.addr, xc2.CmdSys, []byte{xc2.SysReset})
}

// ResetToBootloader reboots the device into its bootloader. Unlike
// Reset the device acknowledges before going down.
func (d *Device) ResetToBootloader(ctx context.Context) error {
	glog.V(1).Infof("device %#03x: reset to bootloader", uint16(d.addr))
	_, err := d.command(ctx, xc2.CmdSys, []byte{xc2.SysBootloader}, 0)
	return err
}

// StayInBootloader asks a freshly rebooted device to hold in its
// bootloader instead of starting the application.
func (d *Device) StayInBootloader(ctx context.Context) error {
	_, err := d.command(ctx, xc2.CmdStayInBootloader, nil, 0)
	return err
}

// RunApp commands a device holding in bootloader mode to start its
// application.
func (d *Device) RunApp(ctx context.Context) error {
	glog.V(1).Infof("device %#03x: run application", uint16(d.addr))
	_, err := d.command(ctx, xc2.CmdSys, []byte{xc2.SysRunApp}, 0)
	return err
}

// Status reads the device status payload; the leading byte is the
// device state, the rest is application specific.
func (d *Device) Status(ctx context.Context) ([]byte, error) {
	return d.command(ctx, xc2.CmdGetStatus, nil, 0)
}

// SerialNumber reads the device serial number as a big-endian integer.
func (d *Device) SerialNumber(ctx context.Context) (uint64, error) {
	data, err := d.command(ctx, xc2.CmdSys, []byte{xc2.SysGetSerial}, 0)
	if err != nil {
		return 0, err
	}
	var sn uint64
	for _, b := range data {
		sn = sn<<8 | uint64(b)
	}
	return sn, nil
}

// BufferSize asks the bootloader for its page write-buffer size, which
// is the device's flash page size.
func (d *Device) BufferSize(ctx context.Context) (int, error) {
	data, err := d.command(ctx, xc2.CmdBootloader, []byte{xc2.BootGetBufferSize}, 0)
	if err != nil {
		return 0, err
	}
	var size int
	for _, b := range data {
		size = size<<8 | int(b)
	}
	if size <= 0 {
		return 0, pkgerrors.Errorf("device %#03x reported buffer size %d", uint16(d.addr), size)
	}
	return size, nil
}

// WriteBuffer writes one chunk into the bootloader's page buffer at the
// given page-relative offset.
func (d *Device) WriteBuffer(ctx context.Context, offset uint16, chunk []byte) error {
	if len(chunk) > xc2.MaxDataLen-3 {
		return pkgerrors.Errorf("chunk of %d bytes does not fit one frame", len(chunk))
	}
	payload := make([]byte, 3+len(chunk))
	payload[0] = xc2.BootWriteBuffer
	payload[1] = byte(offset >> 8)
	payload[2] = byte(offset)
	copy(payload[3:], chunk)
	_, err := d.command(ctx, xc2.CmdBootloader, payload, 0)
	return err
}

// ProgramFlash burns the staged page buffer into the flash page at
// pageIndex. Programming blocks the device, hence the long timeout.
func (d *Device) ProgramFlash(ctx context.Context, pageIndex uint16, timeout time.Duration) error {
	payload := []byte{xc2.BootProgramFlash, byte(pageIndex >> 8), byte(pageIndex)}
	_, err := d.command(ctx, xc2.CmdBootloader, payload, timeout)
	return err
}

// ApplicationCRC asks the bootloader to compute and store the CRC of
// the flashed application. The device may reboot before answering;
// tolerating that timeout is the caller's decision.
func (d *Device) ApplicationCRC(ctx context.Context, timeout time.Duration) error {
	_, err := d.command(ctx, xc2.CmdBootloader, []byte{xc2.BootApplicationCRC}, timeout)
	return err
}
