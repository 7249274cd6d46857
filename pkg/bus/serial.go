package bus

import (
	"context"
	"time"

	serial "github.com/albenik/go-serial/v2"
	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/joselara-terraform/test-rig-sub000/pkg/xc2"
)

// readSliceMillis is the low-level read granularity; short slices keep
// cancellation and deadline checks responsive.
const readSliceMillis = 100

// SerialConfig describes a serial bus endpoint. Devices speak 8N1.
type SerialConfig struct {
	Port string
	Baud int
	// DefaultTimeout overrides xc2.DefaultTimeout when positive.
	DefaultTimeout time.Duration
}

// SerialBus drives devices over a serial line.
type SerialBus struct {
	core
	cfg  SerialConfig
	port *serial.Port
}

// OpenSerial opens the configured serial port and waits briefly for the
// line to settle.
func OpenSerial(cfg SerialConfig) (*SerialBus, error) {
	port, err := serial.Open(cfg.Port,
		serial.WithBaudrate(cfg.Baud),
		serial.WithDataBits(8),
		serial.WithParity(serial.NoParity),
		serial.WithStopBits(serial.OneStopBit),
		serial.WithReadTimeout(readSliceMillis),
		serial.WithWriteTimeout(1000),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", cfg.Port)
	}
	b := &SerialBus{core: newCore("serial:" + cfg.Port), cfg: cfg, port: port}
	if cfg.DefaultTimeout > 0 {
		b.defTO = cfg.DefaultTimeout
	}
	// The adapter needs a moment after open before traffic is reliable.
	time.Sleep(time.Second)
	b.drainInput()
	glog.V(2).Infof("%s: open at %d baud", b.name, cfg.Baud)
	return b, nil
}

// Command implements Bus.
func (b *SerialBus) Command(ctx context.Context, src, dst xc2.Addr, cmd xc2.Command, data []byte, timeout time.Duration) ([]byte, error) {
	return b.command(ctx, b, src, dst, cmd, data, timeout)
}

// Send implements Bus.
func (b *SerialBus) Send(src, dst xc2.Addr, cmd xc2.Command, data []byte) error {
	return b.send(b, src, dst, cmd, data)
}

// Close implements Bus.
func (b *SerialBus) Close() error {
	glog.V(2).Infof("%s: close", b.name)
	return b.port.Close()
}

// ReconnectHint implements Bus. Serial devices keep the line through
// mode transitions.
func (b *SerialBus) ReconnectHint() bool { return false }

// Name implements Bus.
func (b *SerialBus) Name() string { return b.name }

func (b *SerialBus) readSome(time.Time) ([]byte, error) {
	buf := make([]byte, 256)
	n, err := b.port.Read(buf)
	if err != nil {
		return nil, &ConnectionLostError{Cause: err}
	}
	return buf[:n], nil
}

func (b *SerialBus) write(p []byte) error {
	if _, err := b.port.Write(p); err != nil {
		return &ConnectionLostError{Cause: err}
	}
	return nil
}

func (b *SerialBus) drainInput() {
	if err := b.port.ResetInputBuffer(); err != nil {
		glog.V(2).Infof("%s: reset input buffer: %v", b.name, err)
	}
	if err := b.port.ResetOutputBuffer(); err != nil {
		glog.V(2).Infof("%s: reset output buffer: %v", b.name, err)
	}
}
