package bus

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/joselara-terraform/test-rig-sub000/pkg/xc2"
)

// DefaultConnectTimeout bounds the TCP dial.
const DefaultConnectTimeout = 3 * time.Second

// TCPConfig describes a TCP bus endpoint, typically a serial-to-TCP
// gateway or the device's own network stack.
type TCPConfig struct {
	Host string
	Port int
	// ConnectTimeout overrides DefaultConnectTimeout when positive.
	ConnectTimeout time.Duration
	// DefaultTimeout overrides xc2.DefaultTimeout when positive.
	DefaultTimeout time.Duration
}

func (c TCPConfig) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c TCPConfig) connectTimeout() time.Duration {
	if c.ConnectTimeout > 0 {
		return c.ConnectTimeout
	}
	return DefaultConnectTimeout
}

// TCPBus drives devices over a TCP session. The device's bootloader is
// a separate listener, so entering bootloader mode drops the session
// and the bus must be redialed.
type TCPBus struct {
	core
	cfg  TCPConfig
	conn net.Conn
}

// DialTCP establishes the TCP session. A dial that does not complete
// within the connect timeout maps to ErrTimeout, matching the retry
// classification of the reconnect loop.
func DialTCP(ctx context.Context, cfg TCPConfig) (*TCPBus, error) {
	d := net.Dialer{Timeout: cfg.connectTimeout()}
	conn, err := d.DialContext(ctx, "tcp", cfg.addr())
	if err != nil {
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			return nil, errors.Wrapf(ErrTimeout, "bus %s not available", cfg.addr())
		}
		return nil, errors.Wrapf(err, "dial %s", cfg.addr())
	}
	b := &TCPBus{core: newCore("tcp:" + cfg.addr()), cfg: cfg, conn: conn}
	if cfg.DefaultTimeout > 0 {
		b.defTO = cfg.DefaultTimeout
	}
	glog.V(2).Infof("%s: connected", b.name)
	return b, nil
}

// Command implements Bus.
func (b *TCPBus) Command(ctx context.Context, src, dst xc2.Addr, cmd xc2.Command, data []byte, timeout time.Duration) ([]byte, error) {
	return b.command(ctx, b, src, dst, cmd, data, timeout)
}

// Send implements Bus.
func (b *TCPBus) Send(src, dst xc2.Addr, cmd xc2.Command, data []byte) error {
	return b.send(b, src, dst, cmd, data)
}

// Close implements Bus.
func (b *TCPBus) Close() error {
	glog.V(2).Infof("%s: close", b.name)
	return b.conn.Close()
}

// ReconnectHint implements Bus.
func (b *TCPBus) ReconnectHint() bool { return true }

// Name implements Bus.
func (b *TCPBus) Name() string { return b.name }

// Probe implements Redialer using an ICMP echo against the bus host.
func (b *TCPBus) Probe(ctx context.Context, timeout time.Duration) error {
	return Ping(ctx, b.cfg.Host, timeout)
}

// Redial implements Redialer: a fresh session to the same endpoint.
// The receiver keeps its state; the caller owns the returned bus.
func (b *TCPBus) Redial(ctx context.Context, timeout time.Duration) (Bus, error) {
	cfg := b.cfg
	if timeout > 0 {
		cfg.ConnectTimeout = timeout
	}
	return DialTCP(ctx, cfg)
}

func (b *TCPBus) readSome(deadline time.Time) ([]byte, error) {
	slice := time.Now().Add(readSliceMillis * time.Millisecond)
	if slice.After(deadline) {
		slice = deadline
	}
	if err := b.conn.SetReadDeadline(slice); err != nil {
		return nil, &ConnectionLostError{Cause: err}
	}
	buf := make([]byte, 512)
	n, err := b.conn.Read(buf)
	if err != nil {
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			return buf[:n], nil
		}
		return nil, &ConnectionLostError{Cause: err}
	}
	return buf[:n], nil
}

func (b *TCPBus) write(p []byte) error {
	if err := b.conn.SetWriteDeadline(time.Now().Add(time.Second)); err != nil {
		return &ConnectionLostError{Cause: err}
	}
	if _, err := b.conn.Write(p); err != nil {
		return &ConnectionLostError{Cause: err}
	}
	return nil
}

func (b *TCPBus) drainInput() {
	if err := b.conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return
	}
	buf := make([]byte, 512)
	for {
		if _, err := b.conn.Read(buf); err != nil {
			return
		}
	}
}
