package bus

import (
	"context"
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// protocolICMP is the IPv4 ICMP protocol number.
const protocolICMP = 1

// Ping sends one unprivileged ICMP echo to host and waits for a reply.
// A nil return means the host is reachable; any error means it is not
// (yet). Used by the TCP reconnect loop to avoid dialing a device that
// is still rebooting.
func Ping(ctx context.Context, host string, timeout time.Duration) error {
	dst, err := net.ResolveIPAddr("ip4", host)
	if err != nil {
		return errors.Wrapf(err, "resolve %s", host)
	}
	conn, err := icmp.ListenPacket("udp4", "0.0.0.0")
	if err != nil {
		return errors.Wrap(err, "icmp listen")
	}
	defer conn.Close()

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Body: &icmp.Echo{
			ID:   os.Getpid() & 0xFFFF,
			Seq:  1,
			Data: []byte("xc2-probe"),
		},
	}
	wire, err := msg.Marshal(nil)
	if err != nil {
		return errors.Wrap(err, "icmp marshal")
	}
	if _, err := conn.WriteTo(wire, &net.UDPAddr{IP: dst.IP}); err != nil {
		return errors.Wrapf(err, "icmp send to %s", host)
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	buf := make([]byte, 1500)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := conn.SetReadDeadline(deadline); err != nil {
			return errors.Wrap(err, "icmp deadline")
		}
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			return errors.Wrapf(err, "no echo reply from %s", host)
		}
		reply, err := icmp.ParseMessage(protocolICMP, buf[:n])
		if err != nil {
			continue
		}
		if reply.Type == ipv4.ICMPTypeEchoReply {
			return nil
		}
	}
}
