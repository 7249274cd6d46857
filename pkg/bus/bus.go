// Package bus provides the half-duplex request/response transports the
// firmware tooling drives devices over: a serial line or a TCP socket,
// both speaking XC2 framing.
package bus

import (
	"context"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/joselara-terraform/test-rig-sub000/pkg/xc2"
)

// Bus is the transport capability consumed by the device layer and the
// update orchestrator. A bus is owned by exactly one session at a time;
// no method is safe for concurrent use.
type Bus interface {
	// Command sends one command frame and waits for the matching
	// response, returning its data. A zero timeout selects the bus
	// default. EVENT frames arriving in between are buffered and
	// skipped; a NAK becomes a *NAKError; any other mismatched frame
	// becomes an *UnexpectedAnswerError.
	Command(ctx context.Context, src, dst xc2.Addr, cmd xc2.Command, data []byte, timeout time.Duration) ([]byte, error)
	// Send transmits a command frame without awaiting a response, for
	// commands the device answers with silence (reset).
	Send(src, dst xc2.Addr, cmd xc2.Command, data []byte) error
	// Close releases the underlying link.
	Close() error
	// ReconnectHint reports whether entering bootloader mode drops the
	// link, requiring a fresh session (true for TCP).
	ReconnectHint() bool
	// Name identifies the bus in logs.
	Name() string
}

// Redialer is the extra capability of buses whose bootloader transition
// drops the link. Probe checks device reachability without opening a
// session; Redial opens a fresh bus to the same endpoint.
type Redialer interface {
	Probe(ctx context.Context, timeout time.Duration) error
	Redial(ctx context.Context, timeout time.Duration) (Bus, error)
}

// maxEventSkips bounds how many consecutive EVENT frames one exchange
// tolerates before giving up.
const maxEventSkips = 10

// maxBufferedEvents bounds the event backlog kept per bus; older events
// are dropped first.
const maxBufferedEvents = 64

// link is the low-level side each transport variant implements.
type link interface {
	// readSome performs one bounded read and returns whatever bytes
	// arrived; an empty result without error means the read slice
	// timed out and the caller should keep polling.
	readSome(deadline time.Time) ([]byte, error)
	write(p []byte) error
	// drainInput discards stale bytes buffered by the link.
	drainInput()
}

// core holds the framing state shared by the serial and TCP variants.
type core struct {
	name    string
	defTO   time.Duration
	recvBuf []byte
	events  []*xc2.Packet
}

func newCore(name string) core {
	return core{name: name, defTO: xc2.DefaultTimeout}
}

// Events drains and returns EVENT frames collected while awaiting
// responses.
func (c *core) Events() []*xc2.Packet {
	ev := c.events
	c.events = nil
	return ev
}

func (c *core) bufferEvent(pkt *xc2.Packet) {
	if len(c.events) >= maxBufferedEvents {
		c.events = c.events[1:]
	}
	c.events = append(c.events, pkt)
}

func (c *core) timeout(d time.Duration) time.Duration {
	if d <= 0 {
		return c.defTO
	}
	return d
}

// nextFrame pops one complete frame from the receive buffer, returning
// xc2.ErrIncompletePacket while more bytes are needed.
func (c *core) nextFrame() (*xc2.Packet, error) {
	pkt, rest, err := xc2.Parse(c.recvBuf)
	if err != nil {
		return nil, err
	}
	c.recvBuf = append(c.recvBuf[:0], rest...)
	return pkt, nil
}

// receive assembles bytes from l until a whole frame parses or the
// timeout elapses.
func (c *core) receive(ctx context.Context, l link, timeout time.Duration) (*xc2.Packet, error) {
	deadline := time.Now().Add(timeout)
	for {
		pkt, err := c.nextFrame()
		if err == nil {
			glog.V(4).Infof("%s: recv %v", c.name, pkt)
			return pkt, nil
		}
		if err == xc2.ErrBadCRC {
			// A mangled frame is a malformed answer, not a dead link.
			c.recvBuf = c.recvBuf[:0]
			return nil, &UnexpectedAnswerError{Reason: "bad frame CRC"}
		}
		if err != xc2.ErrIncompletePacket {
			return nil, errors.Wrapf(err, "%s: receive", c.name)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !time.Now().Before(deadline) {
			return nil, errors.Wrapf(ErrTimeout, "%s: no response in %v", c.name, timeout)
		}
		chunk, err := l.readSome(deadline)
		if err != nil {
			return nil, err
		}
		c.recvBuf = append(c.recvBuf, chunk...)
	}
}

// roundTrip is the request/response exchange shared by both variants:
// clear stale input, send the command frame, then collect frames until
// the matching response shows up, buffering EVENTs along the way.
func (c *core) roundTrip(ctx context.Context, l link, req *xc2.Packet, timeout time.Duration) (*xc2.Packet, error) {
	if req.Dst == xc2.AddrBroadcast {
		return nil, errors.Errorf("%s: cannot request response from broadcast address", c.name)
	}
	timeout = c.timeout(timeout)
	c.recvBuf = c.recvBuf[:0]
	l.drainInput()
	glog.V(4).Infof("%s: send %v", c.name, req)
	if err := l.write(req.Bytes()); err != nil {
		return nil, err
	}
	for i := 0; i < maxEventSkips; i++ {
		pkt, err := c.receive(ctx, l, timeout)
		if err != nil {
			return nil, err
		}
		if pkt.Type == xc2.TypeEvent {
			glog.V(4).Infof("%s: buffering event from %#03x", c.name, uint16(pkt.Src))
			c.bufferEvent(pkt)
			continue
		}
		if pkt.Type == xc2.TypeNAK {
			code := xc2.AnsNAK
			if len(pkt.Data) > 0 {
				code = xc2.AnswerCode(pkt.Data[0])
			}
			return nil, &NAKError{Cmd: req.Cmd, Code: code}
		}
		if pkt.Type != xc2.TypeACK || pkt.Cmd != req.Cmd || pkt.Src != req.Dst {
			return nil, &UnexpectedAnswerError{Packet: pkt, Reason: "type, command or source mismatch"}
		}
		return pkt, nil
	}
	return nil, &UnexpectedAnswerError{Reason: "event flood"}
}

// command implements Bus.Command on top of roundTrip.
func (c *core) command(ctx context.Context, l link, src, dst xc2.Addr, cmd xc2.Command, data []byte, timeout time.Duration) ([]byte, error) {
	req := &xc2.Packet{Type: xc2.TypeCommand, Dst: dst, Src: src, Cmd: cmd, Data: data}
	resp, err := c.roundTrip(ctx, l, req, timeout)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// send implements Bus.Send.
func (c *core) send(l link, src, dst xc2.Addr, cmd xc2.Command, data []byte) error {
	req := &xc2.Packet{Type: xc2.TypeCommand, Dst: dst, Src: src, Cmd: cmd, Data: data}
	c.recvBuf = c.recvBuf[:0]
	l.drainInput()
	glog.V(4).Infof("%s: send (no response) %v", c.name, req)
	return l.write(req.Bytes())
}
