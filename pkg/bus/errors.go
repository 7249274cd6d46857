package bus

import (
	"errors"
	"fmt"

	"github.com/joselara-terraform/test-rig-sub000/pkg/xc2"
)

var (
	// ErrTimeout indicates no matching response arrived within the
	// command's timeout.
	ErrTimeout = errors.New("response timeout")
	// ErrClosed indicates the bus has been closed.
	ErrClosed = errors.New("bus closed")
)

// UnexpectedAnswerError indicates a response was received but failed
// protocol validation (wrong command, wrong source, or wrong type).
type UnexpectedAnswerError struct {
	Packet *xc2.Packet
	Reason string
}

// Error implements error.
func (e *UnexpectedAnswerError) Error() string {
	return fmt.Sprintf("unexpected answer (%s): %v", e.Reason, e.Packet)
}

// NAKError indicates the device rejected a command. Code carries the
// device answer code.
type NAKError struct {
	Cmd  xc2.Command
	Code xc2.AnswerCode
}

// Error implements error.
func (e *NAKError) Error() string {
	return fmt.Sprintf("device NAK for cmd %#02x: %s (%#02x)", byte(e.Cmd), e.Code, byte(e.Code))
}

// ConnectionLostError indicates the underlying link failed mid-session.
// There is no automatic resume; the operator re-runs the update.
type ConnectionLostError struct {
	Cause error
}

// Error implements error.
func (e *ConnectionLostError) Error() string {
	return fmt.Sprintf("connection lost: %v", e.Cause)
}

// Unwrap exposes the underlying link error.
func (e *ConnectionLostError) Unwrap() error { return e.Cause }

// IsAnswerError reports whether err is a protocol-validation failure
// (unexpected answer or device NAK). Together with ErrTimeout these are
// the conditions the retry loops treat as transient.
func IsAnswerError(err error) bool {
	var ua *UnexpectedAnswerError
	var nak *NAKError
	return errors.As(err, &ua) || errors.As(err, &nak)
}
