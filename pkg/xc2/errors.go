package xc2

import "errors"

var (
	// ErrIncompletePacket indicates the buffer does not yet hold a whole
	// frame; the receiver should keep reading.
	ErrIncompletePacket = errors.New("incomplete packet")
	// ErrBadCRC indicates the frame trailer does not match its content.
	ErrBadCRC = errors.New("bad packet CRC")
)
