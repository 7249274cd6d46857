package xc2

import (
	"fmt"
)

// headerLen is the byte count before the data section; a frame carries
// two CRC bytes after the data, so the minimum frame is 8 bytes.
const (
	headerLen   = 6
	minFrameLen = 8

	// MaxDataLen is the largest data section one frame can carry: the
	// length byte counts the header and the data.
	MaxDataLen = 0xFF - headerLen
)

// Packet is one XC2 frame. The wire layout is
// [type|dstHi, dstLo, flags|srcHi, srcLo, length, cmd, data..., crcHi, crcLo]
// where length counts every byte before the CRC.
type Packet struct {
	Type  PacketType
	Dst   Addr
	Src   Addr
	Flags byte
	Cmd   Command
	Data  []byte
}

// CRC16 computes the CRC-16/XMODEM checksum (poly 0x1021, init 0) used
// by the frame trailer.
func CRC16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// Bytes encodes the frame for sending.
func (p *Packet) Bytes() []byte {
	length := headerLen + len(p.Data)
	b := make([]byte, length+2)
	b[0] = byte(p.Type) | byte(p.Dst>>8)
	b[1] = byte(p.Dst)
	b[2] = p.Flags | byte(p.Src>>8)
	b[3] = byte(p.Src)
	b[4] = byte(length)
	b[5] = byte(p.Cmd)
	copy(b[6:], p.Data)
	crc := CRC16(b[:length])
	b[length] = byte(crc >> 8)
	b[length+1] = byte(crc)
	return b
}

// Parse decodes the first frame found at the start of buf and returns
// it together with any trailing bytes. It returns ErrIncompletePacket
// when buf does not yet hold a whole frame and ErrBadCRC when the
// trailer does not match.
func Parse(buf []byte) (*Packet, []byte, error) {
	if len(buf) < minFrameLen {
		return nil, nil, ErrIncompletePacket
	}
	length := int(buf[4])
	if length < headerLen || len(buf) < length+2 {
		return nil, nil, ErrIncompletePacket
	}
	crc := uint16(buf[length])<<8 | uint16(buf[length+1])
	if crc != CRC16(buf[:length]) {
		return nil, nil, ErrBadCRC
	}
	p := &Packet{
		Type:  PacketType(buf[0] & 0xF0),
		Dst:   Addr(buf[0]&0x0F)<<8 | Addr(buf[1]),
		Src:   Addr(buf[2]&0x0F)<<8 | Addr(buf[3]),
		Flags: buf[2] & 0xF0,
		Cmd:   Command(buf[5]),
	}
	if length > headerLen {
		p.Data = append([]byte(nil), buf[headerLen:length]...)
	}
	return p, buf[length+2:], nil
}

// String renders the frame for logs.
func (p *Packet) String() string {
	return fmt.Sprintf("type=%#02x dst=%#03x src=%#03x cmd=%#02x data=% x",
		byte(p.Type), uint16(p.Dst), uint16(p.Src), byte(p.Cmd), p.Data)
}
