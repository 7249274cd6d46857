package xc2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCRC16(t *testing.T) {
	require.Equal(t, uint16(0x31C3), CRC16([]byte("123456789")))
	require.Equal(t, uint16(0x0000), CRC16(nil))
	require.Equal(t, uint16(0x58E5), CRC16([]byte("A")))
}

func TestPacketBytes(t *testing.T) {
	testCases := []struct {
		name   string
		packet Packet
		expect []byte
	}{
		{
			"echo command",
			Packet{Type: TypeCommand, Dst: 0x00A, Src: AddrMaster, Cmd: CmdEcho},
			[]byte{0x80, 0x0A, 0x00, 0x01, 0x06, 0x01, 0x1F, 0x39},
		},
		{
			"ack with data",
			Packet{Type: TypeACK, Dst: AddrMaster, Src: 0x00A, Cmd: CmdEcho, Data: []byte{EchoBootloader}},
			[]byte{0xC0, 0x01, 0x00, 0x0A, 0x07, 0x01, 0x01, 0xFD, 0x9E},
		},
		{
			"high address bits",
			Packet{Type: TypeCommand, Dst: AddrDefault, Src: AddrMaster, Cmd: CmdBootloader,
				Data: []byte{BootWriteBuffer, 0x00, 0x80, 0xDE, 0xAD}},
			[]byte{0x8F, 0xFF, 0x00, 0x01, 0x0B, 0x08, 0x02, 0x00, 0x80, 0xDE, 0xAD, 0x43, 0x95},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expect, tc.packet.Bytes())
		})
	}
}

func TestParse(t *testing.T) {
	pkt, rest, err := Parse([]byte{0xE0, 0x01, 0x00, 0x0A, 0x07, 0x08, 0x0B, 0x88, 0xBA})
	require.NoError(t, err)
	require.Empty(t, rest)
	require.Equal(t, TypeNAK, pkt.Type)
	require.Equal(t, AddrMaster, pkt.Dst)
	require.Equal(t, Addr(0x00A), pkt.Src)
	require.Equal(t, CmdBootloader, pkt.Cmd)
	require.Equal(t, []byte{0x0B}, pkt.Data)
}

func TestParseTrailingGarbage(t *testing.T) {
	frame := []byte{0x40, 0x01, 0x00, 0x0A, 0x08, 0xA0, 0x01, 0x02, 0x23, 0x33}
	buf := append(append([]byte(nil), frame...), 0xDE, 0xAD, 0xBE)
	pkt, rest, err := Parse(buf)
	require.NoError(t, err)
	require.Equal(t, TypeEvent, pkt.Type)
	require.Equal(t, []byte{0x01, 0x02}, pkt.Data)
	require.Equal(t, []byte{0xDE, 0xAD, 0xBE}, rest)
}

func TestParseRoundTrip(t *testing.T) {
	testCases := []struct {
		name   string
		packet Packet
	}{
		{"no data", Packet{Type: TypeCommand, Dst: 0x011, Src: AddrMaster, Cmd: CmdStayInBootloader}},
		{"with data", Packet{Type: TypeACK, Dst: AddrMaster, Src: 0x011, Cmd: CmdBootloader, Data: []byte{0x08, 0x00}}},
		{"max address", Packet{Type: TypeCommand, Dst: AddrDefault, Src: 0xABC, Cmd: CmdEcho}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pkt, rest, err := Parse(tc.packet.Bytes())
			require.NoError(t, err)
			require.Empty(t, rest)
			require.Equal(t, tc.packet.Type, pkt.Type)
			require.Equal(t, tc.packet.Dst, pkt.Dst)
			require.Equal(t, tc.packet.Src, pkt.Src)
			require.Equal(t, tc.packet.Cmd, pkt.Cmd)
			require.Equal(t, tc.packet.Data, pkt.Data)
		})
	}
}

func TestParseErrors(t *testing.T) {
	testCases := []struct {
		name   string
		buf    []byte
		expect error
	}{
		{"empty", nil, ErrIncompletePacket},
		{"short", []byte{0x80, 0x0A, 0x00, 0x01, 0x06}, ErrIncompletePacket},
		{"declared longer than actual", []byte{0x80, 0x0A, 0x00, 0x01, 0x10, 0x01, 0x1F, 0x39}, ErrIncompletePacket},
		{"length below header", []byte{0x80, 0x0A, 0x00, 0x01, 0x02, 0x01, 0x1F, 0x39}, ErrIncompletePacket},
		{"corrupt crc", []byte{0x80, 0x0A, 0x00, 0x01, 0x06, 0x01, 0x1F, 0x38}, ErrBadCRC},
		{"corrupt body", []byte{0x80, 0x0B, 0x00, 0x01, 0x06, 0x01, 0x1F, 0x39}, ErrBadCRC},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Parse(tc.buf)
			require.ErrorIs(t, err, tc.expect)
		})
	}
}

func TestRegFlags(t *testing.T) {
	f := RegFlags(0x80) | Flag32 | FlagUnsigned // applCRC style: u32, hex print
	require.Equal(t, Flag32, f.Type())
	require.Equal(t, FlagUnsigned, f.Mod())
	require.Equal(t, 4, f.Size())

	arr := Flag16 | FlagSigned | FlagArray
	require.Equal(t, Flag16, arr.Type())
	require.Equal(t, FlagSigned, arr.Mod())
	require.Equal(t, 2, arr.Size())
	require.NotZero(t, arr&FlagArray)
}
