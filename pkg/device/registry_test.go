package device

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joselara-terraform/test-rig-sub000/pkg/xc2"
)

// Descriptors as a device packs them: i16 index, u16 flags, optional
// u16 array size, NUL-terminated name.
var (
	descMode    = []byte{0x00, 0x00, 0x00, 0x03, 'm', 'o', 'd', 'e', 0x00}
	descApplCRC = []byte{0x00, 0x01, 0x01, 0x84, 'a', 'p', 'p', 'l', 'C', 'R', 'C', 0x00}
	descSerial  = []byte{0x00, 0x02, 0x00, 0x3A, 0x00, 0x08, 's', 'e', 'r', 'i', 'a', 'l', 0x00}
)

func TestParseStructure(t *testing.T) {
	regs, lastIdx, err := parseStructure(append(append([]byte(nil), descMode...), descApplCRC...))
	require.NoError(t, err)
	require.Equal(t, 1, lastIdx)
	require.Len(t, regs, 2)

	require.Equal(t, RegisterInfo{Index: 0, Flags: 0x0003, ArraySize: 1, Name: "mode"}, regs[0])
	require.Equal(t, xc2.Flag16, regs[0].Flags.Type())
	require.Equal(t, xc2.FlagUnsigned, regs[0].Flags.Mod())

	require.Equal(t, "applCRC", regs[1].Name)
	require.Equal(t, xc2.Flag32, regs[1].Flags.Type())
	require.NotZero(t, regs[1].Flags&xc2.FlagHex)
	require.NotZero(t, regs[1].Flags&xc2.FlagReadOnly)
}

func TestParseStructureArray(t *testing.T) {
	regs, lastIdx, err := parseStructure(descSerial)
	require.NoError(t, err)
	require.Equal(t, 2, lastIdx)
	require.Len(t, regs, 1)
	require.Equal(t, 8, regs[0].ArraySize)
	require.Equal(t, "serial", regs[0].Name)
	require.Equal(t, xc2.FlagChar, regs[0].Flags.Mod())
}

func TestParseStructureErrors(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
	}{
		{"truncated descriptor", []byte{0x00, 0x05, 0x00}},
		{"bounded register", []byte{0x00, 0x05, 0x00, 0x43, 'x', 0x00}},
		{"truncated array size", []byte{0x00, 0x05, 0x00, 0x23, 0x00}},
		{"unterminated name", []byte{0x00, 0x05, 0x00, 0x03, 'x', 'y'}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := parseStructure(tc.data)
			require.Error(t, err)
		})
	}
}

func TestReadRegistryStructureContinuation(t *testing.T) {
	// The device holds 3 registers but answers the first structure
	// request with only two descriptors; the client must continue from
	// the last delivered index.
	dev, fb := newDevice(t, nil)
	fb.handler = func(c call) ([]byte, error) {
		require.Equal(t, xc2.CmdRegistryGetInfo, c.cmd)
		switch len(fb.calls) {
		case 1:
			require.Equal(t, []byte{xc2.RegInfoSize}, c.data)
			return []byte{0x00, 0x03, 0x00, 0x10}, nil
		case 2:
			require.Equal(t, []byte{xc2.RegInfoStructure, 0x00, 0x00, 0x03}, c.data)
			return append(append([]byte(nil), descMode...), descApplCRC...), nil
		case 3:
			require.Equal(t, []byte{xc2.RegInfoStructure, 0x00, 0x02, 0x01}, c.data)
			return append([]byte(nil), descSerial...), nil
		}
		t.Fatalf("unexpected call %d", len(fb.calls))
		return nil, nil
	}

	reg, err := dev.ReadRegistryStructure(context.Background())
	require.NoError(t, err)
	require.Len(t, fb.calls, 3)
	require.Equal(t, 3, reg.NumRegisters)
	require.Equal(t, 16, reg.NumBytes)
	require.Same(t, reg, dev.Registry())

	all := reg.All()
	require.Len(t, all, 3)
	require.Equal(t, []string{"mode", "applCRC", "serial"}, []string{all[0].Name, all[1].Name, all[2].Name})

	info, ok := reg.Lookup("applCRC")
	require.True(t, ok)
	require.Equal(t, 1, info.Index)
	_, ok = reg.Lookup("nope")
	require.False(t, ok)
}

func TestReadRegistryStructureEmptyReply(t *testing.T) {
	dev, fb := newDevice(t, nil)
	fb.handler = func(c call) ([]byte, error) {
		if len(fb.calls) == 1 {
			return []byte{0x00, 0x02, 0x00, 0x08}, nil
		}
		return nil, nil // device answers but delivers nothing
	}
	_, err := dev.ReadRegistryStructure(context.Background())
	require.Error(t, err)
}

func TestReadRegisterScalar(t *testing.T) {
	info := RegisterInfo{Index: 1, Flags: 0x0184, ArraySize: 1, Name: "applCRC"}
	dev, fb := newDevice(t, func(c call) ([]byte, error) {
		require.Equal(t, xc2.CmdRegistryRead, c.cmd)
		require.Equal(t, []byte{0x00, 0x01, 0x01}, c.data)
		return []byte{0xDE, 0xAD, 0xBE, 0xEF}, nil
	})

	val, err := dev.ReadRegister(context.Background(), info)
	require.NoError(t, err)
	require.Len(t, fb.calls, 1)

	raw, ok := val.Uint()
	require.True(t, ok)
	require.Equal(t, uint64(0xDEADBEEF), raw)
	require.Equal(t, "0xDEADBEEF", val.String())
	require.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, val.Raw())
}

func TestReadRegisterRendering(t *testing.T) {
	testCases := []struct {
		name  string
		info  RegisterInfo
		reply []byte
		want  string
	}{
		{
			"signed 16-bit",
			RegisterInfo{Index: 3, Flags: 0x000B, ArraySize: 1, Name: "temp"},
			[]byte{0xFF, 0x85},
			"-123",
		},
		{
			"float 32-bit",
			RegisterInfo{Index: 4, Flags: 0x0014, ArraySize: 1, Name: "gain"},
			[]byte{0x3F, 0xC0, 0x00, 0x00},
			"1.5",
		},
		{
			"char array",
			RegisterInfo{Index: 5, Flags: 0x003A, ArraySize: 8, Name: "serial"},
			[]byte{'f', 'w', '-', '1', '.', '2', 0x00, 0x00},
			`"fw-1.2"`,
		},
		{
			"hex array",
			RegisterInfo{Index: 6, Flags: 0x00A3, ArraySize: 2, Name: "ids"},
			[]byte{0x00, 0x0A, 0x00, 0x14},
			"[0xA 0x14]",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dev, _ := newDevice(t, func(c call) ([]byte, error) { return tc.reply, nil })
			val, err := dev.ReadRegister(context.Background(), tc.info)
			require.NoError(t, err)
			require.Equal(t, tc.want, val.String())
		})
	}
}

func TestReadRegisterShortReply(t *testing.T) {
	info := RegisterInfo{Index: 1, Flags: 0x0184, ArraySize: 1, Name: "applCRC"}
	dev, _ := newDevice(t, func(c call) ([]byte, error) {
		return []byte{0xDE, 0xAD}, nil
	})
	_, err := dev.ReadRegister(context.Background(), info)
	require.Error(t, err)
}

func TestReadRegisterByName(t *testing.T) {
	dev, fb := newDevice(t, nil)
	fb.handler = func(c call) ([]byte, error) {
		switch c.cmd {
		case xc2.CmdRegistryGetInfo:
			if len(c.data) == 1 {
				return []byte{0x00, 0x02, 0x00, 0x08}, nil
			}
			return append(append([]byte(nil), descMode...), descApplCRC...), nil
		case xc2.CmdRegistryRead:
			return []byte{0xCA, 0xFE, 0xF0, 0x0D}, nil
		}
		t.Fatalf("unexpected command %#x", c.cmd)
		return nil, nil
	}

	// Before the structure is read, names cannot resolve.
	_, err := dev.ReadRegisterByName(context.Background(), "applCRC")
	require.ErrorIs(t, err, ErrRegistryUnknown)

	_, err = dev.ReadRegistryStructure(context.Background())
	require.NoError(t, err)

	val, err := dev.ReadRegisterByName(context.Background(), "applCRC")
	require.NoError(t, err)
	raw, ok := val.Uint()
	require.True(t, ok)
	require.Equal(t, uint64(0xCAFEF00D), raw)

	_, err = dev.ReadRegisterByName(context.Background(), "bogus")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrRegistryUnknown)
}
