package device

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/joselara-terraform/test-rig-sub000/pkg/xc2"
)

// ErrRegistryUnknown indicates the register structure has not been read
// from the device yet.
var ErrRegistryUnknown = errors.New("registry structure not read")

// maxStructureBatch caps how many descriptors one structure request
// asks for; the count is a single byte on the wire.
const maxStructureBatch = 255

// RegisterInfo describes one entry of the device register table.
type RegisterInfo struct {
	Index     int
	Flags     xc2.RegFlags
	ArraySize int
	Name      string
}

// Registry is the register table read from a device.
type Registry struct {
	NumRegisters int
	NumBytes     int
	regs         map[int]RegisterInfo
	order        []int
}

// Lookup finds a register descriptor by name.
func (r *Registry) Lookup(name string) (RegisterInfo, bool) {
	for _, idx := range r.order {
		if reg := r.regs[idx]; reg.Name == name {
			return reg, true
		}
	}
	return RegisterInfo{}, false
}

// All returns the descriptors in device index order.
func (r *Registry) All() []RegisterInfo {
	out := make([]RegisterInfo, 0, len(r.order))
	for _, idx := range r.order {
		out = append(out, r.regs[idx])
	}
	return out
}

// RegistrySize reads the register table dimensions: entry count and
// total byte count.
func (d *Device) RegistrySize(ctx context.Context) (numRegs, numBytes int, err error) {
	data, err := d.command(ctx, xc2.CmdRegistryGetInfo, []byte{xc2.RegInfoSize}, 0)
	if err != nil {
		return 0, 0, err
	}
	if len(data) < 4 {
		return 0, 0, errors.Errorf("registry size reply too short (%d bytes)", len(data))
	}
	return int(binary.BigEndian.Uint16(data[0:2])), int(binary.BigEndian.Uint16(data[2:4])), nil
}

// ReadRegistryStructure re-reads the whole register table structure
// from the device and caches it on the handle. Devices answer with as
// many descriptors as fit in one frame; the read continues from the
// last delivered index until the table is complete.
func (d *Device) ReadRegistryStructure(ctx context.Context) (*Registry, error) {
	numRegs, numBytes, err := d.RegistrySize(ctx)
	if err != nil {
		return nil, err
	}
	reg := &Registry{NumRegisters: numRegs, NumBytes: numBytes, regs: make(map[int]RegisterInfo)}

	for start := 0; start < numRegs; {
		count := numRegs - start
		if count > maxStructureBatch {
			count = maxStructureBatch
		}
		payload := []byte{xc2.RegInfoStructure, byte(start >> 8), byte(start), byte(count)}
		data, err := d.command(ctx, xc2.CmdRegistryGetInfo, payload, 0)
		if err != nil {
			return nil, err
		}
		parsed, lastIdx, err := parseStructure(data)
		if err != nil {
			return nil, err
		}
		if len(parsed) == 0 {
			return nil, errors.Errorf("empty registry structure reply at index %d", start)
		}
		for _, info := range parsed {
			reg.regs[info.Index] = info
			reg.order = append(reg.order, info.Index)
		}
		start = lastIdx + 1
	}
	glog.V(1).Infof("device %#03x: registry structure read, %d registers", uint16(d.addr), numRegs)
	d.registry = reg
	return reg, nil
}

// Registry returns the cached register table, if read.
func (d *Device) Registry() *Registry { return d.registry }

// parseStructure decodes packed register descriptors: i16 index, u16
// flags, u16 array size when the array flag is set, then the
// NUL-terminated name.
func parseStructure(data []byte) (regs []RegisterInfo, lastIdx int, err error) {
	for len(data) > 0 {
		if len(data) < 4 {
			return nil, 0, errors.Errorf("truncated register descriptor (%d trailing bytes)", len(data))
		}
		info := RegisterInfo{
			Index:     int(int16(binary.BigEndian.Uint16(data[0:2]))),
			Flags:     xc2.RegFlags(binary.BigEndian.Uint16(data[2:4])),
			ArraySize: 1,
		}
		data = data[4:]
		if info.Flags&xc2.FlagBounded != 0 {
			return nil, 0, errors.Errorf("register %d uses bounds, not supported", info.Index)
		}
		if info.Flags&xc2.FlagArray != 0 {
			if len(data) < 2 {
				return nil, 0, errors.New("truncated array size in register descriptor")
			}
			info.ArraySize = int(binary.BigEndian.Uint16(data[0:2]))
			data = data[2:]
		}
		nul := -1
		for i, b := range data {
			if b == 0 {
				nul = i
				break
			}
		}
		if nul < 0 {
			return nil, 0, errors.New("unterminated register name")
		}
		info.Name = string(data[:nul])
		data = data[nul+1:]
		regs = append(regs, info)
		lastIdx = info.Index
	}
	return regs, lastIdx, nil
}

// RegisterValue is one register's decoded content.
type RegisterValue struct {
	Info RegisterInfo
	vals []uint64
	str  string
	raw  []byte
}

// Uint returns a scalar integer register's value.
func (v *RegisterValue) Uint() (uint64, bool) {
	if v.Info.Flags.Mod() == xc2.FlagChar || len(v.vals) != 1 {
		return 0, false
	}
	return v.vals[0], true
}

// Raw returns the undecoded register bytes.
func (v *RegisterValue) Raw() []byte { return v.raw }

// String renders the register for operators: char registers as text,
// hex-flagged integers in hex, arrays in brackets.
func (v *RegisterValue) String() string {
	flags := v.Info.Flags
	if flags.Mod() == xc2.FlagChar {
		return fmt.Sprintf("%q", v.str)
	}
	render := func(raw uint64) string {
		switch {
		case flags&xc2.FlagHex != 0:
			return fmt.Sprintf("0x%X", raw)
		case flags.Mod() == xc2.FlagSigned:
			return fmt.Sprintf("%d", signExtend(raw, flags))
		case flags.Mod() == xc2.FlagFloat && flags.Type() == xc2.Flag32:
			return fmt.Sprintf("%g", math.Float32frombits(uint32(raw)))
		default:
			return fmt.Sprintf("%d", raw)
		}
	}
	if len(v.vals) == 1 {
		return render(v.vals[0])
	}
	parts := make([]string, len(v.vals))
	for i, raw := range v.vals {
		parts[i] = render(raw)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func signExtend(raw uint64, flags xc2.RegFlags) int64 {
	switch flags.Type() {
	case xc2.FlagBool, xc2.Flag8:
		return int64(int8(raw))
	case xc2.Flag16:
		return int64(int16(raw))
	case xc2.Flag32:
		return int64(int32(raw))
	}
	return int64(raw)
}

// ReadRegister re-reads one register's current value from the device.
func (d *Device) ReadRegister(ctx context.Context, info RegisterInfo) (*RegisterValue, error) {
	elemSize := info.Flags.Size()
	if elemSize == 0 {
		return nil, errors.Errorf("register %s has unsupported type flags %#x", info.Name, uint16(info.Flags))
	}
	payload := []byte{byte(info.Index >> 8), byte(info.Index), 1}
	data, err := d.command(ctx, xc2.CmdRegistryRead, payload, 0)
	if err != nil {
		return nil, err
	}
	want := elemSize * info.ArraySize
	if len(data) < want {
		return nil, errors.Errorf("register %s reply has %d bytes, want %d", info.Name, len(data), want)
	}
	val := &RegisterValue{Info: info, raw: data[:want]}
	for i := 0; i < info.ArraySize; i++ {
		var raw uint64
		for _, b := range data[i*elemSize : (i+1)*elemSize] {
			raw = raw<<8 | uint64(b)
		}
		val.vals = append(val.vals, raw)
	}
	if info.Flags.Mod() == xc2.FlagChar {
		val.str = strings.TrimRight(string(val.raw), "\x00")
	}
	return val, nil
}

// ReadRegisterByName re-reads the named register. The registry
// structure must have been read on this handle first.
func (d *Device) ReadRegisterByName(ctx context.Context, name string) (*RegisterValue, error) {
	if d.registry == nil {
		return nil, ErrRegistryUnknown
	}
	info, ok := d.registry.Lookup(name)
	if !ok {
		return nil, errors.Errorf("no such register: %s", name)
	}
	return d.ReadRegister(ctx, info)
}
