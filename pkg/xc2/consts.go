package xc2

import "time"

// Addr is a 12-bit bus address carried in the frame header.
type Addr uint16

// Well-known addresses.
const (
	AddrBroadcast Addr = 0x000
	AddrMaster    Addr = 0x001
	AddrDefault   Addr = 0xFFF

	// MaxAddr is the first address outside the 12-bit range.
	MaxAddr = 4096
)

// PacketType identifies the frame class, carried in the high nibble of
// the first header byte.
type PacketType byte

const (
	TypeEvent         PacketType = 0x40
	TypeCriticalError PacketType = 0x60
	TypeCommand       PacketType = 0x80
	TypeACK           PacketType = 0xC0
	TypeNAK           PacketType = 0xE0
)

// Command is the command byte of a frame.
type Command byte

// Command set understood by the devices. Bootloader and system
// operations are subcommands in the first data byte.
const (
	CmdPoll             Command = 0x00
	CmdEcho             Command = 0x01 // replies with bootloader/application id
	CmdGetStatus        Command = 0x02
	CmdSys              Command = 0x03
	CmdGetFeature       Command = 0x05
	CmdFind             Command = 0x06
	CmdBootloader       Command = 0x08
	CmdStayInBootloader Command = 0x09

	CmdRegistryRead    Command = 0x11
	CmdRegistryGetInfo Command = 0x13
)

// CmdEcho reply values.
const (
	EchoBootloader  byte = 0x01
	EchoApplication byte = 0x02
)

// CmdSys subcommands.
const (
	SysReset      byte = 0x04
	SysBootloader byte = 0x06
	SysRunApp     byte = 0x07
	SysGetSerial  byte = 0x13
)

// CmdBootloader subcommands.
const (
	BootGetBufferSize  byte = 0x01
	BootWriteBuffer    byte = 0x02
	BootProgramFlash   byte = 0x05
	BootApplicationCRC byte = 0x08
)

// CmdRegistryGetInfo subcommands.
const (
	RegInfoSize      byte = 0x00
	RegInfoStructure byte = 0x01
)

// AnswerCode is carried in the data of a NAK frame.
type AnswerCode byte

const (
	AnsACK                AnswerCode = 0x01
	AnsNAK                AnswerCode = 0x02
	AnsUnknownCmd         AnswerCode = 0x03
	AnsBadParam           AnswerCode = 0x04
	AnsBadLength          AnswerCode = 0x05
	AnsBadSecondaryCRC    AnswerCode = 0x06
	AnsReadOnly           AnswerCode = 0x07
	AnsWriteOnly          AnswerCode = 0x08
	AnsBusy               AnswerCode = 0x09
	AnsOtherCmdInProgress AnswerCode = 0x0A
	AnsNotApplicable      AnswerCode = 0x0B
)

var answerNames = map[AnswerCode]string{
	AnsACK:                "acknowledge",
	AnsNAK:                "generic error",
	AnsUnknownCmd:         "unknown command",
	AnsBadParam:           "bad parameter value",
	AnsBadLength:          "bad data length",
	AnsBadSecondaryCRC:    "bad secondary CRC",
	AnsReadOnly:           "read-only",
	AnsWriteOnly:          "write-only",
	AnsBusy:               "busy",
	AnsOtherCmdInProgress: "other command in progress",
	AnsNotApplicable:      "not applicable now",
}

// String returns the short description of the answer code.
func (c AnswerCode) String() string {
	if name, ok := answerNames[c]; ok {
		return name
	}
	return "unknown answer code"
}

// DefaultTimeout is the response timeout used when a command does not
// override it.
const DefaultTimeout = 400 * time.Millisecond

// RegFlags describes one register in the device registry structure.
type RegFlags uint16

const (
	FlagMaskType RegFlags = 0x07
	FlagBool     RegFlags = 0x01
	Flag8        RegFlags = 0x02
	Flag16       RegFlags = 0x03
	Flag32       RegFlags = 0x04
	Flag64       RegFlags = 0x05

	FlagMaskMod  RegFlags = 0x18
	FlagUnsigned RegFlags = 0x00
	FlagSigned   RegFlags = 0x08
	FlagFloat    RegFlags = 0x10
	FlagChar     RegFlags = 0x18

	FlagArray    RegFlags = 0x20
	FlagBounded  RegFlags = 0x40
	FlagHex      RegFlags = 0x80
	FlagReadOnly RegFlags = 0x100
	FlagVolatile RegFlags = 0x200
)

// Type extracts the width class of the register.
func (f RegFlags) Type() RegFlags { return f & FlagMaskType }

// Mod extracts the value modifier of the register.
func (f RegFlags) Mod() RegFlags { return f & FlagMaskMod }

// Size returns the per-element size in bytes, 0 when unknown.
func (f RegFlags) Size() int {
	switch f.Type() {
	case FlagBool, Flag8:
		return 1
	case Flag16:
		return 2
	case Flag32:
		return 4
	case Flag64:
		return 8
	}
	return 0
}
