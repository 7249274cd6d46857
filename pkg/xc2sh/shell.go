// Package xc2sh provides the interactive console for poking XC2
// devices: probing, register reads and firmware updates from one
// prompt.
package xc2sh

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/abiosoft/ishell"
	"github.com/pkg/errors"

	"github.com/joselara-terraform/test-rig-sub000/pkg/device"
	"github.com/joselara-terraform/test-rig-sub000/pkg/firmware"
	"github.com/joselara-terraform/test-rig-sub000/pkg/update"
	"github.com/joselara-terraform/test-rig-sub000/pkg/xc2"
)

// Shell provides the ishell backed interactive console.
type Shell struct {
	Interactive bool

	Shell  *ishell.Shell
	Config *Config
	Conn   *Conn
}

// Conn is an open transport bound to one device address.
type Conn struct {
	Dev *device.Device
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

var (
	// flags

	evalOnly bool

	// commands
	commands = []*ishell.Cmd{
		&ConnectCmd,
		&DisconnectCmd,
		&EchoCmd,
		&SerialCmd,
		&StatusCmd,
		&RegsCmd,
		&ReadCmd,
		&FlashCmd,
		&BootloaderCmd,
		&RunAppCmd,
		&ResetCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
}

// New creates a new shell.
func New(conf *Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps a command func that requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Conn == nil {
			c.Err(errors.New("not connected"))
			return
		}
		fn(c)
	}
}

// Connect opens the configured transport bound to addr.
func (s *Shell) Connect(addr xc2.Addr) error {
	b, err := s.Config.NewBus(context.Background())
	if err != nil {
		return err
	}
	s.Disconnect()
	s.Conn = &Conn{Dev: device.New(b, addr)}
	s.RefreshPrompt()
	return nil
}

// Disconnect closes the current connection.
func (s *Shell) Disconnect() {
	if s.Conn != nil {
		// A flash may have swapped the bus handle; close whichever one
		// the device holds now.
		s.Conn.Dev.Bus().Close()
		s.Conn = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// RefreshPrompt re-probes the device and shows its mode in the prompt.
func (s *Shell) RefreshPrompt() {
	if s.Conn == nil {
		s.Shell.SetPrompt(unconnectedPrompt)
		return
	}
	mode, _ := s.Conn.Dev.Mode(context.Background())
	s.Shell.SetPrompt(fmt.Sprintf("%#03x [%v] > ", uint16(s.Conn.Dev.Addr()), mode))
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.Config.Addr != "" {
		addr, err := ParseAddr(s.Config.Addr)
		if err != nil {
			log.Fatalln(err)
		}
		if s.Interactive {
			s.Shell.Printf("Connecting %#03x ...\n", uint16(addr))
		}
		if err := s.Connect(addr); err != nil {
			log.Fatalf("connect %#03x failed: %v", uint16(addr), err)
		}
	}

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

// readRegistry makes sure the register structure is cached.
func readRegistry(dev *device.Device) (*device.Registry, error) {
	if reg := dev.Registry(); reg != nil {
		return reg, nil
	}
	return dev.ReadRegistryStructure(context.Background())
}

var (
	// ConnectCmd opens the transport and selects a device.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "ADDR",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			arg := s.Config.Addr
			if len(c.Args) >= 1 {
				arg = c.Args[0]
			}
			if arg == "" {
				c.Err(errors.New("device address expected"))
				return
			}
			addr, err := ParseAddr(arg)
			if err != nil {
				c.Err(err)
				return
			}
			if err := s.Connect(addr); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd drops the current connection.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// EchoCmd probes the device execution mode.
	EchoCmd = ishell.Cmd{
		Name: "echo",
		Help: "",
		Func: MustBeConnected(func(c *ishell.Context) {
			s := ShellFrom(c)
			mode, err := s.Conn.Dev.Mode(context.Background())
			if err != nil {
				c.Err(err)
				return
			}
			c.Println(mode)
			s.RefreshPrompt()
		}),
	}

	// SerialCmd reads the device serial number.
	SerialCmd = ishell.Cmd{
		Name: "serial",
		Help: "",
		Func: MustBeConnected(func(c *ishell.Context) {
			sn, err := ShellFrom(c).Conn.Dev.SerialNumber(context.Background())
			if err != nil {
				c.Err(err)
				return
			}
			c.Println(sn)
		}),
	}

	// StatusCmd dumps the raw status payload.
	StatusCmd = ishell.Cmd{
		Name: "status",
		Help: "",
		Func: MustBeConnected(func(c *ishell.Context) {
			data, err := ShellFrom(c).Conn.Dev.Status(context.Background())
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("% X\n", data)
		}),
	}

	// RegsCmd lists the device register table.
	RegsCmd = ishell.Cmd{
		Name:    "regs",
		Aliases: []string{"registry"},
		Help:    "",
		Func: MustBeConnected(func(c *ishell.Context) {
			reg, err := readRegistry(ShellFrom(c).Conn.Dev)
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("%d registers, %d bytes\n", reg.NumRegisters, reg.NumBytes)
			for _, info := range reg.All() {
				if info.ArraySize > 1 {
					c.Printf("%4d  %-24s flags %#06x  [%d]\n", info.Index, info.Name, uint16(info.Flags), info.ArraySize)
					continue
				}
				c.Printf("%4d  %-24s flags %#06x\n", info.Index, info.Name, uint16(info.Flags))
			}
		}),
	}

	// ReadCmd reads one register by name.
	ReadCmd = ishell.Cmd{
		Name:    "read",
		Aliases: []string{"r"},
		Help:    "NAME",
		Func: MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(errors.New("register name expected"))
				return
			}
			dev := ShellFrom(c).Conn.Dev
			if _, err := readRegistry(dev); err != nil {
				c.Err(err)
				return
			}
			val, err := dev.ReadRegisterByName(context.Background(), c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			c.Println(val)
		}),
	}

	// FlashCmd runs a firmware update session on the connected device.
	FlashCmd = ishell.Cmd{
		Name: "flash",
		Help: "FILE",
		Func: MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(errors.New("firmware file expected"))
				return
			}
			s := ShellFrom(c)
			img, err := firmware.Load(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			sess := update.NewConfig().NewSession(s.Conn.Dev, img)
			sess.OnProgress = func(page, total int) {
				c.Printf("page %d/%d (%d%%)\n", page+1, total, (page+1)*100/total)
			}
			report, err := sess.Run(context.Background())
			if err != nil {
				c.Err(err)
				s.RefreshPrompt()
				return
			}
			c.Printf("%d pages (%d bytes) flashed in %v\n", report.Pages, report.Bytes, report.Duration)
			if report.CRCAvailable {
				c.Printf("application CRC 0x%X\n", report.DeviceCRC)
			} else {
				c.Println("application CRC unavailable")
			}
			s.RefreshPrompt()
		}),
	}

	// BootloaderCmd reboots the device into its bootloader.
	BootloaderCmd = ishell.Cmd{
		Name: "bootloader",
		Help: "",
		Func: MustBeConnected(func(c *ishell.Context) {
			s := ShellFrom(c)
			if err := s.Conn.Dev.ResetToBootloader(context.Background()); err != nil {
				c.Err(err)
				return
			}
			s.RefreshPrompt()
		}),
	}

	// RunAppCmd starts the application on a device holding in
	// bootloader mode.
	RunAppCmd = ishell.Cmd{
		Name: "runapp",
		Help: "",
		Func: MustBeConnected(func(c *ishell.Context) {
			s := ShellFrom(c)
			if err := s.Conn.Dev.RunApp(context.Background()); err != nil {
				c.Err(err)
				return
			}
			s.RefreshPrompt()
		}),
	}

	// ResetCmd reboots the device.
	ResetCmd = ishell.Cmd{
		Name: "reset",
		Help: "",
		Func: MustBeConnected(func(c *ishell.Context) {
			s := ShellFrom(c)
			if err := s.Conn.Dev.Reset(); err != nil {
				c.Err(err)
				return
			}
			s.RefreshPrompt()
		}),
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(NewConfig()).Run(flag.Args()...)
}
