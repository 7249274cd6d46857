// Command xc2flash pushes a firmware image to an XC2 device over a
// serial line or a TCP bridge.
//
// Serial:
//
//	xc2flash -p /dev/ttyUSB0 -b 1000000 -a 0x11 -f fw.bin
//
// TCP:
//
//	xc2flash -i 10.11.2.2 -tcp 17001 -a 0x2 -f fw.hex
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/joselara-terraform/test-rig-sub000/pkg/bus"
	"github.com/joselara-terraform/test-rig-sub000/pkg/device"
	"github.com/joselara-terraform/test-rig-sub000/pkg/firmware"
	"github.com/joselara-terraform/test-rig-sub000/pkg/task"
	"github.com/joselara-terraform/test-rig-sub000/pkg/update"
	"github.com/joselara-terraform/test-rig-sub000/pkg/xc2"
)

var (
	deviceAddr string
	filePath   string
	serialPort string
	baudRate   = 1000000
	host       string
	tcpPort    = 17001
)

func init() {
	if val := os.Getenv("XC2_ADDR"); val != "" {
		deviceAddr = val
	}
	if val := os.Getenv("XC2_PORT"); val != "" {
		serialPort = val
	}
	if val := os.Getenv("XC2_HOST"); val != "" {
		host = val
	}
	flag.StringVar(&deviceAddr, "a", deviceAddr, "Device address, e.g. 0x11. Mandatory.")
	flag.StringVar(&filePath, "f", filePath, "Firmware file path (.bin or .hex). Mandatory.")
	flag.StringVar(&serialPort, "p", serialPort, "Serial port device (serial transport).")
	flag.IntVar(&baudRate, "b", baudRate, "Serial baud rate.")
	flag.StringVar(&host, "i", host, "Device IP address (TCP transport).")
	flag.IntVar(&tcpPort, "tcp", tcpPort, "TCP port (TCP transport).")
}

func usageError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "xc2flash: "+format+"\n\n", args...)
	flag.Usage()
	os.Exit(1)
}

func parseAddr() xc2.Addr {
	if deviceAddr == "" {
		usageError("device address is mandatory (-a)")
	}
	val, err := strconv.ParseUint(deviceAddr, 0, 16)
	if err != nil || val >= uint64(xc2.MaxAddr) {
		usageError("invalid device address %q", deviceAddr)
	}
	if xc2.Addr(val) == xc2.AddrBroadcast {
		usageError("cannot flash the broadcast address")
	}
	return xc2.Addr(val)
}

func openBus(ctx context.Context) (bus.Bus, error) {
	switch {
	case serialPort != "" && host != "":
		usageError("choose one transport: -p (serial) or -i (TCP)")
	case serialPort != "":
		return bus.OpenSerial(bus.SerialConfig{Port: serialPort, Baud: baudRate})
	case host != "":
		return bus.DialTCP(ctx, bus.TCPConfig{Host: host, Port: tcpPort})
	default:
		usageError("transport is mandatory: -p PORT -b BAUD (serial) or -i HOST -tcp PORT (TCP)")
	}
	return nil, nil
}

func main() {
	flag.Parse()

	addr := parseAddr()
	if filePath == "" {
		usageError("firmware file is mandatory (-f)")
	}

	// Load before touching the device so a bad file fails fast.
	img, err := firmware.Load(filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "xc2flash: %v\n", err)
		os.Exit(1)
	}

	runner := task.NewRunner().HandleSignals()
	b, err := openBus(runner.Context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "xc2flash: %v\n", err)
		os.Exit(1)
	}

	dev := device.New(b, addr)
	sess := update.NewConfig().NewSession(dev, img)

	var bar *progressbar.ProgressBar
	sess.OnProgress = func(page, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription(fmt.Sprintf("%#03x %s", uint16(addr), img.Name())),
				progressbar.OptionOnCompletion(func() { fmt.Println() }),
			)
		}
		bar.Add(1)
	}

	runner.Go(task.NamedRun("update", task.RunFunc(func(ctx context.Context) error {
		// Reconnects may swap the bus handle; close whichever one the
		// session ends up holding.
		defer func() { dev.Bus().Close() }()
		report, err := sess.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%#03x -> %d pages (%d bytes) flashed in %v\n",
			uint16(addr), report.Pages, report.Bytes, report.Duration.Round(10*time.Millisecond))
		if report.CRCAvailable {
			fmt.Printf("%#03x -> application CRC 0x%X\n", uint16(addr), report.DeviceCRC)
		} else {
			fmt.Printf("%#03x -> application CRC unavailable\n", uint16(addr))
		}
		return nil
	})))

	if err := runner.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "xc2flash: %v\n", err)
		os.Exit(1)
	}
}
