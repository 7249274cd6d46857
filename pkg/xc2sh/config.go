package xc2sh

import (
	"context"
	"flag"
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/joselara-terraform/test-rig-sub000/pkg/bus"
	"github.com/joselara-terraform/test-rig-sub000/pkg/xc2"
)

// Config provides the transport options of the console.
type Config struct {
	SerialPort string
	Baud       int
	Host       string
	TCPPort    int

	// Addr, when set, is connected at startup.
	Addr string
}

var defaultConfig = Config{
	Baud:    1000000,
	TCPPort: 17001,
}

func init() {
	if val := os.Getenv("XC2_PORT"); val != "" {
		defaultConfig.SerialPort = val
	}
	if val := os.Getenv("XC2_HOST"); val != "" {
		defaultConfig.Host = val
	}
	if val := os.Getenv("XC2_ADDR"); val != "" {
		defaultConfig.Addr = val
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.SerialPort, "p", defaultConfig.SerialPort, "Serial port device (serial transport).")
	flag.IntVar(&defaultConfig.Baud, "b", defaultConfig.Baud, "Serial baud rate.")
	flag.StringVar(&defaultConfig.Host, "i", defaultConfig.Host, "Device IP address (TCP transport).")
	flag.IntVar(&defaultConfig.TCPPort, "tcp", defaultConfig.TCPPort, "TCP port (TCP transport).")
	flag.StringVar(&defaultConfig.Addr, "a", defaultConfig.Addr, "Device address to connect at startup.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// NewBus opens the configured transport.
func (c *Config) NewBus(ctx context.Context) (bus.Bus, error) {
	switch {
	case c.SerialPort != "" && c.Host != "":
		return nil, errors.New("choose one transport: serial port or host")
	case c.SerialPort != "":
		return bus.OpenSerial(bus.SerialConfig{Port: c.SerialPort, Baud: c.Baud})
	case c.Host != "":
		return bus.DialTCP(ctx, bus.TCPConfig{Host: c.Host, Port: c.TCPPort})
	}
	return nil, errors.New("transport not configured: set -p (serial) or -i (TCP)")
}

// ParseAddr parses a device address such as "0x11" or "17".
func ParseAddr(s string) (xc2.Addr, error) {
	val, err := strconv.ParseUint(s, 0, 16)
	if err != nil || val >= uint64(xc2.MaxAddr) {
		return 0, errors.Errorf("invalid device address %q", s)
	}
	return xc2.Addr(val), nil
}
