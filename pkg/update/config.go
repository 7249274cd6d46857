package update

import (
	"time"

	"github.com/joselara-terraform/test-rig-sub000/pkg/device"
	"github.com/joselara-terraform/test-rig-sub000/pkg/firmware"
)

// Config defines the tunables of an update session. The defaults match
// the bootloaders deployed on the test rig; overriding them is rarely
// needed outside of tests.
type Config struct {
	// ChunkSize is the payload size of one write-buffer command.
	ChunkSize int

	// EntryAttempts bounds the bootloader entry retry loop, both the
	// stay-in-bootloader probing and the TCP reconnect variant.
	EntryAttempts int
	// EntryBackoff is the sleep between failed entry probes.
	EntryBackoff time.Duration
	// SettleDelay is the wait after a reset before probing starts.
	SettleDelay time.Duration
	// ProbeBackoff is the sleep between reachability probes while the
	// device reboots its network stack.
	ProbeBackoff time.Duration
	// RedialTimeout caps one reconnect attempt.
	RedialTimeout time.Duration

	// ProgramTimeout is the response timeout for one program-flash
	// command; flash programming blocks the device.
	ProgramTimeout time.Duration
	// CRCTimeout is the response timeout for the application-CRC
	// command.
	CRCTimeout time.Duration

	// OnlineAttempts bounds the post-CRC wait for the device to come
	// back on the link; OnlineBackoff is the sleep between probes.
	OnlineAttempts int
	OnlineBackoff  time.Duration
}

var defaultConfig = Config{
	ChunkSize:      firmware.DefaultChunkSize,
	EntryAttempts:  100,
	EntryBackoff:   100 * time.Millisecond,
	SettleDelay:    time.Second,
	ProbeBackoff:   time.Second,
	RedialTimeout:  3 * time.Second,
	ProgramTimeout: 25 * time.Second,
	CRCTimeout:     10 * time.Second,
	OnlineAttempts: 600,
	OnlineBackoff:  100 * time.Millisecond,
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

// NewSession creates an update session pushing img to dev.
func (c *Config) NewSession(dev *device.Device, img *firmware.Image) *Session {
	return newSession(*c, dev, img)
}
