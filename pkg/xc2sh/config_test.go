package xc2sh

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joselara-terraform/test-rig-sub000/pkg/xc2"
)

func TestParseAddr(t *testing.T) {
	testCases := []struct {
		in   string
		addr xc2.Addr
		ok   bool
	}{
		{"0x11", 0x011, true},
		{"17", 0x011, true},
		{"0xFFF", 0xFFF, true},
		{"0", 0x000, true},
		{"0x1000", 0, false},
		{"", 0, false},
		{"banana", 0, false},
		{"-1", 0, false},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			addr, err := ParseAddr(tc.in)
			if !tc.ok {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.addr, addr)
		})
	}
}

func TestNewBusRequiresOneTransport(t *testing.T) {
	conf := &Config{}
	_, err := conf.NewBus(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "not configured")

	conf = &Config{SerialPort: "/dev/ttyUSB0", Host: "10.11.2.2"}
	_, err = conf.NewBus(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "choose one")
}
