package update

import (
	"context"
	"errors"

	"github.com/golang/glog"

	"github.com/joselara-terraform/test-rig-sub000/pkg/bus"
	"github.com/joselara-terraform/test-rig-sub000/pkg/device"
	"github.com/joselara-terraform/test-rig-sub000/pkg/xc2"
)

// retryable reports whether an exchange failure is worth another probe:
// timeouts and protocol-level rejections are; transport loss and
// cancellation are not.
func retryable(err error) bool {
	return errors.Is(err, bus.ErrTimeout) || bus.IsAnswerError(err)
}

// enterBootloader leaves the device confirmed in bootloader mode, or
// fails with BootloaderEntryError. A device already in bootloader mode
// is accepted as-is without a reset.
func (s *Session) enterBootloader(ctx context.Context) error {
	mode, err := s.dev.Mode(ctx)
	if err != nil && !retryable(err) {
		return err
	}
	if mode == device.ModeBootloader {
		glog.V(1).Infof("session %s: device already in bootloader mode", s.id)
		return nil
	}
	glog.V(1).Infof("session %s: device mode %v, forcing bootloader", s.id, mode)

	if s.dev.Bus().ReconnectHint() {
		return s.reenterByReconnect(ctx)
	}
	return s.reenterInPlace(ctx)
}

// reenterInPlace reboots the device and races the bootloader's startup
// window: keep asking it to stay in bootloader mode until an echo
// confirms it did.
func (s *Session) reenterInPlace(ctx context.Context) error {
	if err := s.dev.Reset(); err != nil {
		// Keep probing anyway; the operator may power-cycle the device
		// by hand while the loop runs.
		glog.Warningf("session %s: reset failed, power-cycle the device manually: %v", s.id, err)
	}
	if err := sleep(ctx, s.conf.SettleDelay); err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= s.conf.EntryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.dev.StayInBootloader(ctx); err != nil {
			if !retryable(err) {
				return err
			}
			lastErr = err
			if err := sleep(ctx, s.conf.EntryBackoff); err != nil {
				return err
			}
			continue
		}
		id, err := s.dev.Echo(ctx)
		if err != nil {
			if !retryable(err) {
				return err
			}
			lastErr = err
			if err := sleep(ctx, s.conf.EntryBackoff); err != nil {
				return err
			}
			continue
		}
		if id == uint64(xc2.EchoBootloader) {
			glog.V(1).Infof("session %s: bootloader confirmed after %d attempts", s.id, attempt)
			return nil
		}
		// The application answered: it won the race, go straight into
		// the next stay-in-bootloader request.
		lastErr = nil
	}
	return &BootloaderEntryError{Attempts: s.conf.EntryAttempts, LastErr: lastErr}
}
