package update

import (
	"context"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/joselara-terraform/test-rig-sub000/pkg/bus"
	"github.com/joselara-terraform/test-rig-sub000/pkg/device"
	"github.com/joselara-terraform/test-rig-sub000/pkg/xc2"
)

// reenterByReconnect handles devices whose bootloader runs its own
// network listener: entering bootloader mode drops the current socket,
// so the session must probe for the device to come back and adopt a
// fresh bus. The old bus handle is closed here; the new one is handed
// to the device on success.
func (s *Session) reenterByReconnect(ctx context.Context) error {
	rd, ok := s.dev.Bus().(bus.Redialer)
	if !ok {
		return errors.Errorf("bus %s requires reconnect but cannot redial", s.dev.Bus().Name())
	}

	// Unlike the in-place path this command must be acknowledged: a
	// device that never heard it keeps its application listener and the
	// redial loop below would probe a listener that never changes.
	if err := s.dev.ResetToBootloader(ctx); err != nil {
		return errors.Wrap(err, "command bootloader entry")
	}
	if err := s.dev.Bus().Close(); err != nil {
		glog.V(1).Infof("session %s: close stale bus: %v", s.id, err)
	}

	var lastErr error
	for attempt := 1; attempt <= s.conf.EntryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := rd.Probe(ctx, s.conf.RedialTimeout); err != nil {
			lastErr = err
			if err := sleep(ctx, s.conf.ProbeBackoff); err != nil {
				return err
			}
			continue
		}
		nb, err := rd.Redial(ctx, s.conf.RedialTimeout)
		if err != nil {
			lastErr = err
			if err := sleep(ctx, s.conf.ProbeBackoff); err != nil {
				return err
			}
			continue
		}
		id, err := device.New(nb, s.dev.Addr()).Echo(ctx)
		switch {
		case err == nil && id == uint64(xc2.EchoBootloader):
			s.dev.SetBus(nb)
			glog.V(1).Infof("session %s: reconnected to bootloader after %d attempts", s.id, attempt)
			return nil
		case err != nil && !retryable(err):
			nb.Close()
			return err
		case err != nil:
			lastErr = err
		default:
			// Connected, but the application answered. Drop the session
			// and retry; the bootloader listener may still be starting.
			lastErr = nil
		}
		nb.Close()
		if err := sleep(ctx, s.conf.EntryBackoff); err != nil {
			return err
		}
	}
	return &BootloaderEntryError{Attempts: s.conf.EntryAttempts, LastErr: lastErr}
}
