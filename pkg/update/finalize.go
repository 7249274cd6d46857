package update

import (
	"context"
	"errors"

	"github.com/golang/glog"
	pkgerrors "github.com/pkg/errors"

	"github.com/joselara-terraform/test-rig-sub000/pkg/bus"
)

// applCRCRegister is the register the bootloader stores the computed
// application image checksum in.
const applCRCRegister = "applCRC"

// CRCOutcome tells how the device answered the application-CRC
// command. Devices may reboot before the response makes it out, which
// is expected, so a timeout here is an outcome rather than an error.
type CRCOutcome int

const (
	// CRCAcknowledged means the device confirmed the CRC command.
	CRCAcknowledged CRCOutcome = iota
	// CRCTimedOut means the response never arrived, tolerated because
	// the device reboots right after computing the checksum.
	CRCTimedOut
)

// String returns the outcome for logs.
func (o CRCOutcome) String() string {
	if o == CRCTimedOut {
		return "timed out (tolerated)"
	}
	return "acknowledged"
}

// requestCRC asks the bootloader to compute and store the application
// checksum.
func (s *Session) requestCRC(ctx context.Context) (CRCOutcome, error) {
	err := s.dev.ApplicationCRC(ctx, s.conf.CRCTimeout)
	switch {
	case err == nil:
		return CRCAcknowledged, nil
	case errors.Is(err, bus.ErrTimeout):
		glog.V(1).Infof("session %s: CRC command timed out, device likely rebooting", s.id)
		return CRCTimedOut, nil
	}
	return CRCAcknowledged, pkgerrors.Wrap(err, "request application CRC")
}

// awaitOnline polls with plain echoes until the device is back on the
// link, in either execution mode.
func (s *Session) awaitOnline(ctx context.Context) error {
	for attempt := 1; attempt <= s.conf.OnlineAttempts; attempt++ {
		_, err := s.dev.Echo(ctx)
		if err == nil {
			glog.V(1).Infof("session %s: device back online after %d probes", s.id, attempt)
			return nil
		}
		if !retryable(err) {
			return err
		}
		if err := sleep(ctx, s.conf.OnlineBackoff); err != nil {
			return err
		}
	}
	return pkgerrors.Errorf("device silent after %d probes following CRC request", s.conf.OnlineAttempts)
}

// readApplCRC re-reads the register table and extracts the stored
// application checksum. The readout is cosmetic, so any failure only
// makes the checksum unavailable instead of failing the session.
func (s *Session) readApplCRC(ctx context.Context) (uint64, bool) {
	if _, err := s.dev.ReadRegistryStructure(ctx); err != nil {
		glog.Warningf("session %s: registry structure read failed, CRC unavailable: %v", s.id, err)
		return 0, false
	}
	val, err := s.dev.ReadRegisterByName(ctx, applCRCRegister)
	if err != nil {
		glog.Warningf("session %s: %s read failed, CRC unavailable: %v", s.id, applCRCRegister, err)
		return 0, false
	}
	crc, ok := val.Uint()
	if !ok {
		glog.Warningf("session %s: %s is not a scalar register", s.id, applCRCRegister)
		return 0, false
	}
	return crc, true
}
