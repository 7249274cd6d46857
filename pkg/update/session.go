// Package update orchestrates one firmware update session: bootloader
// entry, page-by-page transfer, CRC finalization and device restart.
package update

import (
	"context"
	"time"

	"github.com/gofrs/uuid"
	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/joselara-terraform/test-rig-sub000/pkg/device"
	"github.com/joselara-terraform/test-rig-sub000/pkg/firmware"
)

// State is the lifecycle state of a session.
type State int

const (
	StateUnknown State = iota
	StateAwaitingBootloader
	StateTransferring
	StateFinalizing
	StateVerifying
	StateSucceeded
	StateFailed
)

// String returns the state for logs.
func (s State) String() string {
	switch s {
	case StateAwaitingBootloader:
		return "awaiting-bootloader"
	case StateTransferring:
		return "transferring"
	case StateFinalizing:
		return "finalizing"
	case StateVerifying:
		return "verifying"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// ProgressFunc observes transfer progress after each programmed page.
// pageIndex is 0-based; the percentage done is (pageIndex+1)/totalPages.
type ProgressFunc func(pageIndex, totalPages int)

// Report summarizes a finished session.
type Report struct {
	ID       string
	State    State
	Pages    int
	PageSize int
	Bytes    int
	Duration time.Duration

	// CRCOutcome records how the device answered the CRC command.
	CRCOutcome CRCOutcome
	// DeviceCRC is the applCRC register content read back after the
	// transfer, valid only when CRCAvailable is set. The readout is
	// informational; an unavailable CRC does not fail the session.
	DeviceCRC    uint64
	CRCAvailable bool
}

// Session is one sequential firmware update of one device. A session
// owns its device handle for its whole lifetime and is never reused
// across files or devices.
type Session struct {
	// OnProgress, when set, is called after every programmed page.
	OnProgress ProgressFunc

	id   string
	conf Config
	dev  *device.Device
	img  *firmware.Image

	state       State
	currentPage int
	totalPages  int
}

func newSession(conf Config, dev *device.Device, img *firmware.Image) *Session {
	return &Session{
		id:   uuid.Must(uuid.NewV4()).String(),
		conf: conf,
		dev:  dev,
		img:  img,
	}
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// Progress returns the transfer position as programmed and total pages.
func (s *Session) Progress() (current, total int) {
	return s.currentPage, s.totalPages
}

func (s *Session) setState(st State) {
	glog.V(1).Infof("session %s: %v -> %v", s.id, s.state, st)
	s.state = st
}

// Run executes the whole session. On any fatal error the device is
// given a best-effort reset so it is not left halted mid-transfer, and
// the error is returned with the session in StateFailed. Re-running a
// failed or canceled session from scratch is safe: pages are
// overwritten wholesale.
func (s *Session) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	glog.Infof("session %s: updating device %#03x with %s (%d bytes)",
		s.id, uint16(s.dev.Addr()), s.img.Name(), s.img.Len())

	s.setState(StateAwaitingBootloader)
	if err := s.enterBootloader(ctx); err != nil {
		return s.fail(err)
	}

	pageSize, err := s.dev.BufferSize(ctx)
	if err != nil {
		return s.fail(errors.Wrap(err, "query buffer size"))
	}
	pages, err := firmware.Split(s.img.Bytes(), pageSize)
	if err != nil {
		return s.fail(err)
	}
	if len(pages) > 0x10000 {
		return s.fail(errors.Errorf("image needs %d pages, page index is 16-bit", len(pages)))
	}
	s.totalPages = len(pages)
	glog.Infof("session %s: page size %d, %d pages", s.id, pageSize, len(pages))

	s.setState(StateTransferring)
	if err := s.transfer(ctx, pages); err != nil {
		return s.fail(err)
	}

	s.setState(StateFinalizing)
	outcome, err := s.requestCRC(ctx)
	if err != nil {
		return s.fail(err)
	}
	if err := s.awaitOnline(ctx); err != nil {
		return s.fail(err)
	}

	s.setState(StateVerifying)
	crc, crcOK := s.readApplCRC(ctx)

	// Terminal action regardless of the CRC readout: back to the
	// application.
	if err := s.dev.Reset(); err != nil {
		glog.Warningf("session %s: final reset failed: %v", s.id, err)
	}

	s.setState(StateSucceeded)
	report := &Report{
		ID:           s.id,
		State:        s.state,
		Pages:        s.totalPages,
		PageSize:     pageSize,
		Bytes:        s.img.Len(),
		Duration:     time.Since(start),
		CRCOutcome:   outcome,
		DeviceCRC:    crc,
		CRCAvailable: crcOK,
	}
	glog.Infof("session %s: succeeded in %v", s.id, report.Duration)
	return report, nil
}

// fail marks the session failed and tries to leave the device running
// its application instead of halted in bootloader mode.
func (s *Session) fail(err error) (*Report, error) {
	s.setState(StateFailed)
	if resetErr := s.dev.Reset(); resetErr != nil {
		glog.V(1).Infof("session %s: cleanup reset failed: %v", s.id, resetErr)
	}
	glog.Errorf("session %s: failed: %v", s.id, err)
	return nil, err
}

// sleep waits for d unless the context ends first.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
