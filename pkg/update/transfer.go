package update

import (
	"context"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/joselara-terraform/test-rig-sub000/pkg/firmware"
)

// transfer pushes every page to the device in strictly increasing page
// order. There is no per-page retry: repeating a program-flash command
// of unknown completion status risks double-programming a page, so any
// failure aborts the session.
func (s *Session) transfer(ctx context.Context, pages []firmware.Page) error {
	for _, page := range pages {
		for _, chunk := range page.Chunks(s.conf.ChunkSize) {
			if err := s.dev.WriteBuffer(ctx, chunk.Offset, chunk.Data); err != nil {
				return errors.Wrapf(err, "write page %d at offset %d", page.Index, chunk.Offset)
			}
		}
		if err := s.dev.ProgramFlash(ctx, uint16(page.Index), s.conf.ProgramTimeout); err != nil {
			return errors.Wrapf(err, "program page %d", page.Index)
		}
		s.currentPage = page.Index + 1
		glog.V(1).Infof("session %s: page %d/%d programmed", s.id, s.currentPage, s.totalPages)
		if s.OnProgress != nil {
			s.OnProgress(page.Index, s.totalPages)
		}
	}
	return nil
}
