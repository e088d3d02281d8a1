// Package camera owns the video ingest path: a UDP socket receiving one
// JPEG per datagram, or an external RTP/H.264 decode pipeline whose stdout
// is a concatenated JPEG stream.
package camera

import (
	"sync/atomic"

	"arenad/internal/jpeg"
)

// Source is a live video input. LatestFrame returns the most recent complete
// JPEG, or nil before the first frame arrives.
type Source interface {
	Start() error
	Stop()
	LatestFrame() []byte
}

// frameSlot holds the newest JPEG. Writers replace the pointer; readers
// snapshot it, so a read never observes a partial frame.
type frameSlot struct {
	ptr atomic.Pointer[[]byte]
}

func (s *frameSlot) store(frame []byte) {
	if !jpeg.IsJPEG(frame) {
		return
	}
	s.ptr.Store(&frame)
}

func (s *frameSlot) load() []byte {
	p := s.ptr.Load()
	if p == nil {
		return nil
	}
	return *p
}
