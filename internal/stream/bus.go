// Package stream fans the pipeline's JPEG outputs out to HTTP clients as
// MJPEG. A Bus holds the newest frame per feed; handlers poll it so a slow
// client can never hold the pipeline back.
package stream

import "sync/atomic"

// Feed names one of the published video outputs.
type Feed int

const (
	FeedRaw Feed = iota
	FeedOverlay
	FeedCrop
	feedCount
)

// String returns the feed name used in URLs and metric labels.
func (f Feed) String() string {
	switch f {
	case FeedRaw:
		return "video"
	case FeedOverlay:
		return "overlay"
	case FeedCrop:
		return "crop"
	default:
		return "unknown"
	}
}

// Bus holds the latest JPEG per feed. Set replaces, Get snapshots; neither
// blocks.
type Bus struct {
	slots [feedCount]atomic.Pointer[[]byte]
}

// NewBus returns an empty bus.
func NewBus() *Bus { return &Bus{} }

// Set publishes a new frame for the feed. Nil and out-of-range feeds are
// ignored.
func (b *Bus) Set(f Feed, frame []byte) {
	if frame == nil || f < 0 || f >= feedCount {
		return
	}
	b.slots[f].Store(&frame)
}

// Get returns the latest frame for the feed, or nil if none was published.
func (b *Bus) Get(f Feed) []byte {
	if f < 0 || f >= feedCount {
		return nil
	}
	p := b.slots[f].Load()
	if p == nil {
		return nil
	}
	return *p
}
