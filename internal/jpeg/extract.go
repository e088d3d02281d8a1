// Package jpeg carves individual JPEG images out of byte streams and
// datagrams, and renders the placeholder frames the MJPEG endpoints fall
// back to when a stream has no data yet.
package jpeg

import "bytes"

var (
	soi = []byte{0xFF, 0xD8}
	eoi = []byte{0xFF, 0xD9}
)

// maxPendingBytes bounds how much junk the extractor will accumulate while
// hunting for a start-of-image marker.
const maxPendingBytes = 2 << 20

// IsJPEG reports whether data is a plausible self-contained JPEG: at least
// four bytes, starting with SOI and ending with EOI.
func IsJPEG(data []byte) bool {
	return len(data) >= 4 && bytes.HasPrefix(data, soi) && bytes.HasSuffix(data, eoi)
}

// Extractor splits a concatenated JPEG stream into individual frames. Feed
// it chunks in arrival order; Next returns complete frames in the same
// order. Junk before the first SOI is discarded, and the internal buffer is
// truncated if no SOI appears within maxPendingBytes.
type Extractor struct {
	buf []byte
}

// Write appends a chunk of stream data.
func (e *Extractor) Write(chunk []byte) {
	e.buf = append(e.buf, chunk...)
}

// Next returns the next complete JPEG frame, or nil if the buffer does not
// yet contain one. The returned slice is a copy; the buffer advances past
// the frame.
func (e *Extractor) Next() []byte {
	start := bytes.Index(e.buf, soi)
	if start < 0 {
		// No frame can start in what we have. Keep the tail in case it ends
		// with the first half of a marker split across chunks.
		if len(e.buf) > maxPendingBytes {
			e.buf = e.buf[len(e.buf)-2:]
		}
		return nil
	}
	if start > 0 {
		e.buf = e.buf[start:]
	}

	end := bytes.Index(e.buf[2:], eoi)
	if end < 0 {
		if len(e.buf) > maxPendingBytes {
			// A frame this large is not a frame. Restart the hunt.
			e.buf = e.buf[len(e.buf)-2:]
		}
		return nil
	}
	end += 2 + len(eoi)

	frame := make([]byte, end)
	copy(frame, e.buf[:end])
	e.buf = e.buf[end:]
	return frame
}

// Pending returns how many buffered bytes are waiting for a frame boundary.
func (e *Extractor) Pending() int { return len(e.buf) }
