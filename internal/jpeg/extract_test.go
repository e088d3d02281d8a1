package jpeg

import (
	"bytes"
	"testing"
)

func frame(payload ...byte) []byte {
	f := []byte{0xFF, 0xD8}
	f = append(f, payload...)
	return append(f, 0xFF, 0xD9)
}

func TestIsJPEG(t *testing.T) {
	if !IsJPEG(frame(0x01, 0x02)) {
		t.Error("valid frame rejected")
	}
	if IsJPEG([]byte{0xFF, 0xD8}) {
		t.Error("too-short frame accepted")
	}
	if IsJPEG([]byte{0x00, 0x00, 0xFF, 0xD9}) {
		t.Error("missing SOI accepted")
	}
	if IsJPEG([]byte{0xFF, 0xD8, 0x00, 0x00}) {
		t.Error("missing EOI accepted")
	}
}

func TestExtractorSingleFrame(t *testing.T) {
	var e Extractor
	want := frame(0xAA, 0xBB)
	e.Write(want)

	got := e.Next()
	if !bytes.Equal(got, want) {
		t.Fatalf("Next = %x, want %x", got, want)
	}
	if e.Next() != nil {
		t.Error("second Next should be nil")
	}
}

func TestExtractorSplitAcrossChunks(t *testing.T) {
	var e Extractor
	want := frame(0x01, 0x02, 0x03, 0x04)

	e.Write(want[:3])
	if e.Next() != nil {
		t.Fatal("frame emitted before EOI arrived")
	}
	e.Write(want[3:])

	if got := e.Next(); !bytes.Equal(got, want) {
		t.Fatalf("Next = %x, want %x", got, want)
	}
}

func TestExtractorDiscardsLeadingJunk(t *testing.T) {
	var e Extractor
	want := frame(0x10)
	e.Write([]byte{0x00, 0x01, 0x02})
	e.Write(want)

	if got := e.Next(); !bytes.Equal(got, want) {
		t.Fatalf("Next = %x, want %x", got, want)
	}
}

func TestExtractorPreservesOrder(t *testing.T) {
	var e Extractor
	f1 := frame(0x01)
	f2 := frame(0x02)
	f3 := frame(0x03)
	e.Write(f1)
	e.Write(f2)
	e.Write(f3)

	for i, want := range [][]byte{f1, f2, f3} {
		if got := e.Next(); !bytes.Equal(got, want) {
			t.Fatalf("frame %d = %x, want %x", i, got, want)
		}
	}
}

func TestExtractorBoundsJunkBuffer(t *testing.T) {
	var e Extractor
	junk := make([]byte, maxPendingBytes+4096)
	e.Write(junk)

	if e.Next() != nil {
		t.Fatal("junk produced a frame")
	}
	if e.Pending() > 2 {
		t.Errorf("pending = %d after junk truncation, want <= 2", e.Pending())
	}

	// The extractor still works after truncation.
	want := frame(0x42)
	e.Write(want)
	if got := e.Next(); !bytes.Equal(got, want) {
		t.Fatalf("Next after truncation = %x, want %x", got, want)
	}
}

func TestPlaceholderIsJPEG(t *testing.T) {
	p := Placeholder("waiting for frames...")
	if !IsJPEG(p) {
		t.Fatalf("placeholder is not a self-contained JPEG (%d bytes)", len(p))
	}
}
