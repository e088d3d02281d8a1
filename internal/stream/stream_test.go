package stream

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func testJPEG(payload ...byte) []byte {
	f := []byte{0xFF, 0xD8}
	f = append(f, payload...)
	return append(f, 0xFF, 0xD9)
}

func TestBusSetGet(t *testing.T) {
	bus := NewBus()
	if bus.Get(FeedRaw) != nil {
		t.Fatal("empty bus should return nil")
	}

	first := testJPEG(1)
	second := testJPEG(2)
	bus.Set(FeedRaw, first)
	bus.Set(FeedOverlay, second)

	if got := bus.Get(FeedRaw); !bytes.Equal(got, first) {
		t.Fatalf("raw = %x, want %x", got, first)
	}
	if got := bus.Get(FeedOverlay); !bytes.Equal(got, second) {
		t.Fatalf("overlay = %x, want %x", got, second)
	}
	if bus.Get(FeedCrop) != nil {
		t.Fatal("crop feed should be empty")
	}

	bus.Set(FeedRaw, second)
	if got := bus.Get(FeedRaw); !bytes.Equal(got, second) {
		t.Fatalf("raw after replace = %x, want %x", got, second)
	}

	bus.Set(FeedRaw, nil) // ignored
	if got := bus.Get(FeedRaw); !bytes.Equal(got, second) {
		t.Fatal("nil Set must not clear the slot")
	}
}

func TestFeedNames(t *testing.T) {
	names := map[Feed]string{FeedRaw: "video", FeedOverlay: "overlay", FeedCrop: "crop"}
	for feed, want := range names {
		if got := feed.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", feed, got, want)
		}
	}
}

// readParts connects to the stream and returns the first n part bodies.
func readParts(t *testing.T, url string, n int) [][]byte {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		t.Fatalf("parse content type: %v", err)
	}
	if mediaType != "multipart/x-mixed-replace" {
		t.Fatalf("media type = %q", mediaType)
	}
	if params["boundary"] != boundary {
		t.Fatalf("boundary = %q, want %q", params["boundary"], boundary)
	}

	mr := multipart.NewReader(resp.Body, params["boundary"])
	var bodies [][]byte
	for i := 0; i < n; i++ {
		part, err := mr.NextPart()
		if err != nil {
			t.Fatalf("part %d: %v", i, err)
		}
		if ct := part.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Fatalf("part %d content type = %q", i, ct)
		}
		body, err := io.ReadAll(part)
		if err != nil {
			t.Fatalf("read part %d: %v", i, err)
		}
		bodies = append(bodies, body)
	}
	return bodies
}

func TestHandlerStreamsLatestFrame(t *testing.T) {
	bus := NewBus()
	frame := testJPEG(0xAB)
	bus.Set(FeedRaw, frame)

	srv := httptest.NewServer(Handler(bus, FeedRaw, zap.NewNop()))
	defer srv.Close()

	for i, body := range readParts(t, srv.URL, 2) {
		if !bytes.Equal(body, frame) {
			t.Errorf("part %d = %x, want %x", i, body, frame)
		}
	}
}

func TestHandlerServesPlaceholderBeforeFirstFrame(t *testing.T) {
	srv := httptest.NewServer(Handler(NewBus(), FeedOverlay, zap.NewNop()))
	defer srv.Close()

	body := readParts(t, srv.URL, 1)[0]
	if len(body) < 4 || body[0] != 0xFF || body[1] != 0xD8 {
		t.Fatalf("placeholder is not a JPEG: %x", body[:min(8, len(body))])
	}
}

func TestSnapshotHandler(t *testing.T) {
	bus := NewBus()
	srv := httptest.NewServer(SnapshotHandler(bus, FeedCrop))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("empty bus status = %d", resp.StatusCode)
	}

	frame := testJPEG(0x11)
	bus.Set(FeedCrop, frame)

	resp, err = http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !bytes.Equal(body, frame) {
		t.Fatalf("status %d body %x", resp.StatusCode, body)
	}
}
