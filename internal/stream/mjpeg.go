package stream

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"arenad/internal/jpeg"
)

const (
	// boundary separates MJPEG parts. Browsers key on the value in the
	// Content-Type header, so the two must match exactly.
	boundary = "frame"

	// frameInterval paces every client at about 20 fps.
	frameInterval = 50 * time.Millisecond
)

var (
	streamClients = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "arenad_stream_clients",
			Help: "Currently connected MJPEG clients per feed",
		},
		[]string{"feed"},
	)

	streamFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arenad_stream_frames_sent_total",
			Help: "MJPEG parts written per feed",
		},
		[]string{"feed"},
	)
)

// Handler serves one feed of the bus as multipart MJPEG. Before the first
// frame arrives clients get a captioned placeholder instead of a stalled
// connection.
func Handler(bus *Bus, feed Feed, logger *zap.Logger) http.Handler {
	placeholder := jpeg.Placeholder("waiting for " + feed.String())
	label := feed.String()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		streamClients.WithLabelValues(label).Inc()
		defer streamClients.WithLabelValues(label).Dec()
		logger.Debug("stream client connected",
			zap.String("feed", label), zap.String("remote", r.RemoteAddr))

		ticker := time.NewTicker(frameInterval)
		defer ticker.Stop()

		for {
			frame := bus.Get(feed)
			if frame == nil {
				frame = placeholder
			}
			if err := writePart(w, frame); err != nil {
				logger.Debug("stream client disconnected",
					zap.String("feed", label), zap.String("remote", r.RemoteAddr))
				return
			}
			flusher.Flush()
			streamFrames.WithLabelValues(label).Inc()

			select {
			case <-r.Context().Done():
				logger.Debug("stream client disconnected",
					zap.String("feed", label), zap.String("remote", r.RemoteAddr))
				return
			case <-ticker.C:
			}
		}
	})
}

func writePart(w http.ResponseWriter, frame []byte) error {
	if _, err := fmt.Fprintf(w,
		"--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n",
		boundary, len(frame)); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err := fmt.Fprint(w, "\r\n")
	return err
}

// SnapshotHandler serves the latest frame of a feed as a single JPEG.
func SnapshotHandler(bus *Bus, feed Feed) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		frame := bus.Get(feed)
		if frame == nil {
			http.Error(w, "no frame available", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(frame)))
		w.Write(frame)
	})
}
