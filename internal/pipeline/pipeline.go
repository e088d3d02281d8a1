// Package pipeline runs the per-frame processing loop: decode the newest
// camera JPEG, detect markers, update the arena mapping, then publish the
// raw, annotated and cropped feeds.
package pipeline

import (
	"bytes"
	"image"
	"image/draw"
	stdjpeg "image/jpeg"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"arenad/internal/arena"
	"arenad/internal/camera"
	"arenad/internal/config"
	"arenad/internal/overlay"
	"arenad/internal/stream"
	"arenad/internal/vision"
)

// tickInterval paces the loop. It matches the publish tick of the MJPEG
// handlers, so processing faster would only burn CPU.
const tickInterval = 50 * time.Millisecond

var (
	framesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arenad_pipeline_frames_processed_total",
		Help: "Camera frames run through detection",
	})

	framesUndecodable = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arenad_pipeline_frames_undecodable_total",
		Help: "Camera frames that failed JPEG decode",
	})

	markersVisible = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arenad_pipeline_markers_visible",
		Help: "Markers detected in the most recent frame",
	})
)

// Loop owns the processing goroutine. Start it once; Stop blocks until the
// goroutine exits.
type Loop struct {
	source   camera.Source
	detector *vision.Detector
	mapper   *arena.Mapper
	renderer *overlay.Renderer
	bus      *stream.Bus
	isRobot  func(id int) bool
	quality  config.JPEGQuality
	logger   *zap.Logger

	interval time.Duration
	done     chan struct{}
	stopped  chan struct{}
}

// NewLoop wires the loop. isRobot classifies marker ids for overlay colors.
func NewLoop(
	source camera.Source,
	detector *vision.Detector,
	mapper *arena.Mapper,
	renderer *overlay.Renderer,
	bus *stream.Bus,
	isRobot func(id int) bool,
	quality config.JPEGQuality,
	logger *zap.Logger,
) *Loop {
	return &Loop{
		source:   source,
		detector: detector,
		mapper:   mapper,
		renderer: renderer,
		bus:      bus,
		isRobot:  isRobot,
		quality:  quality,
		logger:   logger,
		interval: tickInterval,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start launches the processing goroutine.
func (l *Loop) Start() error {
	go l.run()
	return nil
}

// Stop halts the loop and waits for the in-flight frame to finish.
func (l *Loop) Stop() {
	close(l.done)
	<-l.stopped
}

func (l *Loop) run() {
	defer close(l.stopped)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	var last []byte
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
		}

		raw := l.source.LatestFrame()
		if raw == nil || sameFrame(raw, last) {
			continue
		}
		last = raw
		l.processFrame(raw)
	}
}

// processFrame publishes the three feeds for one camera frame. The raw feed
// goes out even when the frame fails to decode further.
func (l *Loop) processFrame(raw []byte) {
	l.bus.Set(stream.FeedRaw, raw)

	img, err := stdjpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		framesUndecodable.Inc()
		l.logger.Debug("frame decode failed", zap.Error(err))
		return
	}
	rgba := toRGBA(img)

	markers := l.detector.Detect(rgba)
	l.mapper.Process(markers, time.Now())

	framesProcessed.Inc()
	markersVisible.Set(float64(len(markers)))

	annotated := cloneRGBA(rgba)
	l.renderer.Annotate(annotated, markers, l.isRobot)
	if frame := encodeJPEG(annotated, l.quality.Overlay); frame != nil {
		l.bus.Set(stream.FeedOverlay, frame)
	}

	cropped := l.mapper.Crop(rgba)
	if cropped == nil {
		return
	}
	l.renderer.Annotate(cropped, l.mapper.ToCrop(markers), l.isRobot)
	if frame := encodeJPEG(cropped, l.quality.Crop); frame != nil {
		l.bus.Set(stream.FeedCrop, frame)
	}
}

// sameFrame reports whether two frames are the same buffer. Sources replace
// the whole slice per frame, so identity is enough.
func sameFrame(a, b []byte) bool {
	return len(a) == len(b) && len(a) > 0 && &a[0] == &b[0]
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	out := image.NewRGBA(img.Bounds())
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)
	return out
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	out := image.NewRGBA(src.Rect)
	copy(out.Pix, src.Pix)
	return out
}

func encodeJPEG(img image.Image, quality int) []byte {
	var buf bytes.Buffer
	if err := stdjpeg.Encode(&buf, img, &stdjpeg.Options{Quality: quality}); err != nil {
		return nil
	}
	return buf.Bytes()
}
