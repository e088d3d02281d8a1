package ui

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"net"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"arenad/internal/stream"
	"arenad/internal/vision"
)

// Server is the browser-facing HTTP endpoint: the status page, the three
// MJPEG feeds, the event websocket and metrics.
type Server struct {
	addr    string
	bus     *stream.Bus
	bcast   *Broadcaster
	dict    *vision.Dictionary
	logger  *zap.Logger
	httpSrv *http.Server
}

// NewServer wires the frontend endpoint.
func NewServer(addr string, bus *stream.Bus, bcast *Broadcaster, dict *vision.Dictionary, logger *zap.Logger) *Server {
	return &Server{addr: addr, bus: bus, bcast: bcast, dict: dict, logger: logger}
}

// Start binds the listener and begins serving.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("bind frontend %s: %w", s.addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.Handle("/video", stream.Handler(s.bus, stream.FeedRaw, s.logger))
	mux.Handle("/overlay", stream.Handler(s.bus, stream.FeedOverlay, s.logger))
	mux.Handle("/crop", stream.Handler(s.bus, stream.FeedCrop, s.logger))
	mux.Handle("/snapshot", stream.SnapshotHandler(s.bus, stream.FeedRaw))
	mux.Handle("/ws", s.bcast.Handler())
	mux.HandleFunc("/markers", s.handleMarkerSheet)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpSrv = &http.Server{Handler: mux}
	s.logger.Info("frontend listening", zap.String("addr", s.addr))
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("frontend stopped", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

// handleMarkerSheet renders a printable PNG of markers. Query parameters
// from/to select the id range (inclusive), cols the layout.
func (s *Server) handleMarkerSheet(w http.ResponseWriter, r *http.Request) {
	from := queryInt(r, "from", 0)
	to := queryInt(r, "to", 7)
	cols := queryInt(r, "cols", 4)
	if from < 0 || to < from || to-from >= 64 {
		http.Error(w, "bad id range", http.StatusBadRequest)
		return
	}

	ids := make([]int, 0, to-from+1)
	for id := from; id <= to; id++ {
		ids = append(ids, id)
	}
	sheet, err := s.dict.RenderSheet(ids, cols, 20, 2)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, sheet); err != nil {
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
