package camera

import (
	"errors"
	"fmt"
	"net"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"arenad/internal/jpeg"
)

var (
	framesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arenad_camera_frames_received_total",
			Help: "Complete JPEG frames accepted from the camera source",
		},
		[]string{"source"},
	)

	framesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arenad_camera_frames_rejected_total",
			Help: "Datagrams or chunks dropped for failing the JPEG framing check",
		},
		[]string{"source"},
	)
)

// maxDatagram comfortably holds a 1080p JPEG in a single datagram on a
// loopback or jumbo-frame LAN.
const maxDatagram = 1 << 16

// UDPSource receives one whole JPEG per UDP datagram. Datagrams that are not
// self-contained JPEGs are dropped silently so a malformed sender cannot
// stall the pipeline.
type UDPSource struct {
	addr   string
	logger *zap.Logger

	conn *net.UDPConn
	slot frameSlot
	done chan struct{}
}

// NewUDPSource creates a source bound to ip:port when started.
func NewUDPSource(ip string, port int, logger *zap.Logger) *UDPSource {
	return &UDPSource{
		addr:   fmt.Sprintf("%s:%d", ip, port),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start binds the socket and begins receiving in a background goroutine.
func (s *UDPSource) Start() error {
	udpAddr, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", s.addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("bind udp %s: %w", s.addr, err)
	}
	s.conn = conn

	s.logger.Info("UDP camera listening", zap.String("addr", s.addr))
	go s.readLoop()
	return nil
}

func (s *UDPSource) readLoop() {
	buf := make([]byte, maxDatagram)
	for {
		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("UDP camera read error", zap.Error(err))
			continue
		}

		frame := make([]byte, n)
		copy(frame, buf[:n])
		if s.accept(frame) {
			framesReceived.WithLabelValues("udp_jpeg").Inc()
		} else {
			framesRejected.WithLabelValues("udp_jpeg").Inc()
		}
	}
}

// accept stores the datagram if it passes the framing check.
func (s *UDPSource) accept(frame []byte) bool {
	if !jpeg.IsJPEG(frame) {
		return false
	}
	s.slot.store(frame)
	return true
}

// Stop closes the socket. LatestFrame keeps returning the final frame.
func (s *UDPSource) Stop() {
	close(s.done)
	if s.conn != nil {
		s.conn.Close()
	}
}

// LatestFrame returns the most recent accepted JPEG, or nil.
func (s *UDPSource) LatestFrame() []byte {
	return s.slot.load()
}

var _ Source = (*UDPSource)(nil)
