package camera

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"

	"go.uber.org/zap"

	"arenad/internal/jpeg"
)

// RTPSource decodes an RTP/H.264 stream by delegating to a GStreamer
// pipeline that emits concatenated JPEGs on stdout. The pipeline is the
// external collaborator; its only contract with us is the caps string and
// the JPEG stream on fd 1.
type RTPSource struct {
	bindIP   string
	bindPort int
	payload  int
	logger   *zap.Logger

	cmd  *exec.Cmd
	slot frameSlot
	done chan struct{}
}

// NewRTPSource creates a source for an RTP/H.264 sender targeting ip:port
// with the given payload type at a 90 kHz clock.
func NewRTPSource(ip string, port, payload int, logger *zap.Logger) *RTPSource {
	return &RTPSource{
		bindIP:   ip,
		bindPort: port,
		payload:  payload,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

func (s *RTPSource) pipelineArgs() []string {
	caps := fmt.Sprintf(
		"application/x-rtp,media=video,encoding-name=H264,payload=%d,clock-rate=90000",
		s.payload)
	return []string{
		"-q",
		fmt.Sprintf("udpsrc address=%s port=%d caps=%s", s.bindIP, s.bindPort, caps),
		"!", "rtph264depay",
		"!", "h264parse",
		"!", "avdec_h264",
		"!", "jpegenc",
		"!", "fdsink", "fd=1",
	}
}

// Start launches the decode pipeline. A pipeline that cannot be launched is
// a startup-fatal condition for the caller.
func (s *RTPSource) Start() error {
	s.cmd = exec.Command("gst-launch-1.0", s.pipelineArgs()...)

	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("decoder stdout pipe: %w", err)
	}
	stderr, err := s.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("decoder stderr pipe: %w", err)
	}

	if err := s.cmd.Start(); err != nil {
		return fmt.Errorf("launch decoder pipeline: %w", err)
	}

	s.logger.Info("RTP decode pipeline started",
		zap.String("addr", fmt.Sprintf("%s:%d", s.bindIP, s.bindPort)),
		zap.Int("payload", s.payload))

	go s.drainStderr(stderr)
	go s.readLoop(stdout)
	return nil
}

// drainStderr forwards decoder diagnostics at debug level.
func (s *RTPSource) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		s.logger.Debug("decoder", zap.String("line", scanner.Text()))
	}
}

func (s *RTPSource) readLoop(stdout io.Reader) {
	var ex jpeg.Extractor
	chunk := make([]byte, 8192)

	for {
		n, err := stdout.Read(chunk)
		if n > 0 {
			ex.Write(chunk[:n])
			for {
				frame := ex.Next()
				if frame == nil {
					break
				}
				s.slot.store(frame)
				framesReceived.WithLabelValues("rtp_h264").Inc()
			}
		}
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			// Mid-run pipeline death: freeze the latest frame and leave the
			// restart decision to the supervisor.
			s.logger.Warn("decoder pipeline ended", zap.Error(err))
			_ = s.cmd.Wait()
			return
		}
	}
}

// Stop kills the decode pipeline.
func (s *RTPSource) Stop() {
	close(s.done)
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
}

// LatestFrame returns the most recent decoded JPEG, or nil. After a
// pipeline death it keeps returning the final frame.
func (s *RTPSource) LatestFrame() []byte {
	return s.slot.load()
}

var _ Source = (*RTPSource)(nil)
