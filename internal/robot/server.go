package robot

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"arenad/internal/arena"
	"arenad/internal/jpeg"
	"arenad/internal/mission"
)

const (
	// PingInterval is the cadence of server-initiated liveness pings.
	PingInterval = 5 * time.Second

	// poseSampleInterval is the cadence at which each connected robot's
	// pose is pushed onto its history.
	poseSampleInterval = 200 * time.Millisecond
)

var (
	robotMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arenad_robot_messages_total",
			Help: "Inbound robot protocol frames by op",
		},
		[]string{"op"},
	)

	robotsConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arenad_robots_connected",
			Help: "Robots currently holding a live connection",
		},
	)
)

// PoseSource answers current-pose queries by marker id.
type PoseSource interface {
	PoseOf(id int) (arena.Pose, bool)
}

// Events receives team-scoped output destined for the browser UI.
type Events interface {
	TeamLog(team, line string)
	TeamImage(team string, jpegData []byte)
}

// Predictor runs ML inference requests. Predict returns false when the
// request could not be accepted; respond is called later with the result.
type Predictor interface {
	Predict(team string, index int, frame []byte, respond func(prediction int)) bool
}

// Server speaks the robot protocol on a websocket endpoint at /ws.
type Server struct {
	addr      string
	registry  *Registry
	poses     PoseSource
	events    Events
	predictor Predictor
	logger    *zap.Logger

	upgrader websocket.Upgrader
	httpSrv  *http.Server
	done     chan struct{}

	pingInterval time.Duration
	poseInterval time.Duration
}

// NewServer wires the protocol server. predictor may be nil when inference
// is disabled.
func NewServer(addr string, reg *Registry, poses PoseSource, events Events, predictor Predictor, logger *zap.Logger) *Server {
	return &Server{
		addr:      addr,
		registry:  reg,
		poses:     poses,
		events:    events,
		predictor: predictor,
		logger:    logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		done:         make(chan struct{}),
		pingInterval: PingInterval,
		poseInterval: poseSampleInterval,
	}
}

// Start binds the listener and launches the ping and pose-sampling loops.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("bind robot server %s: %w", s.addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.httpSrv = &http.Server{Handler: mux}

	s.logger.Info("robot server listening", zap.String("addr", s.addr))
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("robot server stopped", zap.Error(err))
		}
	}()

	go s.pingLoop()
	go s.poseLoop()
	return nil
}

// Stop shuts the listener down and stops the background loops.
func (s *Server) Stop(ctx context.Context) error {
	close(s.done)
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// pingLoop sends the application-level ping to every live robot and
// disconnects those that stay silent too long. Sends happen outside the
// registry lock.
func (s *Server) pingLoop() {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		for name, sender := range s.registry.Connected() {
			if err := sender.Send(pingMsg{Op: opPing, Status: statusPing}); err != nil {
				s.disconnect(name, sender, "ping send failed")
				continue
			}
			if s.registry.CountMissedPing(name) {
				s.disconnect(name, sender, "ping timeout")
			}
		}
	}
}

// poseLoop samples every connected robot's pose into its history.
func (s *Server) poseLoop() {
	ticker := time.NewTicker(s.poseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		for name := range s.registry.Connected() {
			id, ok := s.registry.ArucoOf(name)
			if !ok {
				continue
			}
			pose, visible := s.poses.PoseOf(id)
			s.registry.PushPose(name, PoseSample{Pose: pose, Visible: visible})
		}
	}
}

func (s *Server) disconnect(name string, conn Sender, reason string) {
	if closing := s.registry.Disconnect(name, conn); closing != nil {
		closing.Close()
		robotsConnected.Dec()
		s.logger.Warn("robot disconnected",
			zap.String("team", name), zap.String("reason", reason))
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("robot upgrade failed", zap.Error(err))
		return
	}

	c := newWSConn(ws)
	s.logger.Debug("robot connection opened",
		zap.String("conn", c.id.String()), zap.String("remote", r.RemoteAddr))
	adopted := ""
	defer func() {
		c.Close()
		if adopted != "" {
			s.disconnect(adopted, c, "connection closed")
		}
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.Debug("robot frame unparseable",
				zap.String("conn", c.id.String()), zap.Error(err))
			continue
		}
		if msg.TeamName == "" {
			s.logger.Debug("robot frame without team name",
				zap.String("conn", c.id.String()), zap.String("op", msg.Op))
			continue
		}
		if adopted == "" {
			adopted = msg.TeamName
			name := adopted
			c.setOnDead(func() { s.disconnect(name, c, "send failure") })
		}

		robotMessages.WithLabelValues(msg.Op).Inc()
		if !s.dispatch(c, msg) {
			return
		}
	}
}

// dispatch handles one frame. A false return tears the connection down.
func (s *Server) dispatch(c *wsConn, msg inbound) bool {
	switch msg.Op {
	case opBegin:
		return s.handleBegin(c, msg)

	case opPrint:
		s.events.TeamLog(msg.TeamName, msg.messageText())

	case opPing:
		s.registry.ResetPings(msg.TeamName)
		if msg.Status == statusPing {
			reply := pingMsg{Op: opPing, TeamName: msg.TeamName, Status: statusPong}
			if err := c.Send(reply); err != nil {
				s.disconnect(msg.TeamName, c, "pong send failed")
				return false
			}
		}

	case opAruco:
		pose, visible := s.registry.LatestValid(msg.TeamName)
		reply := arucoReply{Op: opAruco, X: pose.X, Y: pose.Y, Theta: pose.Theta, IsVisible: visible}
		if err := c.Send(reply); err != nil {
			s.disconnect(msg.TeamName, c, "aruco send failed")
			return false
		}

	case opMission:
		s.handleMission(msg)

	case opPrediction:
		s.handlePrediction(c, msg)

	default:
		s.logger.Debug("robot op ignored",
			zap.String("team", msg.TeamName), zap.String("op", msg.Op))
	}
	return true
}

func (s *Server) handleBegin(c *wsConn, msg inbound) bool {
	if msg.Aruco == nil {
		s.logger.Warn("begin without marker id", zap.String("team", msg.TeamName))
		return true
	}

	known := s.registry.Known(msg.TeamName)
	fresh, err := s.registry.Begin(msg.TeamName, msg.TeamType, *msg.Aruco, msg.Hardware, c)
	if err != nil {
		s.logger.Warn("registration rejected",
			zap.String("team", msg.TeamName), zap.Error(err))
		return false
	}
	if fresh {
		robotsConnected.Inc()
	}
	if known && fresh {
		s.logger.Info("team reconnected", zap.String("team", msg.TeamName))
	}
	s.logger.Info("team registered",
		zap.String("team", msg.TeamName),
		zap.String("type", msg.TeamType),
		zap.Int("aruco", *msg.Aruco))

	if _, visible := s.poses.PoseOf(*msg.Aruco); !visible {
		s.logger.Warn("registered marker is not currently visible",
			zap.String("team", msg.TeamName), zap.Int("aruco", *msg.Aruco))
	}
	return true
}

// handleMission formats a submitted mission value and posts it to the
// team's log pane.
func (s *Server) handleMission(msg inbound) {
	teamType, ok := s.registry.TeamTypeOf(msg.TeamName)
	if !ok {
		s.logger.Warn("mission submission before begin", zap.String("team", msg.TeamName))
		return
	}
	if msg.Type == nil {
		s.logger.Debug("mission submission missing index", zap.String("team", msg.TeamName))
		return
	}

	id, known := mission.FromTeamType(teamType)
	if !known {
		id = -1 // formatter reports the invalid mission type
	}
	s.events.TeamLog(msg.TeamName, mission.Message(*msg.Type, id, msg.messageText()))
	s.logger.Debug("mission submission",
		zap.String("team", msg.TeamName), zap.Int("index", *msg.Type))
}

func (s *Server) handlePrediction(c *wsConn, msg inbound) {
	if msg.Index == nil || msg.Frame == "" {
		s.logger.Debug("prediction request missing fields", zap.String("team", msg.TeamName))
		return
	}
	frame, err := base64.StdEncoding.DecodeString(msg.Frame)
	if err != nil || !jpeg.IsJPEG(frame) {
		s.logger.Debug("prediction request frame invalid",
			zap.String("team", msg.TeamName), zap.Error(err))
		return
	}

	s.events.TeamImage(msg.TeamName, frame)

	if s.predictor == nil {
		s.logger.Debug("inference disabled, prediction dropped", zap.String("team", msg.TeamName))
		return
	}

	team := msg.TeamName
	accepted := s.predictor.Predict(team, *msg.Index, frame, func(prediction int) {
		sender, ok := s.registry.SenderFor(team)
		if !ok {
			return
		}
		if err := sender.Send(predictionReply{Op: "prediction", Prediction: prediction}); err != nil {
			s.disconnect(team, sender, "prediction send failed")
		}
	})
	if !accepted {
		s.logger.Warn("inference queue full, prediction dropped", zap.String("team", team))
	}
}
