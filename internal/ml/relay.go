// Package ml relays inference between robots and per-team worker boxes.
// Workers connect over a websocket, claim a team name, and answer
// prediction requests; the coordinator itself never loads a model.
package ml

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// pingPeriod is the control-frame ping cadence for worker sockets. Workers
// that miss pongs for three periods are dropped by the read deadline.
const pingPeriod = 15 * time.Second

var mlRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "arenad_ml_requests_total",
		Help: "Prediction requests by outcome",
	},
	[]string{"result"},
)

type workerMsg struct {
	Op         string `json:"op"`
	TeamName   string `json:"teamName,omitempty"`
	Status     string `json:"status,omitempty"`
	Index      int    `json:"index"`
	Image      string `json:"image,omitempty"`
	Prediction *int   `json:"prediction,omitempty"`
}

type worker struct {
	team string
	ws   *websocket.Conn

	writeMu sync.Mutex
}

func (w *worker) send(v any) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.ws.WriteJSON(v)
}

// Relay is the worker-facing websocket server. It satisfies the robot
// server's Predictor contract: one outstanding request per team, replies
// routed back through the respond callback.
type Relay struct {
	addr   string
	logger *zap.Logger

	upgrader websocket.Upgrader
	httpSrv  *http.Server

	mu      sync.Mutex
	workers map[string]*worker
	pending map[string]func(prediction int)
}

// NewRelay wires the relay on its listen address.
func NewRelay(addr string, logger *zap.Logger) *Relay {
	return &Relay{
		addr:   addr,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		workers: make(map[string]*worker),
		pending: make(map[string]func(int)),
	}
}

// Start binds the listener and begins accepting workers at /ws.
func (r *Relay) Start() error {
	ln, err := net.Listen("tcp", r.addr)
	if err != nil {
		return fmt.Errorf("bind ml relay %s: %w", r.addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", r.handleWS)
	r.httpSrv = &http.Server{Handler: mux}

	r.logger.Info("ml relay listening", zap.String("addr", r.addr))
	go func() {
		if err := r.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			r.logger.Error("ml relay stopped", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the listener down.
func (r *Relay) Stop(ctx context.Context) error {
	if r.httpSrv == nil {
		return nil
	}
	return r.httpSrv.Shutdown(ctx)
}

// Predict forwards one request to the team's worker. It returns false when
// no worker is connected or a request is already in flight for the team.
func (r *Relay) Predict(team string, index int, frame []byte, respond func(prediction int)) bool {
	r.mu.Lock()
	w, ok := r.workers[team]
	if !ok {
		r.mu.Unlock()
		mlRequests.WithLabelValues("no_worker").Inc()
		r.logger.Warn("no inference worker for team", zap.String("team", team))
		return false
	}
	if _, busy := r.pending[team]; busy {
		r.mu.Unlock()
		mlRequests.WithLabelValues("busy").Inc()
		r.logger.Warn("inference worker busy", zap.String("team", team))
		return false
	}
	r.pending[team] = respond
	r.mu.Unlock()

	req := workerMsg{
		Op:    "prediction_request",
		Index: index,
		Image: base64.StdEncoding.EncodeToString(frame),
	}
	if err := w.send(req); err != nil {
		r.dropWorker(w, "request send failed")
		return false
	}
	mlRequests.WithLabelValues("forwarded").Inc()
	return true
}

func (r *Relay) handleWS(w http.ResponseWriter, req *http.Request) {
	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Debug("worker upgrade failed", zap.Error(err))
		return
	}

	wk := &worker{ws: ws}
	defer r.dropWorker(wk, "connection closed")

	ws.SetReadDeadline(time.Now().Add(3 * pingPeriod))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(3 * pingPeriod))
		return nil
	})
	stopPings := make(chan struct{})
	defer close(stopPings)
	go r.pingWorker(wk, stopPings)

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var msg workerMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			r.logger.Debug("worker frame unparseable", zap.Error(err))
			continue
		}

		switch msg.Op {
		case "begin":
			if !r.adoptWorker(wk, msg.TeamName) {
				return
			}
		case "prediction_results":
			r.handleResults(wk, msg)
		default:
			r.logger.Debug("worker op ignored", zap.String("op", msg.Op))
		}
	}
}

// adoptWorker binds the connection to a team name. A team can have only one
// live worker; a second one is refused and closed.
func (r *Relay) adoptWorker(wk *worker, team string) bool {
	if team == "" {
		r.logger.Warn("worker begin without team name")
		return false
	}

	r.mu.Lock()
	if cur, ok := r.workers[team]; ok && cur != wk {
		r.mu.Unlock()
		r.logger.Warn("worker name already in use", zap.String("team", team))
		wk.send(workerMsg{Op: "status", Status: "name in use"})
		return false
	}
	wk.team = team
	r.workers[team] = wk
	r.mu.Unlock()

	r.logger.Info("inference worker registered", zap.String("team", team))
	if err := wk.send(workerMsg{Op: "status", Status: "OK"}); err != nil {
		r.dropWorker(wk, "status send failed")
		return false
	}
	return true
}

func (r *Relay) handleResults(wk *worker, msg workerMsg) {
	if wk.team == "" {
		r.logger.Warn("prediction results before worker begin")
		return
	}
	if msg.Prediction == nil {
		r.logger.Warn("prediction results without prediction", zap.String("team", wk.team))
		return
	}

	r.mu.Lock()
	respond, ok := r.pending[wk.team]
	delete(r.pending, wk.team)
	r.mu.Unlock()

	if !ok {
		r.logger.Debug("unsolicited prediction results", zap.String("team", wk.team))
		return
	}
	mlRequests.WithLabelValues("answered").Inc()
	respond(*msg.Prediction)
}

func (r *Relay) pingWorker(wk *worker, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			wk.writeMu.Lock()
			err := wk.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
			wk.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// dropWorker unbinds and closes a worker connection. A pending request for
// its team is abandoned; the robot side times out on its own.
func (r *Relay) dropWorker(wk *worker, reason string) {
	r.mu.Lock()
	team := wk.team
	if team != "" && r.workers[team] == wk {
		delete(r.workers, team)
		delete(r.pending, team)
	} else {
		team = ""
	}
	r.mu.Unlock()

	wk.ws.Close()
	if team != "" {
		r.logger.Warn("inference worker dropped",
			zap.String("team", team), zap.String("reason", reason))
	}
}
