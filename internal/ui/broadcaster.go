// Package ui pushes live events to browser clients over a websocket: the
// team roster, system log lines, per-team log lines and ML request images.
// Delivery is best-effort; a browser that cannot keep up loses the oldest
// events first.
package ui

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"arenad/internal/robot"
)

// clientQueueLen bounds buffered events per browser before drop-oldest
// kicks in.
const clientQueueLen = 1024

// rosterInterval is the roster broadcast cadence.
const rosterInterval = 200 * time.Millisecond

var (
	uiClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arenad_ui_clients",
		Help: "Browser websockets currently connected",
	})

	uiEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arenad_ui_events_dropped_total",
		Help: "UI events discarded because a client queue was full",
	})
)

// Event envelope types, keyed on "type" in the JSON.
type systemLogEvent struct {
	Type string `json:"type"`
	Line string `json:"line"`
}

type teamLogEvent struct {
	Type string `json:"type"`
	Team string `json:"team"`
	Line string `json:"line"`
}

type rosterEvent struct {
	Type  string        `json:"type"`
	Teams []robot.Entry `json:"teams"`
}

type mlImageEvent struct {
	Type  string `json:"type"`
	Team  string `json:"team"`
	Image string `json:"image"` // data URL
}

type client struct {
	id   uuid.UUID
	ws   *websocket.Conn
	send chan []byte
	once sync.Once
	gone chan struct{}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.gone)
		c.ws.Close()
	})
}

// enqueue adds an event, evicting the oldest when the queue is full.
func (c *client) enqueue(msg []byte) {
	for {
		select {
		case c.send <- msg:
			return
		default:
		}
		select {
		case <-c.send:
			uiEventsDropped.Inc()
		default:
		}
	}
}

// Broadcaster is the hub of all browser websockets.
type Broadcaster struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu         sync.Mutex
	clients    map[*client]struct{}
	lastRoster []byte
}

// NewBroadcaster returns an empty hub.
func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Handler upgrades a browser connection and streams events to it. A freshly
// connected client immediately gets the latest roster so the page does not
// start blank.
func (b *Broadcaster) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := b.upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.logger.Debug("ui upgrade failed", zap.Error(err))
			return
		}

		c := &client{
			id:   uuid.New(),
			ws:   ws,
			send: make(chan []byte, clientQueueLen),
			gone: make(chan struct{}),
		}

		b.mu.Lock()
		b.clients[c] = struct{}{}
		if b.lastRoster != nil {
			c.enqueue(b.lastRoster)
		}
		b.mu.Unlock()
		uiClients.Inc()
		b.logger.Debug("ui client connected",
			zap.String("client", c.id.String()), zap.String("remote", r.RemoteAddr))

		go b.writeLoop(c)
		b.readLoop(c)
	})
}

func (b *Broadcaster) writeLoop(c *client) {
	for {
		select {
		case <-c.gone:
			return
		case msg := <-c.send:
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				b.drop(c)
				return
			}
		}
	}
}

// readLoop exists to notice the close handshake; browsers do not send
// anything meaningful.
func (b *Broadcaster) readLoop(c *client) {
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			b.drop(c)
			return
		}
	}
}

func (b *Broadcaster) drop(c *client) {
	b.mu.Lock()
	_, present := b.clients[c]
	delete(b.clients, c)
	b.mu.Unlock()
	c.close()
	if present {
		uiClients.Dec()
		b.logger.Debug("ui client disconnected", zap.String("client", c.id.String()))
	}
}

func (b *Broadcaster) broadcast(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		return
	}
	b.mu.Lock()
	for c := range b.clients {
		c.enqueue(msg)
	}
	b.mu.Unlock()
}

// SystemLog forwards one formatted system log line. Wired as the logging
// web sink.
func (b *Broadcaster) SystemLog(line string) {
	b.broadcast(systemLogEvent{Type: "system_log", Line: line})
}

// TeamLog forwards a robot-originated line verbatim, with no level prefix.
func (b *Broadcaster) TeamLog(team, line string) {
	b.broadcast(teamLogEvent{Type: "team_log", Team: team, Line: line})
}

// TeamImage forwards an ML request image as a data URL.
func (b *Broadcaster) TeamImage(team string, jpegData []byte) {
	b.broadcast(mlImageEvent{
		Type:  "team_ml_image",
		Team:  team,
		Image: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegData),
	})
}

// Roster broadcasts a roster snapshot and retains it for newcomers.
func (b *Broadcaster) Roster(teams []robot.Entry) {
	msg, err := json.Marshal(rosterEvent{Type: "team_roster", Teams: teams})
	if err != nil {
		return
	}
	b.mu.Lock()
	b.lastRoster = msg
	for c := range b.clients {
		c.enqueue(msg)
	}
	b.mu.Unlock()
}

// RunRoster pushes registry snapshots at a fixed cadence until done closes.
func (b *Broadcaster) RunRoster(reg *robot.Registry, done <-chan struct{}) {
	ticker := time.NewTicker(rosterInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			b.Roster(reg.Snapshot())
		}
	}
}

var _ robot.Events = (*Broadcaster)(nil)
