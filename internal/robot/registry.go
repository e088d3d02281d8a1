// Package robot implements the coordinator's side of the robot protocol:
// a websocket server speaking JSON frames, and a registry tracking each
// team's identity, liveness and recent pose history.
package robot

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"arenad/internal/arena"
)

const (
	// PoseHistoryLen is how many pose samples are kept per robot. An aruco
	// query answers with the newest valid sample in this window.
	PoseHistoryLen = 5

	// MaxMissedPings disconnects a robot after this many consecutive
	// unanswered server pings.
	MaxMissedPings = 5
)

// Sender is the outbound half of a robot connection. Send serialises writes
// so replies keep their order.
type Sender interface {
	Send(v any) error
	Close()
}

// PoseSample is one entry of a robot's pose history.
type PoseSample struct {
	Pose    arena.Pose
	Visible bool
}

// State is one team's record. Records are never removed; disconnection only
// clears the live connection.
type State struct {
	Name        string
	TeamType    string
	Aruco       int
	Hardware    string
	Connected   bool
	MissedPings int

	conn     Sender
	history  [PoseHistoryLen]PoseSample
	histLen  int
	histNext int
}

// Entry is one row of a roster snapshot.
type Entry struct {
	Name      string  `json:"name"`
	Connected bool    `json:"connected"`
	TeamType  string  `json:"teamType"`
	Aruco     int     `json:"aruco"`
	Visible   bool    `json:"visible"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Theta     float64 `json:"theta"`
}

// Registry is the shared table of known teams. All methods are safe for
// concurrent use; none of them performs network I/O while holding the lock.
type Registry struct {
	mu     sync.Mutex
	robots map[string]*State
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{robots: make(map[string]*State)}
}

// Begin registers a team and binds its connection. Re-registering on the
// same connection is a no-op beyond refreshing the fields and the ping
// counter. A name already live on a different connection is rejected.
// fresh reports whether the team went from offline to online.
func (r *Registry) Begin(name, teamType string, aruco int, hardware string, conn Sender) (fresh bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.robots[name]
	if !ok {
		st = &State{Name: name}
		r.robots[name] = st
	}
	if st.Connected && st.conn != nil && st.conn != conn {
		return false, fmt.Errorf("team %q is already connected", name)
	}

	fresh = !st.Connected
	st.TeamType = teamType
	st.Aruco = aruco
	st.Hardware = hardware
	st.Connected = true
	st.MissedPings = 0
	st.conn = conn
	return fresh, nil
}

// Disconnect clears the live connection if conn still owns the record. The
// record itself is kept. Returns the sender to close, or nil.
func (r *Registry) Disconnect(name string, conn Sender) Sender {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.robots[name]
	if !ok || st.conn == nil || (conn != nil && st.conn != conn) {
		return nil
	}
	closing := st.conn
	st.Connected = false
	st.conn = nil
	return closing
}

// ResetPings clears the missed-ping counter. Any inbound ping or pong
// counts as liveness.
func (r *Registry) ResetPings(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.robots[name]; ok {
		st.MissedPings = 0
	}
}

// PushPose appends a sample to the team's rolling history.
func (r *Registry) PushPose(name string, s PoseSample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.robots[name]
	if !ok {
		return
	}
	st.history[st.histNext] = s
	st.histNext = (st.histNext + 1) % PoseHistoryLen
	if st.histLen < PoseHistoryLen {
		st.histLen++
	}
}

// LatestValid returns the newest visible sample in the team's history. With
// no visible sample in the window it returns the sentinel pose and false.
func (r *Registry) LatestValid(name string) (arena.Pose, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.robots[name]
	if !ok {
		return arena.NotVisible, false
	}
	return latestValidLocked(st)
}

func latestValidLocked(st *State) (arena.Pose, bool) {
	for i := 1; i <= st.histLen; i++ {
		idx := (st.histNext - i + PoseHistoryLen) % PoseHistoryLen
		if st.history[idx].Visible {
			return st.history[idx].Pose, true
		}
	}
	return arena.NotVisible, false
}

// ArucoOf returns the marker id bound to a connected team.
func (r *Registry) ArucoOf(name string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.robots[name]
	if !ok {
		return 0, false
	}
	return st.Aruco, true
}

// Known reports whether a team of this name has ever registered.
func (r *Registry) Known(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.robots[name]
	return ok
}

// TeamTypeOf returns the mission type string a team registered with.
func (r *Registry) TeamTypeOf(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.robots[name]
	if !ok {
		return "", false
	}
	return st.TeamType, true
}

// IsRobotMarker reports whether any team is bound to the given marker id.
func (r *Registry) IsRobotMarker(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range r.robots {
		if st.Aruco == id {
			return true
		}
	}
	return false
}

// Connected returns the names and senders of every live team. The caller
// may send on the returned senders without holding the registry lock.
func (r *Registry) Connected() map[string]Sender {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Sender)
	for name, st := range r.robots {
		if st.Connected && st.conn != nil {
			out[name] = st.conn
		}
	}
	return out
}

// CountMissedPing bumps the team's counter and reports whether it crossed
// the disconnect threshold.
func (r *Registry) CountMissedPing(name string) (timedOut bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.robots[name]
	if !ok || !st.Connected {
		return false
	}
	st.MissedPings++
	return st.MissedPings >= MaxMissedPings
}

// SenderFor returns the live connection of a team, if any.
func (r *Registry) SenderFor(name string) (Sender, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.robots[name]
	if !ok || !st.Connected || st.conn == nil {
		return nil, false
	}
	return st.conn, true
}

// Snapshot returns the roster sorted case-insensitively by name. Pose
// columns come from each team's newest valid history sample.
func (r *Registry) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, 0, len(r.robots))
	for _, st := range r.robots {
		pose, visible := latestValidLocked(st)
		out = append(out, Entry{
			Name:      st.Name,
			Connected: st.Connected,
			TeamType:  st.TeamType,
			Aruco:     st.Aruco,
			Visible:   visible,
			X:         pose.X,
			Y:         pose.Y,
			Theta:     pose.Theta,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}
