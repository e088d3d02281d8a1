package robot

import "encoding/json"

// Protocol op names. Every frame in either direction carries one.
const (
	opBegin      = "begin"
	opPrint      = "print"
	opPing       = "ping"
	opAruco      = "aruco"
	opMission    = "mission"
	opPrediction = "prediction_request"

	statusPing = "ping"
	statusPong = "pong"
)

// inbound is the union of every robot-originated frame, keyed on Op.
// Unknown ops parse fine and are ignored by the dispatcher.
type inbound struct {
	Op       string `json:"op"`
	TeamName string `json:"teamName"`

	// begin
	TeamType string `json:"teamType"`
	Aruco    *int   `json:"aruco"`
	Hardware string `json:"hardware"`

	// ping
	Status string `json:"status"`

	// print carries a string; mission reuses the key for a numeric value, so
	// it stays raw until the dispatcher knows the op.
	Message json.RawMessage `json:"message"`

	// mission
	Type *int `json:"type"`

	// prediction_request
	Index *int   `json:"index"`
	Frame string `json:"frame"`
}

// messageText returns the message payload as text, unquoting JSON strings
// and passing numbers through verbatim.
func (m inbound) messageText() string {
	if len(m.Message) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Message, &s); err == nil {
		return s
	}
	return string(m.Message)
}

type pingMsg struct {
	Op       string `json:"op"`
	TeamName string `json:"teamName,omitempty"`
	Status   string `json:"status"`
}

type arucoReply struct {
	Op        string  `json:"op"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Theta     float64 `json:"theta"`
	IsVisible bool    `json:"is_visible"`
}

type predictionReply struct {
	Op         string `json:"op"`
	Prediction int    `json:"prediction"`
}
