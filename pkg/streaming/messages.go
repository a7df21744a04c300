package streaming

import "encoding/json"

// Message type constants matching the streaming protocol.
const (
	TypeStartRun     = "start_run"
	TypeEndRun       = "end_run"
	TypeAddCar       = "add_car"
	TypeFrame        = "frame"
	TypeBrakeEvent   = "brake_event"
	TypeControlEvent = "control_event"
	TypeJamEvent     = "jam_event"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}
