package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionJoin Action = "session:join"
	ActionPing Action = "ping"
)

// RequestEnvelope is the single client message shape. Ref is echoed in the ack.
type RequestEnvelope struct {
	Action    Action `json:"action"`
	Ref       string `json:"ref,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventAck   Event = "ack"
	EventError Event = "error"
	EventPong  Event = "pong"
)

// Join rejection reasons.
const (
	ReasonNotFound  = "Not found"
	ReasonForbidden = "Forbidden"
	ReasonError     = "Error"
	ReasonInvalidID = "Invalid session id"
)

// Envelope wraps every room event pushed by the server.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type AckResponse struct {
	Event  Event  `json:"event"`
	Ref    string `json:"ref,omitempty"`
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
