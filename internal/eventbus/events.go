package eventbus

// Kind identifies the category of an Event. The dashboard and any other
// /events subscriber dispatch on this field.
type Kind string

const (
	KindLog             Kind = "log"
	KindConnected       Kind = "connected"
	KindDisconnected    Kind = "disconnected"
	KindStateUpdated    Kind = "state_updated"
	KindRoutineStarted  Kind = "routine_started"
	KindRoutineFinished Kind = "routine_finished"
	KindRoutineAborted  Kind = "routine_aborted"
	KindRoutineFailed   Kind = "routine_failed"
)

// Event is the envelope published on the bus and forwarded verbatim to
// every subscriber of the WS /events endpoint.
type Event struct {
	Type     Kind   `json:"type"`
	TurtleID *int64 `json:"turtle_id,omitempty"`
	Level    string `json:"level,omitempty"`
	Message  string `json:"message,omitempty"`
	Payload  any    `json:"payload,omitempty"`
}
