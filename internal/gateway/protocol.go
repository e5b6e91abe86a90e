package gateway

// helloFrame is the first frame an agent must send after the WebSocket
// upgrade completes. Anything else — wrong shape, wrong type, or silence
// past the handshake deadline — is a protocol violation.
type helloFrame struct {
	Type       string `json:"type"`
	ComputerID int64  `json:"computer_id"`
}

// commandFrame is sent to the agent to invoke a remote command.
type commandFrame struct {
	ID      string `json:"id"`
	Command string `json:"command"`
}

// replyFrame is what the agent sends back, correlated to a commandFrame by
// ID. Agents may carry the correlating request ID as "in_reply_to",
// "request_id", or "id"; all three are accepted, in that preference order.
// The reply payload itself arrives as "value", with "data" accepted as a
// fallback for agents that use that name instead.
type replyFrame struct {
	ID        string `json:"id"`
	InReply   string `json:"in_reply_to"`
	RequestID string `json:"request_id"`
	OK        bool   `json:"ok"`
	Value     any    `json:"value"`
	Data      any    `json:"data"`
	Error     string `json:"error"`
}

func (r replyFrame) requestID() string {
	if r.InReply != "" {
		return r.InReply
	}
	if r.RequestID != "" {
		return r.RequestID
	}
	return r.ID
}

func (r replyFrame) value() any {
	if r.Value != nil {
		return r.Value
	}
	return r.Data
}
