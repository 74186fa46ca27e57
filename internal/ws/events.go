package ws

import "encoding/json"

// Event names exchanged over the wire. Inbound events form a closed set;
// anything else is answered with an error event.
const (
	// Inbound
	EventJoinChat      = "joinChat"
	EventLeaveChat     = "leaveChat"
	EventSendMessage   = "sendMessage"
	EventFetchMessages = "fetchMessages"

	// Outbound
	EventConnected       = "connected"
	EventMessageReceived = "messageReceived"
	EventMessageSent     = "messageSent"
	EventMessageRead     = "messageRead"
	EventMessagesFetched = "messagesFetched"
	EventNewChat         = "newChat"
	EventError           = "error"
)

// Envelope is the wire framing for every event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ChatRefPayload carries a bare chat reference (joinChat, leaveChat,
// fetchMessages requests).
type ChatRefPayload struct {
	ChatID string `json:"chatId"`
	Limit  int    `json:"limit,omitempty"`  // fetchMessages only
	Before int64  `json:"before,omitempty"` // fetchMessages only, unix ms
}

// InlineFile is a raw attachment riding along a sendMessage event.
// Data is base64 on the wire.
type InlineFile struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// SendMessagePayload is the inbound sendMessage event body. The sender is
// taken from the connection's identity, never from the payload.
type SendMessagePayload struct {
	ChatID  string      `json:"chatId"`
	Type    string      `json:"type"`
	Content string      `json:"content,omitempty"`
	File    *InlineFile `json:"file,omitempty"`
}

// ReadPayload announces messages in a chat were read.
type ReadPayload struct {
	ChatID   string `json:"chatId"`
	ReaderID string `json:"readerId"`
}

// ErrorPayload is sent to the originating connection when an action fails.
type ErrorPayload struct {
	Event   string `json:"event"` // the inbound event that failed
	Message string `json:"message"`
}
