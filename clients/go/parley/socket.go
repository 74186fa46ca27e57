package parley

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Event is a decoded server-to-client event.
type Event struct {
	Name string
	Data json.RawMessage
}

// Socket is a live WebSocket session. Events arrive on Events() until the
// connection closes.
type Socket struct {
	conn   *websocket.Conn
	events chan Event
	done   chan struct{}
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Connect opens a WebSocket session using the client's access token.
func (c *Client) Connect() (*Socket, error) {
	if c.AccessToken == "" {
		return nil, fmt.Errorf("not authenticated: call Login first")
	}

	wsURL := strings.Replace(c.BaseURL, "http", "ws", 1) + "/ws"

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.AccessToken)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.Dial(wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed: %s", resp.Status)
		}
		return nil, err
	}
	if resp != nil {
		resp.Body.Close()
	}

	s := &Socket{
		conn:   conn,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
	go s.readLoop()

	return s, nil
}

// Events returns the stream of server events. The channel closes when the
// connection does.
func (s *Socket) Events() <-chan Event {
	return s.events
}

// Close shuts the session down.
func (s *Socket) Close() error {
	select {
	case <-s.done:
		return nil
	default:
	}
	close(s.done)

	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return s.conn.Close()
}

func (s *Socket) readLoop() {
	defer close(s.events)
	for {
		var env envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			return
		}
		select {
		case s.events <- Event{Name: env.Event, Data: env.Data}:
		case <-s.done:
			return
		}
	}
}

func (s *Socket) send(event string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteJSON(envelope{Event: event, Data: raw})
}

// JoinChat marks the chat as open on this session, so incoming messages
// count as read immediately.
func (s *Socket) JoinChat(chatID string) error {
	return s.send("joinChat", map[string]string{"chatId": chatID})
}

// LeaveChat marks the chat as no longer open.
func (s *Socket) LeaveChat(chatID string) error {
	return s.send("leaveChat", map[string]string{"chatId": chatID})
}

// SendText sends a text message to a chat.
func (s *Socket) SendText(chatID, content string) error {
	return s.send("sendMessage", map[string]string{
		"chatId":  chatID,
		"type":    "text",
		"content": content,
	})
}

// SendFile sends an attachment message. Data is transmitted inline and
// stored server-side; kind is one of image, video, audio, document.
func (s *Socket) SendFile(chatID, kind, name string, data []byte) error {
	return s.send("sendMessage", map[string]interface{}{
		"chatId": chatID,
		"type":   kind,
		"file": map[string]interface{}{
			"name": name,
			"data": data,
		},
	})
}

// FetchMessages asks for a page of chat history. The reply arrives as a
// messagesFetched event, and the chat is marked read for this user.
func (s *Socket) FetchMessages(chatID string, limit int, before int64) error {
	return s.send("fetchMessages", map[string]interface{}{
		"chatId": chatID,
		"limit":  limit,
		"before": before,
	})
}
