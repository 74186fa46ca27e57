package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/parley-chat/parley/internal/auth"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	// opTimeout bounds a single inbound event's store and blob work.
	opTimeout = 15 * time.Second
)

// Client is one live connection. The identity is bound at accept time and
// immutable afterwards; rooms and chats are owned by the hub on the
// client's behalf and guarded by the hub's lock.
type Client struct {
	id       string
	identity auth.Identity
	conn     *websocket.Conn
	send     chan []byte
	hub      *Hub
	pipeline *Pipeline
	log      zerolog.Logger

	// guarded by hub.mu
	rooms  map[string]struct{} // broadcast subscriptions, incl. personal room
	chats  map[string]struct{} // active-chat joins, mirrored in the registry
	closed bool

	closeOnce sync.Once
}

// newClient wires a connection to the hub and pipeline. The caller has
// already authenticated the handshake.
func newClient(conn *websocket.Conn, hub *Hub, pipeline *Pipeline, ident auth.Identity, log zerolog.Logger, sendBuffer int, maxMessageSize int64) *Client {
	if conn != nil {
		conn.SetReadLimit(maxMessageSize)
	}
	id := uuid.NewString()
	return &Client{
		id:       id,
		identity: ident,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		hub:      hub,
		pipeline: pipeline,
		log:      log.With().Str("conn_id", id).Str("user_id", ident.UserID.String()).Logger(),
		rooms:    make(map[string]struct{}),
		chats:    make(map[string]struct{}),
	}
}

// close runs the connection's cleanup exactly once: hub unregistration
// (which removes every room subscription and active-chat membership) and
// transport teardown. Safe to call from any goroutine and on every
// disconnect path.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.hub.unregister(c)
		if c.conn != nil {
			if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
				c.log.Debug().Err(err).Msg("closing connection")
			}
		}
	})
}

func (c *Client) readPump() {
	defer c.close()

	if c.conn == nil {
		return
	}

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.sendError("", "malformed event")
			continue
		}
		c.handleEvent(env)
	}
}

// handleEvent dispatches one inbound event. Failures are terminal for the
// triggering action only: the connection stays up.
func (c *Client) handleEvent(env Envelope) {
	switch env.Event {
	case EventJoinChat:
		chatID, ok := c.decodeChatRef(env)
		if !ok {
			return
		}
		c.hub.JoinChat(c, chatID)

	case EventLeaveChat:
		chatID, ok := c.decodeChatRef(env)
		if !ok {
			return
		}
		c.hub.LeaveChat(c, chatID)

	case EventSendMessage:
		var p SendMessagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.sendError(env.Event, "malformed payload")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()

		msg, err := c.pipeline.Ingest(ctx, c, p)
		if err != nil {
			c.log.Warn().Err(err).Str("chat_id", p.ChatID).Msg("ingest failed")
			c.sendError(env.Event, userFacing(err))
			return
		}
		c.sendEvent(EventMessageSent, msg)

	case EventFetchMessages:
		var p ChatRefPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.ChatID == "" {
			c.sendError(env.Event, "chatId is required")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()

		msgs, err := c.pipeline.FetchMessages(ctx, c, p)
		if err != nil {
			c.log.Warn().Err(err).Str("chat_id", p.ChatID).Msg("fetch failed")
			c.sendError(env.Event, userFacing(err))
			return
		}
		c.sendEvent(EventMessagesFetched, msgs)

	default:
		c.sendError(env.Event, "unknown event")
	}
}

func (c *Client) decodeChatRef(env Envelope) (string, bool) {
	var p ChatRefPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		c.sendError(env.Event, "malformed payload")
		return "", false
	}
	if _, err := uuid.Parse(p.ChatID); err != nil {
		c.sendError(env.Event, "chatId must be a valid chat reference")
		return "", false
	}
	return p.ChatID, true
}

// sendEvent enqueues an event for this connection only.
func (c *Client) sendEvent(event string, data any) {
	payload, err := marshalEnvelope(event, data)
	if err != nil {
		c.log.Error().Err(err).Str("event", event).Msg("marshal failed")
		return
	}
	c.hub.safeSend(c, payload)
}

func (c *Client) sendError(event, message string) {
	c.sendEvent(EventError, ErrorPayload{Event: event, Message: message})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	if c.conn == nil {
		return
	}

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				if !isExpectedCloseError(err) {
					c.log.Debug().Err(err).Msg("write failed")
				}
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn().Msg("message exceeded read limit")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Info().Msg("client disconnected")
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		c.log.Info().Msg("connection closed")
	default:
		c.log.Warn().Err(err).Msg("read error")
	}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}

// userFacing maps pipeline errors onto messages safe to echo to clients.
func userFacing(err error) string {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, ErrForbidden):
		return "not a participant of this chat"
	case errors.Is(err, ErrUpload):
		return "attachment upload failed, message not sent"
	case errors.Is(err, ErrStorage):
		return "message could not be stored, please retry"
	default:
		return "internal error"
	}
}
