// Package ws implements the real-time core: authenticated WebSocket
// connections, room-keyed broadcast, active-chat presence, and the message
// ingestion pipeline.
package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/parley-chat/parley/internal/metrics"
	"github.com/parley-chat/parley/internal/presence"
)

// Hub routes events to the connections subscribed to each room and owns
// connection registration. Rooms are keyed by chat ID, or by user ID for
// the personal room every connection is subscribed to while open.
type Hub struct {
	log      zerolog.Logger
	presence *presence.Registry

	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}

	wg   sync.WaitGroup
	done chan struct{}
}

// NewHub creates a Hub backed by the given presence registry.
func NewHub(log zerolog.Logger, reg *presence.Registry) *Hub {
	return &Hub{
		log:      log.With().Str("component", "hub").Logger(),
		presence: reg,
		clients:  make(map[*Client]struct{}),
		rooms:    make(map[string]map[*Client]struct{}),
		done:     make(chan struct{}),
	}
}

// Register adds a client, subscribes it to its personal room, and starts
// its pump goroutines. The client is Active once Register returns.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.subscribeLocked(c, c.identity.UserID.String())
	total := len(h.clients)
	h.mu.Unlock()

	metrics.ConnectionsTotal.Inc()
	metrics.ConnectionsActive.Set(float64(total))
	h.log.Info().
		Str("user_id", c.identity.UserID.String()).
		Str("conn_id", c.id).
		Int("total", total).
		Msg("connection registered")

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()
}

// unregister removes the client from every room and from the active-chat
// registry, then closes its send channel. Runs at most once per client;
// the caller is Client.close.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)

	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
		h.dropFromRoomLocked(c, room)
	}
	chats := make([]string, 0, len(c.chats))
	for chat := range c.chats {
		chats = append(chats, chat)
	}
	c.closed = true
	total := len(h.clients)
	h.mu.Unlock()

	// Close the channel after releasing the lock.
	close(c.send)

	// Membership removal is unconditional: it must run on every
	// disconnect path, even when other cleanup failed.
	for _, chat := range chats {
		h.presence.Leave(chat, c.identity.UserID.String())
	}

	metrics.ConnectionsActive.Set(float64(total))
	h.log.Info().
		Str("user_id", c.identity.UserID.String()).
		Str("conn_id", c.id).
		Int("rooms", len(rooms)).
		Int("total", total).
		Msg("connection unregistered")
}

// JoinChat subscribes the connection to a chat room and records the user
// as actively viewing the chat.
func (h *Hub) JoinChat(c *Client, chatID string) {
	h.mu.Lock()
	if c.closed {
		h.mu.Unlock()
		return
	}
	h.subscribeLocked(c, chatID)
	c.chats[chatID] = struct{}{}
	h.mu.Unlock()

	h.presence.Join(chatID, c.identity.UserID.String())
	metrics.RoomJoins.Inc()
	h.log.Debug().Str("conn_id", c.id).Str("chat_id", chatID).Msg("joined chat")
}

// LeaveChat reverses JoinChat.
func (h *Hub) LeaveChat(c *Client, chatID string) {
	h.mu.Lock()
	h.dropFromRoomLocked(c, chatID)
	delete(c.chats, chatID)
	h.mu.Unlock()

	h.presence.Leave(chatID, c.identity.UserID.String())
	h.log.Debug().Str("conn_id", c.id).Str("chat_id", chatID).Msg("left chat")
}

func (h *Hub) subscribeLocked(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) dropFromRoomLocked(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
	delete(c.rooms, room)
}

// Broadcast delivers an event to every connection subscribed to room,
// excluding the given sender connection (nil means no exclusion).
// A room with no subscribers is a silent no-op.
func (h *Hub) Broadcast(room, event string, data any, exclude *Client) {
	payload, err := marshalEnvelope(event, data)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("broadcast marshal failed")
		return
	}

	targets := h.roomSnapshot(room, exclude)
	metrics.EventsBroadcast.WithLabelValues(event).Inc()
	metrics.BroadcastFanout.Observe(float64(len(targets)))
	if len(targets) == 0 {
		return
	}

	var stale []*Client
	for _, c := range targets {
		if !h.safeSend(c, payload) {
			stale = append(stale, c)
		}
	}

	// Slow or gone connections are torn down; their own close path runs
	// the full cleanup exactly once.
	for _, c := range stale {
		h.log.Warn().Str("conn_id", c.id).Msg("dropping unresponsive connection")
		c.close()
	}
}

// NotifyUser delivers an event to the user's personal room, reaching all
// of that user's concurrently open connections.
func (h *Hub) NotifyUser(userID, event string, data any) {
	h.Broadcast(userID, event, data, nil)
}

// IsRecipientActiveInChat reports whether the user is currently viewing
// the chat. Used by read-receipt decisions and by HTTP-layer collaborators.
func (h *Hub) IsRecipientActiveInChat(chatID, userID string) bool {
	return h.presence.IsMember(chatID, userID)
}

// roomSnapshot returns the room's current subscribers minus the excluded
// connection.
func (h *Hub) roomSnapshot(room string, exclude *Client) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members, ok := h.rooms[room]
	if !ok {
		return nil
	}
	targets := make([]*Client, 0, len(members))
	for c := range members {
		if c == exclude {
			continue
		}
		targets = append(targets, c)
	}
	return targets
}

// safeSend enqueues a payload for one client. Returns false when the
// client is closed or its buffer is full; a post-cleanup send is a no-op,
// never a panic.
func (h *Hub) safeSend(c *Client, payload []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[c]; !ok || c.closed {
		return false
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Shutdown closes every connection and waits for the pump goroutines to
// finish, or until the timeout elapses.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	h.log.Info().Int("clients", len(clients)).Msg("shutting down hub")
	for _, c := range clients {
		c.close()
	}

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-time.After(timeout):
		return context.DeadlineExceeded
	}
}

func marshalEnvelope(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
