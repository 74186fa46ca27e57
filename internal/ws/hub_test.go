package ws

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestBroadcastReachesRoomMembersOnly(t *testing.T) {
	hub := newTestHub()
	chatID := uuid.NewString()

	alice := addClient(hub, nil, uuid.New(), 16)
	bob := addClient(hub, nil, uuid.New(), 16)
	carol := addClient(hub, nil, uuid.New(), 16)

	hub.JoinChat(alice, chatID)
	hub.JoinChat(bob, chatID)

	hub.Broadcast(chatID, EventMessageReceived, map[string]string{"hello": "world"}, nil)

	for _, c := range []*Client{alice, bob} {
		env := recvEnvelope(t, c)
		if env.Event != EventMessageReceived {
			t.Errorf("event = %q, want %q", env.Event, EventMessageReceived)
		}
	}
	expectNoEvent(t, carol)
}

func TestBroadcastExcludesSender(t *testing.T) {
	hub := newTestHub()
	chatID := uuid.NewString()

	sender := addClient(hub, nil, uuid.New(), 16)
	receiver := addClient(hub, nil, uuid.New(), 16)
	hub.JoinChat(sender, chatID)
	hub.JoinChat(receiver, chatID)

	hub.Broadcast(chatID, EventMessageReceived, "payload", sender)

	recvEnvelope(t, receiver)
	expectNoEvent(t, sender)
}

func TestBroadcastEmptyRoomIsNoOp(t *testing.T) {
	hub := newTestHub()
	// Must not panic or block.
	hub.Broadcast(uuid.NewString(), EventMessageReceived, "payload", nil)
}

func TestNotifyUserReachesAllSessions(t *testing.T) {
	hub := newTestHub()
	userID := uuid.New()

	first := addClient(hub, nil, userID, 16)
	second := addClient(hub, nil, userID, 16)
	other := addClient(hub, nil, uuid.New(), 16)

	hub.NotifyUser(userID.String(), EventNewChat, map[string]string{"id": "c1"})

	for _, c := range []*Client{first, second} {
		env := recvEnvelope(t, c)
		if env.Event != EventNewChat {
			t.Errorf("event = %q, want %q", env.Event, EventNewChat)
		}
	}
	expectNoEvent(t, other)
}

func TestJoinAndLeaveChatTrackPresence(t *testing.T) {
	hub := newTestHub()
	chatID := uuid.NewString()
	userID := uuid.New()
	c := addClient(hub, nil, userID, 16)

	if hub.IsRecipientActiveInChat(chatID, userID.String()) {
		t.Fatal("active before join")
	}

	hub.JoinChat(c, chatID)
	if !hub.IsRecipientActiveInChat(chatID, userID.String()) {
		t.Fatal("not active after join")
	}

	hub.LeaveChat(c, chatID)
	if hub.IsRecipientActiveInChat(chatID, userID.String()) {
		t.Fatal("still active after leave")
	}
}

func TestCloseCleansUpEverything(t *testing.T) {
	hub := newTestHub()
	userID := uuid.New()
	chatA := uuid.NewString()
	chatB := uuid.NewString()

	c := addClient(hub, nil, userID, 16)
	hub.JoinChat(c, chatA)
	hub.JoinChat(c, chatB)

	c.close()

	if hub.IsRecipientActiveInChat(chatA, userID.String()) {
		t.Error("still present in chatA after close")
	}
	if hub.IsRecipientActiveInChat(chatB, userID.String()) {
		t.Error("still present in chatB after close")
	}

	hub.mu.RLock()
	_, registered := hub.clients[c]
	roomCount := len(hub.rooms)
	hub.mu.RUnlock()
	if registered {
		t.Error("client still registered after close")
	}
	if roomCount != 0 {
		t.Errorf("rooms not cleaned up, %d remaining", roomCount)
	}

	// Closed send channel signals the write side to stop.
	if _, ok := <-c.send; ok {
		t.Error("send channel still open after close")
	}

	// A second close must be a no-op.
	c.close()
}

func TestSendAfterCloseIsNoOp(t *testing.T) {
	hub := newTestHub()
	chatID := uuid.NewString()

	c := addClient(hub, nil, uuid.New(), 16)
	hub.JoinChat(c, chatID)
	c.close()

	// Must not panic on the closed channel.
	hub.Broadcast(chatID, EventMessageReceived, "late", nil)
	hub.NotifyUser(c.identity.UserID.String(), EventMessageRead, "late")
}

func TestBroadcastDropsUnresponsiveClient(t *testing.T) {
	hub := newTestHub()
	chatID := uuid.NewString()

	// Buffer of one: the second broadcast cannot be queued.
	slow := addClient(hub, nil, uuid.New(), 1)
	hub.JoinChat(slow, chatID)

	hub.Broadcast(chatID, EventMessageReceived, "first", nil)
	hub.Broadcast(chatID, EventMessageReceived, "second", nil)

	hub.mu.RLock()
	_, registered := hub.clients[slow]
	hub.mu.RUnlock()
	if registered {
		t.Error("unresponsive client not dropped")
	}
}

func TestBroadcastPayloadRoundTrip(t *testing.T) {
	hub := newTestHub()
	chatID := uuid.NewString()

	c := addClient(hub, nil, uuid.New(), 16)
	hub.JoinChat(c, chatID)

	hub.Broadcast(chatID, EventMessageRead, ReadPayload{ChatID: chatID, ReaderID: "r1"}, nil)

	env := recvEnvelope(t, c)
	var got ReadPayload
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if got.ChatID != chatID || got.ReaderID != "r1" {
		t.Errorf("payload = %+v", got)
	}
}
