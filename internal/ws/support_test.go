package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/parley-chat/parley/internal/auth"
	"github.com/parley-chat/parley/internal/models"
	"github.com/parley-chat/parley/internal/presence"
)

// fakeStore is an in-memory DataStore for tests.
type fakeStore struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*models.User
	chats    map[uuid.UUID]*models.Chat
	messages []models.Message

	failCreateMessage bool
	markReadCalls     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: make(map[uuid.UUID]*models.User),
		chats: make(map[uuid.UUID]*models.Chat),
	}
}

// addChat seeds a chat directly, bypassing CreateChat.
func (f *fakeStore) addChat(chatType string, participants ...uuid.UUID) *models.Chat {
	f.mu.Lock()
	defer f.mu.Unlock()
	chat := &models.Chat{
		ID:           uuid.New(),
		Type:         chatType,
		Participants: participants,
		CreatedAt:    time.Now(),
	}
	f.chats[chat.ID] = chat
	return chat
}

func (f *fakeStore) Close() {}

func (f *fakeStore) Ping(_ context.Context) error { return nil }

func (f *fakeStore) CreateUser(_ context.Context, name, email, mobile, passwordHash string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := &models.User{
		ID:           uuid.New(),
		Name:         name,
		Email:        email,
		Mobile:       mobile,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id], nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListUsers(_ context.Context, exclude uuid.UUID) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.User
	for _, u := range f.users {
		if u.ID != exclude {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateChat(_ context.Context, chatType, name string, createdBy uuid.UUID, participants []uuid.UUID) (*models.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chat := &models.Chat{
		ID:           uuid.New(),
		Type:         chatType,
		Name:         name,
		Participants: participants,
		CreatedBy:    &createdBy,
		CreatedAt:    time.Now(),
	}
	f.chats[chat.ID] = chat
	return chat, nil
}

func (f *fakeStore) GetChat(_ context.Context, id uuid.UUID) (*models.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chats[id], nil
}

func (f *fakeStore) FindChatByParticipants(_ context.Context, a, b uuid.UUID) (*models.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, chat := range f.chats {
		if chat.Type != models.ChatTypeOneToOne {
			continue
		}
		if chat.IsParticipant(a) && chat.IsParticipant(b) {
			return chat, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListChatsForUser(_ context.Context, userID uuid.UUID) ([]models.ChatSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ChatSummary
	for _, chat := range f.chats {
		if chat.IsParticipant(userID) {
			out = append(out, models.ChatSummary{Chat: *chat})
		}
	}
	return out, nil
}

func (f *fakeStore) CreateMessage(_ context.Context, msg *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreateMessage {
		return errors.New("write failed")
	}
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
	f.messages = append(f.messages, *msg)
	return nil
}

func (f *fakeStore) GetMessagesByChat(_ context.Context, chatID string, limit int, before int64) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Message
	for i := len(f.messages) - 1; i >= 0 && len(out) < limit; i-- {
		msg := f.messages[i]
		if msg.ChatID != chatID {
			continue
		}
		if before > 0 && msg.Timestamp >= before {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (f *fakeStore) MarkMessagesRead(_ context.Context, chatID string, readerID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReadCalls++
	var updated int64
	for i := range f.messages {
		msg := &f.messages[i]
		if msg.ChatID == chatID && msg.SenderID != readerID.String() && !msg.IsRead {
			msg.IsRead = true
			updated++
		}
	}
	return updated, nil
}

func (f *fakeStore) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

// fakeUploader records uploads without touching disk.
type fakeUploader struct {
	mu    sync.Mutex
	names []string
	fail  bool
}

func (u *fakeUploader) Upload(_ context.Context, name string, data []byte) (*models.FileRef, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.fail {
		return nil, errors.New("upload failed")
	}
	if len(data) == 0 {
		return nil, errors.New("empty content")
	}
	u.names = append(u.names, name)
	return &models.FileRef{Key: name, URL: "/uploads/" + name}, nil
}

func (u *fakeUploader) uploadCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.names)
}

func newTestHub() *Hub {
	return NewHub(zerolog.Nop(), presence.NewRegistry())
}

// addClient attaches a connectionless client to the hub, the way Register
// does minus the pump goroutines that need a live conn.
func addClient(h *Hub, pipeline *Pipeline, userID uuid.UUID, buffer int) *Client {
	c := newClient(nil, h, pipeline, auth.Identity{UserID: userID}, zerolog.Nop(), buffer, 1<<20)
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.subscribeLocked(c, userID.String())
	h.mu.Unlock()
	return c
}

// recvEnvelope waits for the client's next queued event.
func recvEnvelope(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case payload, ok := <-c.send:
		if !ok {
			t.Fatalf("send channel closed")
		}
		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			t.Fatalf("bad envelope: %v", err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return Envelope{}
}

// expectNoEvent asserts nothing is queued for the client.
func expectNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case payload := <-c.send:
		t.Fatalf("unexpected event queued: %s", payload)
	case <-time.After(50 * time.Millisecond):
	}
}
