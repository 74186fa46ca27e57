package ws

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/parley-chat/parley/internal/models"
)

// pipelineFixture wires a pipeline against in-memory fakes.
type pipelineFixture struct {
	store    *fakeStore
	uploader *fakeUploader
	hub      *Hub
	pipeline *Pipeline
}

func newPipelineFixture() *pipelineFixture {
	st := newFakeStore()
	up := &fakeUploader{}
	hub := newTestHub()
	return &pipelineFixture{
		store:    st,
		uploader: up,
		hub:      hub,
		pipeline: NewPipeline(st, nil, up, hub, zerolog.Nop()),
	}
}

func TestIngestTextMessage(t *testing.T) {
	fx := newPipelineFixture()
	sender := uuid.New()
	recipient := uuid.New()
	chat := fx.store.addChat(models.ChatTypeOneToOne, sender, recipient)

	c := addClient(fx.hub, fx.pipeline, sender, 16)

	msg, err := fx.pipeline.Ingest(context.Background(), c, SendMessagePayload{
		ChatID:  chat.ID.String(),
		Type:    models.MessageTypeText,
		Content: "hello",
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if msg.ID == "" {
		t.Error("message has no id")
	}
	if msg.Timestamp == 0 {
		t.Error("message has no timestamp")
	}
	if msg.SenderID != sender.String() {
		t.Errorf("sender = %q, want %q", msg.SenderID, sender)
	}
	if msg.IsRead {
		t.Error("message read with recipient absent")
	}
	if fx.store.messageCount() != 1 {
		t.Errorf("stored %d messages, want 1", fx.store.messageCount())
	}
}

func TestIngestDeliversToRoomNotSender(t *testing.T) {
	fx := newPipelineFixture()
	senderID := uuid.New()
	recipientID := uuid.New()
	chat := fx.store.addChat(models.ChatTypeOneToOne, senderID, recipientID)

	sender := addClient(fx.hub, fx.pipeline, senderID, 16)
	recipient := addClient(fx.hub, fx.pipeline, recipientID, 16)
	fx.hub.JoinChat(sender, chat.ID.String())
	fx.hub.JoinChat(recipient, chat.ID.String())

	if _, err := fx.pipeline.Ingest(context.Background(), sender, SendMessagePayload{
		ChatID:  chat.ID.String(),
		Type:    models.MessageTypeText,
		Content: "hi",
	}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	env := recvEnvelope(t, recipient)
	if env.Event != EventMessageReceived {
		t.Fatalf("event = %q, want %q", env.Event, EventMessageReceived)
	}
	var got models.Message
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	if got.Content != "hi" {
		t.Errorf("content = %q", got.Content)
	}

	// The recipient joined, so read-on-delivery fires: the sender's queue
	// holds the messageRead notice, never its own messageReceived echo.
	env = recvEnvelope(t, sender)
	if env.Event != EventMessageRead {
		t.Fatalf("sender got %q, want %q", env.Event, EventMessageRead)
	}
	expectNoEvent(t, sender)
	expectNoEvent(t, recipient)
}

func TestIngestReadOnDelivery(t *testing.T) {
	fx := newPipelineFixture()
	senderID := uuid.New()
	recipientID := uuid.New()
	chat := fx.store.addChat(models.ChatTypeOneToOne, senderID, recipientID)

	sender := addClient(fx.hub, fx.pipeline, senderID, 16)
	recipient := addClient(fx.hub, fx.pipeline, recipientID, 16)
	fx.hub.JoinChat(recipient, chat.ID.String())

	msg, err := fx.pipeline.Ingest(context.Background(), sender, SendMessagePayload{
		ChatID:  chat.ID.String(),
		Type:    models.MessageTypeText,
		Content: "seen instantly",
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if !msg.IsRead {
		t.Error("message not marked read with recipient viewing the chat")
	}

	env := recvEnvelope(t, sender)
	if env.Event != EventMessageRead {
		t.Fatalf("sender got %q, want %q", env.Event, EventMessageRead)
	}
	var read ReadPayload
	if err := json.Unmarshal(env.Data, &read); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if read.ReaderID != recipientID.String() {
		t.Errorf("reader = %q, want %q", read.ReaderID, recipientID)
	}
}

func TestIngestNotReadWhenRecipientAbsent(t *testing.T) {
	fx := newPipelineFixture()
	senderID := uuid.New()
	recipientID := uuid.New()
	chat := fx.store.addChat(models.ChatTypeOneToOne, senderID, recipientID)

	sender := addClient(fx.hub, fx.pipeline, senderID, 16)
	// Recipient connected but has not joined the chat.
	addClient(fx.hub, fx.pipeline, recipientID, 16)

	msg, err := fx.pipeline.Ingest(context.Background(), sender, SendMessagePayload{
		ChatID:  chat.ID.String(),
		Type:    models.MessageTypeText,
		Content: "unseen",
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if msg.IsRead {
		t.Error("message marked read while recipient not viewing the chat")
	}
	expectNoEvent(t, sender)
}

func TestIngestAttachmentUpload(t *testing.T) {
	fx := newPipelineFixture()
	senderID := uuid.New()
	chat := fx.store.addChat(models.ChatTypeOneToOne, senderID, uuid.New())
	sender := addClient(fx.hub, fx.pipeline, senderID, 16)

	msg, err := fx.pipeline.Ingest(context.Background(), sender, SendMessagePayload{
		ChatID: chat.ID.String(),
		Type:   models.MessageTypeImage,
		File:   &InlineFile{Name: "photo.png", Data: []byte{1, 2, 3}},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if msg.File == nil || msg.File.URL == "" {
		t.Fatalf("file ref not attached: %+v", msg.File)
	}
	if fx.uploader.uploadCount() != 1 {
		t.Errorf("uploads = %d, want 1", fx.uploader.uploadCount())
	}
}

func TestIngestUploadFailureStopsPipeline(t *testing.T) {
	fx := newPipelineFixture()
	fx.uploader.fail = true
	senderID := uuid.New()
	recipientID := uuid.New()
	chat := fx.store.addChat(models.ChatTypeOneToOne, senderID, recipientID)

	sender := addClient(fx.hub, fx.pipeline, senderID, 16)
	recipient := addClient(fx.hub, fx.pipeline, recipientID, 16)
	fx.hub.JoinChat(recipient, chat.ID.String())

	_, err := fx.pipeline.Ingest(context.Background(), sender, SendMessagePayload{
		ChatID: chat.ID.String(),
		Type:   models.MessageTypeDocument,
		File:   &InlineFile{Name: "report.pdf", Data: []byte{1}},
	})
	if !errors.Is(err, ErrUpload) {
		t.Fatalf("err = %v, want ErrUpload", err)
	}

	if fx.store.messageCount() != 0 {
		t.Error("message persisted despite failed upload")
	}
	expectNoEvent(t, recipient)
}

func TestIngestStorageFailureStopsBroadcast(t *testing.T) {
	fx := newPipelineFixture()
	fx.store.failCreateMessage = true
	senderID := uuid.New()
	recipientID := uuid.New()
	chat := fx.store.addChat(models.ChatTypeOneToOne, senderID, recipientID)

	sender := addClient(fx.hub, fx.pipeline, senderID, 16)
	recipient := addClient(fx.hub, fx.pipeline, recipientID, 16)
	fx.hub.JoinChat(recipient, chat.ID.String())

	_, err := fx.pipeline.Ingest(context.Background(), sender, SendMessagePayload{
		ChatID:  chat.ID.String(),
		Type:    models.MessageTypeText,
		Content: "doomed",
	})
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("err = %v, want ErrStorage", err)
	}
	expectNoEvent(t, recipient)
}

func TestIngestValidation(t *testing.T) {
	fx := newPipelineFixture()
	senderID := uuid.New()
	chat := fx.store.addChat(models.ChatTypeOneToOne, senderID, uuid.New())
	sender := addClient(fx.hub, fx.pipeline, senderID, 16)

	outsider := addClient(fx.hub, fx.pipeline, uuid.New(), 16)

	tests := []struct {
		name    string
		client  *Client
		in      SendMessagePayload
		wantErr error
	}{
		{
			name:   "bad chat reference",
			client: sender,
			in:     SendMessagePayload{ChatID: "nope", Type: models.MessageTypeText, Content: "x"},
		},
		{
			name:   "unknown chat",
			client: sender,
			in:     SendMessagePayload{ChatID: uuid.NewString(), Type: models.MessageTypeText, Content: "x"},
		},
		{
			name:   "bad type",
			client: sender,
			in:     SendMessagePayload{ChatID: chat.ID.String(), Type: "sticker", Content: "x"},
		},
		{
			name:   "text without content",
			client: sender,
			in:     SendMessagePayload{ChatID: chat.ID.String(), Type: models.MessageTypeText},
		},
		{
			name:   "attachment without file",
			client: sender,
			in:     SendMessagePayload{ChatID: chat.ID.String(), Type: models.MessageTypeImage},
		},
		{
			name:    "non-participant",
			client:  outsider,
			in:      SendMessagePayload{ChatID: chat.ID.String(), Type: models.MessageTypeText, Content: "x"},
			wantErr: ErrForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.pipeline.Ingest(context.Background(), tt.client, tt.in)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("err = %v, want validation error", err)
			}
		})
	}

	if fx.store.messageCount() != 0 {
		t.Errorf("stored %d messages, want 0", fx.store.messageCount())
	}
}

func TestFetchMessagesMarksChatRead(t *testing.T) {
	fx := newPipelineFixture()
	senderID := uuid.New()
	readerID := uuid.New()
	chat := fx.store.addChat(models.ChatTypeOneToOne, senderID, readerID)

	sender := addClient(fx.hub, fx.pipeline, senderID, 16)
	reader := addClient(fx.hub, fx.pipeline, readerID, 16)

	for _, content := range []string{"one", "two", "three"} {
		if _, err := fx.pipeline.Ingest(context.Background(), sender, SendMessagePayload{
			ChatID:  chat.ID.String(),
			Type:    models.MessageTypeText,
			Content: content,
		}); err != nil {
			t.Fatalf("Ingest: %v", err)
		}
	}

	msgs, err := fx.pipeline.FetchMessages(context.Background(), reader, ChatRefPayload{ChatID: chat.ID.String()})
	if err != nil {
		t.Fatalf("FetchMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	// Newest first.
	if msgs[0].Content != "three" {
		t.Errorf("first message = %q, want newest", msgs[0].Content)
	}

	// The sender's live session learns the chat was read.
	env := recvEnvelope(t, sender)
	if env.Event != EventMessageRead {
		t.Fatalf("sender got %q, want %q", env.Event, EventMessageRead)
	}
	var read ReadPayload
	if err := json.Unmarshal(env.Data, &read); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if read.ReaderID != readerID.String() {
		t.Errorf("reader = %q, want %q", read.ReaderID, readerID)
	}

	// A second fetch finds nothing unread, so no second notice goes out.
	if _, err := fx.pipeline.FetchMessages(context.Background(), reader, ChatRefPayload{ChatID: chat.ID.String()}); err != nil {
		t.Fatalf("FetchMessages: %v", err)
	}
	expectNoEvent(t, sender)
}

func TestFetchMessagesForbiddenForOutsider(t *testing.T) {
	fx := newPipelineFixture()
	chat := fx.store.addChat(models.ChatTypeOneToOne, uuid.New(), uuid.New())
	outsider := addClient(fx.hub, fx.pipeline, uuid.New(), 16)

	_, err := fx.pipeline.FetchMessages(context.Background(), outsider, ChatRefPayload{ChatID: chat.ID.String()})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestFetchMessagesClampsLimit(t *testing.T) {
	fx := newPipelineFixture()
	senderID := uuid.New()
	readerID := uuid.New()
	chat := fx.store.addChat(models.ChatTypeOneToOne, senderID, readerID)
	sender := addClient(fx.hub, fx.pipeline, senderID, 16)
	reader := addClient(fx.hub, fx.pipeline, readerID, 16)

	for i := 0; i < 60; i++ {
		if _, err := fx.pipeline.Ingest(context.Background(), sender, SendMessagePayload{
			ChatID:  chat.ID.String(),
			Type:    models.MessageTypeText,
			Content: "m",
		}); err != nil {
			t.Fatalf("Ingest: %v", err)
		}
	}

	msgs, err := fx.pipeline.FetchMessages(context.Background(), reader, ChatRefPayload{ChatID: chat.ID.String(), Limit: -5})
	if err != nil {
		t.Fatalf("FetchMessages: %v", err)
	}
	if len(msgs) != 50 {
		t.Errorf("got %d messages, want default page of 50", len(msgs))
	}
}
