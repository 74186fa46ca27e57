package ws

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/parley-chat/parley/internal/blob"
	"github.com/parley-chat/parley/internal/metrics"
	"github.com/parley-chat/parley/internal/models"
	"github.com/parley-chat/parley/internal/store"
)

// Pipeline validates inbound messages, persists them, and hands the
// persisted record to the hub for broadcast. Persistence completes (or
// fails) before any shared subscriber state is touched.
type Pipeline struct {
	store store.DataStore
	cache *store.RedisStore // optional
	blobs blob.Uploader
	hub   *Hub
	log   zerolog.Logger
}

// NewPipeline wires the ingestion pipeline to its collaborators.
// cache may be nil.
func NewPipeline(ds store.DataStore, cache *store.RedisStore, blobs blob.Uploader, hub *Hub, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		store: ds,
		cache: cache,
		blobs: blobs,
		hub:   hub,
		log:   log.With().Str("component", "pipeline").Logger(),
	}
}

// Ingest runs one message through validation, optional attachment upload,
// persistence, and broadcast. On failure nothing is broadcast and the
// error is reported to the caller only. On success the persisted record
// is broadcast to the chat room, excluding the sender's own connection.
func (p *Pipeline) Ingest(ctx context.Context, sender *Client, in SendMessagePayload) (*models.Message, error) {
	chat, err := p.validate(ctx, sender, in)
	if err != nil {
		metrics.MessagesRejected.WithLabelValues("validation").Inc()
		return nil, err
	}

	msg := &models.Message{
		ChatID:   in.ChatID,
		SenderID: sender.identity.UserID.String(),
		Type:     in.Type,
		Content:  in.Content,
	}

	// Non-text content is replaced by a blob reference before persistence.
	if in.Type != models.MessageTypeText {
		ref, err := p.blobs.Upload(ctx, in.File.Name, in.File.Data)
		if err != nil {
			metrics.MessagesRejected.WithLabelValues("upload").Inc()
			return nil, fmt.Errorf("%w: %v", ErrUpload, err)
		}
		msg.File = ref
		msg.Content = in.Content // optional caption
	}

	// Read-on-delivery: a one-to-one message lands already read when the
	// counterpart is viewing the chat right now.
	var readBy string
	if recipient, ok := chat.Counterpart(sender.identity.UserID); ok {
		if p.hub.IsRecipientActiveInChat(in.ChatID, recipient.String()) {
			msg.IsRead = true
			readBy = recipient.String()
		}
	}

	if err := p.store.CreateMessage(ctx, msg); err != nil {
		metrics.MessagesRejected.WithLabelValues("storage").Inc()
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if p.cache != nil {
		if err := p.cache.CacheMessage(ctx, msg); err != nil {
			// Cache is best-effort; the durable store already has the record.
			p.log.Debug().Err(err).Str("message_id", msg.ID).Msg("cache write failed")
		}
	}

	metrics.MessagesIngested.WithLabelValues(msg.Type).Inc()

	p.hub.Broadcast(msg.ChatID, EventMessageReceived, msg, sender)
	if readBy != "" {
		p.hub.NotifyUser(msg.SenderID, EventMessageRead, ReadPayload{
			ChatID:   msg.ChatID,
			ReaderID: readBy,
		})
	}

	return msg, nil
}

// FetchMessages returns a chat's recent messages (cache first, durable
// store on miss) and marks the chat read for the requesting user.
func (p *Pipeline) FetchMessages(ctx context.Context, c *Client, in ChatRefPayload) ([]models.Message, error) {
	chatID, err := uuid.Parse(in.ChatID)
	if err != nil {
		return nil, invalid("chatId", "not a valid chat reference")
	}

	chat, err := p.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if chat == nil {
		return nil, invalid("chatId", "chat does not exist")
	}
	if !chat.IsParticipant(c.identity.UserID) {
		return nil, ErrForbidden
	}

	limit := in.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var msgs []models.Message
	if p.cache != nil {
		msgs, err = p.cache.GetChatMessages(ctx, in.ChatID, limit, in.Before)
		if err != nil {
			p.log.Debug().Err(err).Str("chat_id", in.ChatID).Msg("cache read failed")
			msgs = nil
		}
	}
	if len(msgs) == 0 {
		msgs, err = p.store.GetMessagesByChat(ctx, in.ChatID, limit, in.Before)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		if p.cache != nil {
			for i := range msgs {
				if err := p.cache.CacheMessage(ctx, &msgs[i]); err != nil {
					break
				}
			}
		}
	}

	// Fetching a chat's history counts as reading it.
	updated, err := p.store.MarkMessagesRead(ctx, in.ChatID, c.identity.UserID)
	if err != nil {
		p.log.Warn().Err(err).Str("chat_id", in.ChatID).Msg("mark read failed")
	} else if updated > 0 {
		if p.cache != nil {
			p.cache.InvalidateChat(ctx, in.ChatID)
		}
		reader := c.identity.UserID.String()
		for _, participant := range chat.Participants {
			if id := participant.String(); id != reader {
				p.hub.NotifyUser(id, EventMessageRead, ReadPayload{
					ChatID:   in.ChatID,
					ReaderID: reader,
				})
			}
		}
	}

	return msgs, nil
}

// validate checks structure and authorization and resolves the target chat.
func (p *Pipeline) validate(ctx context.Context, sender *Client, in SendMessagePayload) (*models.Chat, error) {
	chatID, err := uuid.Parse(in.ChatID)
	if err != nil {
		return nil, invalid("chatId", "not a valid chat reference")
	}
	if !models.ValidMessageType(in.Type) {
		return nil, invalid("type", "must be one of text, image, video, audio, document")
	}
	if in.Type == models.MessageTypeText {
		if in.Content == "" {
			return nil, invalid("content", "required for text messages")
		}
	} else if in.File == nil || len(in.File.Data) == 0 {
		return nil, invalid("file", "required for non-text messages")
	}

	chat, err := p.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if chat == nil {
		return nil, invalid("chatId", "chat does not exist")
	}
	if !chat.IsParticipant(sender.identity.UserID) {
		return nil, ErrForbidden
	}
	return chat, nil
}
