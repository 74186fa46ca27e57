package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/parley-chat/parley/internal/api/middleware"
	"github.com/parley-chat/parley/internal/models"
	"github.com/parley-chat/parley/internal/ws"
)

// CreateChatRequest represents a one-to-one chat creation request.
type CreateChatRequest struct {
	UserID string `json:"userId"` // the other participant
}

// CreateChat creates a one-to-one chat, or returns the existing one when
// the pair already has a conversation.
func (h *Handler) CreateChat(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromContext(r.Context())
	if ident == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CreateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	otherID, err := uuid.Parse(req.UserID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "userId must be a valid UUID")
		return
	}
	if otherID == ident.UserID {
		h.Error(w, http.StatusBadRequest, "cannot start a chat with yourself")
		return
	}

	other, err := h.store.GetUserByID(r.Context(), otherID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if other == nil {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}

	// Idempotent: a pair of users has at most one direct chat.
	existing, err := h.store.FindChatByParticipants(r.Context(), ident.UserID, otherID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if existing != nil {
		h.JSON(w, http.StatusOK, existing)
		return
	}

	chat, err := h.store.CreateChat(r.Context(), models.ChatTypeOneToOne, "", ident.UserID, []uuid.UUID{ident.UserID, otherID})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to create chat")
		h.Error(w, http.StatusInternalServerError, "failed to create chat")
		return
	}

	// Tell the other participant's live sessions about the new chat.
	h.hub.NotifyUser(otherID.String(), ws.EventNewChat, chat)

	h.JSON(w, http.StatusCreated, chat)
}

// CreateGroupRequest represents a group chat creation request.
type CreateGroupRequest struct {
	Name    string   `json:"name"`
	UserIDs []string `json:"userIds"`
}

// CreateGroupChat creates a named group chat with the given participants.
// The creator is always included.
func (h *Handler) CreateGroupChat(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromContext(r.Context())
	if ident == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	name := sanitizeName(req.Name)
	if name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}
	if len(req.UserIDs) == 0 {
		h.Error(w, http.StatusBadRequest, "at least one other participant is required")
		return
	}

	seen := map[uuid.UUID]bool{ident.UserID: true}
	participants := []uuid.UUID{ident.UserID}
	for _, raw := range req.UserIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "userIds must be valid UUIDs")
			return
		}
		if seen[id] {
			continue
		}
		user, err := h.store.GetUserByID(r.Context(), id)
		if err != nil {
			h.Error(w, http.StatusInternalServerError, "database error")
			return
		}
		if user == nil {
			h.Error(w, http.StatusNotFound, "user not found: "+raw)
			return
		}
		seen[id] = true
		participants = append(participants, id)
	}

	if len(participants) < 2 {
		h.Error(w, http.StatusBadRequest, "at least one other participant is required")
		return
	}

	chat, err := h.store.CreateChat(r.Context(), models.ChatTypeGroup, name, ident.UserID, participants)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to create group chat")
		h.Error(w, http.StatusInternalServerError, "failed to create chat")
		return
	}

	for _, id := range participants {
		if id == ident.UserID {
			continue
		}
		h.hub.NotifyUser(id.String(), ws.EventNewChat, chat)
	}

	h.JSON(w, http.StatusCreated, chat)
}

// ListChats returns the caller's chats with last message and unread count,
// most recently active first.
func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromContext(r.Context())
	if ident == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	chats, err := h.store.ListChatsForUser(r.Context(), ident.UserID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list chats")
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{"chats": chats})
}

// GetChatMessages returns a page of messages for a chat the caller belongs
// to, newest first. Fetching marks the chat read for the caller, and the
// other participants' live sessions are told about it.
func (h *Handler) GetChatMessages(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromContext(r.Context())
	if ident == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	chatID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid chat id")
		return
	}

	chat, err := h.store.GetChat(r.Context(), chatID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if chat == nil {
		h.Error(w, http.StatusNotFound, "chat not found")
		return
	}
	if !chat.IsParticipant(ident.UserID) {
		h.Error(w, http.StatusForbidden, "not a participant of this chat")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	var before int64
	if raw := r.URL.Query().Get("before"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
			before = n
		}
	}

	messages, err := h.store.GetMessagesByChat(r.Context(), chatID.String(), limit, before)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to fetch messages")
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	marked, err := h.store.MarkMessagesRead(r.Context(), chatID.String(), ident.UserID)
	if err != nil {
		h.logger.Warn().Err(err).Str("chat_id", chatID.String()).Msg("failed to mark messages read")
	} else if marked > 0 {
		if h.redis != nil {
			h.redis.InvalidateChat(r.Context(), chatID.String())
		}
		read := ws.ReadPayload{ChatID: chatID.String(), ReaderID: ident.UserID.String()}
		for _, id := range chat.Participants {
			if id == ident.UserID {
				continue
			}
			h.hub.NotifyUser(id.String(), ws.EventMessageRead, read)
		}
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

// IsActiveInChat reports whether a user currently has the given chat open.
// Useful for support tooling and debugging presence.
func (h *Handler) IsActiveInChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	userID := chi.URLParam(r, "userId")

	if _, err := uuid.Parse(chatID); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid chat id")
		return
	}
	if _, err := uuid.Parse(userID); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user id")
		return
	}

	h.JSON(w, http.StatusOK, map[string]bool{
		"active": h.hub.IsRecipientActiveInChat(chatID, userID),
	})
}
