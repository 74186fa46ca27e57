package models

import (
	"time"

	"github.com/google/uuid"
)

// Chat types.
const (
	ChatTypeOneToOne = "one-to-one"
	ChatTypeGroup    = "group"
)

// Chat represents a one-to-one or group conversation.
type Chat struct {
	ID           uuid.UUID   `json:"id"`
	Type         string      `json:"type"`
	Name         string      `json:"name,omitempty"` // group chats only
	Participants []uuid.UUID `json:"participants"`
	CreatedBy    *uuid.UUID  `json:"created_by,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// IsParticipant reports whether the given user belongs to the chat.
func (c *Chat) IsParticipant(userID uuid.UUID) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Counterpart returns the other participant of a one-to-one chat.
// The second return value is false for group chats or when the given
// user is not a participant.
func (c *Chat) Counterpart(userID uuid.UUID) (uuid.UUID, bool) {
	if c.Type != ChatTypeOneToOne || len(c.Participants) != 2 {
		return uuid.Nil, false
	}
	switch userID {
	case c.Participants[0]:
		return c.Participants[1], true
	case c.Participants[1]:
		return c.Participants[0], true
	}
	return uuid.Nil, false
}

// ChatSummary is a chat plus the denormalized fields the chat list needs.
type ChatSummary struct {
	Chat
	LastMessage *Message `json:"last_message,omitempty"`
	UnreadCount int64    `json:"unread_count"`
}
