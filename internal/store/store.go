package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/parley-chat/parley/internal/models"
)

// ErrDuplicateEmail is returned when a signup collides with an existing user.
var ErrDuplicateEmail = errors.New("store: email already registered")

// DataStore defines the interface for durable storage of users, chats and
// messages. Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	CreateUser(ctx context.Context, name, email, mobile, passwordHash string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context, exclude uuid.UUID) ([]models.User, error)

	// Chat operations
	CreateChat(ctx context.Context, chatType, name string, createdBy uuid.UUID, participants []uuid.UUID) (*models.Chat, error)
	GetChat(ctx context.Context, id uuid.UUID) (*models.Chat, error)
	FindChatByParticipants(ctx context.Context, a, b uuid.UUID) (*models.Chat, error)
	ListChatsForUser(ctx context.Context, userID uuid.UUID) ([]models.ChatSummary, error)

	// Message operations
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessagesByChat(ctx context.Context, chatID string, limit int, before int64) ([]models.Message, error)
	MarkMessagesRead(ctx context.Context, chatID string, readerID uuid.UUID) (int64, error)
}
