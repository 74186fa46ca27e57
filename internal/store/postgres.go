package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/parley-chat/parley/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUser creates a new user record.
func (s *PostgresStore) CreateUser(ctx context.Context, name, email, mobile, passwordHash string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (name, email, mobile, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, email, mobile, password_hash, blocked, created_at, updated_at
	`, name, email, mobile, passwordHash).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Mobile,
		&user.PasswordHash,
		&user.Blocked,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.scanUser(s.pool.QueryRow(ctx, `
		SELECT id, name, email, mobile, password_hash, blocked, created_at, updated_at
		FROM users WHERE id = $1
	`, id))
}

// GetUserByEmail retrieves a user by email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.scanUser(s.pool.QueryRow(ctx, `
		SELECT id, name, email, mobile, password_hash, blocked, created_at, updated_at
		FROM users WHERE email = $1
	`, email))
}

func (s *PostgresStore) scanUser(row pgx.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Mobile,
		&user.PasswordHash,
		&user.Blocked,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// ListUsers lists all users except the given one.
func (s *PostgresStore) ListUsers(ctx context.Context, exclude uuid.UUID) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, email, mobile, created_at, updated_at
		FROM users WHERE id <> $1 AND blocked = false
		ORDER BY name
	`, exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Mobile, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateChat creates a chat and its participant rows in one transaction.
func (s *PostgresStore) CreateChat(ctx context.Context, chatType, name string, createdBy uuid.UUID, participants []uuid.UUID) (*models.Chat, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	chat := &models.Chat{Type: chatType, Name: name}
	err = tx.QueryRow(ctx, `
		INSERT INTO chats (type, name, created_by)
		VALUES ($1, $2, $3)
		RETURNING id, created_by, created_at
	`, chatType, name, createdBy).Scan(&chat.ID, &chat.CreatedBy, &chat.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, p := range participants {
		if _, err := tx.Exec(ctx, `
			INSERT INTO chat_participants (chat_id, user_id)
			VALUES ($1, $2) ON CONFLICT DO NOTHING
		`, chat.ID, p); err != nil {
			return nil, err
		}
		chat.Participants = append(chat.Participants, p)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return chat, nil
}

// GetChat retrieves a chat with its participants.
func (s *PostgresStore) GetChat(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	chat := &models.Chat{}
	err := s.pool.QueryRow(ctx, `
		SELECT c.id, c.type, c.name, c.created_by, c.created_at,
		       array_agg(p.user_id) AS participants
		FROM chats c
		JOIN chat_participants p ON p.chat_id = c.id
		WHERE c.id = $1
		GROUP BY c.id
	`, id).Scan(&chat.ID, &chat.Type, &chat.Name, &chat.CreatedBy, &chat.CreatedAt, &chat.Participants)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return chat, nil
}

// FindChatByParticipants finds the one-to-one chat between two users, if any.
func (s *PostgresStore) FindChatByParticipants(ctx context.Context, a, b uuid.UUID) (*models.Chat, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT c.id
		FROM chats c
		WHERE c.type = 'one-to-one'
		  AND EXISTS (SELECT 1 FROM chat_participants WHERE chat_id = c.id AND user_id = $1)
		  AND EXISTS (SELECT 1 FROM chat_participants WHERE chat_id = c.id AND user_id = $2)
		LIMIT 1
	`, a, b).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s.GetChat(ctx, id)
}

// ListChatsForUser lists the user's chats with last message and unread count.
func (s *PostgresStore) ListChatsForUser(ctx context.Context, userID uuid.UUID) ([]models.ChatSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.type, c.name, c.created_by, c.created_at,
		       array_agg(p.user_id) AS participants,
		       (SELECT count(*) FROM messages m
		        WHERE m.chat_id = c.id AND m.is_read = false AND m.sender_id <> $1) AS unread
		FROM chats c
		JOIN chat_participants p ON p.chat_id = c.id
		WHERE c.id IN (SELECT chat_id FROM chat_participants WHERE user_id = $1)
		GROUP BY c.id
		ORDER BY c.created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []models.ChatSummary
	for rows.Next() {
		var cs models.ChatSummary
		if err := rows.Scan(&cs.ID, &cs.Type, &cs.Name, &cs.CreatedBy, &cs.CreatedAt,
			&cs.Participants, &cs.UnreadCount); err != nil {
			return nil, err
		}
		chats = append(chats, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range chats {
		msgs, err := s.GetMessagesByChat(ctx, chats[i].ID.String(), 1, 0)
		if err != nil {
			return nil, err
		}
		if len(msgs) > 0 {
			chats[i].LastMessage = &msgs[0]
		}
	}
	return chats, nil
}

// CreateMessage persists a message, assigning its ULID and timestamp when unset.
func (s *PostgresStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}

	var fileKey, fileURL string
	if msg.File != nil {
		fileKey, fileURL = msg.File.Key, msg.File.URL
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, chat_id, sender_id, type, content, file_key, file_url, is_read, ts)
		VALUES ($1, $2::uuid, $3::uuid, $4, $5, $6, $7, $8, $9)
	`, msg.ID, msg.ChatID, msg.SenderID, msg.Type, msg.Content, fileKey, fileURL, msg.IsRead, msg.Timestamp)
	return err
}

// GetMessagesByChat retrieves messages newest-first, optionally before a
// unix-ms timestamp (exclusive).
func (s *PostgresStore) GetMessagesByChat(ctx context.Context, chatID string, limit int, before int64) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, chat_id, sender_id, type, content, file_key, file_url, is_read, ts
		FROM messages WHERE chat_id = $1::uuid`
	args := []any{chatID}
	if before > 0 {
		query += ` AND ts < $2`
		args = append(args, before)
	}
	query += ` ORDER BY ts DESC LIMIT ` + strconv.Itoa(limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

// MarkMessagesRead marks all messages in a chat not sent by the reader as
// read and returns the number of rows affected.
func (s *PostgresStore) MarkMessagesRead(ctx context.Context, chatID string, readerID uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET is_read = true
		WHERE chat_id = $1::uuid AND sender_id <> $2 AND is_read = false
	`, chatID, readerID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanMessages(rows pgx.Rows) ([]models.Message, error) {
	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var fileKey, fileURL string
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Type, &m.Content,
			&fileKey, &fileURL, &m.IsRead, &m.Timestamp); err != nil {
			return nil, err
		}
		if fileKey != "" {
			m.File = &models.FileRef{Key: fileKey, URL: fileURL}
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
