package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"github.com/parley-chat/parley/internal/models"
)

// SQLiteStore handles SQLite database operations. It is the development
// fallback when no DATABASE_URL is configured.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/parley.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/parley.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT UNIQUE NOT NULL,
		mobile TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		blocked INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS chats (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		created_by TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS chat_participants (
		chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		PRIMARY KEY (chat_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		sender_id TEXT NOT NULL,
		type TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		file_key TEXT NOT NULL DEFAULT '',
		file_url TEXT NOT NULL DEFAULT '',
		is_read INTEGER NOT NULL DEFAULT 0,
		ts INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_participants_user ON chat_participants(user_id);
	CREATE INDEX IF NOT EXISTS idx_messages_chat_ts ON messages(chat_id, ts DESC);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser creates a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, name, email, mobile, passwordHash string) (*models.User, error) {
	id := uuid.New()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, mobile, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id.String(), name, email, mobile, passwordHash, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}

	return &models.User{
		ID:           id,
		Name:         name,
		Email:        email,
		Mobile:       mobile,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, name, email, mobile, password_hash, blocked, created_at, updated_at
		FROM users WHERE id = ?
	`, id.String()))
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, name, email, mobile, password_hash, blocked, created_at, updated_at
		FROM users WHERE email = ?
	`, email))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var id string
	err := row.Scan(&id, &user.Name, &user.Email, &user.Mobile,
		&user.PasswordHash, &user.Blocked, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	user.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ListUsers lists all users except the given one.
func (s *SQLiteStore) ListUsers(ctx context.Context, exclude uuid.UUID) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, mobile, created_at, updated_at
		FROM users WHERE id <> ? AND blocked = 0
		ORDER BY name
	`, exclude.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		var id string
		if err := rows.Scan(&id, &u.Name, &u.Email, &u.Mobile, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		if u.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateChat creates a chat and its participant rows in one transaction.
func (s *SQLiteStore) CreateChat(ctx context.Context, chatType, name string, createdBy uuid.UUID, participants []uuid.UUID) (*models.Chat, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	id := uuid.New()
	now := time.Now().UTC()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chats (id, type, name, created_by, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id.String(), chatType, name, createdBy.String(), now); err != nil {
		return nil, err
	}

	chat := &models.Chat{
		ID:        id,
		Type:      chatType,
		Name:      name,
		CreatedBy: &createdBy,
		CreatedAt: now,
	}
	for _, p := range participants {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO chat_participants (chat_id, user_id) VALUES (?, ?)
		`, id.String(), p.String()); err != nil {
			return nil, err
		}
		chat.Participants = append(chat.Participants, p)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return chat, nil
}

// GetChat retrieves a chat with its participants.
func (s *SQLiteStore) GetChat(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	chat := &models.Chat{}
	var chatID string
	var createdBy sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, type, name, created_by, created_at FROM chats WHERE id = ?
	`, id.String()).Scan(&chatID, &chat.Type, &chat.Name, &createdBy, &chat.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if chat.ID, err = uuid.Parse(chatID); err != nil {
		return nil, err
	}
	if createdBy.Valid {
		if creator, err := uuid.Parse(createdBy.String); err == nil {
			chat.CreatedBy = &creator
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM chat_participants WHERE chat_id = ?
	`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		pid, err := uuid.Parse(p)
		if err != nil {
			return nil, err
		}
		chat.Participants = append(chat.Participants, pid)
	}
	return chat, rows.Err()
}

// FindChatByParticipants finds the one-to-one chat between two users, if any.
func (s *SQLiteStore) FindChatByParticipants(ctx context.Context, a, b uuid.UUID) (*models.Chat, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id
		FROM chats c
		WHERE c.type = 'one-to-one'
		  AND EXISTS (SELECT 1 FROM chat_participants WHERE chat_id = c.id AND user_id = ?)
		  AND EXISTS (SELECT 1 FROM chat_participants WHERE chat_id = c.id AND user_id = ?)
		LIMIT 1
	`, a.String(), b.String()).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	chatID, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	return s.GetChat(ctx, chatID)
}

// ListChatsForUser lists the user's chats with last message and unread count.
func (s *SQLiteStore) ListChatsForUser(ctx context.Context, userID uuid.UUID) ([]models.ChatSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id,
		       (SELECT count(*) FROM messages m
		        WHERE m.chat_id = c.id AND m.is_read = 0 AND m.sender_id <> ?) AS unread
		FROM chats c
		WHERE c.id IN (SELECT chat_id FROM chat_participants WHERE user_id = ?)
		ORDER BY c.created_at DESC
	`, userID.String(), userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type entry struct {
		id     string
		unread int64
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.id, &e.unread); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var chats []models.ChatSummary
	for _, e := range entries {
		chatID, err := uuid.Parse(e.id)
		if err != nil {
			return nil, err
		}
		chat, err := s.GetChat(ctx, chatID)
		if err != nil {
			return nil, err
		}
		if chat == nil {
			continue
		}
		cs := models.ChatSummary{Chat: *chat, UnreadCount: e.unread}
		msgs, err := s.GetMessagesByChat(ctx, e.id, 1, 0)
		if err != nil {
			return nil, err
		}
		if len(msgs) > 0 {
			cs.LastMessage = &msgs[0]
		}
		chats = append(chats, cs)
	}
	return chats, nil
}

// CreateMessage persists a message, assigning its ULID and timestamp when unset.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *models.Message) error {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, sender_id, type, content, file_key, file_url, is_read, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ChatID, msg.SenderID, msg.Type, msg.Content, fileKey, fileURL, msg.IsRead, msg.Timestamp)
	return err
}

// GetMessagesByChat retrieves messages newest-first, optionally before a
// unix-ms timestamp (exclusive).
func (s *SQLiteStore) GetMessagesByChat(ctx context.Context, chatID string, limit int, before int64) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, chat_id, sender_id, type, content, file_key, file_url, is_read, ts
		FROM messages WHERE chat_id = ?`
	args := []any{chatID}
	if before > 0 {
		query += ` AND ts < ?`
		args = append(args, before)
	}
	query += ` ORDER BY ts DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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

// MarkMessagesRead marks all messages in a chat not sent by the reader as
// read and returns the number of rows affected.
func (s *SQLiteStore) MarkMessagesRead(ctx context.Context, chatID string, readerID uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET is_read = 1
		WHERE chat_id = ? AND sender_id <> ? AND is_read = 0
	`, chatID, readerID.String())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
