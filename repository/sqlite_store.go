package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"lifedash-backend/models"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements DocumentStore and ChatStore on a single SQLite file
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens or creates a SQLite database at the given path
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Upserts and reads are serialized through one connection.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:  db,
		now: time.Now,
	}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Migrate creates the tables if they do not exist
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS user_documents (
		user_id       TEXT PRIMARY KEY,
		scores        TEXT,
		score_history TEXT,
		action_items  TEXT,
		memories      TEXT,
		onboarding    TEXT,
		version       INTEGER NOT NULL DEFAULT 1,
		updated_at    INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		role       TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
		content    TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_messages_user_created ON chat_messages(user_id, created_at DESC);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetDocument retrieves a user document by user ID
func (s *SQLiteStore) GetDocument(ctx context.Context, userID uuid.UUID) (*models.UserDocument, error) {
	doc := &models.UserDocument{UserID: userID}
	var row documentRow
	var updatedAt int64

	err := s.db.QueryRowContext(ctx, `
		SELECT scores, score_history, action_items, memories, onboarding, version, updated_at
		FROM user_documents WHERE user_id = ?`, userID.String()).Scan(
		&row.scores,
		&row.scoreHistory,
		&row.actionItems,
		&row.memories,
		&row.onboarding,
		&doc.Version,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read user document: %w", err)
	}

	if err := row.decode(doc); err != nil {
		return nil, fmt.Errorf("decode user document: %w", err)
	}
	doc.UpdatedAt = time.Unix(0, updatedAt).UTC()

	return doc, nil
}

// MergeDocument upserts the non-nil top-level fields of patch
func (s *SQLiteStore) MergeDocument(ctx context.Context, userID uuid.UUID, patch models.DocumentPatch) (int64, error) {
	if patch.IsEmpty() {
		return 0, ErrEmptyPatch
	}

	params, err := patchParams(patch)
	if err != nil {
		return 0, err
	}
	args := []interface{}{userID.String()}
	args = append(args, params...)
	args = append(args, s.now().UnixNano())

	var version int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO user_documents (
			user_id, scores, score_history, action_items, memories, onboarding, version, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			scores = COALESCE(excluded.scores, user_documents.scores),
			score_history = COALESCE(excluded.score_history, user_documents.score_history),
			action_items = COALESCE(excluded.action_items, user_documents.action_items),
			memories = COALESCE(excluded.memories, user_documents.memories),
			onboarding = COALESCE(excluded.onboarding, user_documents.onboarding),
			version = user_documents.version + 1,
			updated_at = excluded.updated_at
		RETURNING version`, args...).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("merge user document: %w", err)
	}

	return version, nil
}

// AppendMessage inserts a chat message stamped with the store clock
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *models.ChatMessage) error {
	if err := validateMessage(msg); err != nil {
		return err
	}
	if msg.ID == "" {
		msg.ID = newMessageID()
	}
	ts := s.now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, user_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.UserID.String(), string(msg.Role), msg.Content, ts.UnixNano())
	if err != nil {
		return fmt.Errorf("append chat message: %w", err)
	}

	msg.Timestamp = ts
	return nil
}

// ListRecentMessages returns the most recent messages for a user, oldest first
func (s *SQLiteStore) ListRecentMessages(ctx context.Context, userID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = models.DefaultChatHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, created_at FROM (
			SELECT id, role, content, created_at
			FROM chat_messages
			WHERE user_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		) ORDER BY created_at ASC, id ASC`, userID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("query chat messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.ChatMessage, 0)
	for rows.Next() {
		msg := models.ChatMessage{UserID: userID}
		var role string
		var createdAt int64
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		msg.Role = models.ChatRole(role)
		msg.Timestamp = time.Unix(0, createdAt).UTC()
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}
