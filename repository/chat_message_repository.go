package repository

import (
	"context"
	"fmt"

	"lifedash-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ChatMessageRepository handles database operations for chat messages
type ChatMessageRepository struct {
	db *pgxpool.Pool
}

// NewChatMessageRepository creates a new chat message repository
func NewChatMessageRepository(db *pgxpool.Pool) *ChatMessageRepository {
	return &ChatMessageRepository{db: db}
}

// AppendMessage inserts a message; the timestamp is assigned by the database
func (r *ChatMessageRepository) AppendMessage(ctx context.Context, msg *models.ChatMessage) error {
	if err := validateMessage(msg); err != nil {
		return err
	}
	if msg.ID == "" {
		msg.ID = newMessageID()
	}

	query := `
		INSERT INTO chat_messages (id, user_id, role, content)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query, msg.ID, msg.UserID, string(msg.Role), msg.Content).Scan(&msg.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append chat message: %w", err)
	}

	return nil
}

// ListRecentMessages retrieves the most recent messages for a user in ascending order
func (r *ChatMessageRepository) ListRecentMessages(ctx context.Context, userID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = models.DefaultChatHistoryLimit
	}

	query := `
		SELECT id, user_id, role, content, created_at
		FROM (
			SELECT id, user_id, role, content, created_at
			FROM chat_messages
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC, id ASC`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.ChatMessage, 0)
	for rows.Next() {
		var msg models.ChatMessage
		var role string
		if err := rows.Scan(&msg.ID, &msg.UserID, &role, &msg.Content, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		msg.Role = models.ChatRole(role)
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat messages: %w", err)
	}

	return messages, nil
}
