package repository

import (
	"context"
	"errors"
	"fmt"

	"lifedash-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserDocumentRepository handles database operations for user documents
type UserDocumentRepository struct {
	db *pgxpool.Pool
}

// NewUserDocumentRepository creates a new user document repository
func NewUserDocumentRepository(db *pgxpool.Pool) *UserDocumentRepository {
	return &UserDocumentRepository{db: db}
}

// GetDocument retrieves a user document by user ID
func (r *UserDocumentRepository) GetDocument(ctx context.Context, userID uuid.UUID) (*models.UserDocument, error) {
	doc := &models.UserDocument{}
	var row documentRow
	query := `
		SELECT user_id, scores, score_history, action_items, memories, onboarding,
			version, updated_at
		FROM user_documents
		WHERE user_id = $1`

	err := r.db.QueryRow(ctx, query, userID).Scan(
		&doc.UserID,
		&row.scores,
		&row.scoreHistory,
		&row.actionItems,
		&row.memories,
		&row.onboarding,
		&doc.Version,
		&doc.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user document: %w", err)
	}

	if err := row.decode(doc); err != nil {
		return nil, fmt.Errorf("failed to decode user document: %w", err)
	}

	return doc, nil
}

// MergeDocument upserts the non-nil top-level fields of patch. Nested values
// such as scores are replaced wholesale, never deep-merged.
func (r *UserDocumentRepository) MergeDocument(ctx context.Context, userID uuid.UUID, patch models.DocumentPatch) (int64, error) {
	if patch.IsEmpty() {
		return 0, ErrEmptyPatch
	}

	query := `
		INSERT INTO user_documents (
			user_id, scores, score_history, action_items, memories, onboarding,
			version, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, 1, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			scores = COALESCE(EXCLUDED.scores, user_documents.scores),
			score_history = COALESCE(EXCLUDED.score_history, user_documents.score_history),
			action_items = COALESCE(EXCLUDED.action_items, user_documents.action_items),
			memories = COALESCE(EXCLUDED.memories, user_documents.memories),
			onboarding = COALESCE(EXCLUDED.onboarding, user_documents.onboarding),
			version = user_documents.version + 1,
			updated_at = NOW()
		RETURNING version`

	params, err := patchParams(patch)
	if err != nil {
		return 0, err
	}
	args := append([]interface{}{userID}, params...)

	var version int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to merge user document: %w", err)
	}

	return version, nil
}

// Delete deletes a user document
func (r *UserDocumentRepository) Delete(ctx context.Context, userID uuid.UUID) error {
	query := `DELETE FROM user_documents WHERE user_id = $1`
	_, err := r.db.Exec(ctx, query, userID)
	return err
}
