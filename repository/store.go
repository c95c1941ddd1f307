package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"

	"lifedash-backend/models"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	ErrDocumentNotFound = errors.New("user document not found")
	ErrEmptyPatch       = errors.New("document patch writes no fields")
	ErrInvalidMessage   = errors.New("invalid chat message")
)

// DocumentStore reads and shallow-merges user documents
type DocumentStore interface {
	// GetDocument returns ErrDocumentNotFound when the user has no document
	GetDocument(ctx context.Context, userID uuid.UUID) (*models.UserDocument, error)

	// MergeDocument writes the non-nil fields of patch and returns the new version
	MergeDocument(ctx context.Context, userID uuid.UUID, patch models.DocumentPatch) (int64, error)
}

// ChatStore appends to and reads the per-user chat collection
type ChatStore interface {
	// AppendMessage assigns msg.ID (when empty) and msg.Timestamp
	AppendMessage(ctx context.Context, msg *models.ChatMessage) error

	// ListRecentMessages returns the limit most recent messages, oldest first
	ListRecentMessages(ctx context.Context, userID uuid.UUID, limit int) ([]models.ChatMessage, error)
}

// Schema for the Postgres backend
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS user_documents (
    user_id UUID PRIMARY KEY,
    scores JSONB,
    score_history JSONB,
    action_items JSONB,
    memories JSONB,
    onboarding JSONB,
    version BIGINT NOT NULL DEFAULT 1,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS chat_messages (
    id TEXT PRIMARY KEY,
    user_id UUID NOT NULL,
    role VARCHAR(16) NOT NULL CHECK (role IN ('user', 'assistant')),
    content TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_user_created
    ON chat_messages (user_id, created_at DESC);
`

func newMessageID() string {
	return ulid.Make().String()
}

func validateMessage(msg *models.ChatMessage) error {
	if msg == nil || msg.UserID == uuid.Nil || !msg.Role.Valid() {
		return ErrInvalidMessage
	}
	return nil
}

// patchParams turns a patch into positional JSON parameters. Absent fields
// must be an untyped nil so the driver writes NULL and COALESCE keeps the
// stored value.
func patchParams(p models.DocumentPatch) ([]interface{}, error) {
	fields := []struct {
		name string
		v    driver.Valuer
	}{
		{"scores", nil},
		{"score_history", nil},
		{"action_items", nil},
		{"memories", nil},
		{"onboarding", nil},
	}
	if p.Scores != nil {
		fields[0].v = *p.Scores
	}
	if p.ScoreHistory != nil {
		fields[1].v = p.ScoreHistory
	}
	if p.ActionItems != nil {
		fields[2].v = p.ActionItems
	}
	if p.Memories != nil {
		fields[3].v = p.Memories
	}
	if p.Onboarding != nil {
		fields[4].v = *p.Onboarding
	}

	params := make([]interface{}, len(fields))
	for i, f := range fields {
		if f.v == nil {
			continue
		}
		v, err := jsonValue(f.v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", f.name, err)
		}
		params[i] = v
	}
	return params, nil
}

// jsonValue resolves a Valuer to its encoded JSON text
func jsonValue(v driver.Valuer) (interface{}, error) {
	raw, err := v.Value()
	if err != nil {
		return nil, err
	}
	if b, ok := raw.([]byte); ok {
		return string(b), nil
	}
	return raw, nil
}

// documentRow holds the raw JSON columns of a user document row
type documentRow struct {
	scores       []byte
	scoreHistory []byte
	actionItems  []byte
	memories     []byte
	onboarding   []byte
}

func (r documentRow) decode(doc *models.UserDocument) error {
	if r.scores != nil {
		var s models.Scores
		if err := s.Scan(r.scores); err != nil {
			return err
		}
		doc.Scores = &s
	}
	if r.scoreHistory != nil {
		if err := doc.ScoreHistory.Scan(r.scoreHistory); err != nil {
			return err
		}
	}
	if r.actionItems != nil {
		if err := doc.ActionItems.Scan(r.actionItems); err != nil {
			return err
		}
	}
	if r.memories != nil {
		if err := doc.Memories.Scan(r.memories); err != nil {
			return err
		}
	}
	if r.onboarding != nil {
		var o models.OnboardingState
		if err := o.Scan(r.onboarding); err != nil {
			return err
		}
		doc.Onboarding = &o
	}
	return nil
}
