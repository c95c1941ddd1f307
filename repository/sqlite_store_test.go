package repository

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"lifedash-backend/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetDocumentNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetDocument(context.Background(), uuid.New())

	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestMergeDocumentCreatesAndVersions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	userID := uuid.New()
	scores := models.Scores{Social: 60, Personal: 55, Professional: 50, Spiritual: 50}

	v1, err := s.MergeDocument(ctx, userID, models.DocumentPatch{
		Scores:       &scores,
		ScoreHistory: models.ScoreHistory{{Date: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), Scores: scores}},
		ActionItems:  models.ActionItems{},
		Memories:     models.Memories{},
		Onboarding:   &models.OnboardingState{Completed: true, UserValues: "health", DashboardDescription: "desc"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1)

	doc, err := s.GetDocument(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, userID, doc.UserID)
	assert.Equal(t, int64(1), doc.Version)
	require.NotNil(t, doc.Scores)
	assert.Equal(t, scores, *doc.Scores)
	require.Len(t, doc.ScoreHistory, 1)
	assert.True(t, doc.ScoreHistory[0].Date.Equal(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)))
	assert.NotNil(t, doc.ActionItems)
	assert.Empty(t, doc.ActionItems)
	assert.NotNil(t, doc.Memories)
	require.NotNil(t, doc.Onboarding)
	assert.True(t, doc.Onboarding.Completed)

	v2, err := s.MergeDocument(ctx, userID, models.DocumentPatch{Memories: models.Memories{"likes hiking"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), v2)
}

func TestMergeDocumentIsShallow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	userID := uuid.New()
	first := models.Scores{Social: 10, Personal: 20, Professional: 30, Spiritual: 40}
	items := models.ActionItems{{ID: uuid.New(), Text: "Walk daily"}}

	_, err := s.MergeDocument(ctx, userID, models.DocumentPatch{Scores: &first, ActionItems: items})
	require.NoError(t, err)

	second := models.Scores{Social: 99}
	_, err = s.MergeDocument(ctx, userID, models.DocumentPatch{Scores: &second})
	require.NoError(t, err)

	doc, err := s.GetDocument(ctx, userID)
	require.NoError(t, err)
	// nested scores are replaced, not deep-merged
	assert.Equal(t, second, *doc.Scores)
	// untouched top-level fields survive
	assert.Equal(t, items, doc.ActionItems)
	assert.Nil(t, doc.Onboarding)
}

func TestMergeDocumentRejectsEmptyPatch(t *testing.T) {
	s := newTestStore(t)

	_, err := s.MergeDocument(context.Background(), uuid.New(), models.DocumentPatch{})

	assert.ErrorIs(t, err, ErrEmptyPatch)
}

func TestMergeDocumentFailsWhenFieldCannotBeEncoded(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	userID := uuid.New()
	scores := models.DefaultScores()
	_, err := s.MergeDocument(ctx, userID, models.DocumentPatch{Scores: &scores})
	require.NoError(t, err)

	bad := models.Scores{Social: math.NaN()}
	_, err = s.MergeDocument(ctx, userID, models.DocumentPatch{
		Scores:   &bad,
		Memories: models.Memories{"kept out"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encode scores")

	doc, err := s.GetDocument(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.Version)
	assert.Equal(t, scores, *doc.Scores)
	assert.Nil(t, doc.Memories)
}

func TestAppendAndListRecentMessages(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	userID := uuid.New()
	other := uuid.New()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for i := 0; i < 5; i++ {
		msg := &models.ChatMessage{UserID: userID, Role: models.RoleUser, Content: string(rune('a' + i))}
		require.NoError(t, s.AppendMessage(ctx, msg))
		assert.NotEmpty(t, msg.ID)
		assert.False(t, msg.Timestamp.IsZero())
	}
	require.NoError(t, s.AppendMessage(ctx, &models.ChatMessage{UserID: other, Role: models.RoleAssistant, Content: "x"}))

	got, err := s.ListRecentMessages(ctx, userID, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[0].Content)
	assert.Equal(t, "d", got[1].Content)
	assert.Equal(t, "e", got[2].Content)
	assert.True(t, got[0].Timestamp.Before(got[2].Timestamp))
}

func TestAppendMessageValidates(t *testing.T) {
	s := newTestStore(t)

	err := s.AppendMessage(context.Background(), &models.ChatMessage{UserID: uuid.New(), Role: "system"})

	assert.ErrorIs(t, err, ErrInvalidMessage)
}
