package repository

import (
	"context"
	"path/filepath"
	"testing"

	"lifedash-backend/config"
	"lifedash-backend/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStoresSQLite(t *testing.T) {
	ctx := context.Background()
	cfg := config.Config{StoreType: config.StoreTypeSQLite, SQLitePath: filepath.Join(t.TempDir(), "db", "lifedash.db")}

	stores, err := OpenStores(ctx, cfg)
	require.NoError(t, err)
	defer stores.Close()
	require.NoError(t, stores.CreateSchema(ctx))

	userID := uuid.New()
	scores := models.DefaultScores()
	version, err := stores.Documents.MergeDocument(ctx, userID, models.DocumentPatch{Scores: &scores})
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	require.NoError(t, stores.Chats.AppendMessage(ctx, &models.ChatMessage{UserID: userID, Role: models.RoleUser, Content: "hi"}))
	msgs, err := stores.Chats.ListRecentMessages(ctx, userID, 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestOpenStoresUnknownType(t *testing.T) {
	_, err := OpenStores(context.Background(), config.Config{StoreType: "mongo"})

	assert.ErrorIs(t, err, config.ErrInvalidStoreType)
}

func TestOpenNotifierDefaultsToLocal(t *testing.T) {
	n, err := OpenNotifier("")
	require.NoError(t, err)
	defer n.Close()

	assert.IsType(t, &LocalNotifier{}, n)
}
