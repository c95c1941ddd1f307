package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoragePutGetDelete(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	key := ExportKey(uuid.New(), "01J00000000000000000000000")
	require.NoError(t, s.Put(ctx, key, strings.NewReader(`{"ok":true}`), "application/json"))

	rc, err := s.Get(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(data))

	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, ErrObjectNotFound)

	// deleting twice is fine
	assert.NoError(t, s.Delete(ctx, key))
}

func TestLocalStoragePutReplaces(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "a/b.json", strings.NewReader("one"), ""))
	require.NoError(t, s.Put(ctx, "a/b.json", strings.NewReader("two"), ""))

	rc, err := s.Get(ctx, "a/b.json")
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "two", string(data))
}

func TestLocalStorageRejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "/etc/passwd", "../outside.json", "a/../../x", `a\b`} {
		err := s.Put(ctx, key, strings.NewReader("x"), "")
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
}

func TestExportKey(t *testing.T) {
	id := uuid.MustParse("6f1c1d3e-9b9a-4a8e-8f7e-2f5c3f1b9a10")

	assert.Equal(t, "exports/6f1c1d3e-9b9a-4a8e-8f7e-2f5c3f1b9a10/abc.json", ExportKey(id, "abc"))
}

func TestConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("STORAGE_TYPE", "")
	t.Setenv("STORAGE_LOCAL_PATH", "")
	t.Setenv("AWS_REGION", "")

	cfg := ConfigFromEnv()

	assert.Equal(t, StorageTypeLocal, cfg.Type)
	assert.Equal(t, "./storage", cfg.LocalPath)
	assert.Equal(t, "us-east-1", cfg.S3Region)
}

func TestNewStorageRequiresBucketForS3(t *testing.T) {
	_, err := NewStorage(StorageConfig{Type: StorageTypeS3})

	assert.Error(t, err)
}
