package session

import (
	"path/filepath"
	"testing"

	"github.com/fwpanel/fwctl/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, store TokenStore) {
	t.Helper()

	token, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, store.Save("first"))
	require.NoError(t, store.Save("second"))

	token, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, "second", token)

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())

	token, err = store.Load()
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestFileStore(t *testing.T) {
	exerciseStore(t, NewFileStore(filepath.Join(t.TempDir(), "fwctl", "token")))
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	exerciseStore(t, store)

	// 重新打开后令牌仍在
	require.NoError(t, store.Save("persisted"))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	token, err := reopened.Load()
	require.NoError(t, err)
	assert.Equal(t, "persisted", token)
}

func TestNewStore(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(config.SessionConfig{Store: "file", Path: filepath.Join(dir, "token")})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	store, err = NewStore(config.SessionConfig{Store: "sqlite", Path: filepath.Join(dir, "s.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	store.(*SQLiteStore).Close()

	_, err = NewStore(config.SessionConfig{Store: "redis"})
	assert.Error(t, err)
}
