package watchlist

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/gamepulse/internal/models"
)

func TestFileBackend_MissingIsNotFound(t *testing.T) {
	b := NewFileBackend(t.TempDir())
	_, err := b.Read(context.Background(), DefaultKey)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileBackend_WriteCreatesDirAndReplaces(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	b := NewFileBackend(dir)
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, DefaultKey, []byte(`[]`)))
	require.NoError(t, b.Write(ctx, DefaultKey, []byte(`[{"id":"730"}]`)))

	got, err := b.Read(ctx, DefaultKey)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"730"}]`, string(got))

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 1, "temp files must not be left behind")
}

func TestFileBackend_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	s := New(NewFileBackend(dir), DefaultKey)
	require.NoError(t, s.Add(models.WatchEntry{ID: "730", Source: models.SourceSteam, Name: "CS2"}))

	s2 := New(NewFileBackend(dir), DefaultKey)
	assert.True(t, s2.Contains("730", models.SourceSteam))
}

func TestFileBackend_CorruptFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultKey+".json"), []byte("garbage"), 0o644))

	s := New(NewFileBackend(dir), DefaultKey)
	assert.Equal(t, 0, s.Len())
}

func TestRedisBackend_KeyPrefix(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	assert.Equal(t, "gamepulse:gameinfo_watchlist", NewRedisBackendFromClient(client, "gamepulse").wrapKey("gameinfo_watchlist"))
	assert.Equal(t, "gameinfo_watchlist", NewRedisBackendFromClient(client, "").wrapKey("gameinfo_watchlist"))
}

func TestRedisBackend_UnreachableIsError(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	b := NewRedisBackendFromClient(client, "gamepulse")
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := b.Read(ctx, "gameinfo_watchlist")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	require.Error(t, b.Write(ctx, "gameinfo_watchlist", []byte("[]")))
}

func TestStoreOverUnreachableRedisKeepsMemoryState(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	b := NewRedisBackendFromClient(client, "gamepulse")
	defer b.Close()

	s := New(b, "gameinfo_watchlist")
	assert.Empty(t, s.Load())

	err := s.Add(models.WatchEntry{ID: "730", Source: models.SourceSteam, Name: "CS2"})
	require.Error(t, err)
	assert.True(t, s.Contains("730", models.SourceSteam))
}
