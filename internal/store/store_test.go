package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ppiankov/veritas/internal/model"
)

func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	ok, err := s.Exists(ctx, "1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, "1")
	assert.ErrorIs(t, err, ErrNotFound)

	v := model.Verdict{ClaimID: "1", Verdict: model.VerdictSupported, Confidence: 0.9, Reasoning: "ok"}
	require.NoError(t, PutJSON(ctx, s, "1", v))
	require.NoError(t, PutJSON(ctx, s, "10", model.ErrorVerdict("10", "failed")))
	require.NoError(t, PutJSON(ctx, s, "a/b", model.ErrorVerdict("a/b", "odd id")))

	ok, err = s.Exists(ctx, "1")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := GetJSON[model.Verdict](ctx, s, "1")
	require.NoError(t, err)
	assert.Equal(t, v, got)

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "10", "a/b"}, keys)

	all, err := LoadVerdicts(ctx, s)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a/b", all[2].ClaimID)

	require.NoError(t, s.Delete(ctx, "10"))
	require.NoError(t, s.Delete(ctx, "10"))
	ok, err = s.Exists(ctx, "10")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Exists(ctx, " ")
	assert.ErrorIs(t, err, model.ErrValidation)

	require.NoError(t, s.Put(ctx, "bad", []byte("{not json")))
	_, err = GetJSON[model.Verdict](ctx, s, "bad")
	assert.ErrorIs(t, err, model.ErrIntegrity)
}

func TestFSStore(t *testing.T) {
	s, err := NewFSStore(filepath.Join(t.TempDir(), "verdicts"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	exerciseStore(t, s)

	// key escaping keeps files inside the directory
	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, e.IsDir())
	}
}

func TestFSStore_IgnoresTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFSStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-123"), []byte("partial"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	keys, err := s.Keys(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestFSStore_DotPrefixedKeys(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, PutJSON(ctx, s, ".7", model.ErrorVerdict(".7", "odd id")))
	require.NoError(t, PutJSON(ctx, s, "8", model.ErrorVerdict("8", "failed")))

	ok, err := s.Exists(ctx, ".7")
	require.NoError(t, err)
	assert.True(t, ok)

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{".7", "8"}, keys)

	got, err := GetJSON[model.Verdict](ctx, s, ".7")
	require.NoError(t, err)
	assert.Equal(t, ".7", got.ClaimID)
}

func TestNew(t *testing.T) {
	s, err := New(context.Background(), model.StoreConfig{Backend: "fs"}, t.TempDir(), "verdicts")
	require.NoError(t, err)
	assert.IsType(t, &FSStore{}, s)

	_, err = New(context.Background(), model.StoreConfig{Backend: "s3"}, t.TempDir(), "verdicts")
	assert.Error(t, err)

	_, err = New(context.Background(), model.StoreConfig{Backend: "redis"}, "", "verdicts")
	assert.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	url := fmt.Sprintf("redis://%s:%s/0", host, port.Port())
	s, err := New(ctx, model.StoreConfig{Backend: "redis", RedisURL: url, Prefix: "veritas-test"}, "", "verdicts")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	exerciseStore(t, s)
}
