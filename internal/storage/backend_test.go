package storage

import (
	"context"
	"path/filepath"
	"testing"

	"neuromail-go/internal/config"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseBackend runs the behaviour every backend must share.
func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, b.Health(ctx))

	_, err := b.Get(ctx, "api_settings")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	require.NoError(t, b.Set(ctx, "api_settings", []byte(`{"mode":"public"}`)))
	require.NoError(t, b.Set(ctx, "inbox/42", []byte(`{}`)))
	require.NoError(t, b.Set(ctx, "api_settings", []byte(`{"mode":"personal"}`)))

	got, err := b.Get(ctx, "api_settings")
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode":"personal"}`, string(got))

	keys, err := b.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"api_settings", "inbox/42"}, keys)

	require.NoError(t, b.Delete(ctx, "api_settings"))
	require.NoError(t, b.Delete(ctx, "api_settings"))
	_, err = b.Get(ctx, "api_settings")
	assert.True(t, IsNotFound(err))
}

func TestFileBackend(t *testing.T) {
	dir := t.TempDir()
	b := NewFileBackend(dir)
	require.NoError(t, b.Initialize(context.Background()))
	exerciseBackend(t, b)
}

func TestFileBackendReloadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := NewFileBackend(dir)
	require.NoError(t, first.Initialize(ctx))
	require.NoError(t, first.Set(ctx, "weird key/ü", []byte(`1`)))

	second := NewFileBackend(dir)
	require.NoError(t, second.Initialize(ctx))
	got, err := second.Get(ctx, "weird key/ü")
	require.NoError(t, err)
	assert.Equal(t, "1", string(got))
}

func TestRedisBackend(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	t.Cleanup(mr.Close)

	rb, err := NewRedisBackend(mr.Addr(), "", 0, "test:")
	require.NoError(t, err)
	require.NoError(t, rb.Initialize(context.Background()))
	t.Cleanup(func() { _ = rb.Close() })

	exerciseBackend(t, rb)
	assert.True(t, mr.Exists("test:kv:inbox/42"))
}

func TestSQLiteBackend(t *testing.T) {
	b := NewSQLiteBackend(filepath.Join(t.TempDir(), "db", "neuromail.db"))
	require.NoError(t, b.Initialize(context.Background()))
	t.Cleanup(func() { _ = b.Close() })

	exerciseBackend(t, b)
}

func TestOpenInstrumentsConfiguredBackend(t *testing.T) {
	cfg := config.StorageConfig{Backend: "file", BaseDir: t.TempDir()}
	b, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	assert.Equal(t, "file", DetectBackendLabel(b))
	exerciseBackend(t, b)

	_, err = Open(context.Background(), config.StorageConfig{Backend: "mongodb"})
	require.Error(t, err)
}
