package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	store "neuromail-go/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackend(t *testing.T) store.Backend {
	t.Helper()
	b := store.NewFileBackend(t.TempDir())
	require.NoError(t, b.Initialize(context.Background()))
	return b
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newBackend(t)
	require.NoError(t, src.Set(ctx, "api_settings", []byte(`{"apiMode":"personal","maxRetries":2}`)))
	require.NoError(t, src.Set(ctx, "note", []byte("plain text")))

	var buf bytes.Buffer
	require.NoError(t, runExport(ctx, src, &buf))
	assert.Contains(t, buf.String(), `"apiMode": "personal"`)
	assert.Contains(t, buf.String(), `"note": "plain text"`)

	dst := newBackend(t)
	require.NoError(t, runImport(ctx, dst, bytes.NewReader(buf.Bytes())))

	v, err := dst.Get(ctx, "note")
	require.NoError(t, err)
	assert.Equal(t, "plain text", string(v))

	ok, err := runVerify(ctx, dst, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, dst.Set(ctx, "extra", []byte(`1`)))
	ok, err = runVerify(ctx, dst, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKeyCommands(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)

	require.Error(t, runSet(ctx, b, "", []byte("x")))
	require.NoError(t, runSet(ctx, b, "b", []byte("2")))
	require.NoError(t, runSet(ctx, b, "a", []byte("1")))

	var out bytes.Buffer
	require.NoError(t, runKeys(ctx, b, &out))
	assert.Equal(t, []string{"a", "b"}, strings.Fields(out.String()))

	out.Reset()
	require.NoError(t, runGet(ctx, b, "a", &out))
	assert.Equal(t, "1", out.String())

	require.NoError(t, runDelete(ctx, b, "a"))
	err := runGet(ctx, b, "a", &out)
	require.Error(t, err)
	assert.True(t, store.IsNotFound(err))
}

func TestImportRejectsBadJSON(t *testing.T) {
	err := runImport(context.Background(), newBackend(t), strings.NewReader("[1,2"))
	require.Error(t, err)
}
