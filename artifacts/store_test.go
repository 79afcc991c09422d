package artifacts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BasePath = t.TempDir()
	store, err := NewStore(cfg, zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestStoreCreateAndOpen(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	payload := []byte(`{"status": "ready"}`)
	artifact, err := store.Create(ctx, "results.json", TypeReport, bytes.NewReader(payload),
		WithMimeType("application/json"),
		WithRunID("run-1"),
		WithTags("doctor"),
	)
	require.NoError(t, err)

	assert.NotEmpty(t, artifact.ID)
	assert.Equal(t, "results.json", artifact.Name)
	assert.Equal(t, TypeReport, artifact.Type)
	assert.Equal(t, int64(len(payload)), artifact.Size)

	hash := sha256.Sum256(payload)
	assert.Equal(t, hex.EncodeToString(hash[:]), artifact.Checksum)

	meta, reader, err := store.Open(ctx, artifact.ID)
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, artifact.ID, meta.ID)
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestStoreOpenNotFound(t *testing.T) {
	store := newTestStore(t)

	_, _, err := store.Open(context.Background(), "art_missing")
	assert.ErrorContains(t, err, "not found")
}

func TestStoreMaxSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BasePath = t.TempDir()
	cfg.MaxSize = 8
	store, err := NewStore(cfg, zap.NewNop())
	require.NoError(t, err)

	_, err = store.Create(context.Background(), "big.bin", TypeData,
		bytes.NewReader(make([]byte, 16)))
	assert.ErrorContains(t, err, "exceeds max size")
}

func TestStoreListFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "code.py", TypeCode, bytes.NewReader([]byte("pass")),
		WithRunID("run-a"))
	require.NoError(t, err)
	_, err = store.Create(ctx, "overlay.png", TypeImage, bytes.NewReader([]byte{0x89}),
		WithRunID("run-a"), WithTags("detect", "overlay"))
	require.NoError(t, err)
	_, err = store.Create(ctx, "report.json", TypeReport, bytes.NewReader([]byte("{}")),
		WithRunID("run-b"))
	require.NoError(t, err)

	all, err := store.List(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byRun, err := store.List(ctx, Query{RunID: "run-a"})
	require.NoError(t, err)
	assert.Len(t, byRun, 2)

	byType, err := store.List(ctx, Query{Type: TypeImage})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, "overlay.png", byType[0].Name)

	byTags, err := store.List(ctx, Query{Tags: []string{"detect", "overlay"}})
	require.NoError(t, err)
	assert.Len(t, byTags, 1)

	limited, err := store.List(ctx, Query{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStoreIndexSurvivesRestart(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BasePath = t.TempDir()
	ctx := context.Background()

	first, err := NewStore(cfg, zap.NewNop())
	require.NoError(t, err)
	created, err := first.Create(ctx, "code.py", TypeCode, bytes.NewReader([]byte("pass")))
	require.NoError(t, err)

	second, err := NewStore(cfg, zap.NewNop())
	require.NoError(t, err)
	meta, err := second.GetMetadata(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Checksum, meta.Checksum)
}

func TestStoreCleanup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	expired, err := store.Create(ctx, "old.json", TypeReport, bytes.NewReader([]byte("{}")),
		WithTTL(time.Nanosecond))
	require.NoError(t, err)
	kept, err := store.Create(ctx, "fresh.json", TypeReport, bytes.NewReader([]byte("{}")),
		WithTTL(time.Hour))
	require.NoError(t, err)

	time.Sleep(time.Millisecond)

	deleted, err := store.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = store.GetMetadata(ctx, expired.ID)
	assert.Error(t, err)
	_, err = store.GetMetadata(ctx, kept.ID)
	assert.NoError(t, err)
}
