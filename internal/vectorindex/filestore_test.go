package vectorindex

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"edu-rag-go/internal/model"
	"edu-rag-go/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "passages.jsonl")

	store, err := OpenFileStore(path)
	require.NoError(t, err)
	ix := newPassageIndex(t, store)
	_, err = ix.Add(ctx, 1, model.ProvenancePassage, scopeA, []float32{1, 0, 0})
	require.NoError(t, err)
	_, err = ix.Add(ctx, 1, model.ProvenancePassage, scopeA, []float32{0, 1, 0})
	require.NoError(t, err)
	_, err = ix.Add(ctx, 2, model.ProvenancePassage, scopeB, []float32{0, 0, 1})
	require.NoError(t, err)
	_, err = ix.Remove(ctx, 2, model.ProvenancePassage)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store2, err := OpenFileStore(path)
	require.NoError(t, err)
	defer store2.Close()
	reopened := newPassageIndex(t, store2)

	assert.Equal(t, 1, reopened.Stats().Live)
	e, ok := reopened.Get(1, model.ProvenancePassage)
	require.True(t, ok)
	assert.Equal(t, []float32{0, 1, 0}, e.Vector)
	assert.Equal(t, scopeA, e.Scope)
	_, ok = reopened.Get(2, model.ProvenancePassage)
	assert.False(t, ok)
}

func TestFileStoreTruncatesPartialTail(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "passages.jsonl")

	store, err := OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, model.IndexEntry{Seq: 1, ProvenanceID: 1, Kind: model.ProvenancePassage, Vector: []float32{1, 0, 0}, Live: true}))
	require.NoError(t, store.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"op":"add","entry":{"seq":2,"prov`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	store2, err := OpenFileStore(path)
	require.NoError(t, err)
	defer store2.Close()
	loaded, err := store2.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	// 截断后继续追加，文件仍然可以完整读回
	require.NoError(t, store2.Append(ctx, model.IndexEntry{Seq: 2, ProvenanceID: 2, Kind: model.ProvenancePassage, Vector: []float32{0, 1, 0}, Live: true}))
	loaded, err = store2.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
}

func TestFileStoreDetectsCorruptLine(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "summaries.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("not json\n{\"op\":\"tombstone\",\"seq\":1}\n"), 0o644))

	store, err := OpenFileStore(path)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Load(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrIndexCorruption))
}

func TestFileStoreReset(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "passages.jsonl")
	store, err := OpenFileStore(path)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Append(ctx, model.IndexEntry{Seq: 1, ProvenanceID: 1, Kind: model.ProvenancePassage, Vector: []float32{1, 0, 0}, Live: true}))
	require.NoError(t, store.Reset(ctx))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
