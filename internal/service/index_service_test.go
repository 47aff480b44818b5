package service

import (
	"context"
	"testing"

	"edu-rag-go/internal/model"
	"edu-rag-go/internal/vectorindex"
	"edu-rag-go/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func corruptStore(t *testing.T) *vectorindex.MemoryStore {
	s := vectorindex.NewMemoryStore()
	// 维度与索引不一致
	require.NoError(t, s.Append(context.Background(), model.IndexEntry{Seq: 1, ProvenanceID: 1, Kind: model.ProvenancePassage, Vector: []float32{1}, Live: true}))
	return s
}

func newIndexes(passageStore vectorindex.Store) (*vectorindex.Index, *vectorindex.Index) {
	passages := vectorindex.New("passages", 2, passageStore, model.ProvenancePassage)
	summaries := vectorindex.New("summaries", 2, vectorindex.NewMemoryStore(), model.ProvenanceTopicSummary, model.ProvenanceUnitSummary)
	return passages, summaries
}

func TestIndexOpen_RebuildsCorruptIndex(t *testing.T) {
	passages, summaries := newIndexes(corruptStore(t))
	rb := &mockRebuilder{}
	rb.On("RebuildPassages", mock.Anything, passages).Return(4, nil).Once()

	svc := NewIndexService(passages, summaries, rb, true)
	require.NoError(t, svc.Open(context.Background()))
	rb.AssertExpectations(t)
	rb.AssertNotCalled(t, "RebuildSummaries", mock.Anything, mock.Anything)
}

func TestIndexOpen_CorruptionWithoutRebuild(t *testing.T) {
	passages, summaries := newIndexes(corruptStore(t))
	rb := &mockRebuilder{}

	svc := NewIndexService(passages, summaries, rb, false)
	err := svc.Open(context.Background())
	assert.ErrorIs(t, err, errs.ErrIndexCorruption)
	rb.AssertNotCalled(t, "RebuildPassages", mock.Anything, mock.Anything)
}

func TestIndexRebuild(t *testing.T) {
	passages, summaries := newIndexes(vectorindex.NewMemoryStore())
	rb := &mockRebuilder{}
	rb.On("RebuildPassages", mock.Anything, passages).Return(5, nil)
	rb.On("RebuildSummaries", mock.Anything, summaries).Return(2, nil)
	svc := NewIndexService(passages, summaries, rb, true)

	counts, err := svc.Rebuild(context.Background(), IndexAll)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{IndexPassages: 5, IndexSummaries: 2}, counts)

	counts, err = svc.Rebuild(context.Background(), IndexSummaries)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{IndexSummaries: 2}, counts)

	_, err = svc.Rebuild(context.Background(), "bogus")
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	stats := svc.Stats()
	assert.Contains(t, stats, IndexPassages)
	assert.Contains(t, stats, IndexSummaries)
}
