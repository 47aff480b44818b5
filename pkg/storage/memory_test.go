package storage

import (
	"context"
	"testing"

	"edu-rag-go/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	data := []byte("hello")
	require.NoError(t, s.Put(ctx, "documents/1/a.txt", data, "text/plain"))
	data[0] = 'j'

	got, err := s.Get(ctx, "documents/1/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	require.NoError(t, s.Delete(ctx, "documents/1/a.txt"))
	_, err = s.Get(ctx, "documents/1/a.txt")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
