package processing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"edu-rag-go/internal/model"
	"edu-rag-go/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUnknownUnitIsEmpty(t *testing.T) {
	m := NewMachine(NewMemoryStore())

	st, err := m.Get(context.Background(), 4)

	require.NoError(t, err)
	assert.Equal(t, model.StatusEmpty, st.Status)
	assert.Equal(t, uint(4), st.UnitID)
}

func TestGetHasNoSideEffects(t *testing.T) {
	store := NewMemoryStore()
	m := NewMachine(store)

	_, _ = m.Get(context.Background(), 4)

	found, err := store.Find(context.Background(), 4)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestHappyPath(t *testing.T) {
	ctx := context.Background()
	m := NewMachine(NewMemoryStore())

	st, queued, err := m.MarkUploaded(ctx, 1)
	require.NoError(t, err)
	assert.True(t, queued)
	assert.Equal(t, model.StatusUploaded, st.Status)
	assert.True(t, st.HasFiles)

	runID, err := m.Claim(ctx, 1)
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	n := 12
	require.NoError(t, m.Progress(ctx, 1, runID, Changes{PassageCount: &n}))
	st, _ = m.Get(ctx, 1)
	assert.Equal(t, model.StatusProcessing, st.Status)
	assert.Equal(t, 12, st.PassageCount)
	assert.False(t, st.EmbeddingsReady)

	require.NoError(t, m.Complete(ctx, 1, runID, 12))
	st, _ = m.Get(ctx, 1)
	assert.Equal(t, model.StatusReady, st.Status)
	assert.True(t, st.EmbeddingsReady)
	assert.Empty(t, st.LastError)
}

func TestFailureRecordsLastErrorAndReuploadReenters(t *testing.T) {
	ctx := context.Background()
	m := NewMachine(NewMemoryStore())
	_, _, _ = m.MarkUploaded(ctx, 1)
	runID, _ := m.Claim(ctx, 1)

	require.NoError(t, m.Fail(ctx, 1, runID, "向量化失败: status 503"))
	st, _ := m.Get(ctx, 1)
	assert.Equal(t, model.StatusFailed, st.Status)
	assert.Equal(t, "向量化失败: status 503", st.LastError)

	st, queued, err := m.MarkUploaded(ctx, 1)
	require.NoError(t, err)
	assert.True(t, queued)
	assert.Equal(t, model.StatusUploaded, st.Status)

	// 新一轮开始时清空上一次的错误
	_, err = m.Claim(ctx, 1)
	require.NoError(t, err)
	st, _ = m.Get(ctx, 1)
	assert.Empty(t, st.LastError)
}

func TestUploadWhileProcessingIsDeferred(t *testing.T) {
	ctx := context.Background()
	m := NewMachine(NewMemoryStore())
	_, _, _ = m.MarkUploaded(ctx, 1)
	_, _ = m.Claim(ctx, 1)

	st, queued, err := m.MarkUploaded(ctx, 1)

	require.NoError(t, err)
	assert.False(t, queued)
	assert.Equal(t, model.StatusProcessing, st.Status)
}

func TestClaimRejectsSecondWorker(t *testing.T) {
	ctx := context.Background()
	m := NewMachine(NewMemoryStore())
	_, _, _ = m.MarkUploaded(ctx, 1)
	_, err := m.Claim(ctx, 1)
	require.NoError(t, err)

	_, err = m.Claim(ctx, 1)

	assert.True(t, errors.Is(err, errs.ErrConcurrencyConflict))
}

func TestClaimRequiresUploaded(t *testing.T) {
	ctx := context.Background()
	m := NewMachine(NewMemoryStore())

	_, err := m.Claim(ctx, 1)
	assert.True(t, errors.Is(err, errs.ErrPrecondition))
}

func TestConcurrentClaimsExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	m := NewMachine(NewMemoryStore())
	_, _, _ = m.MarkUploaded(ctx, 1)

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Claim(ctx, 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, errs.ErrConcurrencyConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, workers-1, conflicts)
}

func TestStaleRunCannotUpdate(t *testing.T) {
	ctx := context.Background()
	m := NewMachine(NewMemoryStore())
	_, _, _ = m.MarkUploaded(ctx, 1)
	runID, _ := m.Claim(ctx, 1)

	err := m.Complete(ctx, 1, "other-run", 3)
	assert.True(t, errors.Is(err, errs.ErrConcurrencyConflict))

	require.NoError(t, m.Complete(ctx, 1, runID, 3))
	err = m.Fail(ctx, 1, runID, "late failure")
	assert.True(t, errors.Is(err, errs.ErrConcurrencyConflict))
	st, _ := m.Get(ctx, 1)
	assert.Equal(t, model.StatusReady, st.Status)
}

func TestRequeueOnlyFromFailed(t *testing.T) {
	ctx := context.Background()
	m := NewMachine(NewMemoryStore())
	_, _, _ = m.MarkUploaded(ctx, 1)

	ok, err := m.Requeue(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	runID, _ := m.Claim(ctx, 1)
	_ = m.Fail(ctx, 1, runID, "boom")
	ok, err = m.Requeue(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTransitionTable(t *testing.T) {
	assert.True(t, CanTransition(model.StatusEmpty, model.StatusUploaded))
	assert.True(t, CanTransition(model.StatusReady, model.StatusUploaded))
	assert.True(t, CanTransition(model.StatusFailed, model.StatusUploaded))
	assert.True(t, CanTransition(model.StatusProcessing, model.StatusFailed))
	assert.False(t, CanTransition(model.StatusEmpty, model.StatusProcessing))
	assert.False(t, CanTransition(model.StatusReady, model.StatusProcessing))
	assert.False(t, CanTransition(model.StatusFailed, model.StatusReady))
	assert.False(t, CanTransition(model.StatusProcessing, model.StatusUploaded))
	assert.ElementsMatch(t,
		[]model.ProcessingStatus{model.StatusEmpty, model.StatusUploaded, model.StatusReady, model.StatusFailed},
		sourcesOf(model.StatusUploaded))
}

func TestClaimTakesOverAbandonedRun(t *testing.T) {
	ctx := context.Background()
	m := NewMachine(NewMemoryStore())
	m.SetRunTimeout(10 * time.Minute)
	_, _, err := m.MarkUploaded(ctx, 1)
	require.NoError(t, err)
	oldRun, err := m.Claim(ctx, 1)
	require.NoError(t, err)

	// 租约内不接管
	_, err = m.Claim(ctx, 1)
	assert.ErrorIs(t, err, errs.ErrConcurrencyConflict)
	before, _ := m.Get(ctx, 1)
	assert.False(t, m.Stale(before))

	m.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	st, _ := m.Get(ctx, 1)
	assert.True(t, m.Stale(st))
	newRun, err := m.Claim(ctx, 1)
	require.NoError(t, err)
	assert.NotEqual(t, oldRun, newRun)

	// 旧任务的写入全部失效
	assert.ErrorIs(t, m.Fail(ctx, 1, oldRun, "late"), errs.ErrConcurrencyConflict)
	require.NoError(t, m.Complete(ctx, 1, newRun, 3))
	st, _ = m.Get(ctx, 1)
	assert.Equal(t, model.StatusReady, st.Status)
	assert.Equal(t, 3, st.PassageCount)
}

func TestClaimWithoutRunTimeoutNeverTakesOver(t *testing.T) {
	ctx := context.Background()
	m := NewMachine(NewMemoryStore())
	_, _, err := m.MarkUploaded(ctx, 1)
	require.NoError(t, err)
	_, err = m.Claim(ctx, 1)
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(24 * time.Hour) }
	_, err = m.Claim(ctx, 1)
	assert.ErrorIs(t, err, errs.ErrConcurrencyConflict)
}
