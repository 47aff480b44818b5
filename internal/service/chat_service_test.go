package service

import (
	"context"
	"testing"

	"edu-rag-go/internal/intent"
	"edu-rag-go/internal/model"
	"edu-rag-go/internal/processing"
	"edu-rag-go/internal/retrieval"
	"edu-rag-go/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type chatHarness struct {
	svc       ChatService
	summaries *memSummaries
	machine   *processing.Machine
	answerer  *mockAnswerer
}

func newChatHarness() *chatHarness {
	h := &chatHarness{
		summaries: newSummaries(),
		machine:   processing.NewMachine(processing.NewMemoryStore()),
		answerer:  &mockAnswerer{},
	}
	h.svc = NewChatService(newHierarchy(), h.summaries, h.machine, h.answerer, "still processing")
	return h
}

func uintPtr(v uint) *uint { return &v }

var answered = model.ChatResult{Answer: "answer", Intent: model.IntentExplainTopic, Sources: []model.Source{{Kind: model.ProvenancePassage, ProvenanceID: 1}}}

func TestChat_SubjectScope(t *testing.T) {
	h := newChatHarness()
	h.answerer.On("Chat", mock.Anything, retrieval.Query{
		Text:  "what is a cell",
		Scope: model.Scope{OwnerID: 7, SubjectID: 1},
		Hints: intent.Hints{SubjectName: "Biology"},
	}).Return(answered, nil).Once()

	res, err := h.svc.Chat(context.Background(), owner, model.ChatRequest{Query: "  what is a cell ", SubjectID: 1})
	require.NoError(t, err)
	assert.Equal(t, "answer", res.Answer)
	h.answerer.AssertExpectations(t)
}

func TestChat_TopicScopeImpliesUnit(t *testing.T) {
	h := newChatHarness()
	h.answerer.On("Chat", mock.Anything, mock.MatchedBy(func(q retrieval.Query) bool {
		return q.Scope == model.Scope{OwnerID: 7, SubjectID: 1, UnitID: 100, TopicID: 11} &&
			q.Hints.UnitTitle == "Cells" && q.Hints.TopicTitle == "Organelles"
	})).Return(answered, nil).Once()

	_, err := h.svc.Chat(context.Background(), owner, model.ChatRequest{Query: "mitochondria", SubjectID: 1, TopicID: uintPtr(11)})
	require.NoError(t, err)
	h.answerer.AssertExpectations(t)
}

func TestChat_AdminSearchesOwnersContent(t *testing.T) {
	h := newChatHarness()
	h.answerer.On("Chat", mock.Anything, mock.MatchedBy(func(q retrieval.Query) bool {
		return q.Scope.OwnerID == 7
	})).Return(answered, nil).Once()

	_, err := h.svc.Chat(context.Background(), admin, model.ChatRequest{Query: "cells", SubjectID: 1})
	require.NoError(t, err)
	h.answerer.AssertExpectations(t)
}

func TestChat_InvalidRequests(t *testing.T) {
	h := newChatHarness()
	ctx := context.Background()

	_, err := h.svc.Chat(ctx, owner, model.ChatRequest{Query: "   ", SubjectID: 1})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = h.svc.Chat(ctx, stranger, model.ChatRequest{Query: "cells", SubjectID: 1})
	assert.ErrorIs(t, err, errs.ErrForbidden)

	_, err = h.svc.Chat(ctx, owner, model.ChatRequest{Query: "cells", SubjectID: 1, UnitID: uintPtr(200)})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = h.svc.Chat(ctx, owner, model.ChatRequest{Query: "cells", SubjectID: 1, UnitID: uintPtr(100), TopicID: uintPtr(20)})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = h.svc.Chat(ctx, owner, model.ChatRequest{Query: "cells", SubjectID: 9})
	assert.ErrorIs(t, err, errs.ErrNotFound)

	h.answerer.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything)
}

func TestChat_UnitStillProcessing(t *testing.T) {
	h := newChatHarness()
	ctx := context.Background()
	_, _, err := h.machine.MarkUploaded(ctx, 100)
	require.NoError(t, err)

	res, err := h.svc.Chat(ctx, owner, model.ChatRequest{Query: "cells", SubjectID: 1, UnitID: uintPtr(100)})
	require.NoError(t, err)
	assert.Equal(t, "still processing", res.Answer)
	assert.Empty(t, res.Sources)
	h.answerer.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything)
}

func TestChat_ReprocessingUnitWithSummaryIsAnswered(t *testing.T) {
	h := newChatHarness()
	ctx := context.Background()
	_, _, err := h.machine.MarkUploaded(ctx, 100)
	require.NoError(t, err)
	h.summaries.units[100] = model.UnitSummary{ID: 1, UnitID: 100, Text: "unit summary"}
	h.answerer.On("Chat", mock.Anything, mock.Anything).Return(answered, nil).Once()

	res, err := h.svc.Chat(ctx, owner, model.ChatRequest{Query: "cells", SubjectID: 1, UnitID: uintPtr(100)})
	require.NoError(t, err)
	assert.Equal(t, "answer", res.Answer)
	h.answerer.AssertExpectations(t)
}

func TestChat_GenerationErrorPropagates(t *testing.T) {
	h := newChatHarness()
	h.answerer.On("Chat", mock.Anything, mock.Anything).
		Return(model.ChatResult{}, errs.Newf(errs.KindGeneration, "retrieval.answer", "timeout"))

	_, err := h.svc.Chat(context.Background(), owner, model.ChatRequest{Query: "cells", SubjectID: 1})
	assert.ErrorIs(t, err, errs.ErrGeneration)
}
