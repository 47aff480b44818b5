package processing

import (
	"context"
	"sync"
	"time"

	"edu-rag-go/internal/model"
)

// MemoryStore 是进程内的 Store，用于测试和单机模式。
type MemoryStore struct {
	mu     sync.Mutex
	states map[uint]model.ProcessingState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[uint]model.ProcessingState)}
}

func (s *MemoryStore) Find(_ context.Context, unitID uint) (*model.ProcessingState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[unitID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (s *MemoryStore) Ensure(_ context.Context, unitID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[unitID]; !ok {
		s.states[unitID] = model.ProcessingState{UnitID: unitID, Status: model.StatusEmpty, UpdatedAt: time.Now()}
	}
	return nil
}

func (s *MemoryStore) Transition(_ context.Context, unitID uint, from []model.ProcessingStatus, runID string, ch Changes) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[unitID]
	if !ok {
		return false, nil
	}
	if !containsStatus(from, st.Status) || (runID != "" && st.RunID != runID) {
		return false, nil
	}
	st.Status = ch.Status
	if ch.HasFiles != nil {
		st.HasFiles = *ch.HasFiles
	}
	if ch.PassageCount != nil {
		st.PassageCount = *ch.PassageCount
	}
	if ch.EmbeddingsReady != nil {
		st.EmbeddingsReady = *ch.EmbeddingsReady
	}
	if ch.LastError != nil {
		st.LastError = *ch.LastError
	}
	if ch.RunID != nil {
		st.RunID = *ch.RunID
	}
	st.UpdatedAt = time.Now()
	s.states[unitID] = st
	return true, nil
}

func containsStatus(set []model.ProcessingStatus, s model.ProcessingStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
