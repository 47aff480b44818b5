package vectorindex

import (
	"context"
	"sync"

	"edu-rag-go/internal/model"
)

// Store 是索引的持久化后端。Index 先写 Store 再对检索可见。
type Store interface {
	// Load 返回全部已持久化的条目（包括已标记删除的），顺序不限。
	Load(ctx context.Context) ([]model.IndexEntry, error)
	Append(ctx context.Context, e model.IndexEntry) error
	Tombstone(ctx context.Context, seq uint64) error
	// Reset 清空后端，用于重建索引。
	Reset(ctx context.Context) error
}

// MemoryStore 是不落盘的 Store，用于测试和本地开发。
type MemoryStore struct {
	mu      sync.Mutex
	entries map[uint64]model.IndexEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[uint64]model.IndexEntry)}
}

func (s *MemoryStore) Load(_ context.Context) ([]model.IndexEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.IndexEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out, nil
}

func (s *MemoryStore) Append(_ context.Context, e model.IndexEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.Seq] = e
	return nil
}

func (s *MemoryStore) Tombstone(_ context.Context, seq uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[seq]; ok {
		e.Live = false
		s.entries[seq] = e
	}
	return nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[uint64]model.IndexEntry)
	return nil
}
