// Package vectorindex 实现按 provenance 去重的向量最近邻索引。
//
// 索引内部是一个只追加的条目数组：每次 Add 追加一条新条目，
// 同一 (provenance id, kind) 的旧条目被标记删除，provenance→最新条目 的映射随之更新。
// 写操作由一把写锁串行化，并且先持久化再发布；检索只持有读锁，
// 因此只会看到某次 Add 之前或之后的完整状态。
package vectorindex

import (
	"context"
	"sort"
	"sync"
	"time"

	"edu-rag-go/internal/model"
	"edu-rag-go/pkg/errs"
	"edu-rag-go/pkg/log"
)

type provKey struct {
	id   uint
	kind model.ProvenanceKind
}

// Filter 限定检索范围，零值字段表示不限。
type Filter struct {
	Kinds     []model.ProvenanceKind
	OwnerID   uint
	SubjectID uint
	UnitID    uint
	TopicID   uint
}

func (f Filter) match(e *model.IndexEntry) bool {
	if len(f.Kinds) > 0 {
		ok := false
		for _, k := range f.Kinds {
			if k == e.Kind {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	s := e.Scope
	return (f.OwnerID == 0 || s.OwnerID == f.OwnerID) &&
		(f.SubjectID == 0 || s.SubjectID == f.SubjectID) &&
		(f.UnitID == 0 || s.UnitID == f.UnitID) &&
		(f.TopicID == 0 || s.TopicID == f.TopicID)
}

// Match 是一条检索结果。
type Match struct {
	ProvenanceID uint
	Kind         model.ProvenanceKind
	Scope        model.Scope
	Score        float64
	Seq          uint64
}

// Stats 是索引的条目统计。
type Stats struct {
	Live       int `json:"live"`
	Tombstoned int `json:"tombstoned"`
}

// Index 是一个向量索引实例。
type Index struct {
	name  string
	dim   int
	kinds map[model.ProvenanceKind]bool
	store Store

	writeMu sync.Mutex

	mu      sync.RWMutex
	entries []model.IndexEntry
	latest  map[provKey]int
	nextSeq uint64
}

// New 创建索引。kinds 是该索引接受的 provenance 类型。
func New(name string, dim int, store Store, kinds ...model.ProvenanceKind) *Index {
	allowed := make(map[model.ProvenanceKind]bool, len(kinds))
	for _, k := range kinds {
		allowed[k] = true
	}
	return &Index{
		name:   name,
		dim:    dim,
		kinds:  allowed,
		store:  store,
		latest: make(map[provKey]int),
	}
}

func (ix *Index) Name() string   { return ix.name }
func (ix *Index) Dimension() int { return ix.dim }

// Accepts 判断索引是否接受某种 provenance 类型。
func (ix *Index) Accepts(kind model.ProvenanceKind) bool {
	return ix.kinds[kind]
}

// Open 从 Store 加载条目。维度或类型不符时返回 IndexCorruption。
// 同一 provenance 出现多个存活条目时（上次写入在标记旧条目前中断），保留 seq 最大的一条。
func (ix *Index) Open(ctx context.Context) error {
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()

	loaded, err := ix.store.Load(ctx)
	if err != nil {
		return err
	}
	sort.Slice(loaded, func(i, j int) bool { return loaded[i].Seq < loaded[j].Seq })

	var maxSeq uint64
	entries := make([]model.IndexEntry, 0, len(loaded))
	latest := make(map[provKey]int)
	var stale []uint64
	for i, e := range loaded {
		if i > 0 && e.Seq == loaded[i-1].Seq {
			return errs.Newf(errs.KindIndexCorruption, "vectorindex.open", "%s: seq %d 重复", ix.name, e.Seq)
		}
		if len(e.Vector) != ix.dim {
			return errs.Newf(errs.KindIndexCorruption, "vectorindex.open", "%s: seq %d 维度为 %d, 期望 %d", ix.name, e.Seq, len(e.Vector), ix.dim)
		}
		if !ix.kinds[e.Kind] {
			return errs.Newf(errs.KindIndexCorruption, "vectorindex.open", "%s: seq %d 类型 %q 不属于该索引", ix.name, e.Seq, e.Kind)
		}
		if e.Seq > maxSeq {
			maxSeq = e.Seq
		}
		if !e.Live {
			continue
		}
		k := provKey{e.ProvenanceID, e.Kind}
		if prev, ok := latest[k]; ok {
			entries[prev].Live = false
			stale = append(stale, entries[prev].Seq)
		}
		entries = append(entries, e)
		latest[k] = len(entries) - 1
	}

	for _, seq := range stale {
		if err := ix.store.Tombstone(ctx, seq); err != nil {
			log.Warnf("[VectorIndex] %s: 修复重复条目 seq=%d 失败: %v", ix.name, seq, err)
		}
	}

	ix.mu.Lock()
	ix.entries = entries
	ix.latest = latest
	ix.nextSeq = maxSeq
	ix.mu.Unlock()

	log.Infof("[VectorIndex] %s 加载完成, 存活条目 %d, 已修复重复 %d", ix.name, len(latest), len(stale))
	return nil
}

// Add 写入一条向量。已有同一 provenance 的存活条目时，旧条目被标记删除，新条目成为存活条目。
func (ix *Index) Add(ctx context.Context, provenanceID uint, kind model.ProvenanceKind, scope model.Scope, vector []float32) (model.IndexEntry, error) {
	if !ix.kinds[kind] {
		return model.IndexEntry{}, errs.Newf(errs.KindInvalidInput, "vectorindex.add", "%s 不接受类型 %q", ix.name, kind)
	}
	if len(vector) != ix.dim {
		return model.IndexEntry{}, errs.Newf(errs.KindInvalidInput, "vectorindex.add", "%s: 向量维度 %d 与索引维度 %d 不一致", ix.name, len(vector), ix.dim)
	}

	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()

	key := provKey{provenanceID, kind}
	ix.mu.RLock()
	prevIdx, hasPrev := ix.latest[key]
	var prevSeq uint64
	if hasPrev {
		prevSeq = ix.entries[prevIdx].Seq
	}
	seq := ix.nextSeq + 1
	ix.mu.RUnlock()

	entry := model.IndexEntry{
		Seq:          seq,
		ProvenanceID: provenanceID,
		Kind:         kind,
		Scope:        scope,
		Vector:       append([]float32(nil), vector...),
		Live:         true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := ix.store.Append(ctx, entry); err != nil {
		return model.IndexEntry{}, err
	}
	if hasPrev {
		if err := ix.store.Tombstone(ctx, prevSeq); err != nil {
			// 新条目已落盘，下次加载时按 seq 去重，这里只记录
			log.Warnf("[VectorIndex] %s: 标记旧条目 seq=%d 删除失败: %v", ix.name, prevSeq, err)
		}
	}

	ix.mu.Lock()
	if hasPrev {
		ix.entries[prevIdx].Live = false
	}
	ix.entries = append(ix.entries, entry)
	ix.latest[key] = len(ix.entries) - 1
	ix.nextSeq = seq
	ix.mu.Unlock()

	return entry, nil
}

// Remove 把某个 provenance 的存活条目标记删除，不存在时返回 false。
func (ix *Index) Remove(ctx context.Context, provenanceID uint, kind model.ProvenanceKind) (bool, error) {
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()

	key := provKey{provenanceID, kind}
	ix.mu.RLock()
	idx, ok := ix.latest[key]
	var seq uint64
	if ok {
		seq = ix.entries[idx].Seq
	}
	ix.mu.RUnlock()
	if !ok {
		return false, nil
	}

	if err := ix.store.Tombstone(ctx, seq); err != nil {
		return false, err
	}

	ix.mu.Lock()
	ix.entries[idx].Live = false
	delete(ix.latest, key)
	ix.mu.Unlock()
	return true, nil
}

// Search 返回最多 k 个满足过滤条件的存活条目，按相似度降序；相似度相同时后写入的排在前面。
func (ix *Index) Search(_ context.Context, query []float32, k int, f Filter) ([]Match, error) {
	if len(query) != ix.dim {
		return nil, errs.Newf(errs.KindInvalidInput, "vectorindex.search", "%s: 查询向量维度 %d 与索引维度 %d 不一致", ix.name, len(query), ix.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	ix.mu.RLock()
	matches := make([]Match, 0, len(ix.latest))
	for i := range ix.entries {
		e := &ix.entries[i]
		if !e.Live || !f.match(e) {
			continue
		}
		matches = append(matches, Match{
			ProvenanceID: e.ProvenanceID,
			Kind:         e.Kind,
			Scope:        e.Scope,
			Score:        cosineSim(query, e.Vector),
			Seq:          e.Seq,
		})
	}
	ix.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Seq > matches[j].Seq
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Get 返回某个 provenance 的存活条目。
func (ix *Index) Get(provenanceID uint, kind model.ProvenanceKind) (model.IndexEntry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	idx, ok := ix.latest[provKey{provenanceID, kind}]
	if !ok {
		return model.IndexEntry{}, false
	}
	return ix.entries[idx], true
}

// Stats 返回存活与已删除条目的数量。
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return Stats{Live: len(ix.latest), Tombstoned: len(ix.entries) - len(ix.latest)}
}

// Reset 清空 Store 和内存中的全部条目，seq 继续递增。
func (ix *Index) Reset(ctx context.Context) error {
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()

	if err := ix.store.Reset(ctx); err != nil {
		return err
	}
	ix.mu.Lock()
	ix.entries = nil
	ix.latest = make(map[provKey]int)
	ix.mu.Unlock()
	return nil
}
