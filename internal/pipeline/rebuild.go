package pipeline

import (
	"context"

	"edu-rag-go/internal/model"
	"edu-rag-go/internal/repository"
	"edu-rag-go/pkg/log"
)

// ResettableIndex 是可以清空重建的索引。
type ResettableIndex interface {
	IndexWriter
	Name() string
	Reset(ctx context.Context) error
}

// Rebuilder 在索引损坏时从关系库重新生成全部索引条目。
type Rebuilder struct {
	hierarchy repository.HierarchyRepository
	passages  repository.PassageRepository
	summaries repository.SummaryRepository
	embedder  Embedder
	batchSize int
}

func NewRebuilder(hierarchy repository.HierarchyRepository, passages repository.PassageRepository,
	summaries repository.SummaryRepository, embedder Embedder) *Rebuilder {
	return &Rebuilder{hierarchy: hierarchy, passages: passages, summaries: summaries, embedder: embedder, batchSize: 200}
}

type scopeCache struct {
	hierarchy repository.HierarchyRepository
	units     map[uint]*model.UnitScope
}

func (c *scopeCache) get(ctx context.Context, unitID uint) (*model.UnitScope, error) {
	if s, ok := c.units[unitID]; ok {
		return s, nil
	}
	s, err := c.hierarchy.FindUnitScope(ctx, unitID)
	if err != nil {
		return nil, err
	}
	c.units[unitID] = s
	return s, nil
}

// RebuildPassages 清空分块索引并重新向量化全部分块，返回写入的条目数。
func (r *Rebuilder) RebuildPassages(ctx context.Context, ix ResettableIndex) (int, error) {
	if err := ix.Reset(ctx); err != nil {
		return 0, err
	}
	cache := &scopeCache{hierarchy: r.hierarchy, units: make(map[uint]*model.UnitScope)}
	var (
		after uint
		n     int
	)
	for {
		batch, err := r.passages.FindBatch(ctx, after, r.batchSize)
		if err != nil {
			return n, err
		}
		if len(batch) == 0 {
			break
		}
		for _, p := range batch {
			after = p.ID
			scope, err := cache.get(ctx, p.UnitID)
			if err != nil {
				return n, err
			}
			vec, err := r.embedder.CreateEmbedding(ctx, p.Text)
			if err != nil {
				return n, err
			}
			entryScope := model.Scope{OwnerID: scope.Subject.UserID, SubjectID: scope.Subject.ID, UnitID: p.UnitID, TopicID: p.TopicID}
			if _, err := ix.Add(ctx, p.ID, model.ProvenancePassage, entryScope, vec); err != nil {
				return n, err
			}
			if !p.Embedded {
				if err := r.passages.MarkEmbedded(ctx, []uint{p.ID}); err != nil {
					return n, err
				}
			}
			n++
		}
		log.Infof("[Rebuilder] %s 已重建 %d 条", ix.Name(), n)
	}
	return n, nil
}

// RebuildSummaries 清空摘要索引并重新向量化全部主题摘要和单元摘要。
func (r *Rebuilder) RebuildSummaries(ctx context.Context, ix ResettableIndex) (int, error) {
	if err := ix.Reset(ctx); err != nil {
		return 0, err
	}
	cache := &scopeCache{hierarchy: r.hierarchy, units: make(map[uint]*model.UnitScope)}
	n := 0

	topics, err := r.summaries.AllTopicSummaries(ctx)
	if err != nil {
		return 0, err
	}
	for _, s := range topics {
		scope, err := cache.get(ctx, s.UnitID)
		if err != nil {
			return n, err
		}
		vec, err := r.embedder.CreateEmbedding(ctx, s.Text)
		if err != nil {
			return n, err
		}
		entryScope := model.Scope{OwnerID: scope.Subject.UserID, SubjectID: scope.Subject.ID, UnitID: s.UnitID, TopicID: s.TopicID}
		if _, err := ix.Add(ctx, s.ID, model.ProvenanceTopicSummary, entryScope, vec); err != nil {
			return n, err
		}
		if err := r.summaries.MarkTopicSummaryEmbedded(ctx, s.ID, true); err != nil {
			return n, err
		}
		n++
	}

	units, err := r.summaries.AllUnitSummaries(ctx)
	if err != nil {
		return n, err
	}
	for _, s := range units {
		scope, err := cache.get(ctx, s.UnitID)
		if err != nil {
			return n, err
		}
		vec, err := r.embedder.CreateEmbedding(ctx, s.Text)
		if err != nil {
			return n, err
		}
		entryScope := model.Scope{OwnerID: scope.Subject.UserID, SubjectID: scope.Subject.ID, UnitID: s.UnitID}
		if _, err := ix.Add(ctx, s.ID, model.ProvenanceUnitSummary, entryScope, vec); err != nil {
			return n, err
		}
		if err := r.summaries.MarkUnitSummaryEmbedded(ctx, s.ID, true); err != nil {
			return n, err
		}
		n++
	}
	log.Infof("[Rebuilder] %s 已重建 %d 条", ix.Name(), n)
	return n, nil
}
