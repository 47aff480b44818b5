package retrieval

import (
	"context"

	"edu-rag-go/internal/model"
	"edu-rag-go/internal/repository"
)

type repositoryResolver struct {
	passages  repository.PassageRepository
	summaries repository.SummaryRepository
}

// NewResolver 从关系库中查出分块和摘要的文本。
func NewResolver(passages repository.PassageRepository, summaries repository.SummaryRepository) Resolver {
	return &repositoryResolver{passages: passages, summaries: summaries}
}

func (r *repositoryResolver) Resolve(ctx context.Context, kind model.ProvenanceKind, ids []uint) (map[uint]string, error) {
	out := make(map[uint]string, len(ids))
	switch kind {
	case model.ProvenancePassage:
		rows, err := r.passages.FindByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, p := range rows {
			out[p.ID] = p.Text
		}
	case model.ProvenanceTopicSummary:
		rows, err := r.summaries.TopicSummariesByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, s := range rows {
			out[s.ID] = s.Text
		}
	case model.ProvenanceUnitSummary:
		rows, err := r.summaries.UnitSummariesByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, s := range rows {
			out[s.ID] = s.Text
		}
	}
	return out, nil
}
