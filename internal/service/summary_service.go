package service

import (
	"context"

	"edu-rag-go/internal/model"
	"edu-rag-go/internal/repository"
	"edu-rag-go/pkg/errs"
	"edu-rag-go/pkg/log"
)

// SummaryBuilder 生成并索引摘要，由 pipeline.SummaryBuilder 实现。
type SummaryBuilder interface {
	BuildTopicSummary(ctx context.Context, scope model.UnitScope, topic model.Topic) (*model.TopicSummary, error)
	BuildUnitSummary(ctx context.Context, scope model.UnitScope) (*model.UnitSummary, error)
}

// SummaryService 手动生成和读取摘要，不修改单元的处理状态。
type SummaryService interface {
	SummarizeTopic(ctx context.Context, id model.Identity, topicID uint) (*model.TopicSummary, error)
	SummarizeUnit(ctx context.Context, id model.Identity, unitID uint) (*model.UnitSummary, error)
	GetTopicSummary(ctx context.Context, id model.Identity, topicID uint) (*model.TopicSummary, error)
	GetUnitSummary(ctx context.Context, id model.Identity, unitID uint) (*model.UnitSummary, error)
}

type summaryService struct {
	hierarchy repository.HierarchyRepository
	summaries repository.SummaryRepository
	builder   SummaryBuilder
}

func NewSummaryService(hierarchy repository.HierarchyRepository, summaries repository.SummaryRepository, builder SummaryBuilder) SummaryService {
	return &summaryService{hierarchy: hierarchy, summaries: summaries, builder: builder}
}

func (s *summaryService) SummarizeTopic(ctx context.Context, id model.Identity, topicID uint) (*model.TopicSummary, error) {
	scope, topic, err := authorizeTopic(ctx, s.hierarchy, id, topicID)
	if err != nil {
		return nil, err
	}
	sum, err := s.builder.BuildTopicSummary(ctx, *scope, *topic)
	if err != nil {
		log.Warnf("[SummaryService] 手动生成主题 %d 摘要失败: %v", topicID, err)
		return nil, err
	}
	return sum, nil
}

func (s *summaryService) SummarizeUnit(ctx context.Context, id model.Identity, unitID uint) (*model.UnitSummary, error) {
	scope, err := authorizeUnit(ctx, s.hierarchy, id, unitID)
	if err != nil {
		return nil, err
	}
	sum, err := s.builder.BuildUnitSummary(ctx, *scope)
	if err != nil {
		log.Warnf("[SummaryService] 手动生成单元 %d 摘要失败: %v", unitID, err)
		return nil, err
	}
	return sum, nil
}

func (s *summaryService) GetTopicSummary(ctx context.Context, id model.Identity, topicID uint) (*model.TopicSummary, error) {
	if _, _, err := authorizeTopic(ctx, s.hierarchy, id, topicID); err != nil {
		return nil, err
	}
	sum, err := s.summaries.FindTopicSummary(ctx, topicID)
	if err != nil {
		return nil, err
	}
	if sum == nil {
		return nil, errs.Newf(errs.KindNotFound, "summary.get_topic", "主题 %d 还没有摘要", topicID)
	}
	return sum, nil
}

func (s *summaryService) GetUnitSummary(ctx context.Context, id model.Identity, unitID uint) (*model.UnitSummary, error) {
	if _, err := authorizeUnit(ctx, s.hierarchy, id, unitID); err != nil {
		return nil, err
	}
	sum, err := s.summaries.FindUnitSummary(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if sum == nil {
		return nil, errs.Newf(errs.KindNotFound, "summary.get_unit", "单元 %d 还没有摘要", unitID)
	}
	return sum, nil
}
