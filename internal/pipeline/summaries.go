package pipeline

import (
	"context"
	"time"

	"edu-rag-go/internal/model"
	"edu-rag-go/internal/repository"
	"edu-rag-go/internal/summarizer"
	"edu-rag-go/pkg/errs"
	"edu-rag-go/pkg/log"
)

// Embedder 是向量化能力，embedding.Client 满足该接口。
type Embedder interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// IndexWriter 是向量索引的写入视图，*vectorindex.Index 满足该接口。
type IndexWriter interface {
	Add(ctx context.Context, provenanceID uint, kind model.ProvenanceKind, scope model.Scope, vector []float32) (model.IndexEntry, error)
	Remove(ctx context.Context, provenanceID uint, kind model.ProvenanceKind) (bool, error)
}

// SummaryBuilder 负责生成、保存并索引主题摘要和单元摘要。
// 生成、向量化或写索引失败时已有摘要保持不变。
type SummaryBuilder struct {
	hierarchy  repository.HierarchyRepository
	passages   repository.PassageRepository
	summaries  repository.SummaryRepository
	summarizer *summarizer.Summarizer
	embedder   Embedder
	index      IndexWriter
}

func NewSummaryBuilder(
	hierarchy repository.HierarchyRepository,
	passages repository.PassageRepository,
	summaries repository.SummaryRepository,
	sum *summarizer.Summarizer,
	embedder Embedder,
	index IndexWriter,
) *SummaryBuilder {
	return &SummaryBuilder{
		hierarchy:  hierarchy,
		passages:   passages,
		summaries:  summaries,
		summarizer: sum,
		embedder:   embedder,
		index:      index,
	}
}

// BuildTopicSummary 要求主题下所有分块都已向量化。
func (b *SummaryBuilder) BuildTopicSummary(ctx context.Context, scope model.UnitScope, topic model.Topic) (*model.TopicSummary, error) {
	const op = "summary.topic"
	total, unembedded, err := b.passages.CountByTopic(ctx, topic.ID)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, errs.Newf(errs.KindPrecondition, op, "主题 %q 还没有任何分块", topic.Title)
	}
	if unembedded > 0 {
		return nil, errs.Newf(errs.KindPrecondition, op, "主题 %q 还有 %d 个分块未完成向量化", topic.Title, unembedded)
	}

	passages, err := b.passages.ListByTopic(ctx, topic.ID)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	res, err := b.summarizer.SummarizeTopic(ctx, summarizer.TopicInput{
		SubjectName: scope.Subject.Name,
		UnitTitle:   scope.Unit.Title,
		TopicTitle:  topic.Title,
		Passages:    texts,
	})
	if err != nil {
		return nil, err
	}
	vec, err := b.embedder.CreateEmbedding(ctx, res.Text)
	if err != nil {
		return nil, err
	}

	prev, err := b.summaries.FindTopicSummary(ctx, topic.ID)
	if err != nil {
		return nil, err
	}
	s := &model.TopicSummary{
		TopicID:     topic.ID,
		UnitID:      scope.Unit.ID,
		Text:        res.Text,
		TokenCount:  res.TokenCount,
		SourceCount: res.SourceCount,
		GeneratedAt: time.Now(),
	}
	if err := b.summaries.SaveTopicSummary(ctx, s); err != nil {
		return nil, err
	}
	entryScope := model.Scope{OwnerID: scope.Subject.UserID, SubjectID: scope.Subject.ID, UnitID: scope.Unit.ID, TopicID: topic.ID}
	if _, err := b.index.Add(ctx, s.ID, model.ProvenanceTopicSummary, entryScope, vec); err != nil {
		// 索引里仍是旧摘要的向量，行也要回到旧摘要
		if prev != nil {
			if rerr := b.summaries.SaveTopicSummary(ctx, prev); rerr != nil {
				log.Errorf("[SummaryBuilder] 主题 %d 恢复旧摘要失败: %v", topic.ID, rerr)
			}
		}
		return nil, err
	}
	if err := b.summaries.MarkTopicSummaryEmbedded(ctx, s.ID, true); err != nil {
		return nil, err
	}
	s.Embedded = true
	log.Infof("[SummaryBuilder] 主题 %d 摘要已更新, summaryID: %d", topic.ID, s.ID)
	return s, nil
}

// BuildUnitSummary 要求单元下每个有分块的主题都已有摘要。没有文档的主题不参与。
func (b *SummaryBuilder) BuildUnitSummary(ctx context.Context, scope model.UnitScope) (*model.UnitSummary, error) {
	const op = "summary.unit"
	topics, err := b.hierarchy.ListTopics(ctx, scope.Unit.ID)
	if err != nil {
		return nil, err
	}
	var sections []summarizer.TopicSection
	for _, t := range topics {
		total, _, err := b.passages.CountByTopic(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		if total == 0 {
			continue
		}
		ts, err := b.summaries.FindTopicSummary(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		if ts == nil {
			return nil, errs.Newf(errs.KindPrecondition, op, "主题 %q 尚未生成摘要", t.Title)
		}
		sections = append(sections, summarizer.TopicSection{Title: t.Title, Text: ts.Text})
	}
	if len(sections) == 0 {
		return nil, errs.Newf(errs.KindPrecondition, op, "单元 %q 没有可摘要的主题", scope.Unit.Title)
	}

	res, err := b.summarizer.SummarizeUnit(ctx, summarizer.UnitInput{
		SubjectName: scope.Subject.Name,
		UnitTitle:   scope.Unit.Title,
		Topics:      sections,
	})
	if err != nil {
		return nil, err
	}
	vec, err := b.embedder.CreateEmbedding(ctx, res.Text)
	if err != nil {
		return nil, err
	}

	prev, err := b.summaries.FindUnitSummary(ctx, scope.Unit.ID)
	if err != nil {
		return nil, err
	}
	s := &model.UnitSummary{
		UnitID:      scope.Unit.ID,
		Text:        res.Text,
		TokenCount:  res.TokenCount,
		SourceCount: res.SourceCount,
		GeneratedAt: time.Now(),
	}
	if err := b.summaries.SaveUnitSummary(ctx, s); err != nil {
		return nil, err
	}
	entryScope := model.Scope{OwnerID: scope.Subject.UserID, SubjectID: scope.Subject.ID, UnitID: scope.Unit.ID}
	if _, err := b.index.Add(ctx, s.ID, model.ProvenanceUnitSummary, entryScope, vec); err != nil {
		if prev != nil {
			if rerr := b.summaries.SaveUnitSummary(ctx, prev); rerr != nil {
				log.Errorf("[SummaryBuilder] 单元 %d 恢复旧摘要失败: %v", scope.Unit.ID, rerr)
			}
		}
		return nil, err
	}
	if err := b.summaries.MarkUnitSummaryEmbedded(ctx, s.ID, true); err != nil {
		return nil, err
	}
	s.Embedded = true
	log.Infof("[SummaryBuilder] 单元 %d 摘要已更新, summaryID: %d", scope.Unit.ID, s.ID)
	return s, nil
}
