package service

import (
	"context"
	"errors"
	"fmt"

	"edu-rag-go/internal/pipeline"
	"edu-rag-go/internal/vectorindex"
	"edu-rag-go/pkg/errs"
	"edu-rag-go/pkg/log"
)

// IndexRebuilder 从关系库重建索引，由 pipeline.Rebuilder 实现。
type IndexRebuilder interface {
	RebuildPassages(ctx context.Context, ix pipeline.ResettableIndex) (int, error)
	RebuildSummaries(ctx context.Context, ix pipeline.ResettableIndex) (int, error)
}

// 可重建的索引。
const (
	IndexPassages  = "passages"
	IndexSummaries = "summaries"
	IndexAll       = "all"
)

// IndexService 负责两个向量索引的加载、统计和重建。
type IndexService struct {
	passages            *vectorindex.Index
	summaries           *vectorindex.Index
	rebuilder           IndexRebuilder
	rebuildOnCorruption bool
}

func NewIndexService(passages, summaries *vectorindex.Index, rebuilder IndexRebuilder, rebuildOnCorruption bool) *IndexService {
	return &IndexService{passages: passages, summaries: summaries, rebuilder: rebuilder, rebuildOnCorruption: rebuildOnCorruption}
}

// Open 加载两个索引。加载时发现损坏且允许重建时，清空后从关系库重建。
func (s *IndexService) Open(ctx context.Context) error {
	for _, which := range []string{IndexPassages, IndexSummaries} {
		ix := s.index(which)
		err := ix.Open(ctx)
		if err == nil {
			continue
		}
		if !errors.Is(err, errs.ErrIndexCorruption) || !s.rebuildOnCorruption {
			return err
		}
		log.Warnf("[IndexService] 索引 %s 已损坏, 开始重建: %v", ix.Name(), err)
		if _, err := s.rebuild(ctx, which); err != nil {
			return fmt.Errorf("重建索引 %s 失败: %w", ix.Name(), err)
		}
	}
	return nil
}

// Rebuild 重建指定索引，返回每个索引写入的条目数。
func (s *IndexService) Rebuild(ctx context.Context, which string) (map[string]int, error) {
	targets := []string{which}
	switch which {
	case IndexAll:
		targets = []string{IndexPassages, IndexSummaries}
	case IndexPassages, IndexSummaries:
	default:
		return nil, errs.Newf(errs.KindInvalidInput, "index.rebuild", "未知索引 %q", which)
	}

	out := make(map[string]int, len(targets))
	for _, t := range targets {
		n, err := s.rebuild(ctx, t)
		if err != nil {
			return out, err
		}
		out[t] = n
	}
	return out, nil
}

// Stats 返回两个索引的条目统计。
func (s *IndexService) Stats() map[string]vectorindex.Stats {
	return map[string]vectorindex.Stats{
		IndexPassages:  s.passages.Stats(),
		IndexSummaries: s.summaries.Stats(),
	}
}

func (s *IndexService) rebuild(ctx context.Context, which string) (int, error) {
	var (
		n   int
		err error
	)
	if which == IndexPassages {
		n, err = s.rebuilder.RebuildPassages(ctx, s.passages)
	} else {
		n, err = s.rebuilder.RebuildSummaries(ctx, s.summaries)
	}
	if err != nil {
		return n, err
	}
	log.Infof("[IndexService] 索引 %s 重建完成, 条目 %d", s.index(which).Name(), n)
	return n, nil
}

func (s *IndexService) index(which string) *vectorindex.Index {
	if which == IndexPassages {
		return s.passages
	}
	return s.summaries
}
