// Package pipeline 定义了单元摄入的核心流程：提取 → 分块 → 向量化 → 摘要 → 摘要向量化。
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"edu-rag-go/internal/chunker"
	"edu-rag-go/internal/model"
	"edu-rag-go/internal/processing"
	"edu-rag-go/internal/repository"
	"edu-rag-go/pkg/errs"
	"edu-rag-go/pkg/log"
	"edu-rag-go/pkg/storage"
	"edu-rag-go/pkg/tasks"

	"golang.org/x/sync/errgroup"
)

// Extractor 把文档字节转换成纯文本，*extractor.Extractor 满足该接口。
type Extractor interface {
	Extract(ctx context.Context, data []byte, kind model.MediaKind, fileName string) (string, error)
}

const heartbeatEvery = 50

// Processor 封装了单元处理的所有依赖和逻辑。
type Processor struct {
	machine      *processing.Machine
	hierarchy    repository.HierarchyRepository
	documents    repository.DocumentRepository
	passages     repository.PassageRepository
	summaries    repository.SummaryRepository
	files        storage.DocumentStore
	extractor    Extractor
	chunker      *chunker.Chunker
	embedder     Embedder
	passageIndex IndexWriter
	builder      *SummaryBuilder
	publisher    tasks.Publisher
	concurrency  int
}

// NewProcessor 创建一个新的 Processor 实例。publisher 用于把本轮运行期间新上传的文档重新排队。
func NewProcessor(
	machine *processing.Machine,
	hierarchy repository.HierarchyRepository,
	documents repository.DocumentRepository,
	passages repository.PassageRepository,
	summaries repository.SummaryRepository,
	files storage.DocumentStore,
	ext Extractor,
	ch *chunker.Chunker,
	embedder Embedder,
	passageIndex IndexWriter,
	builder *SummaryBuilder,
	concurrency int,
) *Processor {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Processor{
		machine:      machine,
		hierarchy:    hierarchy,
		documents:    documents,
		passages:     passages,
		summaries:    summaries,
		files:        files,
		extractor:    ext,
		chunker:      ch,
		embedder:     embedder,
		passageIndex: passageIndex,
		builder:      builder,
		concurrency:  concurrency,
	}
}

// SetPublisher 在队列创建之后注入，队列和处理器互相引用。
func (p *Processor) SetPublisher(pub tasks.Publisher) {
	p.publisher = pub
}

// Process 是单元处理的主函数。
// 认领失败（ConcurrencyConflict/Precondition）直接返回；阶段错误记录到 last_error 后返回 nil，
// 只有状态本身无法写入时才返回其它错误。
func (p *Processor) Process(ctx context.Context, task tasks.UnitProcessingTask) (err error) {
	log.Infof("[Processor] 开始处理单元, UnitID: %d, Reason: %s", task.UnitID, task.Reason)
	runID, err := p.machine.Claim(ctx, task.UnitID)
	if err != nil {
		log.Warnf("[Processor] 单元 %d 认领失败: %v", task.UnitID, err)
		return err
	}

	// 关机时 ctx 会被取消，最终状态仍要写入
	finalCtx := context.WithoutCancel(ctx)
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[Processor] 单元 %d 处理发生 panic: %v", task.UnitID, r)
			err = p.machine.Fail(finalCtx, task.UnitID, runID, fmt.Sprintf("内部错误: %v", r))
		}
	}()

	count, failedDocs, runErr := p.run(ctx, task.UnitID, runID)
	switch {
	case runErr != nil:
		log.Errorf("[Processor] 单元 %d 处理失败: %v", task.UnitID, runErr)
		err = p.machine.Fail(finalCtx, task.UnitID, runID, errs.Message(runErr))
	case len(failedDocs) > 0:
		msg := fmt.Sprintf("%d 个文档处理失败: %s", len(failedDocs), strings.Join(failedDocs, "; "))
		log.Warnf("[Processor] 单元 %d: %s", task.UnitID, msg)
		err = p.machine.Fail(finalCtx, task.UnitID, runID, msg)
	default:
		err = p.machine.Complete(finalCtx, task.UnitID, runID, count)
		if err == nil {
			log.Infof("[Processor] 单元 %d 处理成功完成, 分块数: %d", task.UnitID, count)
		}
	}
	if err != nil {
		return err
	}
	p.requeuePending(finalCtx, task)
	return nil
}

// run 依次执行各阶段。单个文档提取失败不影响其它文档，返回失败文档的描述。
func (p *Processor) run(ctx context.Context, unitID uint, runID string) (int, []string, error) {
	scope, err := p.hierarchy.FindUnitScope(ctx, unitID)
	if err != nil {
		return 0, nil, err
	}

	// 1. 提取与分块。上一轮失败的文档也重新尝试，全部文档提取成功后单元才能 ready
	docs, err := p.ingestable(ctx, unitID)
	if err != nil {
		return 0, nil, err
	}
	log.Infof("[Processor] 步骤1: 单元 %d 待处理文档 %d 个", unitID, len(docs))
	var failedDocs []string
	for _, doc := range docs {
		if err := p.ingestDocument(ctx, doc); err != nil {
			if errs.KindOf(err) == "" {
				return 0, nil, err
			}
			log.Warnf("[Processor] 文档 %d (%s) 处理失败: %v", doc.ID, doc.FileName, err)
			if uerr := p.documents.UpdateStatus(ctx, doc.ID, model.DocumentFailed, errs.Message(err)); uerr != nil {
				return 0, nil, uerr
			}
			failedDocs = append(failedDocs, fmt.Sprintf("%s (%s)", doc.FileName, errs.Message(err)))
		}
		if err := p.machine.Progress(ctx, unitID, runID, processing.Changes{}); err != nil {
			return 0, nil, err
		}
	}

	count64, err := p.passages.CountByUnit(ctx, unitID)
	if err != nil {
		return 0, nil, err
	}
	count := int(count64)
	if err := p.machine.Progress(ctx, unitID, runID, processing.Changes{PassageCount: &count}); err != nil {
		return 0, nil, err
	}

	// 2. 向量化
	if err := p.embedPassages(ctx, scope, unitID, runID); err != nil {
		return 0, nil, err
	}
	ready := true
	if err := p.machine.Progress(ctx, unitID, runID, processing.Changes{EmbeddingsReady: &ready}); err != nil {
		return 0, nil, err
	}
	log.Infof("[Processor] 步骤2: 单元 %d 分块向量化完成", unitID)

	// 3. 主题摘要。是否需要重新生成只看已持久化的数据，上一轮中途失败后重试也能补齐
	topics, err := p.hierarchy.ListTopics(ctx, unitID)
	if err != nil {
		return 0, nil, err
	}
	changedAt, err := p.lastExtracted(ctx, unitID)
	if err != nil {
		return 0, nil, err
	}
	var newestTopic time.Time
	for _, t := range topics {
		total, _, err := p.passages.CountByTopic(ctx, t.ID)
		if err != nil {
			return 0, nil, err
		}
		if total == 0 {
			continue
		}
		existing, err := p.summaries.FindTopicSummary(ctx, t.ID)
		if err != nil {
			return 0, nil, err
		}
		if existing == nil || !existing.Embedded || changedAt[t.ID].After(existing.GeneratedAt) {
			if existing, err = p.builder.BuildTopicSummary(ctx, *scope, t); err != nil {
				return 0, nil, err
			}
		}
		if existing.GeneratedAt.After(newestTopic) {
			newestTopic = existing.GeneratedAt
		}
	}
	log.Infof("[Processor] 步骤3: 单元 %d 主题摘要完成", unitID)

	// 4. 单元摘要，任一主题摘要比它新时重新生成
	if count > 0 {
		existing, err := p.summaries.FindUnitSummary(ctx, unitID)
		if err != nil {
			return 0, nil, err
		}
		if existing == nil || !existing.Embedded || newestTopic.After(existing.GeneratedAt) {
			if _, err := p.builder.BuildUnitSummary(ctx, *scope); err != nil {
				return 0, nil, err
			}
		}
		log.Infof("[Processor] 步骤4: 单元 %d 单元摘要完成", unitID)
	}
	return count, failedDocs, nil
}

// ingestable 返回本轮需要提取的文档：pending 和上一轮 failed 的，按 ID 排序。
func (p *Processor) ingestable(ctx context.Context, unitID uint) ([]model.Document, error) {
	pending, err := p.documents.ListByUnitAndStatus(ctx, unitID, model.DocumentPending)
	if err != nil {
		return nil, err
	}
	failed, err := p.documents.ListByUnitAndStatus(ctx, unitID, model.DocumentFailed)
	if err != nil {
		return nil, err
	}
	docs := append(pending, failed...)
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// lastExtracted 返回每个主题最近一次文档提取成功的时间。
func (p *Processor) lastExtracted(ctx context.Context, unitID uint) (map[uint]time.Time, error) {
	docs, err := p.documents.ListByUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	out := make(map[uint]time.Time)
	for _, d := range docs {
		if d.Status == model.DocumentExtracted && d.UpdatedAt.After(out[d.TopicID]) {
			out[d.TopicID] = d.UpdatedAt
		}
	}
	return out, nil
}

// ingestDocument 下载、提取并分块一个文档，替换它的旧分块并标记旧索引条目删除。
func (p *Processor) ingestDocument(ctx context.Context, doc model.Document) error {
	data, err := p.files.Get(ctx, doc.ObjectKey)
	if err != nil {
		if errs.KindOf(err) == errs.KindNotFound {
			return errs.New(errs.KindExtraction, "pipeline.fetch", err)
		}
		return err
	}
	text, err := p.extractor.Extract(ctx, data, doc.MediaKind, doc.FileName)
	if err != nil {
		return err
	}

	chunks := p.chunker.Split(text)
	rows := make([]*model.Passage, 0, len(chunks))
	for _, c := range chunks {
		rows = append(rows, &model.Passage{
			DocumentID: doc.ID,
			TopicID:    doc.TopicID,
			UnitID:     doc.UnitID,
			Ordinal:    c.Ordinal,
			TokenCount: c.TokenCount,
			Text:       c.Text,
		})
	}
	oldIDs, err := p.passages.ReplaceForDocument(ctx, doc.ID, rows)
	if err != nil {
		return err
	}
	for _, id := range oldIDs {
		if _, err := p.passageIndex.Remove(ctx, id, model.ProvenancePassage); err != nil {
			return err
		}
	}
	if err := p.documents.UpdateStatus(ctx, doc.ID, model.DocumentExtracted, ""); err != nil {
		return err
	}
	log.Infof("[Processor] 文档 %d (%s) 分块完成, 新分块 %d 个, 清理旧分块 %d 个", doc.ID, doc.FileName, len(rows), len(oldIDs))
	return nil
}

// embedPassages 并发向量化单元内尚未向量化的分块，索引写入由索引自身串行化。
// 每完成 heartbeatEvery 个分块刷新一次状态，避免长时间运行被当成失联任务接管。
func (p *Processor) embedPassages(ctx context.Context, scope *model.UnitScope, unitID uint, runID string) error {
	pending, err := p.passages.ListByUnit(ctx, unitID, true)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	log.Infof("[Processor] 开始向量化 %d 个分块, 并发数: %d", len(pending), p.concurrency)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	var (
		mu   sync.Mutex
		done int
	)
	for _, ps := range pending {
		g.Go(func() error {
			vec, err := p.embedder.CreateEmbedding(gctx, ps.Text)
			if err != nil {
				return err
			}
			entryScope := model.Scope{
				OwnerID:   scope.Subject.UserID,
				SubjectID: scope.Subject.ID,
				UnitID:    unitID,
				TopicID:   ps.TopicID,
			}
			if _, err := p.passageIndex.Add(gctx, ps.ID, model.ProvenancePassage, entryScope, vec); err != nil {
				return err
			}
			if err := p.passages.MarkEmbedded(gctx, []uint{ps.ID}); err != nil {
				return err
			}
			mu.Lock()
			done++
			beat := done%heartbeatEvery == 0
			mu.Unlock()
			if beat {
				return p.machine.Progress(gctx, unitID, runID, processing.Changes{})
			}
			return nil
		})
	}
	err = g.Wait()
	log.Infof("[Processor] 向量化结束, 成功 %d/%d", done, len(pending))
	return err
}

// requeuePending 处理运行期间新上传的文档：单元回到 uploaded 并重新投递任务。
func (p *Processor) requeuePending(ctx context.Context, task tasks.UnitProcessingTask) {
	pending, err := p.documents.ListByUnitAndStatus(ctx, task.UnitID, model.DocumentPending)
	if err != nil {
		log.Errorf("[Processor] 查询单元 %d 待处理文档失败: %v", task.UnitID, err)
		return
	}
	if len(pending) == 0 {
		return
	}
	if _, queued, err := p.machine.MarkUploaded(ctx, task.UnitID); err != nil || !queued {
		log.Errorf("[Processor] 单元 %d 重新排队失败: queued=%v, err=%v", task.UnitID, queued, err)
		return
	}
	if p.publisher == nil {
		return
	}
	next := tasks.UnitProcessingTask{UnitID: task.UnitID, RequestedBy: task.RequestedBy, Reason: tasks.ReasonRequeue}
	if err := p.publisher.Publish(ctx, next); err != nil {
		log.Errorf("[Processor] 单元 %d 重新投递任务失败: %v", task.UnitID, err)
		return
	}
	log.Infof("[Processor] 单元 %d 有 %d 个新文档, 已重新排队", task.UnitID, len(pending))
}
