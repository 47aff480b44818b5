// Package app 按配置组装各层组件，供 HTTP 服务和命令行工具共用。
package app

import (
	"context"
	"fmt"
	"path/filepath"

	"edu-rag-go/internal/chunker"
	"edu-rag-go/internal/config"
	"edu-rag-go/internal/extractor"
	"edu-rag-go/internal/intent"
	"edu-rag-go/internal/model"
	"edu-rag-go/internal/pipeline"
	"edu-rag-go/internal/processing"
	"edu-rag-go/internal/repository"
	"edu-rag-go/internal/retrieval"
	"edu-rag-go/internal/service"
	"edu-rag-go/internal/summarizer"
	"edu-rag-go/internal/vectorindex"
	"edu-rag-go/pkg/database"
	"edu-rag-go/pkg/embedding"
	"edu-rag-go/pkg/es"
	"edu-rag-go/pkg/kafka"
	"edu-rag-go/pkg/llm"
	"edu-rag-go/pkg/log"
	"edu-rag-go/pkg/retry"
	"edu-rag-go/pkg/storage"
	"edu-rag-go/pkg/tasks"
	"edu-rag-go/pkg/tika"
	"edu-rag-go/pkg/token"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// App 持有组装好的组件。
type App struct {
	Config    *config.Config
	DB        *gorm.DB
	Redis     *redis.Client
	JWT       *token.JWTManager
	Machine   *processing.Machine
	Processor *pipeline.Processor
	Indexes   *service.IndexService
	Ingest    service.IngestService
	Summaries service.SummaryService
	Chat      service.ChatService
	Health    *database.Checker
	Publisher tasks.Publisher

	closers []func() error
}

// New 连接外部依赖并组装全部组件。索引此时还没有加载，需要调用 Indexes.Open。
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	database.InitMySQL(cfg.Database.MySQL.DSN)
	if err := database.AutoMigrate(database.DB); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	a.DB, a.Redis = database.DB, database.RDB
	a.Health = database.NewChecker(a.DB, a.Redis)
	a.JWT = token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)

	hierarchyRepo := repository.NewHierarchyRepository(a.DB)
	documentRepo := repository.NewDocumentRepository(a.DB)
	passageRepo := repository.NewPassageRepository(a.DB)
	summaryRepo := repository.NewSummaryRepository(a.DB)
	a.Machine = processing.NewMachine(repository.NewProcessingStateRepository(a.DB))
	a.Machine.SetRunTimeout(cfg.Processing.RunTimeout)

	files, err := newDocumentStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	embedder, generator, err := newModelClients(ctx, cfg)
	if err != nil {
		return nil, err
	}

	passageIndex, summaryIndex, err := a.newIndexes(ctx, cfg)
	if err != nil {
		return nil, err
	}

	ch, err := chunker.New(chunker.Config{
		MinTokens:      cfg.Chunking.MinTokens,
		MaxTokens:      cfg.Chunking.MaxTokens,
		OverlapPercent: cfg.Chunking.OverlapPercent,
	}, nil)
	if err != nil {
		return nil, err
	}

	var ext *extractor.Extractor
	if cfg.Tika.ServerURL != "" {
		// 超时由 Tika 客户端控制，不限速
		tikaPolicy := retryPolicy(cfg.Retry)
		tikaPolicy.AttemptTimeout = 0
		tikaPolicy.RequestsPerSecond = 0
		ext = extractor.New(tika.NewResilient(tika.NewClient(cfg.Tika), retry.NewCaller(tikaPolicy)))
	} else {
		log.Warnf("未配置 Tika 服务, PDF 文档将无法提取")
		ext = extractor.New(nil)
	}

	sum := summarizer.New(generator, ch, summarizer.Config{
		InputBudgetTokens: cfg.Summarizer.InputBudgetTokens,
		TopicMaxTokens:    cfg.Summarizer.TopicMaxTokens,
		UnitMaxTokens:     cfg.Summarizer.UnitMaxTokens,
		MaxReduceDepth:    cfg.Summarizer.MaxReduceDepth,
	})
	builder := pipeline.NewSummaryBuilder(hierarchyRepo, passageRepo, summaryRepo, sum, embedder, summaryIndex)
	a.Processor = pipeline.NewProcessor(a.Machine, hierarchyRepo, documentRepo, passageRepo, summaryRepo,
		files, ext, ch, embedder, passageIndex, builder, cfg.Embedding.Concurrency)

	a.Publisher = a.newPublisher(ctx, cfg)
	a.Processor.SetPublisher(a.Publisher)

	rebuilder := pipeline.NewRebuilder(hierarchyRepo, passageRepo, summaryRepo, embedder)
	a.Indexes = service.NewIndexService(passageIndex, summaryIndex, rebuilder, cfg.VectorIndex.RebuildOnCorruption)

	orchestrator := retrieval.NewOrchestrator(retrieval.Config{
		Limits: retrieval.Limits{
			PassageK: cfg.Retrieval.PassageK,
			TopicK:   cfg.Retrieval.TopicK,
			UnitK:    cfg.Retrieval.UnitK,
		},
		ContextTokenBudget: cfg.Retrieval.ContextTokenBudget,
		PreviewRunes:       cfg.Retrieval.PreviewRunes,
		AnswerMaxTokens:    cfg.Retrieval.AnswerMaxTokens,
		Rules:              cfg.LLM.Prompt.Rules,
		NoResultText:       cfg.LLM.Prompt.NoResultText,
	}, intent.NewClassifier(generator, cfg.Retrieval.ClassifyMaxTokens), embedder, passageIndex, summaryIndex,
		retrieval.NewResolver(passageRepo, summaryRepo), generator, ch)

	a.Ingest = service.NewIngestService(hierarchyRepo, documentRepo, files, a.Machine, a.Publisher)
	a.Summaries = service.NewSummaryService(hierarchyRepo, summaryRepo, builder)
	a.Chat = service.NewChatService(hierarchyRepo, summaryRepo, a.Machine, orchestrator, cfg.LLM.Prompt.ProcessingText)
	return a, nil
}

// StartConsumer 在使用 Kafka 队列时启动消费者，阻塞直到 ctx 被取消。本地队列时直接返回。
func (a *App) StartConsumer(ctx context.Context) error {
	if a.Config.Queue.Driver != "kafka" {
		return nil
	}
	consumer := kafka.NewConsumer(a.Config.Kafka, a.Processor, kafka.NewRedisCounter(a.Redis))
	return consumer.Run(ctx)
}

// Close 按创建的相反顺序释放资源。
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warnf("释放资源失败: %v", err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
}

func (a *App) newPublisher(ctx context.Context, cfg *config.Config) tasks.Publisher {
	if cfg.Queue.Driver == "local" {
		q := pipeline.NewLocalQueue(ctx, a.Processor, cfg.Queue.Workers, 0)
		a.closers = append(a.closers, func() error { q.Close(); return nil })
		return q
	}
	p := kafka.NewProducer(cfg.Kafka)
	a.closers = append(a.closers, p.Close)
	return p
}

func newDocumentStore(ctx context.Context, cfg *config.Config) (storage.DocumentStore, error) {
	switch cfg.Storage.Driver {
	case "memory":
		log.Warnf("使用进程内文档存储, 重启后文件会丢失")
		return storage.NewMemoryStore(), nil
	case "minio", "":
		return storage.InitMinIO(ctx, cfg.MinIO)
	}
	return nil, fmt.Errorf("未知的文档存储类型 %q", cfg.Storage.Driver)
}

func retryPolicy(cfg config.RetryConfig) retry.Policy {
	return retry.Policy{
		MaxAttempts:       cfg.MaxAttempts,
		InitialInterval:   cfg.InitialInterval,
		MaxInterval:       cfg.MaxInterval,
		Multiplier:        cfg.Multiplier,
		AttemptTimeout:    cfg.AttemptTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	}
}

// newModelClients 创建带重试和限速的 embedding 与生成客户端，两者各自限速。
func newModelClients(ctx context.Context, cfg *config.Config) (embedding.Client, llm.Client, error) {
	rawEmbedder, err := embedding.NewClient(ctx, cfg.Embedding)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化 embedding 客户端失败: %w", err)
	}
	rawGenerator, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化 LLM 客户端失败: %w", err)
	}
	policy := retryPolicy(cfg.Retry)
	return embedding.NewResilient(rawEmbedder, retry.NewCaller(policy)),
		llm.NewResilient(rawGenerator, retry.NewCaller(policy)), nil
}

func (a *App) newIndexes(ctx context.Context, cfg *config.Config) (*vectorindex.Index, *vectorindex.Index, error) {
	passageStore, err := a.newIndexStore(ctx, cfg, "passages", cfg.Elasticsearch.PassageIndex)
	if err != nil {
		return nil, nil, err
	}
	summaryStore, err := a.newIndexStore(ctx, cfg, "summaries", cfg.Elasticsearch.SummaryIndex)
	if err != nil {
		return nil, nil, err
	}
	dim := cfg.Embedding.Dimensions
	passages := vectorindex.New("passages", dim, passageStore, model.ProvenancePassage)
	summaries := vectorindex.New("summaries", dim, summaryStore, model.ProvenanceTopicSummary, model.ProvenanceUnitSummary)
	return passages, summaries, nil
}

func (a *App) newIndexStore(ctx context.Context, cfg *config.Config, name, esIndex string) (vectorindex.Store, error) {
	switch cfg.VectorIndex.Backend {
	case "memory":
		return vectorindex.NewMemoryStore(), nil
	case "es":
		if es.ESClient == nil {
			if err := es.InitES(cfg.Elasticsearch); err != nil {
				return nil, fmt.Errorf("初始化 Elasticsearch 失败: %w", err)
			}
		}
		s := es.NewIndexStore(es.ESClient, esIndex, cfg.Embedding.Dimensions)
		if err := s.EnsureIndex(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case "file", "":
		s, err := vectorindex.OpenFileStore(filepath.Join(cfg.VectorIndex.Dir, name+".jsonl"))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	}
	return nil, fmt.Errorf("未知的向量索引后端 %q", cfg.VectorIndex.Backend)
}
