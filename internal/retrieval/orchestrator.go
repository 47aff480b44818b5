package retrieval

import (
	"context"
	"sort"

	"edu-rag-go/internal/intent"
	"edu-rag-go/internal/model"
	"edu-rag-go/internal/vectorindex"
	"edu-rag-go/pkg/errs"
	"edu-rag-go/pkg/log"
)

type Classifier interface {
	Classify(ctx context.Context, query string, hints intent.Hints) (model.Intent, error)
}

type Embedder interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Searcher 是一个向量索引的只读视图，*vectorindex.Index 满足该接口。
type Searcher interface {
	Search(ctx context.Context, query []float32, k int, f vectorindex.Filter) ([]vectorindex.Match, error)
}

// Resolver 把 provenance id 解析成源文本。已不存在的 id 不出现在返回值中。
type Resolver interface {
	Resolve(ctx context.Context, kind model.ProvenanceKind, ids []uint) (map[uint]string, error)
}

type Generator interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

type TokenCounter interface {
	CountTokens(text string) int
}

type Config struct {
	Limits
	ContextTokenBudget int
	PreviewRunes       int
	AnswerMaxTokens    int
	Rules              string
	NoResultText       string
}

// Query 是一次问答的输入，Scope 中为零的字段表示不限。
type Query struct {
	Text  string
	Scope model.Scope
	Hints intent.Hints
}

// ContextItem 是一条候选上下文。
type ContextItem struct {
	Kind         model.ProvenanceKind
	ProvenanceID uint
	Score        float64
	Seq          uint64
	Text         string
	Tokens       int
}

type Orchestrator struct {
	cfg        Config
	table      map[model.Intent]Strategy
	classifier Classifier
	embedder   Embedder
	passages   Searcher
	summaries  Searcher
	resolver   Resolver
	gen        Generator
	counter    TokenCounter
}

func NewOrchestrator(cfg Config, classifier Classifier, embedder Embedder, passages, summaries Searcher,
	resolver Resolver, gen Generator, counter TokenCounter) *Orchestrator {
	if cfg.PassageK <= 0 {
		cfg.PassageK = 5
	}
	if cfg.TopicK <= 0 {
		cfg.TopicK = 3
	}
	if cfg.UnitK <= 0 {
		cfg.UnitK = 1
	}
	if cfg.PreviewRunes <= 0 {
		cfg.PreviewRunes = 200
	}
	if cfg.NoResultText == "" {
		cfg.NoResultText = "This information is not found in your uploaded material. Please upload relevant content or ask about topics that are in your materials."
	}
	return &Orchestrator{
		cfg:        cfg,
		table:      Strategies(cfg.Limits),
		classifier: classifier,
		embedder:   embedder,
		passages:   passages,
		summaries:  summaries,
		resolver:   resolver,
		gen:        gen,
		counter:    counter,
	}
}

// Chat 分类意图、检索、组装上下文并生成回答。
// 只读取索引和摘要，失败时不修改任何持久化状态。
func (o *Orchestrator) Chat(ctx context.Context, q Query) (model.ChatResult, error) {
	in, cerr := o.classifier.Classify(ctx, q.Text, q.Hints)
	if cerr != nil {
		log.Debugf("[Retrieval] 意图分类已回退: %v", cerr)
	}
	strategy, ok := o.table[in]
	if !ok {
		in = intent.Default
		strategy = o.table[in]
	}

	vec, err := o.embedder.CreateEmbedding(ctx, q.Text)
	if err != nil {
		return model.ChatResult{}, err
	}
	candidates, err := o.Retrieve(ctx, strategy, vec, q.Scope)
	if err != nil {
		return model.ChatResult{}, err
	}
	items, used := Assemble(candidates, o.cfg.ContextTokenBudget)
	log.Infof("[Retrieval] 意图: %s, 候选: %d, 纳入上下文: %d, token: %d", in, len(candidates), len(items), used)

	result := model.ChatResult{Intent: in, Sources: []model.Source{}, ContextTokens: used}
	if len(items) == 0 {
		result.Answer = o.cfg.NoResultText
		return result, nil
	}

	prompt := RenderPrompt(PromptInput{
		Intent:      in,
		Query:       q.Text,
		SubjectName: q.Hints.SubjectName,
		UnitTitle:   q.Hints.UnitTitle,
		TopicTitle:  q.Hints.TopicTitle,
		Items:       items,
		Rules:       o.cfg.Rules,
	})
	answer, err := o.gen.Complete(ctx, prompt, o.cfg.AnswerMaxTokens)
	if err != nil {
		return model.ChatResult{}, errs.New(errs.KindGeneration, "retrieval.answer", err)
	}
	result.Answer = answer
	for _, it := range items {
		result.Sources = append(result.Sources, model.Source{
			Kind:         it.Kind,
			ProvenanceID: it.ProvenanceID,
			Score:        it.Score,
			Preview:      Preview(it.Text, o.cfg.PreviewRunes),
		})
	}
	return result, nil
}

// Retrieve 执行策略中的每一步，返回按相似度降序排列的候选（相同分数时后写入的在前）。
// 源文本已不存在的条目被跳过。
func (o *Orchestrator) Retrieve(ctx context.Context, s Strategy, vec []float32, scope model.Scope) ([]ContextItem, error) {
	var out []ContextItem
	for _, step := range s.Steps {
		searcher := o.summaries
		if step.Kind == model.ProvenancePassage {
			searcher = o.passages
		}
		f := vectorindex.Filter{
			Kinds:     []model.ProvenanceKind{step.Kind},
			OwnerID:   scope.OwnerID,
			SubjectID: scope.SubjectID,
			UnitID:    scope.UnitID,
		}
		// 单元摘要不属于任何主题
		if step.Kind != model.ProvenanceUnitSummary {
			f.TopicID = scope.TopicID
		}
		matches, err := searcher.Search(ctx, vec, step.K, f)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			continue
		}
		ids := make([]uint, len(matches))
		for i, m := range matches {
			ids[i] = m.ProvenanceID
		}
		texts, err := o.resolver.Resolve(ctx, step.Kind, ids)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			text, ok := texts[m.ProvenanceID]
			if !ok {
				log.Warnf("[Retrieval] %s %d 的源文本已不存在, 跳过", m.Kind, m.ProvenanceID)
				continue
			}
			out = append(out, ContextItem{
				Kind:         m.Kind,
				ProvenanceID: m.ProvenanceID,
				Score:        m.Score,
				Seq:          m.Seq,
				Text:         text,
				Tokens:       o.counter.CountTokens(text),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Seq > out[j].Seq
	})
	return out, nil
}

// Assemble 按顺序取候选直到下一条放不进预算为止，条目不会被截断。
// budget <= 0 表示不限。
func Assemble(candidates []ContextItem, budget int) ([]ContextItem, int) {
	used := 0
	for i, c := range candidates {
		if budget > 0 && used+c.Tokens > budget {
			return candidates[:i], used
		}
		used += c.Tokens
	}
	return candidates, used
}

// Preview 返回前 n 个字符，截断时追加省略号。
func Preview(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "…"
}
