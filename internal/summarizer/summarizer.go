// Package summarizer 实现 主题→单元 两级级联摘要。
// 输入超过单次生成的预算时按 token 预算分批摘要，再把各批结果合并（map-reduce）。
package summarizer

import (
	"context"
	"fmt"
	"strings"

	"edu-rag-go/pkg/errs"
	"edu-rag-go/pkg/log"
)

// Generator 是摘要使用的文本生成能力，llm.Client 满足该接口。
type Generator interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// TokenCounter 统计文本 token 数，与分块使用同一个分词器。
type TokenCounter interface {
	CountTokens(text string) int
}

type Config struct {
	InputBudgetTokens int
	TopicMaxTokens    int
	UnitMaxTokens     int
	MaxReduceDepth    int
}

func DefaultConfig() Config {
	return Config{
		InputBudgetTokens: 6000,
		TopicMaxTokens:    400,
		UnitMaxTokens:     600,
		MaxReduceDepth:    4,
	}
}

const (
	passageSeparator = "\n\n---\n\n"
	sectionSeparator = "\n\n"
)

// TopicInput 是生成一个主题摘要所需的全部内容，Passages 按文档和序号排好。
type TopicInput struct {
	SubjectName string
	UnitTitle   string
	TopicTitle  string
	Passages    []string
}

// TopicSection 是单元摘要的一段输入。
type TopicSection struct {
	Title string
	Text  string
}

type UnitInput struct {
	SubjectName string
	UnitTitle   string
	Topics      []TopicSection
}

// Result 是一次摘要的结果，Batches 为 map 阶段的批次数。
type Result struct {
	Text        string
	TokenCount  int
	SourceCount int
	Batches     int
}

type Summarizer struct {
	gen     Generator
	counter TokenCounter
	cfg     Config
}

func New(gen Generator, counter TokenCounter, cfg Config) *Summarizer {
	def := DefaultConfig()
	if cfg.InputBudgetTokens <= 0 {
		cfg.InputBudgetTokens = def.InputBudgetTokens
	}
	if cfg.TopicMaxTokens <= 0 {
		cfg.TopicMaxTokens = def.TopicMaxTokens
	}
	if cfg.UnitMaxTokens <= 0 {
		cfg.UnitMaxTokens = def.UnitMaxTokens
	}
	if cfg.MaxReduceDepth <= 0 {
		cfg.MaxReduceDepth = def.MaxReduceDepth
	}
	return &Summarizer{gen: gen, counter: counter, cfg: cfg}
}

// SummarizeTopic 从主题的全部分块生成主题摘要。
func (s *Summarizer) SummarizeTopic(ctx context.Context, in TopicInput) (Result, error) {
	const op = "summarizer.topic"
	if len(in.Passages) == 0 {
		return Result{}, errs.Newf(errs.KindPrecondition, op, "主题 %q 没有可摘要的分块", in.TopicTitle)
	}
	render := func(content string) string {
		return fmt.Sprintf(topicPrompt, in.TopicTitle, in.SubjectName, in.UnitTitle, content)
	}
	label := fmt.Sprintf("the topic %q", in.TopicTitle)
	res, err := s.cascade(ctx, op, in.Passages, passageSeparator, render, label, s.cfg.TopicMaxTokens)
	if err != nil {
		return Result{}, err
	}
	res.SourceCount = len(in.Passages)
	log.Infof("[Summarizer] 主题 %q 摘要完成, 分块数: %d, 批次数: %d, token: %d", in.TopicTitle, res.SourceCount, res.Batches, res.TokenCount)
	return res, nil
}

// SummarizeUnit 从单元下全部主题摘要生成单元摘要。
func (s *Summarizer) SummarizeUnit(ctx context.Context, in UnitInput) (Result, error) {
	const op = "summarizer.unit"
	if len(in.Topics) == 0 {
		return Result{}, errs.Newf(errs.KindPrecondition, op, "单元 %q 没有主题摘要", in.UnitTitle)
	}
	sections := make([]string, len(in.Topics))
	for i, t := range in.Topics {
		sections[i] = "## " + t.Title + "\n" + strings.TrimSpace(t.Text)
	}
	render := func(content string) string {
		return fmt.Sprintf(unitPrompt, in.UnitTitle, in.SubjectName, content)
	}
	label := fmt.Sprintf("the unit %q", in.UnitTitle)
	res, err := s.cascade(ctx, op, sections, sectionSeparator, render, label, s.cfg.UnitMaxTokens)
	if err != nil {
		return Result{}, err
	}
	res.SourceCount = len(in.Topics)
	log.Infof("[Summarizer] 单元 %q 摘要完成, 主题数: %d, 批次数: %d, token: %d", in.UnitTitle, res.SourceCount, res.Batches, res.TokenCount)
	return res, nil
}

func (s *Summarizer) cascade(ctx context.Context, op string, items []string, sep string,
	render func(string) string, label string, maxTokens int) (Result, error) {

	budget := s.contentBudget(render(""))
	batches := s.pack(items, sep, budget)
	if len(batches) == 1 {
		text, err := s.generate(ctx, op, render(batches[0]), maxTokens)
		if err != nil {
			return Result{}, err
		}
		return Result{Text: text, TokenCount: s.counter.CountTokens(text), Batches: 1}, nil
	}

	// map
	partials := make([]string, 0, len(batches))
	for i, b := range batches {
		log.Debugf("[Summarizer] %s map 批次 %d/%d", op, i+1, len(batches))
		text, err := s.generate(ctx, op, render(b), maxTokens)
		if err != nil {
			return Result{}, err
		}
		partials = append(partials, text)
	}

	// reduce
	renderMerge := func(content string) string {
		return fmt.Sprintf(mergePrompt, label, content)
	}
	mergeBudget := s.contentBudget(renderMerge(""))
	for depth := 1; ; depth++ {
		if depth > s.cfg.MaxReduceDepth {
			return Result{}, errs.Newf(errs.KindSummarization, op, "合并 %d 层后仍有 %d 份部分摘要超出输入预算", s.cfg.MaxReduceDepth, len(partials))
		}
		groups := s.pack(partials, passageSeparator, mergeBudget)
		next := make([]string, 0, len(groups))
		for _, g := range groups {
			text, err := s.generate(ctx, op, renderMerge(g), maxTokens)
			if err != nil {
				return Result{}, err
			}
			next = append(next, text)
		}
		partials = next
		if len(partials) == 1 {
			break
		}
	}
	return Result{Text: partials[0], TokenCount: s.counter.CountTokens(partials[0]), Batches: len(batches)}, nil
}

// contentBudget 是扣除模板本身之后留给内容的 token 数，至少为 1。
func (s *Summarizer) contentBudget(emptyPrompt string) int {
	b := s.cfg.InputBudgetTokens - s.counter.CountTokens(emptyPrompt)
	if b < 1 {
		return 1
	}
	return b
}

// pack 按顺序贪心装箱：一个批次的 token 总数（含分隔符）不超过 budget。
// 单个条目本身超出预算时独占一个批次。
func (s *Summarizer) pack(items []string, sep string, budget int) []string {
	sepTokens := s.counter.CountTokens(sep)
	var (
		batches []string
		cur     []string
		used    int
	)
	for _, it := range items {
		n := s.counter.CountTokens(it)
		need := n
		if len(cur) > 0 {
			need += sepTokens
		}
		if len(cur) > 0 && used+need > budget {
			batches = append(batches, strings.Join(cur, sep))
			cur, used, need = nil, 0, n
		}
		cur = append(cur, it)
		used += need
	}
	if len(cur) > 0 {
		batches = append(batches, strings.Join(cur, sep))
	}
	return batches
}

func (s *Summarizer) generate(ctx context.Context, op, prompt string, maxTokens int) (string, error) {
	text, err := s.gen.Complete(ctx, prompt, maxTokens)
	if err != nil {
		return "", errs.New(errs.KindSummarization, op, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errs.Newf(errs.KindSummarization, op, "生成的摘要为空")
	}
	return text, nil
}
