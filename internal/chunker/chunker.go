// Package chunker 把提取出的纯文本切成有 token 上下限、相互重叠的段落。
package chunker

import (
	"math"
	"strings"

	"edu-rag-go/pkg/errs"
)

// Config 是分块参数。
type Config struct {
	MinTokens      int
	MaxTokens      int
	OverlapPercent float64
}

// DefaultConfig 返回 300/600/15% 的默认配置。
func DefaultConfig() Config {
	return Config{MinTokens: 300, MaxTokens: 600, OverlapPercent: 0.15}
}

// Validate 检查配置是否合法。
func (c Config) Validate() error {
	switch {
	case c.MinTokens <= 0:
		return errs.Newf(errs.KindChunking, "chunker.config", "min_tokens 必须大于 0, 当前为 %d", c.MinTokens)
	case c.MinTokens > c.MaxTokens:
		return errs.Newf(errs.KindChunking, "chunker.config", "min_tokens(%d) 不能大于 max_tokens(%d)", c.MinTokens, c.MaxTokens)
	case c.OverlapPercent < 0 || c.OverlapPercent >= 1:
		return errs.Newf(errs.KindChunking, "chunker.config", "overlap_percent 必须在 [0, 1) 之间, 当前为 %v", c.OverlapPercent)
	}
	return nil
}

// Chunk 是切分结果中的一段。StartToken/EndToken 是 token 下标区间 [Start, End)。
type Chunk struct {
	Ordinal    int
	Text       string
	TokenCount int
	StartToken int
	EndToken   int
}

// Chunker 按 token 数切分文本，同样的输入和配置总是得到同样的边界。
type Chunker struct {
	cfg Config
	tok Tokenizer
}

// New 创建 Chunker，配置非法时返回 ChunkingError。
func New(cfg Config, tok Tokenizer) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tok == nil {
		tok = WordTokenizer{}
	}
	return &Chunker{cfg: cfg, tok: tok}, nil
}

// Config 返回当前配置。
func (c *Chunker) Config() Config {
	return c.cfg
}

// CountTokens 使用与切分相同的分词规则计数。
func (c *Chunker) CountTokens(text string) int {
	return len(c.tok.Tokenize(text))
}

// Split 切分文本。
// 一段在达到 max_tokens 时强制结束；在 min_tokens 之后遇到自然边界时提前结束，
// 段落边界优先于句子边界，取窗口内最靠后的一个。
// 下一段从上一段末尾回退 overlap_percent 个 token 开始。
func (c *Chunker) Split(text string) []Chunk {
	spans := c.tok.Tokenize(text)
	n := len(spans)
	if n == 0 {
		return nil
	}

	var chunks []Chunk
	start := 0
	for {
		end := n
		if n-start > c.cfg.MaxTokens {
			end = c.findBreak(text, spans, start)
		}
		chunks = append(chunks, Chunk{
			Ordinal:    len(chunks),
			Text:       text[spans[start].Start:spans[end-1].End],
			TokenCount: end - start,
			StartToken: start,
			EndToken:   end,
		})
		if end == n {
			return chunks
		}

		overlap := int(math.Round(float64(end-start) * c.cfg.OverlapPercent))
		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
}

// findBreak 在 (start+min, start+max] 内寻找结束位置 e，返回值满足 e < n。
func (c *Chunker) findBreak(text string, spans []Span, start int) int {
	lo := start + c.cfg.MinTokens
	hi := start + c.cfg.MaxTokens

	sentence := -1
	for e := hi; e >= lo; e-- {
		gap := text[spans[e-1].End:spans[e].Start]
		// 段落边界：两个 token 之间至少隔着两个换行
		if strings.Count(gap, "\n") >= 2 {
			return e
		}
		if sentence < 0 {
			prev := text[spans[e-1].Start:spans[e-1].End]
			if isSentenceTerminal(prev) && (gap != "" || isWideTerminal(prev)) {
				sentence = e
			}
		}
	}
	if sentence > 0 {
		return sentence
	}
	return hi
}
