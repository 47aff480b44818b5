package chunker

import (
	"regexp"
	"unicode/utf8"
)

// Span 是一个 token 在原文中的字节区间 [Start, End)。
type Span struct {
	Start int
	End   int
}

// Tokenizer 把文本切成 token，分块和预算计算共用同一个实现。
type Tokenizer interface {
	Tokenize(text string) []Span
}

// 汉字逐字成 token，其余按连续的字母数字成词，标点和符号单独成 token。
var tokenPattern = regexp.MustCompile(`\p{Han}|[^\s\p{P}\p{S}\p{Han}\p{C}]+|[\p{P}\p{S}]`)

// WordTokenizer 是基于正则的确定性分词器。
type WordTokenizer struct{}

func (WordTokenizer) Tokenize(text string) []Span {
	locs := tokenPattern.FindAllStringIndex(text, -1)
	spans := make([]Span, len(locs))
	for i, l := range locs {
		spans[i] = Span{Start: l[0], End: l[1]}
	}
	return spans
}

// Counter 统计文本的 token 数。
type Counter struct {
	tok Tokenizer
}

func NewCounter(tok Tokenizer) Counter {
	if tok == nil {
		tok = WordTokenizer{}
	}
	return Counter{tok: tok}
}

func (c Counter) CountTokens(text string) int {
	return len(c.tok.Tokenize(text))
}

func isSentenceTerminal(tok string) bool {
	switch tok {
	case ".", "!", "?", "。", "！", "？", "…":
		return true
	}
	return false
}

// 全角句末标点后面不需要空白。
func isWideTerminal(tok string) bool {
	r, _ := utf8.DecodeRuneInString(tok)
	return r == '。' || r == '！' || r == '？'
}
