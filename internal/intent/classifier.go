// Package intent 把用户的查询归类到固定的五种意图之一。
package intent

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"edu-rag-go/internal/model"
	"edu-rag-go/pkg/errs"
	"edu-rag-go/pkg/log"
)

// Default 是解析失败时使用的意图，检索范围居中。
const Default = model.IntentExplainTopic

type Generator interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Hints 是写进分类 prompt 的上下文，可以为空。
type Hints struct {
	SubjectName string
	UnitTitle   string
	TopicTitle  string
}

const classifyPrompt = `Classify the user's educational query intent.

CONTEXT:
- Subject: %s
- Unit: %s
- Topic: %s

USER MESSAGE: %s

INTENT OPTIONS:
1. teach_from_start - User wants to learn the topic/unit from the beginning
2. explain_topic - User wants an overview or explanation of a specific topic
3. explain_detail - User wants detailed explanation of a specific concept
4. revise - User wants to review/revise previously learned material
5. generate_questions - User wants practice questions or exercises

Respond with ONLY the intent name (e.g., "explain_detail"):`

type Classifier struct {
	gen       Generator
	maxTokens int
}

func NewClassifier(gen Generator, maxTokens int) *Classifier {
	if maxTokens <= 0 {
		maxTokens = 20
	}
	return &Classifier{gen: gen, maxTokens: maxTokens}
}

// Classify 总是返回一个合法意图。生成失败或回复无法解析时返回 Default，
// 第二个返回值是被吞掉的 ClassificationError，仅用于记录。
func (c *Classifier) Classify(ctx context.Context, query string, hints Hints) (model.Intent, error) {
	prompt := fmt.Sprintf(classifyPrompt, orNA(hints.SubjectName), orNA(hints.UnitTitle), orNA(hints.TopicTitle), query)
	reply, err := c.gen.Complete(ctx, prompt, c.maxTokens)
	if err != nil {
		cerr := errs.New(errs.KindClassification, "intent.classify", err)
		log.Warnf("[IntentClassifier] 意图分类调用失败, 使用默认意图 %s: %v", Default, err)
		return Default, cerr
	}
	if in, ok := Parse(reply); ok {
		return in, nil
	}
	cerr := errs.Newf(errs.KindClassification, "intent.classify", "无法解析的分类结果 %q", reply)
	log.Warnf("[IntentClassifier] 无法解析分类结果 %q, 使用默认意图 %s", reply, Default)
	return Default, cerr
}

// Parse 把模型回复解析成意图标签。先整体精确匹配，再在回复中查找唯一出现的标签。
func Parse(reply string) (model.Intent, bool) {
	norm := normalize(reply)
	for _, in := range model.Intents {
		if norm == string(in) {
			return in, true
		}
	}
	var found model.Intent
	for _, in := range model.Intents {
		if strings.Contains(norm, string(in)) {
			if found != "" {
				return "", false
			}
			found = in
		}
	}
	return found, found != ""
}

// normalize 小写，空白和连字符统一成下划线，去掉其余标点。
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		switch {
		case r == '_' || r == '-' || unicode.IsSpace(r):
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false
		}
	}
	return strings.Trim(b.String(), "_")
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
