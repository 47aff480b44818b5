// Package retrieval 根据意图选择检索策略，组装上下文并生成回答。
package retrieval

import "edu-rag-go/internal/model"

// Step 是策略中的一次检索：在对应的索引里取 K 条某种来源。
type Step struct {
	Kind model.ProvenanceKind
	K    int
}

// Strategy 是一个意图对应的检索方案。
type Strategy struct {
	Intent model.Intent
	Steps  []Step
}

// Limits 是各来源的 top-k。
type Limits struct {
	PassageK int
	TopicK   int
	UnitK    int
}

// Strategies 返回 意图→策略 的固定映射，覆盖全部五种意图。
//
//	teach_from_start   单元摘要
//	explain_topic      主题摘要 top-1 + 分块 top-k
//	explain_detail     分块 top-k
//	revise             单元摘要，与 teach_from_start 相同，prompt 不同
//	generate_questions 主题摘要 top-k
func Strategies(l Limits) map[model.Intent]Strategy {
	return map[model.Intent]Strategy{
		model.IntentTeachFromStart: {
			Intent: model.IntentTeachFromStart,
			Steps:  []Step{{Kind: model.ProvenanceUnitSummary, K: l.UnitK}},
		},
		model.IntentExplainTopic: {
			Intent: model.IntentExplainTopic,
			Steps: []Step{
				{Kind: model.ProvenanceTopicSummary, K: 1},
				{Kind: model.ProvenancePassage, K: l.PassageK},
			},
		},
		model.IntentExplainDetail: {
			Intent: model.IntentExplainDetail,
			Steps:  []Step{{Kind: model.ProvenancePassage, K: l.PassageK}},
		},
		model.IntentRevise: {
			Intent: model.IntentRevise,
			Steps:  []Step{{Kind: model.ProvenanceUnitSummary, K: l.UnitK}},
		},
		model.IntentGenerateQuestions: {
			Intent: model.IntentGenerateQuestions,
			Steps:  []Step{{Kind: model.ProvenanceTopicSummary, K: l.TopicK}},
		},
	}
}
