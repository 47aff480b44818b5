package model

// Intent 是查询意图标签。
type Intent string

const (
	IntentTeachFromStart    Intent = "teach_from_start"
	IntentExplainTopic      Intent = "explain_topic"
	IntentExplainDetail     Intent = "explain_detail"
	IntentRevise            Intent = "revise"
	IntentGenerateQuestions Intent = "generate_questions"
)

// Intents 按固定顺序列出全部意图。
var Intents = []Intent{
	IntentTeachFromStart,
	IntentExplainTopic,
	IntentExplainDetail,
	IntentRevise,
	IntentGenerateQuestions,
}

// ChatRequest 是一次问答请求，UnitID/TopicID 可选。
type ChatRequest struct {
	Query     string `json:"query" binding:"required"`
	SubjectID uint   `json:"subject_id" binding:"required"`
	UnitID    *uint  `json:"unit_id,omitempty"`
	TopicID   *uint  `json:"topic_id,omitempty"`
}

// Source 是答案实际引用的一条来源。
type Source struct {
	Kind         ProvenanceKind `json:"kind"`
	ProvenanceID uint           `json:"provenance_id"`
	Score        float64        `json:"score"`
	Preview      string         `json:"preview"`
}

// ChatResult 是问答的返回结果。
type ChatResult struct {
	Answer        string   `json:"answer"`
	Intent        Intent   `json:"intent"`
	Sources       []Source `json:"sources"`
	ContextTokens int      `json:"context_tokens"`
}
