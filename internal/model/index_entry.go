package model

import "time"

// ProvenanceKind 标识索引条目对应的源文本类型。
type ProvenanceKind string

const (
	ProvenancePassage      ProvenanceKind = "passage"
	ProvenanceTopicSummary ProvenanceKind = "topic_summary"
	ProvenanceUnitSummary  ProvenanceKind = "unit_summary"
)

// Scope 是索引条目所属的层级，检索时按它过滤。
type Scope struct {
	OwnerID   uint `json:"owner_id"`
	SubjectID uint `json:"subject_id"`
	UnitID    uint `json:"unit_id"`
	TopicID   uint `json:"topic_id,omitempty"`
}

// IndexEntry 是向量索引中的一条记录。写入后不再修改，只会被追加或标记删除。
type IndexEntry struct {
	Seq          uint64         `json:"seq"`
	ProvenanceID uint           `json:"provenance_id"`
	Kind         ProvenanceKind `json:"kind"`
	Scope        Scope          `json:"scope"`
	Vector       []float32      `json:"vector"`
	Live         bool           `json:"live"`
	CreatedAt    time.Time      `json:"created_at"`
}
