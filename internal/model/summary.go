package model

import "time"

// TopicSummary 对应 topic_summaries 表，每个主题最多一条。
// 重新生成时原地覆盖，因此 ID 也是它在摘要索引中的稳定 provenance id。
type TopicSummary struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	TopicID     uint      `gorm:"not null;uniqueIndex" json:"topicId"`
	UnitID      uint      `gorm:"not null;index" json:"unitId"`
	Text        string    `gorm:"type:longtext;not null" json:"text"`
	TokenCount  int       `gorm:"not null" json:"tokenCount"`
	SourceCount int       `gorm:"not null" json:"sourceCount"`
	Embedded    bool      `gorm:"not null;default:false" json:"embedded"`
	GeneratedAt time.Time `gorm:"not null" json:"generatedAt"`
}

func (TopicSummary) TableName() string {
	return "topic_summaries"
}

// UnitSummary 对应 unit_summaries 表，每个单元最多一条。
type UnitSummary struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UnitID      uint      `gorm:"not null;uniqueIndex" json:"unitId"`
	Text        string    `gorm:"type:longtext;not null" json:"text"`
	TokenCount  int       `gorm:"not null" json:"tokenCount"`
	SourceCount int       `gorm:"not null" json:"sourceCount"`
	Embedded    bool      `gorm:"not null;default:false" json:"embedded"`
	GeneratedAt time.Time `gorm:"not null" json:"generatedAt"`
}

func (UnitSummary) TableName() string {
	return "unit_summaries"
}
