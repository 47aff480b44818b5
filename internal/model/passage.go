package model

import "time"

// Passage 对应 passages 表，是文档文本的一个分块，文本写入后不再修改。
type Passage struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	DocumentID uint      `gorm:"not null;index;uniqueIndex:idx_document_ordinal" json:"documentId"`
	TopicID    uint      `gorm:"not null;index" json:"topicId"`
	UnitID     uint      `gorm:"not null;index" json:"unitId"`
	Ordinal    int       `gorm:"not null;uniqueIndex:idx_document_ordinal" json:"ordinal"`
	TokenCount int       `gorm:"not null" json:"tokenCount"`
	Text       string    `gorm:"type:longtext;not null" json:"text"`
	Embedded   bool      `gorm:"not null;default:false" json:"embedded"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Passage) TableName() string {
	return "passages"
}
