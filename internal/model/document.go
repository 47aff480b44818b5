package model

import (
	"path/filepath"
	"strings"
	"time"
)

// MediaKind 是上传文档声明的媒体类型。
type MediaKind string

const (
	MediaPDF      MediaKind = "pdf"
	MediaDOCX     MediaKind = "docx"
	MediaTXT      MediaKind = "txt"
	MediaMarkdown MediaKind = "markdown"
)

// ParseMediaKind 解析声明的类型，为空时按文件扩展名推断。
// 返回 false 表示不支持。
func ParseMediaKind(declared, fileName string) (MediaKind, bool) {
	v := strings.ToLower(strings.TrimSpace(declared))
	if v == "" {
		v = strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
	}
	switch v {
	case "pdf", "application/pdf":
		return MediaPDF, true
	case "docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return MediaDOCX, true
	case "txt", "text", "text/plain":
		return MediaTXT, true
	case "md", "markdown", "text/markdown":
		return MediaMarkdown, true
	}
	return MediaKind(v), false
}

// ContentType 返回写入对象存储时使用的 MIME 类型。
func (k MediaKind) ContentType() string {
	switch k {
	case MediaPDF:
		return "application/pdf"
	case MediaDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case MediaMarkdown:
		return "text/markdown"
	default:
		return "text/plain"
	}
}

// DocumentStatus 是单个文档的提取状态。
type DocumentStatus string

const (
	DocumentPending   DocumentStatus = "pending"
	DocumentExtracted DocumentStatus = "extracted"
	DocumentFailed    DocumentStatus = "failed"
)

// Document 对应 documents 表，记录一次上传的文件。
type Document struct {
	ID           uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	TopicID      uint           `gorm:"not null;index" json:"topicId"`
	UnitID       uint           `gorm:"not null;index" json:"unitId"`
	SubjectID    uint           `gorm:"not null" json:"subjectId"`
	OwnerID      uint           `gorm:"not null" json:"ownerId"`
	FileName     string         `gorm:"type:varchar(255);not null" json:"fileName"`
	MediaKind    MediaKind      `gorm:"type:varchar(16);not null" json:"mediaKind"`
	ByteSize     int64          `gorm:"not null" json:"byteSize"`
	ObjectKey    string         `gorm:"type:varchar(255);not null" json:"-"`
	Status       DocumentStatus `gorm:"type:varchar(16);not null;default:pending;index" json:"status"`
	ErrorMessage string         `gorm:"type:text" json:"errorMessage,omitempty"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Document) TableName() string {
	return "documents"
}
