package model

import "time"

// ProcessingStatus 是单元摄入流程的状态。
type ProcessingStatus string

const (
	StatusEmpty      ProcessingStatus = "empty"
	StatusUploaded   ProcessingStatus = "uploaded"
	StatusProcessing ProcessingStatus = "processing"
	StatusReady      ProcessingStatus = "ready"
	StatusFailed     ProcessingStatus = "failed"
)

// ProcessingState 对应 unit_processing_states 表，只由流水线驱动修改。
type ProcessingState struct {
	UnitID          uint             `gorm:"primaryKey;autoIncrement:false" json:"unitId"`
	Status          ProcessingStatus `gorm:"type:varchar(16);not null;default:empty" json:"status"`
	HasFiles        bool             `gorm:"not null;default:false" json:"hasFiles"`
	PassageCount    int              `gorm:"not null;default:0" json:"passageCount"`
	EmbeddingsReady bool             `gorm:"not null;default:false" json:"embeddingsReady"`
	LastError       string           `gorm:"type:text" json:"lastError,omitempty"`
	RunID           string           `gorm:"type:varchar(36)" json:"-"`
	UpdatedAt       time.Time        `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (ProcessingState) TableName() string {
	return "unit_processing_states"
}
