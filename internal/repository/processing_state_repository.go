package repository

import (
	"context"
	"errors"
	"time"

	"edu-rag-go/internal/model"
	"edu-rag-go/internal/processing"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// processingStateRepository 是 processing.Store 的 GORM 实现。
// Transition 依赖 RowsAffected 判断条件更新是否命中，MySQL DSN 需要带 clientFoundRows=true，
// 否则字段值未变化的更新会被当成未命中。
type processingStateRepository struct {
	db *gorm.DB
}

func NewProcessingStateRepository(db *gorm.DB) processing.Store {
	return &processingStateRepository{db: db}
}

func (r *processingStateRepository) Find(ctx context.Context, unitID uint) (*model.ProcessingState, error) {
	var st model.ProcessingState
	err := r.db.WithContext(ctx).Where("unit_id = ?", unitID).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// Ensure 插入一条 empty 状态，已存在时什么也不做。
func (r *processingStateRepository) Ensure(ctx context.Context, unitID uint) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.ProcessingState{UnitID: unitID, Status: model.StatusEmpty}).Error
}

func (r *processingStateRepository) Transition(ctx context.Context, unitID uint, from []model.ProcessingStatus, runID string, ch processing.Changes) (bool, error) {
	updates := map[string]interface{}{
		"status":     ch.Status,
		"updated_at": time.Now(),
	}
	if ch.HasFiles != nil {
		updates["has_files"] = *ch.HasFiles
	}
	if ch.PassageCount != nil {
		updates["passage_count"] = *ch.PassageCount
	}
	if ch.EmbeddingsReady != nil {
		updates["embeddings_ready"] = *ch.EmbeddingsReady
	}
	if ch.LastError != nil {
		updates["last_error"] = *ch.LastError
	}
	if ch.RunID != nil {
		updates["run_id"] = *ch.RunID
	}

	q := r.db.WithContext(ctx).Model(&model.ProcessingState{}).Where("unit_id = ? AND status IN ?", unitID, from)
	if runID != "" {
		q = q.Where("run_id = ?", runID)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
