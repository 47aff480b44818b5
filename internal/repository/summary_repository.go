package repository

import (
	"context"
	"errors"

	"edu-rag-go/internal/model"

	"gorm.io/gorm"
)

// SummaryRepository 定义了对 topic_summaries / unit_summaries 表的数据操作接口。
// 每个主题、每个单元最多一条摘要，重新生成时按 topic_id / unit_id 原地覆盖，id 保持不变。
type SummaryRepository interface {
	FindTopicSummary(ctx context.Context, topicID uint) (*model.TopicSummary, error)
	FindUnitSummary(ctx context.Context, unitID uint) (*model.UnitSummary, error)
	SaveTopicSummary(ctx context.Context, s *model.TopicSummary) error
	SaveUnitSummary(ctx context.Context, s *model.UnitSummary) error
	ListTopicSummaries(ctx context.Context, unitID uint) ([]model.TopicSummary, error)
	TopicSummariesByIDs(ctx context.Context, ids []uint) ([]model.TopicSummary, error)
	UnitSummariesByIDs(ctx context.Context, ids []uint) ([]model.UnitSummary, error)
	MarkTopicSummaryEmbedded(ctx context.Context, id uint, embedded bool) error
	MarkUnitSummaryEmbedded(ctx context.Context, id uint, embedded bool) error
	AllTopicSummaries(ctx context.Context) ([]model.TopicSummary, error)
	AllUnitSummaries(ctx context.Context) ([]model.UnitSummary, error)
}

type summaryRepository struct {
	db *gorm.DB
}

func NewSummaryRepository(db *gorm.DB) SummaryRepository {
	return &summaryRepository{db: db}
}

// FindTopicSummary 不存在时返回 nil, nil。
func (r *summaryRepository) FindTopicSummary(ctx context.Context, topicID uint) (*model.TopicSummary, error) {
	var s model.TopicSummary
	err := r.db.WithContext(ctx).Where("topic_id = ?", topicID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// FindUnitSummary 不存在时返回 nil, nil。
func (r *summaryRepository) FindUnitSummary(ctx context.Context, unitID uint) (*model.UnitSummary, error) {
	var s model.UnitSummary
	err := r.db.WithContext(ctx).Where("unit_id = ?", unitID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveTopicSummary 按 topic_id 插入或覆盖，写回 s.ID。
func (r *summaryRepository) SaveTopicSummary(ctx context.Context, s *model.TopicSummary) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.TopicSummary
		err := tx.Where("topic_id = ?", s.TopicID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(s).Error
		}
		if err != nil {
			return err
		}
		s.ID = existing.ID
		return tx.Save(s).Error
	})
}

// SaveUnitSummary 按 unit_id 插入或覆盖，写回 s.ID。
func (r *summaryRepository) SaveUnitSummary(ctx context.Context, s *model.UnitSummary) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.UnitSummary
		err := tx.Where("unit_id = ?", s.UnitID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(s).Error
		}
		if err != nil {
			return err
		}
		s.ID = existing.ID
		return tx.Save(s).Error
	})
}

func (r *summaryRepository) ListTopicSummaries(ctx context.Context, unitID uint) ([]model.TopicSummary, error) {
	var out []model.TopicSummary
	err := r.db.WithContext(ctx).Where("unit_id = ?", unitID).Order("topic_id").Find(&out).Error
	return out, err
}

func (r *summaryRepository) TopicSummariesByIDs(ctx context.Context, ids []uint) ([]model.TopicSummary, error) {
	var out []model.TopicSummary
	if len(ids) == 0 {
		return out, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error
	return out, err
}

func (r *summaryRepository) UnitSummariesByIDs(ctx context.Context, ids []uint) ([]model.UnitSummary, error) {
	var out []model.UnitSummary
	if len(ids) == 0 {
		return out, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error
	return out, err
}

func (r *summaryRepository) MarkTopicSummaryEmbedded(ctx context.Context, id uint, embedded bool) error {
	return r.db.WithContext(ctx).Model(&model.TopicSummary{}).Where("id = ?", id).Update("embedded", embedded).Error
}

func (r *summaryRepository) MarkUnitSummaryEmbedded(ctx context.Context, id uint, embedded bool) error {
	return r.db.WithContext(ctx).Model(&model.UnitSummary{}).Where("id = ?", id).Update("embedded", embedded).Error
}

func (r *summaryRepository) AllTopicSummaries(ctx context.Context) ([]model.TopicSummary, error) {
	var out []model.TopicSummary
	err := r.db.WithContext(ctx).Order("id").Find(&out).Error
	return out, err
}

func (r *summaryRepository) AllUnitSummaries(ctx context.Context) ([]model.UnitSummary, error) {
	var out []model.UnitSummary
	err := r.db.WithContext(ctx).Order("id").Find(&out).Error
	return out, err
}
