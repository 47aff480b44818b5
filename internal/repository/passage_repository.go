package repository

import (
	"context"

	"edu-rag-go/internal/model"

	"gorm.io/gorm"
)

// PassageRepository 定义了对 passages 表的数据操作接口。
type PassageRepository interface {
	// ReplaceForDocument 在一个事务里删除文档的旧分块并写入新分块，返回被删除的分块 id。
	ReplaceForDocument(ctx context.Context, documentID uint, passages []*model.Passage) ([]uint, error)
	ListByUnit(ctx context.Context, unitID uint, onlyUnembedded bool) ([]model.Passage, error)
	ListByTopic(ctx context.Context, topicID uint) ([]model.Passage, error)
	FindByIDs(ctx context.Context, ids []uint) ([]model.Passage, error)
	MarkEmbedded(ctx context.Context, ids []uint) error
	CountByUnit(ctx context.Context, unitID uint) (int64, error)
	// CountByTopic 返回主题下的分块总数和尚未向量化的数量。
	CountByTopic(ctx context.Context, topicID uint) (total int64, unembedded int64, err error)
	// FindBatch 按 id 升序分页，用于重建索引。
	FindBatch(ctx context.Context, afterID uint, limit int) ([]model.Passage, error)
}

type passageRepository struct {
	db *gorm.DB
}

func NewPassageRepository(db *gorm.DB) PassageRepository {
	return &passageRepository{db: db}
}

func (r *passageRepository) ReplaceForDocument(ctx context.Context, documentID uint, passages []*model.Passage) ([]uint, error) {
	var oldIDs []uint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Passage{}).Where("document_id = ?", documentID).Pluck("id", &oldIDs).Error; err != nil {
			return err
		}
		if len(oldIDs) > 0 {
			if err := tx.Where("document_id = ?", documentID).Delete(&model.Passage{}).Error; err != nil {
				return err
			}
		}
		if len(passages) == 0 {
			return nil
		}
		return tx.CreateInBatches(passages, 100).Error // 每100条记录一批
	})
	return oldIDs, err
}

func (r *passageRepository) ListByUnit(ctx context.Context, unitID uint, onlyUnembedded bool) ([]model.Passage, error) {
	q := r.db.WithContext(ctx).Where("unit_id = ?", unitID)
	if onlyUnembedded {
		q = q.Where("embedded = ?", false)
	}
	var passages []model.Passage
	err := q.Order("document_id, ordinal").Find(&passages).Error
	return passages, err
}

func (r *passageRepository) ListByTopic(ctx context.Context, topicID uint) ([]model.Passage, error) {
	var passages []model.Passage
	err := r.db.WithContext(ctx).Where("topic_id = ?", topicID).Order("document_id, ordinal").Find(&passages).Error
	return passages, err
}

func (r *passageRepository) FindByIDs(ctx context.Context, ids []uint) ([]model.Passage, error) {
	var passages []model.Passage
	if len(ids) == 0 {
		return passages, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&passages).Error
	return passages, err
}

func (r *passageRepository) MarkEmbedded(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&model.Passage{}).Where("id IN ?", ids).Update("embedded", true).Error
}

func (r *passageRepository) CountByUnit(ctx context.Context, unitID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Passage{}).Where("unit_id = ?", unitID).Count(&n).Error
	return n, err
}

func (r *passageRepository) CountByTopic(ctx context.Context, topicID uint) (int64, int64, error) {
	var row struct {
		Total      int64
		Unembedded int64
	}
	err := r.db.WithContext(ctx).Model(&model.Passage{}).
		Select("COUNT(*) AS total, COALESCE(SUM(CASE WHEN embedded THEN 0 ELSE 1 END), 0) AS unembedded").
		Where("topic_id = ?", topicID).
		Scan(&row).Error
	return row.Total, row.Unembedded, err
}

func (r *passageRepository) FindBatch(ctx context.Context, afterID uint, limit int) ([]model.Passage, error) {
	var passages []model.Passage
	err := r.db.WithContext(ctx).Where("id > ?", afterID).Order("id").Limit(limit).Find(&passages).Error
	return passages, err
}
