package repository

import (
	"context"

	"edu-rag-go/internal/model"

	"gorm.io/gorm"
)

// HierarchyRepository 只读地访问 科目/单元/主题 三级结构。
type HierarchyRepository interface {
	FindSubject(ctx context.Context, subjectID uint) (*model.Subject, error)
	FindUnitScope(ctx context.Context, unitID uint) (*model.UnitScope, error)
	FindTopic(ctx context.Context, topicID uint) (*model.Topic, error)
	ListTopics(ctx context.Context, unitID uint) ([]model.Topic, error)
}

type hierarchyRepository struct {
	db *gorm.DB
}

func NewHierarchyRepository(db *gorm.DB) HierarchyRepository {
	return &hierarchyRepository{db: db}
}

func (r *hierarchyRepository) FindSubject(ctx context.Context, subjectID uint) (*model.Subject, error) {
	var s model.Subject
	if err := r.db.WithContext(ctx).First(&s, subjectID).Error; err != nil {
		return nil, notFound(err, "hierarchy.subject", "科目 %d 不存在", subjectID)
	}
	return &s, nil
}

// FindUnitScope 查出单元及其所属科目。
func (r *hierarchyRepository) FindUnitScope(ctx context.Context, unitID uint) (*model.UnitScope, error) {
	var scope model.UnitScope
	if err := r.db.WithContext(ctx).First(&scope.Unit, unitID).Error; err != nil {
		return nil, notFound(err, "hierarchy.unit", "单元 %d 不存在", unitID)
	}
	if err := r.db.WithContext(ctx).First(&scope.Subject, scope.Unit.SubjectID).Error; err != nil {
		return nil, notFound(err, "hierarchy.subject", "单元 %d 所属科目 %d 不存在", unitID, scope.Unit.SubjectID)
	}
	return &scope, nil
}

func (r *hierarchyRepository) FindTopic(ctx context.Context, topicID uint) (*model.Topic, error) {
	var t model.Topic
	if err := r.db.WithContext(ctx).First(&t, topicID).Error; err != nil {
		return nil, notFound(err, "hierarchy.topic", "主题 %d 不存在", topicID)
	}
	return &t, nil
}

// ListTopics 按 id 顺序返回单元下的全部主题。
func (r *hierarchyRepository) ListTopics(ctx context.Context, unitID uint) ([]model.Topic, error) {
	var topics []model.Topic
	err := r.db.WithContext(ctx).Where("unit_id = ?", unitID).Order("id").Find(&topics).Error
	return topics, err
}
