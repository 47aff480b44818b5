package repository

import (
	"context"
	"time"

	"edu-rag-go/internal/model"

	"gorm.io/gorm"
)

// DocumentRepository 定义了对 documents 表的数据操作接口。
type DocumentRepository interface {
	Create(ctx context.Context, doc *model.Document) error
	FindByID(ctx context.Context, id uint) (*model.Document, error)
	ListByUnit(ctx context.Context, unitID uint) ([]model.Document, error)
	ListByUnitAndStatus(ctx context.Context, unitID uint, status model.DocumentStatus) ([]model.Document, error)
	UpdateStatus(ctx context.Context, id uint, status model.DocumentStatus, message string) error
}

type documentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(ctx context.Context, doc *model.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *documentRepository) FindByID(ctx context.Context, id uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).First(&doc, id).Error; err != nil {
		return nil, notFound(err, "document.find", "文档 %d 不存在", id)
	}
	return &doc, nil
}

func (r *documentRepository) ListByUnit(ctx context.Context, unitID uint) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.WithContext(ctx).Where("unit_id = ?", unitID).Order("id").Find(&docs).Error
	return docs, err
}

func (r *documentRepository) ListByUnitAndStatus(ctx context.Context, unitID uint, status model.DocumentStatus) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.WithContext(ctx).Where("unit_id = ? AND status = ?", unitID, status).Order("id").Find(&docs).Error
	return docs, err
}

// UpdateStatus 更新文档提取状态，message 为空表示清空错误信息。
// updated_at 决定主题摘要是否过期，每次都写入。
func (r *documentRepository) UpdateStatus(ctx context.Context, id uint, status model.DocumentStatus, message string) error {
	return r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "error_message": message, "updated_at": time.Now()}).Error
}
