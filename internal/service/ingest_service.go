package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"edu-rag-go/internal/model"
	"edu-rag-go/internal/processing"
	"edu-rag-go/internal/repository"
	"edu-rag-go/pkg/errs"
	"edu-rag-go/pkg/log"
	"edu-rag-go/pkg/storage"
	"edu-rag-go/pkg/tasks"

	"github.com/google/uuid"
)

// UploadInput 是一次上传请求。MediaKind 为空时按文件扩展名推断。
type UploadInput struct {
	UnitID    uint
	TopicID   uint
	FileName  string
	MediaKind string
	Data      []byte
}

// IngestService 负责文档上传、处理状态查询和手动触发处理。
type IngestService interface {
	Upload(ctx context.Context, id model.Identity, in UploadInput) (*model.Document, error)
	ListDocuments(ctx context.Context, id model.Identity, unitID uint) ([]model.Document, error)
	GetProcessingState(ctx context.Context, id model.Identity, unitID uint) (model.ProcessingState, error)
	ProcessUnit(ctx context.Context, id model.Identity, unitID uint) (model.ProcessingState, error)
}

type ingestService struct {
	hierarchy repository.HierarchyRepository
	documents repository.DocumentRepository
	files     storage.DocumentStore
	machine   *processing.Machine
	publisher tasks.Publisher
}

// NewIngestService 创建一个新的 IngestService 实例。
func NewIngestService(hierarchy repository.HierarchyRepository, documents repository.DocumentRepository,
	files storage.DocumentStore, machine *processing.Machine, publisher tasks.Publisher) IngestService {
	return &ingestService{
		hierarchy: hierarchy,
		documents: documents,
		files:     files,
		machine:   machine,
		publisher: publisher,
	}
}

// Upload 保存文件和文档记录，把单元置为 uploaded 并投递处理任务后立即返回。
// 单元正在处理时只保存文档，由当前任务结束后重新排队。
func (s *ingestService) Upload(ctx context.Context, id model.Identity, in UploadInput) (*model.Document, error) {
	scope, err := authorizeUnit(ctx, s.hierarchy, id, in.UnitID)
	if err != nil {
		return nil, err
	}
	topic, err := s.hierarchy.FindTopic(ctx, in.TopicID)
	if err != nil {
		return nil, err
	}
	if topic.UnitID != in.UnitID {
		return nil, errs.Newf(errs.KindInvalidInput, "ingest.upload", "主题 %d 不属于单元 %d", in.TopicID, in.UnitID)
	}
	if len(in.Data) == 0 {
		return nil, errs.Newf(errs.KindInvalidInput, "ingest.upload", "文件 %q 为空", in.FileName)
	}
	kind, ok := model.ParseMediaKind(in.MediaKind, in.FileName)
	if !ok {
		return nil, errs.Newf(errs.KindUnsupportedFormat, "ingest.upload", "不支持的文件类型 %q", kind)
	}

	objectKey := fmt.Sprintf("units/%d/topics/%d/%s%s", in.UnitID, in.TopicID, uuid.NewString(), strings.ToLower(filepath.Ext(in.FileName)))
	if err := s.files.Put(ctx, objectKey, in.Data, kind.ContentType()); err != nil {
		return nil, fmt.Errorf("保存文件失败: %w", err)
	}

	doc := &model.Document{
		TopicID:   in.TopicID,
		UnitID:    in.UnitID,
		SubjectID: scope.Subject.ID,
		OwnerID:   id.UserID,
		FileName:  in.FileName,
		MediaKind: kind,
		ByteSize:  int64(len(in.Data)),
		ObjectKey: objectKey,
		Status:    model.DocumentPending,
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		if delErr := s.files.Delete(ctx, objectKey); delErr != nil {
			log.Warnf("[IngestService] 清理文件 %s 失败: %v", objectKey, delErr)
		}
		return nil, fmt.Errorf("保存文档记录失败: %w", err)
	}

	_, queued, err := s.machine.MarkUploaded(ctx, in.UnitID)
	if err != nil {
		return nil, err
	}
	log.Infof("[IngestService] 文档已上传: doc=%d, unit=%d, topic=%d, kind=%s, size=%d", doc.ID, in.UnitID, in.TopicID, kind, doc.ByteSize)
	if queued {
		task := tasks.UnitProcessingTask{UnitID: in.UnitID, RequestedBy: id.UserID, Reason: tasks.ReasonUpload}
		if err := s.publisher.Publish(ctx, task); err != nil {
			// 单元保持 uploaded，可以通过手动触发重新投递
			log.Errorf("[IngestService] 投递单元 %d 的处理任务失败: %v", in.UnitID, err)
		}
	}
	return doc, nil
}

func (s *ingestService) ListDocuments(ctx context.Context, id model.Identity, unitID uint) ([]model.Document, error) {
	if _, err := authorizeUnit(ctx, s.hierarchy, id, unitID); err != nil {
		return nil, err
	}
	return s.documents.ListByUnit(ctx, unitID)
}

// GetProcessingState 只读查询，不会创建状态记录。
func (s *ingestService) GetProcessingState(ctx context.Context, id model.Identity, unitID uint) (model.ProcessingState, error) {
	if _, err := authorizeUnit(ctx, s.hierarchy, id, unitID); err != nil {
		return model.ProcessingState{}, err
	}
	return s.machine.Get(ctx, unitID)
}

// ProcessUnit 手动触发处理：uploaded 直接投递，failed 先回到 uploaded 再投递，
// 失联的 processing 任务重新投递后由新任务接管。
func (s *ingestService) ProcessUnit(ctx context.Context, id model.Identity, unitID uint) (model.ProcessingState, error) {
	if _, err := authorizeUnit(ctx, s.hierarchy, id, unitID); err != nil {
		return model.ProcessingState{}, err
	}
	st, err := s.machine.Get(ctx, unitID)
	if err != nil {
		return model.ProcessingState{}, err
	}

	switch st.Status {
	case model.StatusProcessing:
		if !s.machine.Stale(st) {
			return st, errs.Newf(errs.KindConcurrencyConflict, "ingest.process", "单元 %d 正在处理中", unitID)
		}
		log.Warnf("[IngestService] 单元 %d 的处理任务 %s 已失联, 重新投递", unitID, st.RunID)
	case model.StatusReady, model.StatusEmpty:
		return st, errs.Newf(errs.KindPrecondition, "ingest.process", "单元 %d 当前状态为 %s, 没有待处理的文档", unitID, st.Status)
	case model.StatusFailed:
		ok, err := s.machine.Requeue(ctx, unitID)
		if err != nil {
			return st, err
		}
		if !ok {
			return st, errs.Newf(errs.KindConcurrencyConflict, "ingest.process", "单元 %d 的状态已被修改", unitID)
		}
	}

	task := tasks.UnitProcessingTask{UnitID: unitID, RequestedBy: id.UserID, Reason: tasks.ReasonManual}
	if err := s.publisher.Publish(ctx, task); err != nil {
		return st, fmt.Errorf("投递处理任务失败: %w", err)
	}
	log.Infof("[IngestService] 单元 %d 已手动加入处理队列, 原状态 %s", unitID, st.Status)
	return s.machine.Get(ctx, unitID)
}
