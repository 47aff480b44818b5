package handler

import (
	"io"
	"net/http"

	"edu-rag-go/internal/service"
	"edu-rag-go/pkg/errs"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 负责文档上传、处理状态和手动触发处理的 API 请求。
type DocumentHandler struct {
	ingest service.IngestService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(ingest service.IngestService) *DocumentHandler {
	return &DocumentHandler{ingest: ingest}
}

// Upload 处理 multipart 上传：file 为文件，media_kind 可选。
func (h *DocumentHandler) Upload(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	unitID, err := uintParam(c, "unitId")
	if err != nil {
		fail(c, "Upload", err)
		return
	}
	topicID, err := uintParam(c, "topicId")
	if err != nil {
		fail(c, "Upload", err)
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, "Upload", errs.New(errs.KindInvalidInput, "handler.upload", err))
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, "Upload", err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		fail(c, "Upload", err)
		return
	}

	doc, err := h.ingest.Upload(c.Request.Context(), id, service.UploadInput{
		UnitID:    unitID,
		TopicID:   topicID,
		FileName:  fh.Filename,
		MediaKind: c.PostForm("media_kind"),
		Data:      data,
	})
	if err != nil {
		fail(c, "Upload", err)
		return
	}
	respond(c, http.StatusCreated, "文档上传成功", doc)
}

// ListDocuments 返回单元下的文档及其提取状态。
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	unitID, err := uintParam(c, "unitId")
	if err != nil {
		fail(c, "ListDocuments", err)
		return
	}
	docs, err := h.ingest.ListDocuments(c.Request.Context(), id, unitID)
	if err != nil {
		fail(c, "ListDocuments", err)
		return
	}
	respond(c, http.StatusOK, "获取文档列表成功", docs)
}

// GetProcessingState 返回单元的处理状态，供客户端轮询。
func (h *DocumentHandler) GetProcessingState(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	unitID, err := uintParam(c, "unitId")
	if err != nil {
		fail(c, "GetProcessingState", err)
		return
	}
	st, err := h.ingest.GetProcessingState(c.Request.Context(), id, unitID)
	if err != nil {
		fail(c, "GetProcessingState", err)
		return
	}
	respond(c, http.StatusOK, "success", st)
}

// ProcessUnit 手动触发单元处理，任务入队后返回 202。
func (h *DocumentHandler) ProcessUnit(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	unitID, err := uintParam(c, "unitId")
	if err != nil {
		fail(c, "ProcessUnit", err)
		return
	}
	st, err := h.ingest.ProcessUnit(c.Request.Context(), id, unitID)
	if err != nil {
		fail(c, "ProcessUnit", err)
		return
	}
	respond(c, http.StatusAccepted, "处理任务已加入队列", st)
}
