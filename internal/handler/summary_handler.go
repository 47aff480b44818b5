package handler

import (
	"net/http"

	"edu-rag-go/internal/service"

	"github.com/gin-gonic/gin"
)

// SummaryHandler 负责手动生成和读取主题/单元摘要。
type SummaryHandler struct {
	summaries service.SummaryService
}

func NewSummaryHandler(summaries service.SummaryService) *SummaryHandler {
	return &SummaryHandler{summaries: summaries}
}

func (h *SummaryHandler) SummarizeTopic(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	topicID, err := uintParam(c, "topicId")
	if err != nil {
		fail(c, "SummarizeTopic", err)
		return
	}
	sum, err := h.summaries.SummarizeTopic(c.Request.Context(), id, topicID)
	if err != nil {
		fail(c, "SummarizeTopic", err)
		return
	}
	respond(c, http.StatusOK, "主题摘要已生成", sum)
}

func (h *SummaryHandler) GetTopicSummary(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	topicID, err := uintParam(c, "topicId")
	if err != nil {
		fail(c, "GetTopicSummary", err)
		return
	}
	sum, err := h.summaries.GetTopicSummary(c.Request.Context(), id, topicID)
	if err != nil {
		fail(c, "GetTopicSummary", err)
		return
	}
	respond(c, http.StatusOK, "success", sum)
}

func (h *SummaryHandler) SummarizeUnit(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	unitID, err := uintParam(c, "unitId")
	if err != nil {
		fail(c, "SummarizeUnit", err)
		return
	}
	sum, err := h.summaries.SummarizeUnit(c.Request.Context(), id, unitID)
	if err != nil {
		fail(c, "SummarizeUnit", err)
		return
	}
	respond(c, http.StatusOK, "单元摘要已生成", sum)
}

func (h *SummaryHandler) GetUnitSummary(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	unitID, err := uintParam(c, "unitId")
	if err != nil {
		fail(c, "GetUnitSummary", err)
		return
	}
	sum, err := h.summaries.GetUnitSummary(c.Request.Context(), id, unitID)
	if err != nil {
		fail(c, "GetUnitSummary", err)
		return
	}
	respond(c, http.StatusOK, "success", sum)
}
