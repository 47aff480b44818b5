package handler

import (
	"context"
	"net/http"

	"edu-rag-go/internal/service"
	"edu-rag-go/internal/vectorindex"
	"edu-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// HealthChecker 检查外部依赖的可达性，由 database.Checker 实现。
type HealthChecker interface {
	Check(ctx context.Context) map[string]string
}

// IndexAdmin 是索引维护操作，由 service.IndexService 实现。
type IndexAdmin interface {
	Rebuild(ctx context.Context, which string) (map[string]int, error)
	Stats() map[string]vectorindex.Stats
}

// AdminHandler 负责健康检查和索引维护。
type AdminHandler struct {
	health  HealthChecker
	indexes IndexAdmin
}

func NewAdminHandler(health HealthChecker, indexes IndexAdmin) *AdminHandler {
	return &AdminHandler{health: health, indexes: indexes}
}

// Health 返回各依赖的状态和两个索引的存活条目数，任一依赖异常时返回 503。
func (h *AdminHandler) Health(c *gin.Context) {
	components := h.health.Check(c.Request.Context())
	status := http.StatusOK
	for _, v := range components {
		if v != "ok" {
			status = http.StatusServiceUnavailable
		}
	}
	respond(c, status, "health", gin.H{
		"components": components,
		"indexes":    h.indexes.Stats(),
	})
}

// RebuildIndex 重建向量索引，which 取 passages、summaries 或 all。
func (h *AdminHandler) RebuildIndex(c *gin.Context) {
	which := c.DefaultQuery("which", service.IndexAll)
	counts, err := h.indexes.Rebuild(c.Request.Context(), which)
	if err != nil {
		fail(c, "RebuildIndex", err)
		return
	}
	log.Infof("[AdminHandler] 索引重建完成: %v", counts)
	respond(c, http.StatusOK, "索引重建完成", counts)
}
