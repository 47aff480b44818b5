package handler

import (
	"edu-rag-go/internal/middleware"
	"edu-rag-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// Handlers 汇总所有控制器，供 RegisterRoutes 注册路由。
type Handlers struct {
	Documents *DocumentHandler
	Summaries *SummaryHandler
	Chat      *ChatHandler
	Admin     *AdminHandler
}

// RegisterRoutes 注册全部 API 路由。除健康检查和 WebSocket 外都需要认证。
func RegisterRoutes(r *gin.Engine, h Handlers, jwtManager *token.JWTManager) {
	apiV1 := r.Group("/api/v1")
	apiV1.GET("/health", h.Admin.Health)

	authed := apiV1.Group("/")
	authed.Use(middleware.AuthMiddleware(jwtManager))
	{
		units := authed.Group("/units/:unitId")
		{
			units.POST("/topics/:topicId/documents", h.Documents.Upload)
			units.GET("/documents", h.Documents.ListDocuments)
			units.GET("/processing-state", h.Documents.GetProcessingState)
			units.POST("/process", h.Documents.ProcessUnit)
			units.POST("/summarize", h.Summaries.SummarizeUnit)
			units.GET("/summary", h.Summaries.GetUnitSummary)
		}

		topics := authed.Group("/topics/:topicId")
		{
			topics.POST("/summarize", h.Summaries.SummarizeTopic)
			topics.GET("/summary", h.Summaries.GetTopicSummary)
		}

		authed.POST("/chat", h.Chat.Chat)

		// 管理员路由组，需要同时通过认证和管理员授权两个中间件
		admin := authed.Group("/admin")
		admin.Use(middleware.AdminAuthMiddleware())
		{
			admin.POST("/index/rebuild", h.Admin.RebuildIndex)
		}
	}

	// Chat 路由 (WebSocket)，token 放在路径中
	r.GET("/chat/:token", h.Chat.Handle)
}
