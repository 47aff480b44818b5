package handler

import (
	"encoding/json"
	"net/http"

	"edu-rag-go/internal/model"
	"edu-rag-go/internal/service"
	"edu-rag-go/pkg/errs"
	"edu-rag-go/pkg/log"
	"edu-rag-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// ChatHandler 负责问答请求，支持普通 HTTP 和 WebSocket 两种方式。
type ChatHandler struct {
	chatService service.ChatService
	jwtManager  *token.JWTManager
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{chatService: chatService, jwtManager: jwtManager}
}

// Chat 处理一次问答请求。
func (h *ChatHandler) Chat(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, "Chat", errs.New(errs.KindInvalidInput, "handler.chat", err))
		return
	}
	res, err := h.chatService.Chat(c.Request.Context(), id, req)
	if err != nil {
		fail(c, "Chat", err)
		return
	}
	respond(c, http.StatusOK, "success", res)
}

// wsMessage 是 WebSocket 上每个请求对应的一条回复。
type wsMessage struct {
	Type    string            `json:"type"`
	Code    int               `json:"code,omitempty"`
	Message string            `json:"message,omitempty"`
	Data    *model.ChatResult `json:"data,omitempty"`
}

// Handle 处理一个传入的 WebSocket 连接。每条消息是一个 JSON 问答请求，
// 服务端按顺序为每条请求写回一条结果或错误。
func (h *ChatHandler) Handle(c *gin.Context) {
	claims, err := h.jwtManager.VerifyToken(c.Param("token"))
	if err != nil {
		respond(c, http.StatusUnauthorized, "无效的 token", nil)
		return
	}
	id := claims.Identity()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，用户: %s", claims.Username)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			return
		}

		var req model.ChatRequest
		if err := json.Unmarshal(message, &req); err != nil || req.SubjectID == 0 {
			_ = conn.WriteJSON(wsMessage{Type: "error", Code: http.StatusBadRequest, Message: "无效的请求格式"})
			continue
		}

		res, err := h.chatService.Chat(c.Request.Context(), id, req)
		if err != nil {
			status := StatusOf(err)
			msg := errs.Message(err)
			if status == http.StatusInternalServerError {
				log.Errorf("处理 WebSocket 问答失败: %v", err)
				msg = "服务暂时不可用，请稍后重试"
			}
			if werr := conn.WriteJSON(wsMessage{Type: "error", Code: status, Message: msg}); werr != nil {
				return
			}
			continue
		}
		if err := conn.WriteJSON(wsMessage{Type: "result", Data: &res}); err != nil {
			log.Warnf("写入 WebSocket 消息失败: %v", err)
			return
		}
	}
}
