package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader 是请求 id 的请求头和响应头。
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "requestId"

// RequestID 沿用客户端传入的请求 id，没有时生成一个，并写回响应头。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestIDFrom 返回当前请求的 id，没有经过 RequestID 中间件时为空。
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
