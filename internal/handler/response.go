// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"strconv"

	"edu-rag-go/internal/middleware"
	"edu-rag-go/internal/model"
	"edu-rag-go/pkg/errs"
	"edu-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// StatusOf 把错误分类映射为 HTTP 状态码。
func StatusOf(err error) int {
	switch errs.KindOf(err) {
	case errs.KindUnsupportedFormat, errs.KindInvalidInput:
		return http.StatusBadRequest
	case errs.KindForbidden:
		return http.StatusForbidden
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindConcurrencyConflict:
		return http.StatusConflict
	case errs.KindPrecondition:
		return http.StatusUnprocessableEntity
	case errs.KindEmbedding, errs.KindSummarization, errs.KindGeneration:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, gin.H{"code": status, "message": message, "data": data})
}

// fail 返回错误响应。未分类的错误不把细节返回给客户端。
func fail(c *gin.Context, op string, err error) {
	status := StatusOf(err)
	if status == http.StatusInternalServerError {
		log.Errorf("%s: 请求 %s 失败: %v", op, middleware.RequestIDFrom(c), err)
		respond(c, status, "服务器内部错误", nil)
		return
	}
	log.Warnf("%s: %v", op, err)
	data := gin.H{"kind": errs.KindOf(err)}
	respond(c, status, errs.Message(err), data)
}

// identity 读取调用者身份，缺失时直接返回 401。
func identity(c *gin.Context) (model.Identity, bool) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		respond(c, http.StatusUnauthorized, "无法获取用户信息", nil)
	}
	return id, ok
}

func uintParam(c *gin.Context, name string) (uint, error) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		return 0, errs.Newf(errs.KindInvalidInput, "handler.param", "无效的参数 %s=%q", name, c.Param(name))
	}
	return uint(v), nil
}
