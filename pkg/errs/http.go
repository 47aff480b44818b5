package errs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// FromStatus 根据外部服务返回的 HTTP 状态码构造错误：429、408 和 5xx 可重试，其它 4xx 不重试。
func FromStatus(kind Kind, op string, status int, body string) *Error {
	err := fmt.Errorf("status %d: %s", status, strings.TrimSpace(body))
	if status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500 {
		return Transient(kind, op, err)
	}
	return New(kind, op, err)
}

// FromTransport 包装网络层错误（超时、连接被拒、连接重置、EOF），一律视为可重试，
// 调用方主动取消的 context 除外。
func FromTransport(kind Kind, op string, err error) *Error {
	if errors.Is(err, context.Canceled) {
		return New(kind, op, err)
	}
	return Transient(kind, op, err)
}

var rateLimitMarkers = []string{"429", "rate limit", "ratelimit", "quota", "resource_exhausted", "resource exhausted", "too many requests", "unavailable", "503"}

// LooksRateLimited 判断 SDK 返回的错误消息是否表示限流或服务暂不可用。
func LooksRateLimited(msg string) bool {
	m := strings.ToLower(msg)
	for _, marker := range rateLimitMarkers {
		if strings.Contains(m, marker) {
			return true
		}
	}
	return false
}
