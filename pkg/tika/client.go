// Package tika 提供了一个与 Apache Tika 服务器交互的客户端。
package tika

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"time"

	"edu-rag-go/internal/config"
	"edu-rag-go/pkg/errs"
)

// Client 是 Tika 服务器的客户端。
type Client struct {
	serverURL string
	http      *http.Client
}

// NewClient 创建一个新的 Tika 客户端实例。
func NewClient(cfg config.TikaConfig) *Client {
	return &Client{serverURL: cfg.ServerURL, http: &http.Client{Timeout: 2 * time.Minute}}
}

// StatusError 表示 Tika 返回了非 200 状态码。422 一般意味着文件本身无法解析，
// 429、408 和 5xx 包装成可重试的 ExtractionError。
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Tika 返回错误 [%d]: %s", e.Code, e.Body)
}

// ExtractText 根据文件后缀推断 MIME 类型，调用 Tika 提取纯文本。
func (c *Client) ExtractText(ctx context.Context, fileReader io.Reader, fileName string) (string, error) {
	const op = "tika.extract"
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.serverURL+"/tika", fileReader)
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("Content-Type", detectMimeType(fileName))

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errs.FromTransport(errs.KindExtraction, op, fmt.Errorf("调用 Tika 失败: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		se := &StatusError{Code: resp.StatusCode, Body: string(body)}
		if errs.FromStatus(errs.KindExtraction, op, se.Code, se.Body).Transient {
			return "", errs.Transient(errs.KindExtraction, op, se)
		}
		return "", errs.New(errs.KindExtraction, op, se)
	}

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errs.FromTransport(errs.KindExtraction, op, fmt.Errorf("读取 Tika 响应失败: %w", err))
	}
	return string(text), nil
}

// detectMimeType 根据文件扩展名判断 Content-Type
func detectMimeType(fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		return "application/octet-stream"
	}
	if mimeType := mime.TypeByExtension(ext); mimeType != "" {
		return mimeType
	}
	return "application/octet-stream"
}
