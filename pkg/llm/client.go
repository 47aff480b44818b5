// Package llm provides clients for text generation models.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"edu-rag-go/internal/config"
	"edu-rag-go/pkg/errs"
	"edu-rag-go/pkg/log"
)

// Client 是文本生成能力：给定 prompt 和最大输出 token 数返回生成的文本。
// 意图分类、摘要和最终回答都通过它完成。
type Client interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// NewClient 按配置中的 provider 创建客户端。
func NewClient(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIClient(cfg, nil), nil
	case "gemini":
		return NewGeminiClient(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

type openAICompatibleClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewOpenAIClient 调用 OpenAI 兼容的 /chat/completions 接口（DeepSeek 等）。
func NewOpenAIClient(cfg config.LLMConfig, httpClient *http.Client) Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &openAICompatibleClient{cfg: cfg, client: httpClient}
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (c *openAICompatibleClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	const op = "llm.complete"
	reqBody := chatRequest{
		Model:    c.cfg.Model,
		Messages: []Message{{Role: "user", Content: prompt}},
	}
	// 从全局配置注入（若非零值），调用方给出的 maxTokens 优先
	if c.cfg.Generation.Temperature != 0 {
		t := c.cfg.Generation.Temperature
		reqBody.Temperature = &t
	}
	if c.cfg.Generation.TopP != 0 {
		p := c.cfg.Generation.TopP
		reqBody.TopP = &p
	}
	if maxTokens <= 0 {
		maxTokens = c.cfg.Generation.MaxTokens
	}
	if maxTokens > 0 {
		reqBody.MaxTokens = &maxTokens
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", errs.New(errs.KindGeneration, op, fmt.Errorf("failed to marshal chat request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return "", errs.New(errs.KindGeneration, op, fmt.Errorf("failed to create chat request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[LLMClient] 调用 Chat API 失败, error: %v", err)
		return "", errs.FromTransport(errs.KindGeneration, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Errorf("[LLMClient] Chat API 返回非 200 状态码: %s", resp.Status)
		return "", errs.FromStatus(errs.KindGeneration, op, resp.StatusCode, string(body))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errs.FromTransport(errs.KindGeneration, op, fmt.Errorf("failed to decode chat response: %w", err))
	}
	if len(out.Choices) == 0 {
		return "", errs.New(errs.KindGeneration, op, fmt.Errorf("chat api returned no choices"))
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
