package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"edu-rag-go/internal/config"
	"edu-rag-go/pkg/errs"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GeminiClient 使用 Gemini 文本模型生成。
type GeminiClient struct {
	client *genai.Client
	cfg    config.LLMConfig
}

func NewGeminiClient(ctx context.Context, cfg config.LLMConfig, opts ...option.ClientOption) (*GeminiClient, error) {
	opts = append(opts, option.WithAPIKey(cfg.APIKey))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	return &GeminiClient{client: client, cfg: cfg}, nil
}

func (g *GeminiClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	const op = "llm.gemini"
	model := g.client.GenerativeModel(g.cfg.Model)
	if maxTokens <= 0 {
		maxTokens = g.cfg.Generation.MaxTokens
	}
	if maxTokens > 0 {
		model.SetMaxOutputTokens(int32(maxTokens))
	}
	if g.cfg.Generation.Temperature != 0 {
		model.SetTemperature(float32(g.cfg.Generation.Temperature))
	}
	if g.cfg.Generation.TopP != 0 {
		model.SetTopP(float32(g.cfg.Generation.TopP))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", classifyGemini(op, err)
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		break
	}
	if sb.Len() == 0 {
		return "", errs.New(errs.KindGeneration, op, errors.New("gemini returned no text"))
	}
	return strings.TrimSpace(sb.String()), nil
}

func (g *GeminiClient) Close() error {
	return g.client.Close()
}

func classifyGemini(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return errs.FromStatus(errs.KindGeneration, op, apiErr.Code, apiErr.Message)
	}
	if errors.Is(err, context.Canceled) {
		return errs.New(errs.KindGeneration, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errs.LooksRateLimited(err.Error()) {
		return errs.Transient(errs.KindGeneration, op, err)
	}
	return errs.New(errs.KindGeneration, op, err)
}
