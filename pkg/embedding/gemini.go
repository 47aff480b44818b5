package embedding

import (
	"context"
	"errors"
	"fmt"

	"edu-rag-go/internal/config"
	"edu-rag-go/pkg/errs"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GeminiClient embeds text with a Gemini embedding model.
type GeminiClient struct {
	client *genai.Client
	model  string
	dims   int
}

func NewGeminiClient(ctx context.Context, cfg config.EmbeddingConfig, opts ...option.ClientOption) (*GeminiClient, error) {
	opts = append(opts, option.WithAPIKey(cfg.APIKey))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-embedding-001"
	}
	return &GeminiClient{client: client, model: model, dims: cfg.Dimensions}, nil
}

func (g *GeminiClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	const op = "embedding.gemini"
	em := g.client.EmbeddingModel(g.model)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, classifyGemini(op, err)
	}
	if res == nil || res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, errs.New(errs.KindEmbedding, op, errors.New("empty embedding received"))
	}
	if g.dims > 0 && len(res.Embedding.Values) != g.dims {
		return nil, errs.Newf(errs.KindEmbedding, op, "embedding dimension %d, expected %d", len(res.Embedding.Values), g.dims)
	}
	return res.Embedding.Values, nil
}

// Close releases the underlying connection.
func (g *GeminiClient) Close() error {
	return g.client.Close()
}

func classifyGemini(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return errs.FromStatus(errs.KindEmbedding, op, apiErr.Code, apiErr.Message)
	}
	if errors.Is(err, context.Canceled) {
		return errs.New(errs.KindEmbedding, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errs.LooksRateLimited(err.Error()) {
		return errs.Transient(errs.KindEmbedding, op, err)
	}
	return errs.New(errs.KindEmbedding, op, err)
}
