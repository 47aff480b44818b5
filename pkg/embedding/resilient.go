package embedding

import (
	"context"

	"edu-rag-go/pkg/retry"
)

// Resilient wraps a Client with timeout, rate limiting and bounded retries.
type Resilient struct {
	next   Client
	caller *retry.Caller
}

func NewResilient(next Client, caller *retry.Caller) *Resilient {
	return &Resilient{next: next, caller: caller}
}

func (r *Resilient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := r.caller.Do(ctx, "embedding", func(ctx context.Context) error {
		v, err := r.next.CreateEmbedding(ctx, text)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	return vec, err
}
