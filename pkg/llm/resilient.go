package llm

import (
	"context"

	"edu-rag-go/pkg/retry"
)

// Resilient 为 Client 加上超时、限速和有限次数的重试。
type Resilient struct {
	next   Client
	caller *retry.Caller
}

func NewResilient(next Client, caller *retry.Caller) *Resilient {
	return &Resilient{next: next, caller: caller}
}

func (r *Resilient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	var text string
	err := r.caller.Do(ctx, "llm", func(ctx context.Context) error {
		out, err := r.next.Complete(ctx, prompt, maxTokens)
		if err != nil {
			return err
		}
		text = out
		return nil
	})
	return text, err
}
