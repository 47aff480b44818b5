// Package retry 为调用外部 embedding/生成服务提供超时、限速和指数退避重试。
package retry

import (
	"context"
	"errors"
	"time"

	"edu-rag-go/pkg/errs"
	"edu-rag-go/pkg/log"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// Policy 是重试策略。MaxAttempts 包含第一次调用。
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	AttemptTimeout  time.Duration
	// RequestsPerSecond 为 0 时不限速。
	RequestsPerSecond float64
	Burst             int
}

// DefaultPolicy 最多 4 次，间隔 2s 起按 2 倍增长，两次请求至少间隔 150ms。
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       4,
		InitialInterval:   2 * time.Second,
		MaxInterval:       30 * time.Second,
		Multiplier:        2,
		AttemptTimeout:    60 * time.Second,
		RequestsPerSecond: 1 / 0.15,
		Burst:             1,
	}
}

// Caller 按 Policy 执行外部调用。可在多个 goroutine 间共享。
type Caller struct {
	policy  Policy
	limiter *rate.Limiter
}

func NewCaller(p Policy) *Caller {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	c := &Caller{policy: p}
	if p.RequestsPerSecond > 0 {
		burst := p.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(p.RequestsPerSecond), burst)
	}
	return c
}

// Policy 返回当前策略。
func (c *Caller) Policy() Policy {
	return c.policy
}

// Do 执行 fn。只有 errs.IsTransient 或单次调用超时的错误会重试，
// 其它错误立即返回；重试用尽后返回最后一次的错误。
func (c *Caller) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	operation := func() error {
		attempt++
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		callCtx := ctx
		cancel := context.CancelFunc(func() {})
		if c.policy.AttemptTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, c.policy.AttemptTimeout)
		}
		err := fn(callCtx)
		timedOut := callCtx.Err() != nil && ctx.Err() == nil
		cancel()

		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		if errs.IsTransient(err) || (timedOut && errors.Is(err, context.DeadlineExceeded)) {
			return err
		}
		return backoff.Permanent(err)
	}

	notify := func(err error, wait time.Duration) {
		log.Warnf("[Retry] %s 第 %d/%d 次调用失败, %v 后重试: %v", op, attempt, c.policy.MaxAttempts, wait, err)
	}

	return backoff.RetryNotify(operation, c.backOff(ctx), notify)
}

func (c *Caller) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.policy.InitialInterval
	eb.Multiplier = c.policy.Multiplier
	eb.RandomizationFactor = 0.1
	if c.policy.MaxInterval > 0 {
		eb.MaxInterval = c.policy.MaxInterval
	}
	// 只按次数限制
	eb.MaxElapsedTime = 0
	eb.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.policy.MaxAttempts-1)), ctx)
}
