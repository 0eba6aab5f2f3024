package llm

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/qs3c/lease_go_server/internal/pkg/resilience"
)

// Limited rate-limits and retries calls to the wrapped Completer.
// Workers share one Limited so the provider quota is respected process-wide.
type Limited struct {
	next    Completer
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

func NewLimited(next Completer, perSecond float64, attempts int, logger *zap.Logger) *Limited {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = attempts
	retry.OnRetry = resilience.RetryLogger(logger, next.Name(), "complete")
	return &Limited{
		next:    next,
		limiter: rate.NewLimiter(limit, 1),
		retry:   retry,
	}
}

func (l *Limited) Name() string { return l.next.Name() }

func (l *Limited) Complete(ctx context.Context, req Request) (*Response, error) {
	return resilience.DoVal(ctx, l.retry, func(ctx context.Context) (*Response, error) {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return l.next.Complete(ctx, req)
	})
}
