package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/caselink/internal/config"
)

// Policy combines a retry schedule with a circuit breaker for one sink.
type Policy struct {
	Sink    string
	Retry   RetryConfig
	Breaker *CircuitBreaker
}

// NewPolicy builds a sink policy from the sinks config section.
func NewPolicy(sink string, cfg config.SinksConfig) *Policy {
	retry := DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialBackoffMs > 0 {
		retry.InitialBackoff = time.Duration(cfg.InitialBackoffMs) * time.Millisecond
	}
	if cfg.MaxBackoffMs > 0 {
		retry.MaxBackoff = time.Duration(cfg.MaxBackoffMs) * time.Millisecond
	}
	retry.OnRetry = RetryLogger(sink, "publish")

	breaker := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold > 0 {
		breaker.FailureThreshold = cfg.FailureThreshold
	}
	if cfg.ResetTimeoutSecs > 0 {
		breaker.ResetTimeout = time.Duration(cfg.ResetTimeoutSecs) * time.Second
	}
	breaker.OnStateChange = func(from, to CircuitState) {
		zap.L().Warn("resilience: sink circuit changed state",
			zap.String("sink", sink),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}

	return &Policy{Sink: sink, Retry: retry, Breaker: NewCircuitBreaker(breaker)}
}

// Run executes fn through the breaker, retrying transient failures. An open
// circuit is not retried.
func (p *Policy) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return p.Breaker.Execute(ctx, func(ctx context.Context) error {
		return Do(ctx, p.Retry, fn)
	})
}
