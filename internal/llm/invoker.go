package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alertsift/alertsift/internal/metrics"
)

// RetryPolicy decides whether a failed attempt is retried and how long to
// sleep before the next one. Keeping it a value instead of inline
// conditionals lets tests substitute deterministic policies.
type RetryPolicy struct {
	// MaxRetries is the number of attempts after the first.
	MaxRetries int
	// ShouldRetry is consulted with the attempt error. When it returns
	// false the error is terminal for this invocation.
	ShouldRetry func(error) bool
	// Backoff returns the sleep before attempt n+1, given the 1-based
	// number of the attempt that just failed.
	Backoff func(attempt int) time.Duration
}

// TimeoutOnlyPolicy is the reference policy: retry timeouts with linear
// backoff base*attempt, fail immediately on anything else. The inference
// endpoint is a saturated local resource; immediate retry storms hurt it
// but aggressive exponential backoff buys nothing.
func TimeoutOnlyPolicy(maxRetries int, base time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxRetries:  maxRetries,
		ShouldRetry: IsTimeout,
		Backoff: func(attempt int) time.Duration {
			return base * time.Duration(attempt)
		},
	}
}

// RetryAllPolicy also retries generic transport errors. Operators flip to
// this when the endpoint drops connections under load instead of timing out.
func RetryAllPolicy(maxRetries int, base time.Duration) RetryPolicy {
	p := TimeoutOnlyPolicy(maxRetries, base)
	p.ShouldRetry = func(error) bool { return true }
	return p
}

// Invoker wraps a Transport with bounded retry and per-attempt logging.
type Invoker struct {
	transport Transport
	policy    RetryPolicy
	logger    *slog.Logger
	metrics   *metrics.Metrics

	// sleep is swapped out in tests.
	sleep func(context.Context, time.Duration) error
}

func NewInvoker(transport Transport, policy RetryPolicy, logger *slog.Logger, m *metrics.Metrics) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{
		transport: transport,
		policy:    policy,
		logger:    logger,
		metrics:   m,
		sleep:     sleepCtx,
	}
}

// Invoke attempts the request up to MaxRetries+1 times and always returns
// a terminal Outcome: a success with cleaned text, or a failure carrying
// the attempt count and last cause.
func (inv *Invoker) Invoke(ctx context.Context, req InvocationRequest) Outcome {
	start := time.Now()
	var lastErr error

	maxAttempts := inv.policy.MaxRetries + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		inv.logger.Info("llm.invoke.attempt",
			"token", req.Token,
			"attempt", attempt,
			"max_attempts", maxAttempts,
		)

		text, err := inv.transport.Generate(ctx, req)
		if err == nil {
			elapsed := time.Since(start)
			inv.metrics.Attempt("ok")
			inv.metrics.ObserveInvoke(elapsed.Seconds())
			inv.logger.Info("llm.invoke.ok",
				"token", req.Token,
				"attempt", attempt,
				"elapsed_ms", elapsed.Milliseconds(),
			)
			return Outcome{
				Succeeded: true,
				Text:      CleanModelOutput(text),
				Attempts:  attempt,
				Elapsed:   elapsed,
			}
		}

		lastErr = err
		inv.metrics.Attempt("error")
		inv.logger.Warn("llm.invoke.attempt_failed",
			"token", req.Token,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", err,
		)

		if !inv.policy.ShouldRetry(err) || attempt == maxAttempts {
			elapsed := time.Since(start)
			inv.metrics.ObserveInvoke(elapsed.Seconds())
			inv.logger.Error("llm.invoke.exhausted",
				"token", req.Token,
				"attempts", attempt,
				"error", lastErr,
			)
			return Outcome{
				Attempts: attempt,
				Elapsed:  elapsed,
				Err:      fmt.Errorf("invoke failed after %d attempt(s): %w", attempt, lastErr),
			}
		}

		inv.metrics.Retry()
		if inv.policy.Backoff != nil {
			if serr := inv.sleep(ctx, inv.policy.Backoff(attempt)); serr != nil {
				// Context cancelled between attempts.
				elapsed := time.Since(start)
				return Outcome{
					Attempts: attempt,
					Elapsed:  elapsed,
					Err:      fmt.Errorf("invoke cancelled after %d attempt(s): %w", attempt, serr),
				}
			}
		}
	}

	// Unreachable: the loop always returns.
	return Outcome{Attempts: maxAttempts, Elapsed: time.Since(start), Err: lastErr}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
