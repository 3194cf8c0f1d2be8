package lookup

import (
	"context"
	"errors"
	"log"
	"time"
)

const DefaultMaxAttempts = 3

// RetryingGenerator retries transient provider failures (timeouts, rate
// limits, server errors) with a fixed backoff. Auth and client failures
// return immediately.
type RetryingGenerator struct {
	next        Generator
	maxAttempts int
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewRetryingGenerator(next Generator, maxAttempts int) *RetryingGenerator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &RetryingGenerator{next: next, maxAttempts: maxAttempts, sleep: sleepCtx}
}

func (g *RetryingGenerator) ModelName() string { return g.next.ModelName() }

func (g *RetryingGenerator) Generate(ctx context.Context, prompt string, opts GenerateOptions) (Generation, error) {
	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		start := time.Now()
		out, err := g.next.Generate(ctx, prompt, opts)
		if err == nil {
			log.Printf("lookup llm_attempt_success model=%s attempt=%d elapsed_ms=%d response_chars=%d citations=%d", g.next.ModelName(), attempt, time.Since(start).Milliseconds(), len(out.Text), len(out.Citations))
			return out, nil
		}
		err = wrapTransport(err)
		lastErr = err
		var le *Error
		errors.As(err, &le)
		log.Printf("lookup llm_attempt_transport_error model=%s attempt=%d class=%s elapsed_ms=%d err=%q", g.next.ModelName(), attempt, le.Class, time.Since(start).Milliseconds(), err.Error())
		if !le.Transient() || attempt == g.maxAttempts {
			return Generation{}, err
		}
		if err := g.sleep(ctx, backoffDelay(attempt)); err != nil {
			return Generation{}, wrapTransport(err)
		}
	}
	return Generation{}, lastErr
}

func backoffDelay(attempt int) time.Duration {
	switch attempt {
	case 1:
		return 1 * time.Second
	case 2:
		return 2 * time.Second
	default:
		return 4 * time.Second
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
