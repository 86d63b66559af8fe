// Package agent assembles LLM clients: provider construction, classified
// retry middleware, and a scriptable mock for tests.
package agent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"agentd/pkg/agent/llm"
	"agentd/pkg/agent/llmerrors"
	"agentd/pkg/logx"
)

// RetryableClient wraps an LLMClient with classified retry logic: each error
// type carries its own backoff schedule and retry budget.
type RetryableClient struct {
	client llm.LLMClient
	logger *logx.Logger
}

// NewRetryableClient wraps client with retry middleware.
func NewRetryableClient(client llm.LLMClient) *RetryableClient {
	return &RetryableClient{
		client: client,
		logger: logx.NewLogger("llm-retry"),
	}
}

// Complete implements llm.LLMClient with per-error-type retries.
func (r *RetryableClient) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	var lastErr error

	for attempt := 0; ; attempt++ {
		resp, err := r.client.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var llmErr *llmerrors.Error
		if !errors.As(err, &llmErr) {
			// Unclassified errors get the conservative Unknown schedule.
			llmErr = &llmerrors.Error{Err: err, Type: llmerrors.ErrorTypeUnknown}
		}
		if !llmErr.IsRetryable() {
			return llm.CompletionResponse{}, err
		}

		cfg := llmErr.GetRetryConfig()
		if attempt >= cfg.MaxRetries {
			break
		}

		delay := backoffDelay(cfg, attempt)
		r.logger.Warn("LLM call failed (%s), retry %d/%d in %s: %v",
			llmErr.Type, attempt+1, cfg.MaxRetries, delay, err)

		select {
		case <-ctx.Done():
			return llm.CompletionResponse{}, ctx.Err()
		case <-time.After(delay):
		}
	}

	return llm.CompletionResponse{}, fmt.Errorf("LLM request failed after retries: %w", lastErr)
}

// GetModelName returns the wrapped client's model name.
func (r *RetryableClient) GetModelName() string {
	return r.client.GetModelName()
}

func backoffDelay(cfg llmerrors.RetryConfig, attempt int) time.Duration {
	delay := time.Duration(float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(attempt)))
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter && delay >= 5 {
		jitter := time.Duration(rand.Int63n(int64(delay) / 5)) // up to 20%
		delay += jitter - time.Duration(int64(delay)/10)
	}
	if delay < 0 {
		delay = cfg.InitialDelay
	}
	return delay
}
