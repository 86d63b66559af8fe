package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentd/pkg/agent/llm"
	"agentd/pkg/agent/llmerrors"
)

func fastRetryConfigs(t *testing.T) {
	t.Helper()
	saved := llmerrors.DefaultRetryConfigs
	fast := make(map[llmerrors.ErrorType]llmerrors.RetryConfig, len(saved))
	for typ, cfg := range saved {
		cfg.InitialDelay = time.Millisecond
		cfg.MaxDelay = 5 * time.Millisecond
		cfg.Jitter = false
		fast[typ] = cfg
	}
	llmerrors.DefaultRetryConfigs = fast
	t.Cleanup(func() { llmerrors.DefaultRetryConfigs = saved })
}

func TestRetry_TransientThenSuccess(t *testing.T) {
	fastRetryConfigs(t)

	mock := NewMockLLMClient(
		[]llm.CompletionResponse{{Content: "ok", StopReason: "end_turn"}},
		[]error{
			llmerrors.NewError(llmerrors.ErrorTypeTransient, "connection reset"),
			llmerrors.NewError(llmerrors.ErrorTypeTransient, "connection reset"),
		},
	)
	client := NewRetryableClient(mock)

	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest(
		[]llm.CompletionMessage{llm.NewUserMessage("hello")},
	))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 3, mock.CallCount())
}

func TestRetry_AuthFailsImmediately(t *testing.T) {
	fastRetryConfigs(t)

	mock := NewMockLLMClient(nil, []error{
		llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeAuth, 401, "bad key"),
	})
	client := NewRetryableClient(mock)

	_, err := client.Complete(context.Background(), llm.NewCompletionRequest(
		[]llm.CompletionMessage{llm.NewUserMessage("hello")},
	))
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeAuth))
	assert.Equal(t, 1, mock.CallCount())
}

func TestRetry_ExhaustsBudget(t *testing.T) {
	fastRetryConfigs(t)

	errs := make([]error, llmerrors.DefaultUnknownRetries+2)
	for i := range errs {
		errs[i] = errors.New("flaky backend")
	}
	mock := NewMockLLMClient(nil, errs)
	client := NewRetryableClient(mock)

	_, err := client.Complete(context.Background(), llm.NewCompletionRequest(
		[]llm.CompletionMessage{llm.NewUserMessage("hello")},
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after retries")
	assert.Equal(t, llmerrors.DefaultUnknownRetries+1, mock.CallCount())
}

func TestRetry_ContextCancelledDuringWait(t *testing.T) {
	mock := NewMockLLMClient(nil, []error{
		llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "slow down"),
	})
	client := NewRetryableClient(mock)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Complete(ctx, llm.NewCompletionRequest(
		[]llm.CompletionMessage{llm.NewUserMessage("hello")},
	))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, mock.CallCount())
}

func TestRetry_PassesThroughModelName(t *testing.T) {
	client := NewRetryableClient(NewMockLLMClient(nil, nil))
	assert.Equal(t, "mock-model", client.GetModelName())
}
