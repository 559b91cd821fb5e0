package middleware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/corenexus/llmfabric/model"
)

type fakeClient struct {
	completeErr error
	streamErr   error

	completeCalls int
	streamCalls   int
}

func (f *fakeClient) Name() string                              { return "fake" }
func (f *fakeClient) Capabilities() model.Capabilities           { return model.Capabilities{} }
func (f *fakeClient) ValidateRequest(*model.CompletionRequest) error { return nil }

func (f *fakeClient) Complete(context.Context, *model.CompletionRequest) (*model.CompletionResponse, error) {
	f.completeCalls++
	return nil, f.completeErr
}

func (f *fakeClient) Stream(context.Context, *model.CompletionRequest) (<-chan model.Chunk, error) {
	f.streamCalls++
	return nil, f.streamErr
}

func TestAdaptiveRateLimiter_BackoffOnRateLimited(t *testing.T) {
	limiter := newAdaptiveRateLimiter(60000, 60000)
	initialTPM := limiter.currentTPM

	client := &fakeClient{completeErr: model.NewProviderError(model.ErrRateLimited, "slow down", nil)}
	wrapped := limiter.Middleware()(client)

	req := model.CompletionRequest{Messages: []model.Message{model.UserText("hello")}}

	_, err := wrapped.Complete(context.Background(), &req)
	require.Error(t, err)
	pe, ok := model.AsProviderError(err)
	require.True(t, ok)
	require.Equal(t, model.ErrRateLimited, pe.Kind())

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	require.Less(t, limiter.currentTPM, initialTPM)
}

func TestAdaptiveRateLimiter_ProbeOnSuccess(t *testing.T) {
	limiter := newAdaptiveRateLimiter(60000, 120000)

	limiter.mu.Lock()
	initialTPM := limiter.currentTPM
	limiter.recoveryRate = 1000
	limiter.mu.Unlock()

	client := &fakeClient{}
	wrapped := limiter.Middleware()(client)

	req := model.CompletionRequest{Messages: []model.Message{model.UserText("hello")}}

	_, err := wrapped.Complete(context.Background(), &req)
	require.NoError(t, err)

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	require.Greater(t, limiter.currentTPM, initialTPM)
}

func TestAdaptiveRateLimiter_RejectsRequestOverBurstWithoutCalling(t *testing.T) {
	limiter := newAdaptiveRateLimiter(60, 60)

	limiter.mu.Lock()
	limiter.currentTPM = 60
	limiter.limiter = rate.NewLimiter(0, 0)
	limiter.mu.Unlock()

	client := &fakeClient{}
	wrapped := limiter.Middleware()(client)

	longText := make([]byte, 600)
	for i := range longText {
		longText[i] = 'a'
	}

	req := model.CompletionRequest{Messages: []model.Message{model.UserText(string(longText))}}

	_, err := wrapped.Complete(context.Background(), &req)
	require.Error(t, err)
	require.Equal(t, 0, client.completeCalls)
}

func TestEstimateTokensMonotonic(t *testing.T) {
	smallReq := &model.CompletionRequest{Messages: []model.Message{model.UserText("short")}}
	bigReq := &model.CompletionRequest{Messages: []model.Message{model.UserText("this is a much longer message")}}

	small := estimateTokens(smallReq)
	big := estimateTokens(bigReq)

	require.Greater(t, small, 0)
	require.Greater(t, big, small)
}
