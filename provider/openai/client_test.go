package openai

import (
	"context"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/require"

	"github.com/corenexus/llmfabric/model"
)

type fakeChatClient struct{}

func (f *fakeChatClient) New(ctx context.Context, body openai.ChatCompletionNewParams, _ ...option.RequestOption) (*openai.ChatCompletion, error) {
	return &openai.ChatCompletion{}, nil
}

func (f *fakeChatClient) NewStreaming(ctx context.Context, body openai.ChatCompletionNewParams, _ ...option.RequestOption) *ssestreamChatChunk {
	return nil
}

type fakeResponsesClient struct{}

func (f *fakeResponsesClient) New(ctx context.Context, body openai.ResponseNewParams, _ ...option.RequestOption) (*openai.Response, error) {
	return &openai.Response{}, nil
}

func (f *fakeResponsesClient) NewStreaming(ctx context.Context, body openai.ResponseNewParams, _ ...option.RequestOption) *ssestreamResponse {
	return nil
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := New(&fakeChatClient{}, &fakeResponsesClient{}, Options{DefaultModel: "gpt-4.1"})
	require.NoError(t, err)
	return c
}

func TestNew_RequiresBothClientsAndModel(t *testing.T) {
	_, err := New(nil, &fakeResponsesClient{}, Options{DefaultModel: "gpt-4.1"})
	require.Error(t, err)

	_, err = New(&fakeChatClient{}, nil, Options{DefaultModel: "gpt-4.1"})
	require.Error(t, err)

	_, err = New(&fakeChatClient{}, &fakeResponsesClient{}, Options{})
	require.Error(t, err)
}

func TestUsesChatCompletions_SelectionRule(t *testing.T) {
	fresh := &model.CompletionRequest{Messages: []model.Message{model.UserText("hi")}}
	require.False(t, usesChatCompletions(fresh))

	withResult := &model.CompletionRequest{Messages: []model.Message{
		model.UserText("hi"),
		model.ToolResult("call_1", "42"),
	}}
	require.True(t, usesChatCompletions(withResult))

	withHistory := &model.CompletionRequest{Messages: []model.Message{
		model.UserText("hi"),
		model.Assistant("", model.ToolCall{ID: "call_1", Name: "lookup", Arguments: "{}"}),
	}}
	require.True(t, usesChatCompletions(withHistory))
}

func TestUsesMaxCompletionTokens_PrefixMatch(t *testing.T) {
	require.True(t, usesMaxCompletionTokens("gpt-5-mini"))
	require.True(t, usesMaxCompletionTokens("o1-preview"))
	require.True(t, usesMaxCompletionTokens("o3"))
	require.True(t, usesMaxCompletionTokens("gpt-4.1"))
	require.False(t, usesMaxCompletionTokens("gpt-4o"))
}

func TestPrepareChat_DefaultMaxTokens(t *testing.T) {
	c := newTestClient(t)
	params, err := c.prepareChat(&model.CompletionRequest{Messages: []model.Message{model.UserText("hi")}})
	require.NoError(t, err)
	require.Equal(t, int64(defaultMaxTokens), params.MaxCompletionTokens.Value)
}

func TestPrepareChat_RequiresMessages(t *testing.T) {
	c := newTestClient(t)
	_, err := c.prepareChat(&model.CompletionRequest{})
	require.Error(t, err)
}

func TestPrepareResponses_RequiresMessages(t *testing.T) {
	c := newTestClient(t)
	_, err := c.prepareResponses(&model.CompletionRequest{})
	require.Error(t, err)
}

func TestMapStopReasonTable(t *testing.T) {
	require.Equal(t, model.StopToolUse, mapStopReasonTable("tool_calls"))
	require.Equal(t, model.StopMaxTokens, mapStopReasonTable("length"))
	require.Equal(t, model.StopContentFiltered, mapStopReasonTable("content_filter"))
	require.Equal(t, model.StopEndTurn, mapStopReasonTable("unrecognized"))
}
