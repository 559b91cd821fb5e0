package anthropic

import (
	"context"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/stretchr/testify/require"

	"github.com/corenexus/llmfabric/model"
)

// fakeMessagesClient satisfies MessagesClient for construction and
// prepareRequest tests that never need to issue a real call.
type fakeMessagesClient struct{}

func (f *fakeMessagesClient) New(ctx context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	return &sdk.Message{}, nil
}

func (f *fakeMessagesClient) NewStreaming(ctx context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion] {
	return nil
}

func TestNew_RequiresClientAndModel(t *testing.T) {
	_, err := New(nil, Options{DefaultModel: "claude"})
	require.Error(t, err)

	_, err = New(&fakeMessagesClient{}, Options{})
	require.Error(t, err)
}

func TestPrepareRequest_DefaultMaxTokens(t *testing.T) {
	c, err := New(&fakeMessagesClient{}, Options{DefaultModel: "claude-x"})
	require.NoError(t, err)

	params, _, err := c.prepareRequest(&model.CompletionRequest{
		Messages: []model.Message{model.UserText("hi")},
	})
	require.NoError(t, err)
	require.Equal(t, int64(defaultMaxTokens), params.MaxTokens)
}

func TestPrepareRequest_RequiresMessages(t *testing.T) {
	c, err := New(&fakeMessagesClient{}, Options{DefaultModel: "claude-x"})
	require.NoError(t, err)
	_, _, err = c.prepareRequest(&model.CompletionRequest{})
	require.Error(t, err)
}

func TestSanitizeToolName_ReplacesDisallowedRunes(t *testing.T) {
	require.Equal(t, "weather_tool", sanitizeToolName("weather.tool"))
	require.Equal(t, "already_ok", sanitizeToolName("already_ok"))
}

func TestMapStopReason(t *testing.T) {
	require.Equal(t, model.StopToolUse, mapStopReason("tool_use"))
	require.Equal(t, model.StopMaxTokens, mapStopReason("max_tokens"))
	require.Equal(t, model.StopEndTurn, mapStopReason("unrecognized"))
}
