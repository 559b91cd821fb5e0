package bedrock

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/require"

	"github.com/corenexus/llmfabric/model"
)

type fakeRuntimeClient struct {
	converseCalls int
}

func (f *fakeRuntimeClient) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.converseCalls++
	return &bedrockruntime.ConverseOutput{}, nil
}

func (f *fakeRuntimeClient) ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error) {
	return &bedrockruntime.ConverseStreamOutput{}, nil
}

func TestNew_RequiresRuntimeAndModel(t *testing.T) {
	_, err := New(nil, Options{DefaultModel: "anthropic.claude-3"})
	require.Error(t, err)

	_, err = New(&fakeRuntimeClient{}, Options{})
	require.Error(t, err)
}

func TestPrepareRequest_RequiresMessages(t *testing.T) {
	c, err := New(&fakeRuntimeClient{}, Options{DefaultModel: "anthropic.claude-3"})
	require.NoError(t, err)
	_, err = c.prepareRequest(&model.CompletionRequest{})
	require.Error(t, err)
}

func TestPrepareRequest_RequiresToolsWhenHistoryHasToolCalls(t *testing.T) {
	c, err := New(&fakeRuntimeClient{}, Options{DefaultModel: "anthropic.claude-3"})
	require.NoError(t, err)
	_, err = c.prepareRequest(&model.CompletionRequest{
		Messages: []model.Message{
			model.UserText("hi"),
			model.ToolResult("call_1", "42"),
		},
	})
	require.Error(t, err)
}

func TestSanitizeToolName_ReplacesDisallowedRunesAndNamespaceDots(t *testing.T) {
	require.Equal(t, "toolset_tool", sanitizeToolName("toolset.tool"))
	require.Equal(t, "already_ok", sanitizeToolName("already_ok"))
}

func TestSanitizeToolName_TruncatesOverlongNamesWithStableSuffix(t *testing.T) {
	long := ""
	for i := 0; i < 100; i++ {
		long += "a"
	}
	out := sanitizeToolName(long)
	require.LessOrEqual(t, len(out), 64)
	require.Equal(t, out, sanitizeToolName(long))
}

func TestMapStopReason(t *testing.T) {
	require.Equal(t, model.StopToolUse, mapStopReason("tool_use"))
	require.Equal(t, model.StopMaxTokens, mapStopReason("max_tokens"))
	require.Equal(t, model.StopEndTurn, mapStopReason("end_turn"))
	require.Equal(t, model.StopContentFiltered, mapStopReason("content_filtered"))
}

func TestStripRegionPrefix(t *testing.T) {
	require.Equal(t, "anthropic.claude-3-sonnet", stripRegionPrefix("us.anthropic.claude-3-sonnet"))
	require.Equal(t, "amazon.nova-pro", stripRegionPrefix("apac.amazon.nova-pro"))
	require.Equal(t, "anthropic.claude-3", stripRegionPrefix("anthropic.claude-3"))
}

func TestCapabilitiesForModel_FamilySubstringMatch(t *testing.T) {
	require.True(t, capabilitiesForModel("us.anthropic.claude-3-sonnet").SupportsVision)
	require.False(t, capabilitiesForModel("us.meta.llama3-70b").SupportsVision)
	require.True(t, capabilitiesForModel("unknown.family-model").SupportsTools)
}

func TestIsNovaModel(t *testing.T) {
	require.True(t, isNovaModel("us.amazon.nova-pro-v1"))
	require.False(t, isNovaModel("us.anthropic.claude-3"))
}

func TestComplete_RejectsUnsupportedCapabilityWithoutCallingTransport(t *testing.T) {
	runtime := &fakeRuntimeClient{}
	c, err := New(runtime, Options{DefaultModel: "us.meta.llama3-70b"})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), &model.CompletionRequest{
		Messages: []model.Message{model.User(model.ImagePart{Data: []byte{1}, MimeType: "image/png"})},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "vision")
	require.Contains(t, err.Error(), "by bedrock")
	require.Zero(t, runtime.converseCalls)
}
