package capability

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corenexus/llmfabric/model"
)

func TestValidate_TemperatureRejection(t *testing.T) {
	temp := 0.7
	req := &model.CompletionRequest{
		Messages: []model.Message{model.UserText("hi")},
		Config:   model.CompletionConfig{Temperature: &temp},
	}
	err := Validate(req, model.Capabilities{SupportsTemperature: false})
	require.Error(t, err)
	pe, ok := model.AsProviderError(err)
	require.True(t, ok)
	require.Equal(t, model.ErrCapabilityNotSupported, pe.Kind())

	wrapped := WithModelName(err, "claude-haiku")
	require.Contains(t, wrapped.Error(), "temperature not supported by claude-haiku")
}

func TestValidate_AllowsWithinCapabilities(t *testing.T) {
	req := &model.CompletionRequest{
		Messages: []model.Message{model.System("be nice"), model.UserText("hi")},
	}
	err := Validate(req, model.Capabilities{SupportsSystemMessage: true})
	require.NoError(t, err)
}

func TestValidate_VisionRejection(t *testing.T) {
	req := &model.CompletionRequest{
		Messages: []model.Message{model.User(model.ImagePart{Data: []byte{1}, MimeType: "image/png"})},
	}
	err := Validate(req, model.Capabilities{SupportsVision: false})
	require.Error(t, err)
}

func TestValidate_NoHTTPCallOnFailure(t *testing.T) {
	req := &model.CompletionRequest{
		Messages: []model.Message{model.UserText("hi")},
		Tools:    []model.ToolDefinition{{Name: "t"}},
	}
	err := Validate(req, model.Capabilities{SupportsTools: false})
	require.Error(t, err)
}
