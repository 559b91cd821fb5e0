// Package openai implements the Family B provider adapter: the two
// OpenAI-shape sub-APIs (chat-completions and responses), using
// github.com/openai/openai-go.
package openai

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/corenexus/llmfabric/capability"
	"github.com/corenexus/llmfabric/model"
)

// ChatClient captures the chat-completions subset of the SDK this adapter
// uses.
type ChatClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
	NewStreaming(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) *ssestreamChatChunk
}

// ResponsesClient captures the responses-API subset of the SDK this
// adapter uses.
type ResponsesClient interface {
	New(ctx context.Context, body openai.ResponseNewParams, opts ...option.RequestOption) (*openai.Response, error)
	NewStreaming(ctx context.Context, body openai.ResponseNewParams, opts ...option.RequestOption) *ssestreamResponse
}

// Options configures the adapter's defaults.
type Options struct {
	DefaultModel string
	MaxTokens    int
	Temperature  float64
}

const defaultMaxTokens = 4096

// Client implements model.Client across both OpenAI-shape sub-APIs,
// selecting one per request per the rule in usesChatCompletions.
type Client struct {
	chat         ChatClient
	responses    ResponsesClient
	defaultModel string
	maxTok       int
	temp         float64
}

// New builds an adapter from existing chat-completions and responses
// clients.
func New(chat ChatClient, responses ResponsesClient, opts Options) (*Client, error) {
	if chat == nil || responses == nil {
		return nil, errors.New("openai: both chat and responses clients are required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("openai: default model identifier is required")
	}
	return &Client{chat: chat, responses: responses, defaultModel: opts.DefaultModel, maxTok: opts.MaxTokens, temp: opts.Temperature}, nil
}

// NewFromAPIKey constructs an adapter using the SDK's default HTTP client
// for both sub-APIs.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	oc := openai.NewClient(option.WithAPIKey(apiKey))
	return New(&oc.Chat.Completions, &oc.Responses, Options{DefaultModel: defaultModel})
}

// Name reports the adapter family name.
func (c *Client) Name() string { return "openai" }

// Capabilities reports the OpenAI-shape capability set.
func (c *Client) Capabilities() model.Capabilities {
	return model.Capabilities{
		SupportsTemperature:      true,
		SupportsTools:            true,
		SupportsVision:           true,
		SupportsStructuredOutput: true,
		SupportsSystemMessage:    true,
	}
}

// usesChatCompletions implements the sub-API selection rule: a request
// that already carries tool results, or an assistant turn with recorded
// tool calls, must stay on the chat-completions sub-API for its multi-turn
// tool history; a fresh request without tool history uses responses for
// its caching and reasoning-model support.
func usesChatCompletions(req *model.CompletionRequest) bool {
	for _, m := range req.Messages {
		if m.Role == model.RoleToolResult || m.Role == model.RoleToolResults {
			return true
		}
		if m.Role == model.RoleAssistant && len(m.ToolCalls) > 0 {
			return true
		}
	}
	return false
}

// usesMaxCompletionTokens reports whether modelID requires
// max_completion_tokens instead of max_tokens.
func usesMaxCompletionTokens(modelID string) bool {
	for _, prefix := range []string{"gpt-5", "o1", "o3", "gpt-4.1"} {
		if strings.HasPrefix(modelID, prefix) {
			return true
		}
	}
	return false
}

// ValidateRequest pre-flights req against Capabilities() before any
// transport call.
func (c *Client) ValidateRequest(req *model.CompletionRequest) error {
	if err := capability.Validate(req, c.Capabilities()); err != nil {
		return capability.WithModelName(err, c.Name())
	}
	return nil
}

// Complete dispatches to the selected sub-API and returns the canonical
// response.
func (c *Client) Complete(ctx context.Context, req *model.CompletionRequest) (*model.CompletionResponse, error) {
	if err := c.ValidateRequest(req); err != nil {
		return nil, err
	}
	if usesChatCompletions(req) {
		return c.completeChat(ctx, req)
	}
	return c.completeResponses(ctx, req)
}

// Stream dispatches to the selected sub-API and returns a canonical Chunk
// channel.
func (c *Client) Stream(ctx context.Context, req *model.CompletionRequest) (<-chan model.Chunk, error) {
	if err := c.ValidateRequest(req); err != nil {
		return nil, err
	}
	if usesChatCompletions(req) {
		return c.streamChat(ctx, req)
	}
	return c.streamResponses(ctx, req)
}

func mapStopReasonTable(canonical string) model.StopReason {
	switch canonical {
	case "stop":
		return model.StopEndTurn
	case "tool_calls":
		return model.StopToolUse
	case "length":
		return model.StopMaxTokens
	case "content_filter":
		return model.StopContentFiltered
	default:
		return model.StopEndTurn
	}
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return mapStatusCode(apiErr.StatusCode, apiErr.Error(), apiErr)
	}
	return model.NewProviderError(model.ErrNetworkError, err.Error(), err)
}

func mapStatusCode(status int, body string, cause error) error {
	switch status {
	case 401:
		return model.NewProviderError(model.ErrInvalidAPIKey, body, cause)
	case 404:
		return model.NewProviderError(model.ErrModelNotFound, body, cause)
	case 400:
		if strings.Contains(strings.ToLower(body), "maximum context length") {
			return model.NewProviderError(model.ErrContextLengthExceeded, body, cause)
		}
		return model.NewProviderError(model.ErrInvalidRequest, body, cause)
	case 408, 409, 429:
		return model.NewProviderError(model.ErrRateLimited, body, cause).WithStatusCode(status)
	default:
		if status >= 500 {
			return model.NewProviderError(model.ErrServerError, body, cause).WithStatusCode(status)
		}
		return model.NewProviderError(model.ErrInvalidRequest, body, cause).WithStatusCode(status)
	}
}
