// Package anthropic implements the Family A provider adapter: the
// Anthropic Messages API, using github.com/anthropics/anthropic-sdk-go.
package anthropic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/corenexus/llmfabric/capability"
	"github.com/corenexus/llmfabric/jsonvalue"
	"github.com/corenexus/llmfabric/model"
)

// MessagesClient captures the subset of the Anthropic SDK client used by
// this adapter, so callers can pass either a real client or a mock in
// tests.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Options configures the adapter's defaults.
type Options struct {
	DefaultModel string
	MaxTokens    int
	Temperature  float64
}

// Client implements model.Client on top of the Anthropic Messages API.
type Client struct {
	msg          MessagesClient
	defaultModel string
	maxTok       int
	temp         float64
}

// New builds an adapter from an existing Anthropic client.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("default model identifier is required")
	}
	return &Client{msg: msg, defaultModel: opts.DefaultModel, maxTok: opts.MaxTokens, temp: opts.Temperature}, nil
}

// NewFromAPIKey constructs an adapter using the SDK's default HTTP client.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, Options{DefaultModel: defaultModel})
}

// Name reports the adapter family name.
func (c *Client) Name() string { return "anthropic" }

// Capabilities reports Claude Messages API capabilities.
func (c *Client) Capabilities() model.Capabilities {
	return model.Capabilities{
		SupportsTemperature:      true,
		SupportsTools:            true,
		SupportsVision:           true,
		SupportsStructuredOutput: true,
		SupportsSystemMessage:    true,
	}
}

const defaultMaxTokens = 4096

// ValidateRequest pre-flights req against Capabilities() before any
// transport call.
func (c *Client) ValidateRequest(req *model.CompletionRequest) error {
	if err := capability.Validate(req, c.Capabilities()); err != nil {
		return capability.WithModelName(err, c.Name())
	}
	return nil
}

// Complete issues a non-streaming Messages.New call and translates the
// response into the canonical CompletionResponse.
func (c *Client) Complete(ctx context.Context, req *model.CompletionRequest) (*model.CompletionResponse, error) {
	if err := c.ValidateRequest(req); err != nil {
		return nil, err
	}
	params, nameMap, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	msg, err := c.msg.New(ctx, *params)
	if err != nil {
		return nil, mapError(err)
	}
	return translateResponse(msg, nameMap)
}

// Stream invokes Messages.NewStreaming and adapts incremental SSE events
// into the canonical Chunk channel.
func (c *Client) Stream(ctx context.Context, req *model.CompletionRequest) (<-chan model.Chunk, error) {
	if err := c.ValidateRequest(req); err != nil {
		return nil, err
	}
	params, nameMap, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	stream := c.msg.NewStreaming(ctx, *params)
	if err := stream.Err(); err != nil {
		return nil, mapError(err)
	}
	out := make(chan model.Chunk, 32)
	go runStream(ctx, stream, nameMap, out)
	return out, nil
}

func (c *Client) prepareRequest(req *model.CompletionRequest) (*sdk.MessageNewParams, map[string]string, error) {
	if len(req.Messages) == 0 {
		return nil, nil, errors.New("anthropic: messages are required")
	}
	toolParams, canonToSan, sanToCanon, err := encodeTools(req.Tools)
	if err != nil {
		return nil, nil, err
	}
	msgs, system, err := encodeMessages(req.Messages, canonToSan)
	if err != nil {
		return nil, nil, err
	}
	maxTokens := defaultMaxTokens
	if c.maxTok > 0 {
		maxTokens = c.maxTok
	}
	if req.Config.MaxTokens != nil && *req.Config.MaxTokens > 0 {
		maxTokens = *req.Config.MaxTokens
	}
	params := sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
		Model:     sdk.Model(c.defaultModel),
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	if len(toolParams) > 0 {
		params.Tools = toolParams
	}
	temp := c.temp
	if req.Config.Temperature != nil {
		temp = *req.Config.Temperature
	}
	if temp > 0 {
		params.Temperature = sdk.Float(temp)
	}
	if len(req.Config.StopSequences) > 0 {
		params.StopSequences = req.Config.StopSequences
	}
	switch req.Config.ToolChoice {
	case model.ToolChoiceNone:
		none := sdk.NewToolChoiceNoneParam()
		params.ToolChoice = sdk.ToolChoiceUnionParam{OfNone: &none}
	case model.ToolChoiceRequired:
		params.ToolChoice = sdk.ToolChoiceUnionParam{OfAny: &sdk.ToolChoiceAnyParam{}}
	}
	return &params, sanToCanon, nil
}

func encodeMessages(msgs []model.Message, canonToSan map[string]string) ([]sdk.MessageParam, string, error) {
	conversation := make([]sdk.MessageParam, 0, len(msgs))
	var system strings.Builder

	for _, m := range msgs {
		switch m.Role {
		case model.RoleSystem:
			if m.Text != "" {
				if system.Len() > 0 {
					system.WriteString("\n\n")
				}
				system.WriteString(m.Text)
			}
		case model.RoleUser:
			blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Parts))
			for _, part := range m.Parts {
				switch v := part.(type) {
				case model.TextPart:
					if v.Text != "" {
						blocks = append(blocks, sdk.NewTextBlock(v.Text))
					}
				case model.ImagePart:
					blocks = append(blocks, sdk.NewImageBlockBase64(v.MimeType, base64.StdEncoding.EncodeToString(v.Data)))
				}
			}
			if len(blocks) > 0 {
				conversation = append(conversation, sdk.NewUserMessage(blocks...))
			}
		case model.RoleAssistant:
			blocks := make([]sdk.ContentBlockParamUnion, 0, 1+len(m.ToolCalls))
			if m.Text != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Text))
			}
			for _, tc := range m.ToolCalls {
				sanitized := canonToSan[tc.Name]
				if sanitized == "" {
					sanitized = sanitizeToolName(tc.Name)
				}
				var input any
				if tc.Arguments != "" {
					var decoded map[string]any
					if err := json.Unmarshal([]byte(tc.Arguments), &decoded); err == nil {
						input = decoded
					}
				}
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, input, sanitized))
			}
			if len(blocks) > 0 {
				conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
			}
		case model.RoleToolResult:
			block := sdk.NewToolResultBlock(m.CallID, m.Text, false)
			conversation = append(conversation, sdk.NewUserMessage(block))
		case model.RoleToolResults:
			blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Results))
			for _, r := range m.Results {
				content, isErr := encodeToolResultOutput(r.Output)
				blocks = append(blocks, sdk.NewToolResultBlock(r.CallID, content, isErr))
			}
			if len(blocks) > 0 {
				conversation = append(conversation, sdk.NewUserMessage(blocks...))
			}
		}
	}
	if len(conversation) == 0 {
		return nil, "", errors.New("anthropic: at least one user/assistant message is required")
	}
	return conversation, system.String(), nil
}

func encodeToolResultOutput(out model.ToolResultOutput) (content string, isError bool) {
	switch out.Kind {
	case model.ToolResultOutputError:
		return out.Text, true
	case model.ToolResultOutputJSON:
		data, err := json.Marshal(out.JSON)
		if err != nil {
			return "", false
		}
		return string(data), false
	default:
		return out.Text, false
	}
}

func encodeTools(defs []model.ToolDefinition) (params []sdk.ToolUnionParam, canonToSan, sanToCanon map[string]string, err error) {
	if len(defs) == 0 {
		return nil, nil, nil, nil
	}
	canonToSan = make(map[string]string, len(defs))
	sanToCanon = make(map[string]string, len(defs))
	for _, def := range defs {
		sanitized := sanitizeToolName(def.Name)
		if prev, ok := sanToCanon[sanitized]; ok && prev != def.Name {
			return nil, nil, nil, fmt.Errorf("anthropic: tool name %q sanitizes to %q which collides with %q", def.Name, sanitized, prev)
		}
		canonToSan[def.Name] = sanitized
		sanToCanon[sanitized] = def.Name

		schemaFields, err := toolSchemaFields(def.InputSchema)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("anthropic: tool %q schema: %w", def.Name, err)
		}
		u := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{ExtraFields: schemaFields}, sanitized)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(def.Description)
		}
		params = append(params, u)
	}
	return params, canonToSan, sanToCanon, nil
}

func toolSchemaFields(schema any) (map[string]any, error) {
	v, ok := schema.(jsonvalue.Value)
	if !ok {
		return map[string]any{"type": "object", "properties": map[string]any{}, "additionalProperties": false}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// sanitizeToolName maps a canonical tool identifier to the character set
// Anthropic allows in tool names, replacing any disallowed rune with '_'.
func sanitizeToolName(in string) string {
	if in == "" {
		return in
	}
	if isProviderSafeToolName(in) {
		return in
	}
	out := make([]rune, 0, len(in))
	for _, r := range in {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}

func isProviderSafeToolName(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			continue
		}
		return false
	}
	return true
}

func translateResponse(msg *sdk.Message, nameMap map[string]string) (*model.CompletionResponse, error) {
	if msg == nil {
		return nil, errors.New("anthropic: response message is nil")
	}
	resp := &model.CompletionResponse{}
	var text strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			name := block.Name
			if canonical, ok := nameMap[name]; ok {
				name = canonical
			}
			argsJSON, err := json.Marshal(block.Input)
			if err != nil {
				argsJSON = []byte("{}")
			}
			resp.ToolCalls = append(resp.ToolCalls, model.ToolCall{ID: block.ID, Name: name, Arguments: string(argsJSON)})
		}
	}
	if text.Len() > 0 {
		resp.Content = text.String()
		resp.HasContent = true
	}
	if u := msg.Usage; u.InputTokens != 0 || u.OutputTokens != 0 {
		resp.Usage = model.Usage{InputTokens: int(u.InputTokens), OutputTokens: int(u.OutputTokens)}
	}
	resp.StopReason = mapStopReason(string(msg.StopReason))
	if len(resp.ToolCalls) > 0 {
		resp.StopReason = model.StopToolUse
	}
	return resp, nil
}

func mapStopReason(raw string) model.StopReason {
	switch raw {
	case "end_turn":
		return model.StopEndTurn
	case "tool_use":
		return model.StopToolUse
	case "max_tokens":
		return model.StopMaxTokens
	case "stop_sequence":
		return model.StopSequence
	default:
		return model.StopEndTurn
	}
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *sdk.Error
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
