// Package bedrock implements the Family C provider adapter: AWS Bedrock's
// Converse/ConverseStream API, using
// github.com/aws/aws-sdk-go-v2/service/bedrockruntime.
package bedrock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/corenexus/llmfabric/capability"
	"github.com/corenexus/llmfabric/jsonvalue"
	"github.com/corenexus/llmfabric/model"
)

// RuntimeClient captures the subset of the AWS Bedrock runtime client used
// by this adapter, matching *bedrockruntime.Client so callers can pass
// either the real client or a mock in tests.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// Options configures the adapter's defaults.
type Options struct {
	DefaultModel string
	MaxTokens    int
	Temperature  float32
}

const defaultMaxTokens = 4096

// Client implements model.Client on top of AWS Bedrock Converse.
type Client struct {
	runtime      RuntimeClient
	defaultModel string
	maxTok       int
	temp         float32
}

// New builds an adapter from an existing Bedrock runtime client.
func New(runtime RuntimeClient, opts Options) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("bedrock: default model identifier is required")
	}
	return &Client{runtime: runtime, defaultModel: opts.DefaultModel, maxTok: opts.MaxTokens, temp: opts.Temperature}, nil
}

// NewFromRuntime constructs an adapter from a real *bedrockruntime.Client.
func NewFromRuntime(rc *bedrockruntime.Client, defaultModel string) (*Client, error) {
	return New(rc, Options{DefaultModel: defaultModel})
}

// Name reports the adapter family name.
func (c *Client) Name() string { return "bedrock" }

// Capabilities reports the capability set for the adapter's default model,
// derived per capabilitiesForModel.
func (c *Client) Capabilities() model.Capabilities {
	return capabilitiesForModel(c.defaultModel)
}

type requestParts struct {
	messages                []brtypes.Message
	system                  []brtypes.SystemContentBlock
	toolConfig              *brtypes.ToolConfiguration
	toolNameProvToCanonical map[string]string
}

func (c *Client) prepareRequest(req *model.CompletionRequest) (*requestParts, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("bedrock: messages are required")
	}
	toolConfig, canonToSan, sanToCanon, err := encodeTools(req.Tools, req.Config.ToolChoice)
	if err != nil {
		return nil, err
	}
	if toolConfig == nil && messagesHaveToolBlocks(req.Messages) {
		return nil, errors.New("bedrock: messages contain tool calls or results but no tools were provided")
	}
	messages, system, err := encodeMessages(req.Messages, canonToSan)
	if err != nil {
		return nil, err
	}
	return &requestParts{
		messages:                messages,
		system:                  system,
		toolConfig:              toolConfig,
		toolNameProvToCanonical: sanToCanon,
	}, nil
}

func (c *Client) inferenceConfig(req *model.CompletionRequest) *brtypes.InferenceConfiguration {
	var cfg brtypes.InferenceConfiguration
	tokens := defaultMaxTokens
	if c.maxTok > 0 {
		tokens = c.maxTok
	}
	if req.Config.MaxTokens != nil {
		tokens = *req.Config.MaxTokens
	}
	cfg.MaxTokens = aws.Int32(int32(tokens))
	temp := c.temp
	if req.Config.Temperature != nil {
		temp = float32(*req.Config.Temperature)
	}
	if temp > 0 {
		cfg.Temperature = aws.Float32(temp)
	}
	if len(req.Config.StopSequences) > 0 {
		cfg.StopSequences = req.Config.StopSequences
	}
	return &cfg
}

func (c *Client) buildConverseInput(parts *requestParts, req *model.CompletionRequest) *bedrockruntime.ConverseInput {
	input := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(c.defaultModel),
		Messages:        parts.messages,
		InferenceConfig: c.inferenceConfig(req),
	}
	if len(parts.system) > 0 {
		input.System = parts.system
	}
	if parts.toolConfig != nil {
		input.ToolConfig = parts.toolConfig
	}
	return input
}

func (c *Client) buildConverseStreamInput(parts *requestParts, req *model.CompletionRequest) *bedrockruntime.ConverseStreamInput {
	input := &bedrockruntime.ConverseStreamInput{
		ModelId:         aws.String(c.defaultModel),
		Messages:        parts.messages,
		InferenceConfig: c.inferenceConfig(req),
	}
	if len(parts.system) > 0 {
		input.System = parts.system
	}
	if parts.toolConfig != nil {
		input.ToolConfig = parts.toolConfig
	}
	return input
}

// ValidateRequest pre-flights req against Capabilities() before any
// transport call.
func (c *Client) ValidateRequest(req *model.CompletionRequest) error {
	if err := capability.Validate(req, c.Capabilities()); err != nil {
		return capability.WithModelName(err, c.Name())
	}
	return nil
}

// Complete issues a Converse request and translates the response into the
// canonical CompletionResponse.
func (c *Client) Complete(ctx context.Context, req *model.CompletionRequest) (*model.CompletionResponse, error) {
	if err := c.ValidateRequest(req); err != nil {
		return nil, err
	}
	parts, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	output, err := c.runtime.Converse(ctx, c.buildConverseInput(parts, req))
	if err != nil {
		return nil, mapError(err)
	}
	return translateResponse(output, parts.toolNameProvToCanonical)
}

// Stream issues a ConverseStream request and adapts incremental events into
// canonical Chunks.
func (c *Client) Stream(ctx context.Context, req *model.CompletionRequest) (<-chan model.Chunk, error) {
	if err := c.ValidateRequest(req); err != nil {
		return nil, err
	}
	parts, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.runtime.ConverseStream(ctx, c.buildConverseStreamInput(parts, req))
	if err != nil {
		return nil, mapError(err)
	}
	es := resp.GetStream()
	if es == nil {
		return nil, errors.New("bedrock: stream output missing event stream")
	}
	out := make(chan model.Chunk)
	go runStream(ctx, es, parts.toolNameProvToCanonical, out)
	return out, nil
}

func encodeMessages(msgs []model.Message, nameMap map[string]string) ([]brtypes.Message, []brtypes.SystemContentBlock, error) {
	conversation := make([]brtypes.Message, 0, len(msgs))
	system := make([]brtypes.SystemContentBlock, 0)
	for _, m := range msgs {
		switch m.Role {
		case model.RoleSystem:
			if m.Text != "" {
				system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.Text})
			}
		case model.RoleUser:
			blocks, err := encodeUserBlocks(m)
			if err != nil {
				return nil, nil, err
			}
			if len(blocks) > 0 {
				conversation = append(conversation, brtypes.Message{Role: brtypes.ConversationRoleUser, Content: blocks})
			}
		case model.RoleAssistant:
			blocks, err := encodeAssistantBlocks(m, nameMap)
			if err != nil {
				return nil, nil, err
			}
			if len(blocks) > 0 {
				conversation = append(conversation, brtypes.Message{Role: brtypes.ConversationRoleAssistant, Content: blocks})
			}
		case model.RoleToolResult:
			block := encodeToolResultBlock(m.CallID, model.ToolResultOutput{Kind: model.ToolResultOutputText, Text: m.Text})
			conversation = append(conversation, brtypes.Message{Role: brtypes.ConversationRoleUser, Content: []brtypes.ContentBlock{block}})
		case model.RoleToolResults:
			blocks := make([]brtypes.ContentBlock, 0, len(m.Results))
			for _, r := range m.Results {
				blocks = append(blocks, encodeToolResultBlock(r.CallID, r.Output))
			}
			if len(blocks) > 0 {
				conversation = append(conversation, brtypes.Message{Role: brtypes.ConversationRoleUser, Content: blocks})
			}
		}
	}
	if len(conversation) == 0 {
		return nil, nil, errors.New("bedrock: at least one user/assistant message is required")
	}
	return conversation, system, nil
}

func encodeUserBlocks(m model.Message) ([]brtypes.ContentBlock, error) {
	blocks := make([]brtypes.ContentBlock, 0, len(m.Parts))
	for _, part := range m.Parts {
		switch v := part.(type) {
		case model.TextPart:
			if v.Text != "" {
				blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: v.Text})
			}
		case model.ImagePart:
			format, ok := imageFormat(v.MimeType)
			if !ok {
				return nil, fmt.Errorf("bedrock: unsupported image mime type %q", v.MimeType)
			}
			blocks = append(blocks, &brtypes.ContentBlockMemberImage{Value: brtypes.ImageBlock{
				Format: format,
				Source: &brtypes.ImageSourceMemberBytes{Value: v.Data},
			}})
		}
	}
	return blocks, nil
}

func encodeAssistantBlocks(m model.Message, nameMap map[string]string) ([]brtypes.ContentBlock, error) {
	blocks := make([]brtypes.ContentBlock, 0, 1+len(m.ToolCalls))
	if m.Text != "" {
		blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: m.Text})
	}
	for _, tc := range m.ToolCalls {
		sanitized, ok := nameMap[tc.Name]
		if !ok {
			sanitized = sanitizeToolName(tc.Name)
		}
		var input jsonvalue.Value
		if v, err := jsonvalue.FromBytes([]byte(tc.Arguments)); err == nil {
			input = v
		} else {
			input = jsonvalue.Object(map[string]jsonvalue.Value{})
		}
		blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
			ToolUseId: aws.String(tc.ID),
			Name:      aws.String(sanitized),
			Input:     toDocument(input),
		}})
	}
	return blocks, nil
}

func encodeToolResultBlock(callID string, out model.ToolResultOutput) brtypes.ContentBlock {
	tr := brtypes.ToolResultBlock{ToolUseId: aws.String(callID)}
	switch out.Kind {
	case model.ToolResultOutputError:
		tr.Status = brtypes.ToolResultStatusError
		tr.Content = []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: out.Text}}
	case model.ToolResultOutputJSON:
		v, ok := out.JSON.(jsonvalue.Value)
		if !ok {
			v = jsonvalue.Null()
		}
		tr.Content = []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberJson{Value: toDocument(v)}}
	default:
		tr.Content = []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: out.Text}}
	}
	return &brtypes.ContentBlockMemberToolResult{Value: tr}
}

func imageFormat(mimeType string) (brtypes.ImageFormat, bool) {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return brtypes.ImageFormatJpeg, true
	case "image/png":
		return brtypes.ImageFormatPng, true
	case "image/gif":
		return brtypes.ImageFormatGif, true
	case "image/webp":
		return brtypes.ImageFormatWebp, true
	default:
		return "", false
	}
}

func messagesHaveToolBlocks(msgs []model.Message) bool {
	for _, m := range msgs {
		if m.Role == model.RoleToolResult || m.Role == model.RoleToolResults {
			return true
		}
		if m.Role == model.RoleAssistant && len(m.ToolCalls) > 0 {
			return true
		}
	}
	return false
}

func encodeTools(defs []model.ToolDefinition, choice model.ToolChoiceMode) (*brtypes.ToolConfiguration, map[string]string, map[string]string, error) {
	if len(defs) == 0 {
		return nil, nil, nil, nil
	}
	toolList := make([]brtypes.Tool, 0, len(defs))
	canonToSan := make(map[string]string, len(defs))
	sanToCanon := make(map[string]string, len(defs))
	for _, def := range defs {
		sanitized := sanitizeToolName(def.Name)
		if prev, ok := sanToCanon[sanitized]; ok && prev != def.Name {
			return nil, nil, nil, fmt.Errorf("bedrock: tool name %q sanitizes to %q which collides with %q", def.Name, sanitized, prev)
		}
		sanToCanon[sanitized] = def.Name
		canonToSan[def.Name] = sanitized
		v, ok := def.InputSchema.(jsonvalue.Value)
		if !ok {
			v = jsonvalue.Object(map[string]jsonvalue.Value{"type": jsonvalue.String("object")})
		}
		toolList = append(toolList, &brtypes.ToolMemberToolSpec{Value: brtypes.ToolSpecification{
			Name:        aws.String(sanitized),
			Description: aws.String(def.Description),
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: toDocument(v)},
		}})
	}
	cfg := &brtypes.ToolConfiguration{Tools: toolList}
	switch choice {
	case model.ToolChoiceRequired:
		cfg.ToolChoice = &brtypes.ToolChoiceMemberAny{Value: brtypes.AnyToolChoice{}}
	case model.ToolChoiceNone, model.ToolChoiceAuto, "":
		// Auto is the provider default; "none" preserves tool config for
		// interpreting history without forcing a new call.
	}
	return cfg, canonToSan, sanToCanon, nil
}

// sanitizeToolName maps a canonical tool identifier to the characters
// allowed by Bedrock's [a-zA-Z0-9_-]+ constraint, preserving namespace
// information by replacing '.' with '_', and keeping the mapping
// collision-free within a request by hash-suffixing names that would
// otherwise exceed the 64-character limit.
func sanitizeToolName(in string) string {
	if in == "" {
		return ""
	}
	const maxLen = 64
	const hashLen = 8

	out := make([]rune, 0, len(in))
	for _, r := range in {
		if r == '.' {
			r = '_'
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	sanitized := string(out)
	if len(sanitized) <= maxLen {
		return sanitized
	}
	sum := sha256.Sum256([]byte(in))
	suffix := hex.EncodeToString(sum[:])[:hashLen]
	prefixLen := maxLen - (1 + hashLen)
	if prefixLen < 1 {
		prefixLen = 1
	}
	return sanitized[:prefixLen] + "_" + suffix
}

func translateResponse(output *bedrockruntime.ConverseOutput, nameMap map[string]string) (*model.CompletionResponse, error) {
	if output == nil {
		return nil, errors.New("bedrock: response is nil")
	}
	resp := &model.CompletionResponse{StopReason: mapStopReason(string(output.StopReason))}
	msg, ok := output.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return nil, errors.New("bedrock: response has no message output")
	}
	for _, block := range msg.Value.Content {
		switch v := block.(type) {
		case *brtypes.ContentBlockMemberText:
			if v.Value != "" {
				resp.Content += v.Value
				resp.HasContent = true
			}
		case *brtypes.ContentBlockMemberToolUse:
			name := ""
			if v.Value.Name != nil {
				name = *v.Value.Name
				if canonical, ok := nameMap[name]; ok {
					name = canonical
				}
			}
			id := ""
			if v.Value.ToolUseId != nil {
				id = *v.Value.ToolUseId
			}
			arguments := "{}"
			if doc := fromDocument(v.Value.Input); !doc.IsNull() {
				if data, err := json.Marshal(doc); err == nil {
					arguments = string(data)
				}
			}
			resp.ToolCalls = append(resp.ToolCalls, model.ToolCall{ID: id, Name: name, Arguments: arguments})
		}
	}
	if len(resp.ToolCalls) > 0 {
		resp.StopReason = model.StopToolUse
	}
	if u := output.Usage; u != nil {
		resp.Usage = model.Usage{InputTokens: int(ptrValue(u.InputTokens)), OutputTokens: int(ptrValue(u.OutputTokens))}
	}
	return resp, nil
}

func ptrValue[T ~int32 | ~int64](ptr *T) T {
	if ptr == nil {
		return 0
	}
	return *ptr
}

func mapStopReason(reason string) model.StopReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return model.StopEndTurn
	case "tool_use":
		return model.StopToolUse
	case "max_tokens":
		return model.StopMaxTokens
	case "content_filtered", "guardrail_intervened":
		return model.StopContentFiltered
	default:
		return model.StopEndTurn
	}
}

// isRateLimited reports whether err represents a provider rate-limiting
// condition, treating both HTTP 429 and ThrottlingException/
// TooManyRequestsException error codes as rate-limited signals.
func isRateLimited(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 429 {
		return true
	}
	return false
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if isRateLimited(err) {
		return model.NewProviderError(model.ErrRateLimited, err.Error(), err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDeniedException", "UnrecognizedClientException":
			return model.NewProviderError(model.ErrInvalidAPIKey, err.Error(), err)
		case "ResourceNotFoundException":
			return model.NewProviderError(model.ErrModelNotFound, err.Error(), err)
		case "ValidationException":
			return model.NewProviderError(model.ErrInvalidRequest, err.Error(), err)
		case "ModelErrorException", "InternalServerException":
			return model.NewProviderError(model.ErrServerError, err.Error(), err)
		}
	}
	return model.NewProviderError(model.ErrNetworkError, err.Error(), err)
}
