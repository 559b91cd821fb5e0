package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/corenexus/llmfabric/jsonvalue"
	"github.com/corenexus/llmfabric/model"
)

func (c *Client) completeChat(ctx context.Context, req *model.CompletionRequest) (*model.CompletionResponse, error) {
	params, err := c.prepareChat(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.chat.New(ctx, *params)
	if err != nil {
		return nil, mapError(err)
	}
	return translateChatResponse(resp)
}

func (c *Client) prepareChat(req *model.CompletionRequest) (*openai.ChatCompletionNewParams, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("openai: messages are required")
	}
	msgs, err := encodeChatMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	params := &openai.ChatCompletionNewParams{
		Model:    c.defaultModel,
		Messages: msgs,
	}
	maxTokens := defaultMaxTokens
	if c.maxTok > 0 {
		maxTokens = c.maxTok
	}
	if req.Config.MaxTokens != nil {
		maxTokens = *req.Config.MaxTokens
	}
	if usesMaxCompletionTokens(c.defaultModel) {
		params.MaxCompletionTokens = openai.Int(int64(maxTokens))
	} else {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}
	temp := c.temp
	if req.Config.Temperature != nil {
		temp = *req.Config.Temperature
	}
	if temp > 0 {
		params.Temperature = openai.Float(temp)
	}
	if len(req.Config.StopSequences) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: req.Config.StopSequences}
	}
	if len(req.Tools) > 0 {
		tools, err := encodeChatTools(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
		if hasToolHistory(req.Messages) {
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("auto")}
		} else {
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("required")}
		}
	}
	if req.OutputSchema != nil {
		schemaFields := toSchemaMap(req.OutputSchema)
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "structured_output",
					Schema: schemaFields,
					Strict: openai.Bool(true),
				},
			},
		}
	}
	return params, nil
}

func hasToolHistory(msgs []model.Message) bool {
	for _, m := range msgs {
		if m.Role == model.RoleToolResult || m.Role == model.RoleToolResults {
			return true
		}
	}
	return false
}

func encodeChatMessages(msgs []model.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(m.Text))
		case model.RoleUser:
			out = append(out, encodeChatUserMessage(m))
		case model.RoleAssistant:
			out = append(out, encodeChatAssistantMessage(m))
		case model.RoleToolResult:
			out = append(out, openai.ToolMessage(m.Text, m.CallID))
		case model.RoleToolResults:
			for _, r := range m.Results {
				out = append(out, openai.ToolMessage(encodeToolOutputText(r.Output), r.CallID))
			}
		}
	}
	if len(out) == 0 {
		return nil, errors.New("openai: no messages encoded")
	}
	return out, nil
}

func encodeChatUserMessage(m model.Message) openai.ChatCompletionMessageParamUnion {
	if len(m.Parts) == 1 {
		if t, ok := m.Parts[0].(model.TextPart); ok {
			return openai.UserMessage(t.Text)
		}
	}
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch v := p.(type) {
		case model.TextPart:
			parts = append(parts, openai.TextContentPart(v.Text))
		case model.ImagePart:
			url := "data:" + v.MimeType + ";base64," + base64.StdEncoding.EncodeToString(v.Data)
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}))
		}
	}
	return openai.UserMessage(parts)
}

func encodeChatAssistantMessage(m model.Message) openai.ChatCompletionMessageParamUnion {
	msg := openai.AssistantMessage(m.Text)
	if len(m.ToolCalls) > 0 && msg.OfAssistant != nil {
		calls := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(m.ToolCalls))
		for _, tc := range m.ToolCalls {
			calls = append(calls, openai.ChatCompletionMessageToolCallUnionParam{
				OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				},
			})
		}
		msg.OfAssistant.ToolCalls = calls
	}
	return msg
}

func encodeToolOutputText(out model.ToolResultOutput) string {
	switch out.Kind {
	case model.ToolResultOutputJSON:
		data, err := json.Marshal(out.JSON)
		if err != nil {
			return ""
		}
		return string(data)
	default:
		return out.Text
	}
}

func encodeChatTools(defs []model.ToolDefinition) ([]openai.ChatCompletionToolUnionParam, error) {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(defs))
	for _, def := range defs {
		out = append(out, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        def.Name,
			Description: openai.String(def.Description),
			Parameters:  toSchemaMap(def.InputSchema),
		}))
	}
	return out, nil
}

func toSchemaMap(schema any) map[string]any {
	v, ok := schema.(jsonvalue.Value)
	if !ok {
		return map[string]any{"type": "object", "properties": map[string]any{}, "additionalProperties": false}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	_ = json.Unmarshal(data, &m)
	return m
}

func translateChatResponse(resp *openai.ChatCompletion) (*model.CompletionResponse, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, errors.New("openai: empty chat completion response")
	}
	choice := resp.Choices[0]
	out := &model.CompletionResponse{
		StopReason: mapStopReasonTable(string(choice.FinishReason)),
	}
	if choice.Message.Content != "" {
		out.Content = choice.Message.Content
		out.HasContent = true
	}
	if choice.Message.Refusal != "" {
		out.Refusal = choice.Message.Refusal
		out.HasRefusal = true
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, model.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	if len(out.ToolCalls) > 0 {
		out.StopReason = model.StopToolUse
	}
	out.Usage = model.Usage{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}
	return out, nil
}
