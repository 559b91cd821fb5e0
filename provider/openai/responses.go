package openai

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"

	"github.com/corenexus/llmfabric/model"
)

func (c *Client) completeResponses(ctx context.Context, req *model.CompletionRequest) (*model.CompletionResponse, error) {
	params, err := c.prepareResponses(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.responses.New(ctx, *params)
	if err != nil {
		return nil, mapError(err)
	}
	return translateResponsesResponse(resp)
}

func (c *Client) prepareResponses(req *model.CompletionRequest) (*openai.ResponseNewParams, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("openai: messages are required")
	}
	items, instructions, err := encodeResponsesInput(req.Messages)
	if err != nil {
		return nil, err
	}
	params := &openai.ResponseNewParams{
		Model: c.defaultModel,
		Input: openai.ResponseNewParamsInputUnion{
			OfInputItemList: items,
		},
	}
	if instructions != "" {
		params.Instructions = openai.String(instructions)
	}
	maxTokens := defaultMaxTokens
	if c.maxTok > 0 {
		maxTokens = c.maxTok
	}
	if req.Config.MaxTokens != nil {
		maxTokens = *req.Config.MaxTokens
	}
	params.MaxOutputTokens = openai.Int(int64(maxTokens))
	temp := c.temp
	if req.Config.Temperature != nil {
		temp = *req.Config.Temperature
	}
	if temp > 0 {
		params.Temperature = openai.Float(temp)
	}
	if len(req.Tools) > 0 {
		tools := make([]responses.ToolUnionParam, 0, len(req.Tools))
		for _, def := range req.Tools {
			tools = append(tools, responses.ToolParamOfFunction(def.Name, toSchemaMap(def.InputSchema), true))
		}
		params.Tools = tools
	}
	if req.OutputSchema != nil {
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
					JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
						Name:   "structured_output",
						Schema: toSchemaMap(req.OutputSchema),
						Strict: openai.Bool(true),
					},
				},
			},
		}
	}
	return params, nil
}

func encodeResponsesInput(msgs []model.Message) ([]responses.ResponseInputItemUnionParam, string, error) {
	var instructions string
	items := make([]responses.ResponseInputItemUnionParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case model.RoleSystem:
			instructions = m.Text
		case model.RoleUser:
			items = append(items, responses.ResponseInputItemParamOfMessage(encodeResponsesUserContent(m), responses.EasyInputMessageRoleUser))
		case model.RoleAssistant:
			if m.Text != "" {
				items = append(items, responses.ResponseInputItemParamOfMessage(m.Text, responses.EasyInputMessageRoleAssistant))
			}
			for _, tc := range m.ToolCalls {
				items = append(items, responses.ResponseInputItemParamOfFunctionCall(tc.Arguments, tc.ID, tc.Name))
			}
		case model.RoleToolResult:
			items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(m.CallID, m.Text))
		case model.RoleToolResults:
			for _, r := range m.Results {
				items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(r.CallID, encodeToolOutputText(r.Output)))
			}
		}
	}
	if len(items) == 0 {
		return nil, "", errors.New("openai: no input items encoded")
	}
	return items, instructions, nil
}

func encodeResponsesUserContent(m model.Message) string {
	if len(m.Parts) == 1 {
		if t, ok := m.Parts[0].(model.TextPart); ok {
			return t.Text
		}
	}
	var out string
	for _, p := range m.Parts {
		if t, ok := p.(model.TextPart); ok {
			out += t.Text
		}
	}
	return out
}

func translateResponsesResponse(resp *openai.Response) (*model.CompletionResponse, error) {
	if resp == nil {
		return nil, errors.New("openai: empty response")
	}
	out := &model.CompletionResponse{StopReason: model.StopEndTurn}
	for _, item := range resp.Output {
		switch item.Type {
		case "message":
			for _, c := range item.Content {
				if c.Type == "output_text" && c.Text != "" {
					out.Content += c.Text
					out.HasContent = true
				}
				if c.Type == "refusal" && c.Refusal != "" {
					out.Refusal = c.Refusal
					out.HasRefusal = true
				}
			}
		case "function_call":
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{
				ID:        item.CallID,
				Name:      item.Name,
				Arguments: item.Arguments,
			})
		}
	}
	if len(out.ToolCalls) > 0 {
		out.StopReason = model.StopToolUse
	}
	out.Usage = model.Usage{
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}
	if resp.Usage.OutputTokensDetails.ReasoningTokens != 0 {
		rt := int(resp.Usage.OutputTokensDetails.ReasoningTokens)
		out.Usage.ReasoningTokens = &rt
	}
	return out, nil
}
