package openai

import (
	"context"
	"strings"

	"github.com/corenexus/llmfabric/model"
)

func (c *Client) streamChat(ctx context.Context, req *model.CompletionRequest) (<-chan model.Chunk, error) {
	params, err := c.prepareChat(req)
	if err != nil {
		return nil, err
	}
	stream := c.chat.NewStreaming(ctx, *params)
	out := make(chan model.Chunk)
	go runChatStream(ctx, stream, out)
	return out, nil
}

// chatToolCallState tracks the id/name announced on the first delta for
// each tool-call index, since later deltas in the same stream omit them.
type chatToolCallState struct {
	idByIndex  map[int64]string
	startedIdx map[int64]bool
}

func runChatStream(ctx context.Context, stream *ssestreamChatChunk, out chan<- model.Chunk) {
	defer close(out)
	defer stream.Close()

	state := &chatToolCallState{idByIndex: make(map[int64]string), startedIdx: make(map[int64]bool)}
	coalescer := model.NewCoalescer()
	var usage model.Usage
	stopReason := model.StopEndTurn

	emit := func(ch model.Chunk) bool {
		select {
		case <-ctx.Done():
			return false
		case out <- ch:
			return true
		}
	}

	for stream.Next() {
		chunk := stream.Current()
		if chunk.Usage.TotalTokens != 0 {
			usage.InputTokens = int(chunk.Usage.PromptTokens)
			usage.OutputTokens = int(chunk.Usage.CompletionTokens)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			stopReason = mapStopReasonTable(string(choice.FinishReason))
		}
		if choice.Delta.Content != "" {
			ch := model.Chunk{Type: model.ChunkContentDelta, Text: choice.Delta.Content}
			coalescer.Feed(ch)
			if !emit(ch) {
				return
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := tc.Index
			if !state.startedIdx[idx] {
				state.startedIdx[idx] = true
				state.idByIndex[idx] = tc.ID
				ch := model.Chunk{Type: model.ChunkToolCallStart, ToolCallID: tc.ID, ToolCallName: tc.Function.Name}
				coalescer.Feed(ch)
				if !emit(ch) {
					return
				}
			}
			if tc.Function.Arguments != "" {
				ch := model.Chunk{Type: model.ChunkToolCallDelta, ToolCallID: state.idByIndex[idx], ArgsDelta: tc.Function.Arguments}
				coalescer.Feed(ch)
				if !emit(ch) {
					return
				}
			}
		}
	}
	for _, id := range state.idByIndex {
		ch := model.Chunk{Type: model.ChunkToolCallEnd, ToolCallID: id}
		coalescer.Feed(ch)
		if !emit(ch) {
			return
		}
	}
	if len(state.idByIndex) > 0 {
		stopReason = model.StopToolUse
	}

	resp := coalescer.Finish(stopReason, usage, "", false)
	emit(model.Chunk{Type: model.ChunkDone, Response: resp})
}

func (c *Client) streamResponses(ctx context.Context, req *model.CompletionRequest) (<-chan model.Chunk, error) {
	params, err := c.prepareResponses(req)
	if err != nil {
		return nil, err
	}
	stream := c.responses.NewStreaming(ctx, *params)
	out := make(chan model.Chunk)
	go runResponsesStream(ctx, stream, out)
	return out, nil
}

func runResponsesStream(ctx context.Context, stream *ssestreamResponse, out chan<- model.Chunk) {
	defer close(out)
	defer stream.Close()

	callIDByItem := make(map[string]string)
	coalescer := model.NewCoalescer()
	var usage model.Usage
	stopReason := model.StopEndTurn
	var hadToolCalls bool
	var refusal strings.Builder

	emit := func(ch model.Chunk) bool {
		select {
		case <-ctx.Done():
			return false
		case out <- ch:
			return true
		}
	}

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "response.output_text.delta":
			ch := model.Chunk{Type: model.ChunkContentDelta, Text: event.Delta}
			coalescer.Feed(ch)
			if !emit(ch) {
				return
			}
		case "response.refusal.delta":
			refusal.WriteString(event.Delta)
			ch := model.Chunk{Type: model.ChunkContentDelta, Meta: map[string]any{"refusal": true}}
			if !emit(ch) {
				return
			}
		case "response.output_item.added":
			item := event.Item
			if item.Type == "function_call" {
				callIDByItem[event.ItemID] = item.CallID
				ch := model.Chunk{Type: model.ChunkToolCallStart, ToolCallID: item.CallID, ToolCallName: item.Name}
				coalescer.Feed(ch)
				hadToolCalls = true
				if !emit(ch) {
					return
				}
			}
		case "response.function_call_arguments.delta":
			callID, ok := callIDByItem[event.ItemID]
			if !ok {
				continue
			}
			ch := model.Chunk{Type: model.ChunkToolCallDelta, ToolCallID: callID, ArgsDelta: event.Delta}
			coalescer.Feed(ch)
			if !emit(ch) {
				return
			}
		case "response.output_item.done":
			if callID, ok := callIDByItem[event.ItemID]; ok {
				ch := model.Chunk{Type: model.ChunkToolCallEnd, ToolCallID: callID}
				coalescer.Feed(ch)
				if !emit(ch) {
					return
				}
			}
		case "response.completed":
			if resp := event.Response; resp.Usage.InputTokens != 0 || resp.Usage.OutputTokens != 0 {
				usage.InputTokens = int(resp.Usage.InputTokens)
				usage.OutputTokens = int(resp.Usage.OutputTokens)
			}
		}
	}
	if hadToolCalls {
		stopReason = model.StopToolUse
	}

	resp := coalescer.Finish(stopReason, usage, refusal.String(), refusal.Len() > 0)
	emit(model.Chunk{Type: model.ChunkDone, Response: resp})
}
