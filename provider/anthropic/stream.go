package anthropic

import (
	"context"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/corenexus/llmfabric/model"
)

// chunkState tracks in-flight content/tool blocks across SSE events so that
// content_block_delta events can be routed to the right Chunk shape.
type chunkState struct {
	toolBlockIndex map[int64]string // index -> tool call id
	toolNameMap    map[string]string
}

func runStream(ctx context.Context, stream *ssestream.Stream[sdk.MessageStreamEventUnion], nameMap map[string]string, out chan<- model.Chunk) {
	defer close(out)
	defer stream.Close()

	state := &chunkState{toolBlockIndex: make(map[int64]string), toolNameMap: nameMap}
	coalescer := model.NewCoalescer()
	var usage model.Usage
	var stopReason model.StopReason = model.StopEndTurn

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
		case "content_block_start":
			block := event.ContentBlock
			if block.Type == "tool_use" {
				id := block.ID
				name := block.Name
				if canonical, ok := nameMap[name]; ok {
					name = canonical
				}
				state.toolBlockIndex[event.Index] = id
				ch := model.Chunk{Type: model.ChunkToolCallStart, ToolCallID: id, ToolCallName: name}
				coalescer.Feed(ch)
				if !emit(ch) {
					return
				}
			}
		case "content_block_delta":
			delta := event.Delta
			switch delta.Type {
			case "text_delta":
				ch := model.Chunk{Type: model.ChunkContentDelta, Text: delta.Text}
				coalescer.Feed(ch)
				if !emit(ch) {
					return
				}
			case "input_json_delta":
				id := state.toolBlockIndex[event.Index]
				ch := model.Chunk{Type: model.ChunkToolCallDelta, ToolCallID: id, ArgsDelta: delta.PartialJSON}
				coalescer.Feed(ch)
				if !emit(ch) {
					return
				}
			}
		case "content_block_stop":
			if id, ok := state.toolBlockIndex[event.Index]; ok {
				ch := model.Chunk{Type: model.ChunkToolCallEnd, ToolCallID: id}
				coalescer.Feed(ch)
				if !emit(ch) {
					return
				}
			}
		case "message_delta":
			if event.Delta.StopReason != "" {
				stopReason = mapStopReason(string(event.Delta.StopReason))
			}
			if u := event.Usage; u.OutputTokens != 0 || u.InputTokens != 0 {
				usage.OutputTokens = int(u.OutputTokens)
				if u.InputTokens != 0 {
					usage.InputTokens = int(u.InputTokens)
				}
			}
		case "message_start":
			if u := event.Message.Usage; u.InputTokens != 0 {
				usage.InputTokens = int(u.InputTokens)
			}
		}
	}

	resp := coalescer.Finish(stopReason, usage, "", false)
	emit(model.Chunk{Type: model.ChunkDone, Response: resp})
}
