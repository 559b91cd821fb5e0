package bedrock

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/corenexus/llmfabric/model"
)

type toolBuffer struct {
	id   string
	name string
}

func runStream(ctx context.Context, stream *bedrockruntime.ConverseStreamEventStream, nameMap map[string]string, out chan<- model.Chunk) {
	defer close(out)
	defer stream.Close()

	toolBlocks := make(map[int32]*toolBuffer)
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

	for event := range stream.Events() {
		switch ev := event.(type) {
		case *brtypes.ConverseStreamOutputMemberContentBlockStart:
			idx := ev.Value.ContentBlockIndex
			if idx == nil {
				continue
			}
			if start, ok := ev.Value.Start.(*brtypes.ContentBlockStartMemberToolUse); ok {
				tb := &toolBuffer{}
				if start.Value.ToolUseId != nil {
					tb.id = *start.Value.ToolUseId
				}
				name := ""
				if start.Value.Name != nil {
					name = *start.Value.Name
				}
				if canonical, ok := nameMap[name]; ok {
					name = canonical
				}
				tb.name = name
				toolBlocks[*idx] = tb
				ch := model.Chunk{Type: model.ChunkToolCallStart, ToolCallID: tb.id, ToolCallName: tb.name}
				coalescer.Feed(ch)
				if !emit(ch) {
					return
				}
			}
		case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
			idx := ev.Value.ContentBlockIndex
			if idx == nil {
				continue
			}
			switch delta := ev.Value.Delta.(type) {
			case *brtypes.ContentBlockDeltaMemberText:
				if delta.Value == "" {
					continue
				}
				ch := model.Chunk{Type: model.ChunkContentDelta, Text: delta.Value}
				coalescer.Feed(ch)
				if !emit(ch) {
					return
				}
			case *brtypes.ContentBlockDeltaMemberToolUse:
				tb := toolBlocks[*idx]
				if tb == nil || delta.Value.Input == nil {
					continue
				}
				ch := model.Chunk{Type: model.ChunkToolCallDelta, ToolCallID: tb.id, ArgsDelta: *delta.Value.Input}
				coalescer.Feed(ch)
				if !emit(ch) {
					return
				}
			}
		case *brtypes.ConverseStreamOutputMemberContentBlockStop:
			idx := ev.Value.ContentBlockIndex
			if idx == nil {
				continue
			}
			if tb, ok := toolBlocks[*idx]; ok {
				delete(toolBlocks, *idx)
				ch := model.Chunk{Type: model.ChunkToolCallEnd, ToolCallID: tb.id}
				coalescer.Feed(ch)
				if !emit(ch) {
					return
				}
			}
		case *brtypes.ConverseStreamOutputMemberMessageStop:
			if ev.Value.StopReason != "" {
				stopReason = mapStopReason(string(ev.Value.StopReason))
			}
		case *brtypes.ConverseStreamOutputMemberMetadata:
			if ev.Value.Usage != nil {
				if ev.Value.Usage.InputTokens != nil {
					usage.InputTokens = int(*ev.Value.Usage.InputTokens)
				}
				if ev.Value.Usage.OutputTokens != nil {
					usage.OutputTokens = int(*ev.Value.Usage.OutputTokens)
				}
			}
		}
	}

	resp := coalescer.Finish(stopReason, usage, "", false)
	emit(model.Chunk{Type: model.ChunkDone, Response: resp})
}
