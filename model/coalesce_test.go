package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCoalescer_ContentConcatenation(t *testing.T) {
	c := NewCoalescer()
	c.Feed(Chunk{Type: ChunkContentDelta, Text: "Hello"})
	c.Feed(Chunk{Type: ChunkContentDelta, Text: " "})
	c.Feed(Chunk{Type: ChunkContentDelta, Text: "world"})
	resp := c.Finish(StopEndTurn, Usage{InputTokens: 1, OutputTokens: 2}, "", false)
	require.Equal(t, "Hello world", resp.Content)
	require.Equal(t, StopEndTurn, resp.StopReason)
}

func TestCoalescer_ToolCallBracketing(t *testing.T) {
	c := NewCoalescer()
	c.Feed(Chunk{Type: ChunkToolCallStart, ToolCallID: "t1", ToolCallName: "get_weather"})
	c.Feed(Chunk{Type: ChunkToolCallDelta, ToolCallID: "t1", ArgsDelta: `{"city":`})
	c.Feed(Chunk{Type: ChunkToolCallDelta, ToolCallID: "t1", ArgsDelta: `"Paris"}`})
	c.Feed(Chunk{Type: ChunkToolCallEnd, ToolCallID: "t1"})
	resp := c.Finish(StopEndTurn, Usage{}, "", false)
	require.Equal(t, StopToolUse, resp.StopReason)
	require.Len(t, resp.ToolCalls, 1)
	require.Equal(t, `{"city":"Paris"}`, resp.ToolCalls[0].Arguments)
}

func TestCoalescer_EmptyDeltasStillYieldEmptyString(t *testing.T) {
	c := NewCoalescer()
	c.Feed(Chunk{Type: ChunkToolCallStart, ToolCallID: "t1", ToolCallName: "noop"})
	c.Feed(Chunk{Type: ChunkToolCallEnd, ToolCallID: "t1"})
	calls := c.ToolCalls()
	require.Len(t, calls, 1)
	require.Equal(t, "", calls[0].Arguments)
}

func TestCoalescer_NoContentDeltaYieldsEmptyContent(t *testing.T) {
	c := NewCoalescer()
	_, saw := c.Content()
	require.False(t, saw)
}
