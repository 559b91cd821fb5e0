package model

import "strings"

// Coalescer accumulates Chunks emitted by an adapter's Stream and
// reconstructs the terminal CompletionResponse per the stream-coalescing
// algorithm: content equals the concatenation of all contentDelta
// payloads (or empty if none arrived), and each tool call's arguments
// equals the concatenation of its toolCallDelta payloads bracketed by the
// matching start/end.
type Coalescer struct {
	content strings.Builder
	sawText bool

	order []string
	args  map[string]*strings.Builder
	names map[string]string
}

// NewCoalescer returns an empty Coalescer.
func NewCoalescer() *Coalescer {
	return &Coalescer{
		args:  make(map[string]*strings.Builder),
		names: make(map[string]string),
	}
}

// Feed applies one Chunk to the accumulator. Feed must be called in
// dispatch order; it does not validate the start/delta*/end invariant: a
// delta or end for an unseen id opens a new tool call instead of failing.
func (c *Coalescer) Feed(ch Chunk) {
	switch ch.Type {
	case ChunkContentDelta:
		c.sawText = true
		c.content.WriteString(ch.Text)
	case ChunkToolCallStart:
		if _, ok := c.args[ch.ToolCallID]; !ok {
			c.order = append(c.order, ch.ToolCallID)
			c.args[ch.ToolCallID] = &strings.Builder{}
			c.names[ch.ToolCallID] = ch.ToolCallName
		}
	case ChunkToolCallDelta:
		b, ok := c.args[ch.ToolCallID]
		if !ok {
			b = &strings.Builder{}
			c.args[ch.ToolCallID] = b
			c.order = append(c.order, ch.ToolCallID)
		}
		b.WriteString(ch.ArgsDelta)
	case ChunkToolCallEnd:
		if _, ok := c.args[ch.ToolCallID]; !ok {
			c.order = append(c.order, ch.ToolCallID)
			c.args[ch.ToolCallID] = &strings.Builder{}
		}
	}
}

// ToolCalls returns the accumulated tool calls in first-seen order, each
// with Arguments equal to the concatenation of its deltas (empty string,
// never omitted, if no deltas arrived between its start and end).
func (c *Coalescer) ToolCalls() []ToolCall {
	calls := make([]ToolCall, 0, len(c.order))
	for _, id := range c.order {
		calls = append(calls, ToolCall{
			ID:        id,
			Name:      c.names[id],
			Arguments: c.args[id].String(),
		})
	}
	return calls
}

// Content returns the concatenated text and whether any contentDelta was
// ever observed.
func (c *Coalescer) Content() (string, bool) {
	return c.content.String(), c.sawText
}

// Finish builds the terminal CompletionResponse from the accumulated
// content and tool calls plus the given stop reason, usage and refusal;
// when any tool call was accumulated the stop reason is forced to
// StopToolUse.
func (c *Coalescer) Finish(stopReason StopReason, usage Usage, refusal string, hasRefusal bool) *CompletionResponse {
	content, sawText := c.Content()
	calls := c.ToolCalls()
	if len(calls) > 0 {
		stopReason = StopToolUse
	}
	return &CompletionResponse{
		Content:    content,
		HasContent: sawText,
		Refusal:    refusal,
		HasRefusal: hasRefusal,
		ToolCalls:  calls,
		StopReason: stopReason,
		Usage:      usage,
	}
}
