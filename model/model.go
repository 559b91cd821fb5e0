// Package model defines the canonical request/response model shared by
// every provider adapter: messages, tool definitions, content parts, stop
// reasons, usage, and stream events.
package model

import "context"

// ConversationRole discriminates the Message tagged variant.
type ConversationRole string

const (
	RoleSystem       ConversationRole = "system"
	RoleUser         ConversationRole = "user"
	RoleAssistant    ConversationRole = "assistant"
	RoleToolResult   ConversationRole = "toolResult"
	RoleToolResults  ConversationRole = "toolResults"
)

// Part is a content part within a user message: text or image.
type Part interface{ isPart() }

// TextPart is plain text content.
type TextPart struct{ Text string }

func (TextPart) isPart() {}

// ImagePart is inline image bytes with a MIME type.
type ImagePart struct {
	Data     []byte
	MimeType string
}

func (ImagePart) isPart() {}

// ToolCall is a model-issued intention to invoke a tool. Arguments is the
// raw JSON string produced by the model and is never pre-parsed on the wire
// path.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolResultOutput is the output ∈ {text, json, error} of one entry inside
// a toolResults message.
type ToolResultOutput struct {
	Kind ToolResultOutputKind
	Text string      // set when Kind == ToolResultOutputText or ToolResultOutputError
	JSON interface{} // set when Kind == ToolResultOutputJSON; decoded jsonvalue.Value
}

// ToolResultOutputKind discriminates ToolResultOutput.
type ToolResultOutputKind int

const (
	ToolResultOutputText ToolResultOutputKind = iota
	ToolResultOutputJSON
	ToolResultOutputError
)

// ToolResultEntry pairs a call id with its output, used inside a
// toolResults message.
type ToolResultEntry struct {
	CallID string
	Output ToolResultOutput
}

// Message is a tagged variant: system(text) | user([Part]) |
// assistant(text, [ToolCall]) | toolResult(callID, text) |
// toolResults([ToolResultEntry]).
type Message struct {
	Role ConversationRole

	// system / toolResult
	Text   string
	CallID string // toolResult only

	// user
	Parts []Part

	// assistant
	ToolCalls []ToolCall

	// toolResults
	Results []ToolResultEntry

	Meta map[string]any
}

// System builds a system message.
func System(text string) Message { return Message{Role: RoleSystem, Text: text} }

// User builds a user message from content parts.
func User(parts ...Part) Message { return Message{Role: RoleUser, Parts: parts} }

// UserText builds a single-text-part user message.
func UserText(text string) Message { return User(TextPart{Text: text}) }

// Assistant builds an assistant message, optionally with tool calls.
func Assistant(text string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Text: text, ToolCalls: calls}
}

// ToolResult builds a single tool-result message.
func ToolResult(callID, text string) Message {
	return Message{Role: RoleToolResult, CallID: callID, Text: text}
}

// ToolResults builds a folded multi-result message.
func ToolResults(entries ...ToolResultEntry) Message {
	return Message{Role: RoleToolResults, Results: entries}
}

// ToolDefinition is a named function with a JSON-Schema for its arguments,
// callable by the model. InputSchema must be a well-formed JSON-Schema
// fragment rooted at type:"object".
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema interface{} // jsonvalue.Value
}

// ToolChoiceMode constrains how the model selects a tool.
type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceNone     ToolChoiceMode = "none"
)

// CompletionConfig carries optional sampling parameters plus adapter-neutral
// extras.
type CompletionConfig struct {
	Temperature   *float64
	MaxTokens     *int
	TopP          *float64
	StopSequences []string

	Store                *bool
	PromptCacheKey       string
	PromptCacheRetention string

	ToolChoice ToolChoiceMode
}

// CompletionRequest is the canonical request: messages is non-empty.
type CompletionRequest struct {
	Messages     []Message
	Tools        []ToolDefinition
	OutputSchema interface{} // jsonvalue.Value, optional
	Config       CompletionConfig
}

// StopReason enumerates why a completion stopped.
type StopReason string

const (
	StopEndTurn         StopReason = "endTurn"
	StopToolUse         StopReason = "toolUse"
	StopMaxTokens       StopReason = "maxTokens"
	StopSequence        StopReason = "stopSequence"
	StopContentFiltered StopReason = "contentFiltered"
)

// Usage reports token accounting; TotalTokens = InputTokens + OutputTokens.
type Usage struct {
	InputTokens     int
	OutputTokens    int
	CachedTokens    *int
	ReasoningTokens *int
}

// TotalTokens computes InputTokens + OutputTokens.
func (u Usage) TotalTokens() int { return u.InputTokens + u.OutputTokens }

// CompletionResponse is the canonical response. Invariant: if ToolCalls is
// non-empty, StopReason must be StopToolUse.
type CompletionResponse struct {
	Content   string
	HasContent bool
	Refusal   string
	HasRefusal bool
	ToolCalls []ToolCall
	StopReason StopReason
	Usage     Usage
}

// ChunkType discriminates a streamed Chunk.
type ChunkType string

const (
	ChunkContentDelta  ChunkType = "contentDelta"
	ChunkToolCallStart ChunkType = "toolCallStart"
	ChunkToolCallDelta ChunkType = "toolCallDelta"
	ChunkToolCallEnd   ChunkType = "toolCallEnd"
	ChunkDone          ChunkType = "done"
)

// Chunk is the StreamEvent tagged variant described in the data model:
// contentDelta(text), toolCallStart(id,name), toolCallDelta(argsDelta),
// toolCallEnd(id), done(response).
type Chunk struct {
	Type ChunkType

	Text string // ChunkContentDelta

	ToolCallID   string // ChunkToolCallStart / Delta / End
	ToolCallName string // ChunkToolCallStart
	ArgsDelta    string // ChunkToolCallDelta

	Response *CompletionResponse // ChunkDone

	Meta map[string]any
}

// Client is implemented by every provider adapter.
type Client interface {
	Name() string
	Capabilities() Capabilities
	// ValidateRequest pre-flights req against Capabilities() and returns a
	// capabilityNotSupported error (mentioning Name()) if req uses a
	// feature the model does not support. Complete and Stream call this
	// before issuing any transport call; callers may also call it directly
	// to validate a request without sending it.
	ValidateRequest(req *CompletionRequest) error
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
	Stream(ctx context.Context, req *CompletionRequest) (<-chan Chunk, error)
}

// Capabilities mirrors ModelCapabilities: booleans plus an optional
// context-window ceiling.
type Capabilities struct {
	SupportsTemperature      bool
	SupportsTools            bool
	SupportsVision           bool
	SupportsStructuredOutput bool
	SupportsSystemMessage    bool
	MaxContextTokens         *int
}

// ModelInfo describes one model discovered via Provider.ListModels.
type ModelInfo struct {
	ID           string
	DisplayName  string
	Capabilities Capabilities
}
