// Package structured implements the structured-output helper: native-JSON
// and tool-mode extraction of a typed value from a completion, following a
// strict error-precedence ladder so callers get one unambiguous failure
// reason rather than a generic decode error.
package structured

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/corenexus/llmfabric/jsonvalue"
	"github.com/corenexus/llmfabric/model"
	"github.com/corenexus/llmfabric/schema"
)

// Mode selects how the typed value is extracted from the completion.
type Mode int

const (
	// ModeNative asks the provider to constrain its own output to the
	// schema and decodes the response content directly.
	ModeNative Mode = iota
	// ModeTool gives the model one synthetic tool whose input schema is
	// the typed value's schema, and decodes the first tool call's
	// arguments.
	ModeTool
)

const syntheticToolName = "emit_structured_output"

// ErrorKind enumerates the five-step extraction failure reasons, evaluated
// in order by Generate.
type ErrorKind string

const (
	ErrModelRefused           ErrorKind = "modelRefused"
	ErrIncompleteResponse     ErrorKind = "incompleteResponse"
	ErrUnexpectedTextResponse ErrorKind = "unexpectedTextResponse"
	ErrEmptyResponse          ErrorKind = "emptyResponse"
	ErrUnexpectedToolCall     ErrorKind = "unexpectedToolCall"
	ErrDecodingFailed         ErrorKind = "decodingFailed"
)

// Error is the structured failure Generate returns for every extraction
// failure; Kind discriminates which step of the ladder rejected the
// response, and Detail/Partial/Cause carry the evidence named in that
// step's description.
type Error struct {
	Kind    ErrorKind
	Detail  string
	Partial string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("structured: %s: %s: %v", e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("structured: %s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Cause }

// Response carries the decoded value alongside enough of the terminal
// completion to debug a decoding without re-running the request.
type Response[T any] struct {
	Data       T
	Usage      model.Usage
	StopReason model.StopReason
	RawJSON    []byte
}

// Generate issues req against client in the given mode and decodes the
// result into T, applying the extraction ladder in spec order: refusal,
// then incomplete (maxTokens), then missing-tool-call / missing-content,
// then JSON decode failure.
func Generate[T any](ctx context.Context, client model.Client, req *model.CompletionRequest, mode Mode) (*Response[T], error) {
	fragment, err := schema.Reflect[T]()
	if err != nil {
		return nil, fmt.Errorf("structured: reflect schema: %w", err)
	}

	prepared := *req
	switch mode {
	case ModeNative:
		prepared.OutputSchema = fragment
	case ModeTool:
		tools := make([]model.ToolDefinition, len(req.Tools), len(req.Tools)+1)
		copy(tools, req.Tools)
		tools = append(tools, model.ToolDefinition{
			Name:        syntheticToolName,
			Description: "Emit the final structured result.",
			InputSchema: fragment,
		})
		prepared.Tools = tools
		prepared.Config.ToolChoice = model.ToolChoiceRequired
	}

	resp, err := client.Complete(ctx, &prepared)
	if err != nil {
		return nil, err
	}

	raw, stopErr := extract(resp, mode)
	if stopErr != nil {
		return nil, stopErr
	}

	// Route through jsonvalue.FromBytes first, same as tool-call argument
	// parsing elsewhere in this module, then decode the canonical form into
	// T; this surfaces malformed JSON the same way regardless of T's shape
	// before the reflective Unmarshal below runs.
	canonical, err := jsonvalue.FromBytes(raw)
	if err != nil {
		return nil, &Error{Kind: ErrDecodingFailed, Detail: string(raw), Cause: err}
	}
	canonicalJSON, err := json.Marshal(canonical)
	if err != nil {
		return nil, &Error{Kind: ErrDecodingFailed, Detail: string(raw), Cause: err}
	}

	var data T
	if err := json.Unmarshal(canonicalJSON, &data); err != nil {
		return nil, &Error{Kind: ErrDecodingFailed, Detail: string(raw), Cause: err}
	}

	return &Response[T]{
		Data:       data,
		Usage:      resp.Usage,
		StopReason: resp.StopReason,
		RawJSON:    raw,
	}, nil
}

// extract applies steps 1-4 of the ladder and returns the raw JSON bytes
// that step 5 should decode.
func extract(resp *model.CompletionResponse, mode Mode) ([]byte, error) {
	if resp.HasRefusal {
		return nil, &Error{Kind: ErrModelRefused, Detail: resp.Refusal}
	}

	if resp.StopReason == model.StopMaxTokens {
		partial := resp.Content
		if mode == ModeTool && len(resp.ToolCalls) > 0 {
			partial = resp.ToolCalls[0].Arguments
		}
		return nil, &Error{Kind: ErrIncompleteResponse, Detail: "response truncated at max tokens", Partial: partial}
	}

	switch mode {
	case ModeTool:
		if len(resp.ToolCalls) == 0 {
			if resp.HasContent && resp.Content != "" {
				return nil, &Error{Kind: ErrUnexpectedTextResponse, Detail: resp.Content}
			}
			return nil, &Error{Kind: ErrEmptyResponse, Detail: "no tool call and no content in response"}
		}
		return []byte(resp.ToolCalls[0].Arguments), nil
	default:
		if !resp.HasContent || resp.Content == "" {
			if len(resp.ToolCalls) > 0 {
				return nil, &Error{Kind: ErrUnexpectedToolCall, Detail: resp.ToolCalls[0].Name}
			}
			return nil, &Error{Kind: ErrEmptyResponse, Detail: "no content and no tool call in response"}
		}
		return []byte(resp.Content), nil
	}
}

// AsError extracts a *structured.Error from err.
func AsError(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
