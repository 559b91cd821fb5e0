package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ToolResultKind discriminates the outcome MCPToolProxy.Call reports to an
// agent layer, distinct from the lower-level error a Coordinator call
// returns: a proxy never panics or propagates a Go error for an ordinary
// tool failure, since the agent loop consuming it expects a result value
// it can feed back to the model.
type ToolResultKind int

const (
	ToolResultSuccess ToolResultKind = iota
	ToolResultRetry
	ToolResultFailure
	ToolResultDeferred
)

// ToolResult is the outcome of one MCPToolProxy call.
type ToolResult struct {
	Kind  ToolResultKind
	Body  string // success / retry
	Err   error  // failure
}

func successResult(body string) ToolResult { return ToolResult{Kind: ToolResultSuccess, Body: body} }
func retryResult(msg string) ToolResult    { return ToolResult{Kind: ToolResultRetry, Body: msg} }
func failureResult(err error) ToolResult   { return ToolResult{Kind: ToolResultFailure, Err: err} }

// MCPToolProxy is a thin, in-process callable for one remote tool. It
// holds the server id and a narrow handle to the coordinator (an interface
// with only CallTool). The handle is an ordinary reference, not a weak
// one: a live proxy keeps its coordinator reachable. A proxy built with a
// nil coordinator fails every call with unknownServer.
type MCPToolProxy struct {
	serverID string
	toolName string
	timeout  time.Duration
	handle   coordinatorHandle
}

// coordinatorHandle is the proxy's narrow view of its coordinator.
// Implemented by *Coordinator.
type coordinatorHandle interface {
	CallTool(ctx context.Context, serverID, name string, args json.RawMessage, timeout time.Duration) (string, error)
}

// NewMCPToolProxy constructs a proxy for one tool on one server, routing
// every call back through co.
func NewMCPToolProxy(co *Coordinator, serverID, toolName string, timeout time.Duration) *MCPToolProxy {
	p := &MCPToolProxy{serverID: serverID, toolName: toolName, timeout: timeout}
	if co != nil {
		p.handle = co
	}
	return p
}

// Call accepts a JSON-string argument payload and returns a ToolResult
// mapping the coordinator's error taxonomy onto the four outcomes an agent
// loop understands: a timed-out call is a Retry (the model should try
// again later), a connectivity or transport failure is a Failure, and
// anything else that actually returned is a Success.
func (p *MCPToolProxy) Call(ctx context.Context, argumentsJSON string) ToolResult {
	if p.handle == nil {
		return failureResult(unknownServerErr(p.serverID))
	}
	body, err := p.handle.CallTool(ctx, p.serverID, p.toolName, json.RawMessage(argumentsJSON), p.timeout)
	if err != nil {
		var ce *CoordinatorError
		if errors.As(err, &ce) {
			switch ce.Kind {
			case ErrToolTimeout:
				return retryResult(fmt.Sprintf("tool %q on server %q timed out", p.toolName, p.serverID))
			case ErrNotConnected, ErrUnknownServer:
				return failureResult(err)
			}
		}
		return failureResult(err)
	}
	return successResult(body)
}

// CallWithRetry wraps Call in a small retry loop, parameterised by
// maxRetries, that retries only on ToolResultRetry outcomes.
func (p *MCPToolProxy) CallWithRetry(ctx context.Context, argumentsJSON string, maxRetries int) ToolResult {
	var last ToolResult
	for attempt := 0; attempt <= maxRetries; attempt++ {
		last = p.Call(ctx, argumentsJSON)
		if last.Kind != ToolResultRetry {
			return last
		}
	}
	return last
}
