package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/corenexus/llmfabric/internal/clock"
	"github.com/corenexus/llmfabric/jsonvalue"
	"github.com/corenexus/llmfabric/mcp/transport"
)

// dialer constructs a transport.Caller for one connection attempt. The
// coordinator builds one from a ServerSpec; tests inject a fake.
type dialer func(ctx context.Context) (transport.Caller, error)

// ServerConnection is one supervised lifecycle instance bound to one
// ServerSpec. All mutating operations are serialised through mu; a
// ServerConnection is exclusively owned by its Coordinator.
type ServerConnection struct {
	spec  ServerSpec
	dial  dialer
	clk   clock.Clock
	alert *bus[Alert]

	mu         sync.Mutex
	state      ConnectionState
	caller     transport.Caller
	events     *bus[CoordinatorEvent]
	reentering bool
}

func newServerConnection(spec ServerSpec, dial dialer, clk clock.Clock, alerts *bus[Alert]) *ServerConnection {
	return &ServerConnection{
		spec:   spec,
		dial:   dial,
		clk:    clk,
		alert:  alerts,
		state:  idleState(),
		events: newBus[CoordinatorEvent](16),
	}
}

// State reports the connection's current lifecycle state.
func (c *ServerConnection) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Events returns the connection's per-connection state-transition stream.
func (c *ServerConnection) Events() *subscription[CoordinatorEvent] {
	return c.events.Subscribe()
}

func (c *ServerConnection) setState(next ConnectionState) {
	c.mu.Lock()
	prev := c.state
	c.state = next
	c.mu.Unlock()
	c.events.Publish(CoordinatorEvent{ServerID: c.spec.ID, From: prev, To: next})
}

// Connect drives the state machine from idle (or disconnected, or failed)
// to connected or failed. Idempotent: a connection already connecting or
// connected is left alone.
func (c *ServerConnection) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state.Kind {
	case StateConnecting, StateConnected:
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.setState(connectingState())

	caller, err := c.dial(ctx)
	if err != nil {
		c.setState(failedState(err.Error(), 0))
		c.alert.Publish(Alert{Kind: AlertConnectionFailed, ServerID: c.spec.ID, Message: err.Error()})
		return &CoordinatorError{Kind: ErrConnectionFailed, ServerID: c.spec.ID, Detail: err.Error(), Cause: err}
	}

	tools, err := caller.ListTools(ctx)
	if err != nil {
		_ = caller.Close()
		c.setState(failedState(err.Error(), 0))
		c.alert.Publish(Alert{Kind: AlertConnectionFailed, ServerID: c.spec.ID, Message: err.Error()})
		return &CoordinatorError{Kind: ErrConnectionFailed, ServerID: c.spec.ID, Detail: err.Error(), Cause: err}
	}

	c.mu.Lock()
	c.caller = caller
	c.mu.Unlock()

	infos := make([]ToolInfo, 0, len(tools))
	for _, t := range tools {
		infos = append(infos, toolInfoFrom(c.spec.ID, t))
	}
	c.setState(connectedState(infos))
	return nil
}

// Disconnect cooperatively tears the connection down and transitions it to
// disconnected, terminal until a new Connect call.
func (c *ServerConnection) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	caller := c.caller
	c.caller = nil
	c.mu.Unlock()

	if caller != nil {
		_ = caller.Close()
	}
	c.setState(disconnectedState())
	return nil
}

// MarkReconnecting notifies the connection of its current retry schedule,
// transitioning failed->reconnecting.
func (c *ServerConnection) MarkReconnecting(attempt, max int, nextRetryAt *time.Time) {
	c.setState(reconnectingState(attempt, max, nextRetryAt))
}

// tryBeginReconnect claims the right to run this connection's reconnect
// supervisor loop, refusing a second concurrent claim.
func (c *ServerConnection) tryBeginReconnect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reentering {
		return false
	}
	c.reentering = true
	return true
}

// endReconnect releases the claim taken by tryBeginReconnect.
func (c *ServerConnection) endReconnect() {
	c.mu.Lock()
	c.reentering = false
	c.mu.Unlock()
}

// MarkFailed transitions connected->failed, incrementing the retry count
// from the prior failed state if any (0 otherwise), per §4.8.
func (c *ServerConnection) MarkFailed(msg string) {
	c.mu.Lock()
	prior := 0
	if c.state.Kind == StateFailed {
		prior = c.state.RetryCount
	}
	c.mu.Unlock()
	c.setState(failedState(msg, prior+1))
}

type callOutcome struct {
	resp transport.CallResponse
	err  error
}

// CallTool resolves the connection, which must be connected, and issues a
// tool invocation with an optional deadline. The deadline races the call
// through c.clk rather than a real context timeout, so a test-driven Clock
// can make the race deterministic (§8 scenario 6). On deadline expiry it
// requests cancellation and returns toolTimeout.
func (c *ServerConnection) CallTool(ctx context.Context, requestID, name string, args json.RawMessage, timeout time.Duration) (string, error) {
	c.mu.Lock()
	state := c.state
	caller := c.caller
	c.mu.Unlock()

	if state.Kind != StateConnected {
		return "", notConnectedErr(c.spec.ID)
	}

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	resultCh := make(chan callOutcome, 1)
	go func() {
		resp, err := caller.CallTool(callCtx, transport.CallRequest{Tool: name, Payload: args, RequestID: requestID})
		resultCh <- callOutcome{resp, err}
	}()

	var timeoutCh chan error
	if timeout > 0 {
		timeoutCh = make(chan error, 1)
		go func() { timeoutCh <- c.clk.Sleep(callCtx, timeout) }()
	}

	select {
	case out := <-resultCh:
		if out.err != nil {
			if ctx.Err() != nil {
				return "", &Cancelled{ServerID: c.spec.ID, Detail: fmt.Sprintf("tool %q cancelled", name)}
			}
			c.MarkFailed(out.err.Error())
			return "", &CoordinatorError{Kind: ErrToolReturnedError, ServerID: c.spec.ID, ToolName: name, Detail: out.err.Error(), Cause: out.err}
		}
		if len(out.resp.Structured) > 0 {
			return string(out.resp.Structured), nil
		}
		return string(out.resp.Result), nil
	case <-ctx.Done():
		return "", &Cancelled{ServerID: c.spec.ID, Detail: fmt.Sprintf("tool %q cancelled", name)}
	case err := <-timeoutCh:
		if err != nil {
			return "", &Cancelled{ServerID: c.spec.ID, Detail: fmt.Sprintf("tool %q cancelled", name)}
		}
		cancel()
		caller.CancelTool(ctx, requestID)
		c.alert.Publish(Alert{Kind: AlertToolTimedOut, ServerID: c.spec.ID, ToolName: name, Timeout: timeout})
		return "", toolTimeoutErr(c.spec.ID, name, timeout)
	}
}

// CancelToolCall best-effort cancels an in-flight call on this connection.
func (c *ServerConnection) CancelToolCall(ctx context.Context, requestID string) {
	c.mu.Lock()
	caller := c.caller
	c.mu.Unlock()
	if caller != nil {
		caller.CancelTool(ctx, requestID)
	}
}

// Probe issues a cheap no-op (tools/list) against a connected server,
// transitioning to failed and firing serverUnhealthy on failure.
func (c *ServerConnection) Probe(ctx context.Context) bool {
	c.mu.Lock()
	caller := c.caller
	connected := c.state.Kind == StateConnected
	c.mu.Unlock()
	if !connected || caller == nil {
		return true
	}
	if _, err := caller.ListTools(ctx); err != nil {
		c.MarkFailed(err.Error())
		c.alert.Publish(Alert{Kind: AlertServerUnhealthy, ServerID: c.spec.ID, Message: err.Error()})
		return false
	}
	return true
}

func toolInfoFrom(serverID string, t transport.ToolInfo) ToolInfo {
	info := ToolInfo{ServerID: serverID, Name: t.Name, Description: t.Description}
	if jv, ok := t.InputSchema.(jsonvalue.Value); ok {
		info.InputSchema = jv
	}
	return info
}
