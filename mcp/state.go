// Package mcp implements the MCP coordinator: a supervised pool of tool
// server connections, each with its own lifecycle state machine, health
// probe, automatic reconnection policy, per-call timeout, cancellation
// propagation, and an event/alert bus aggregating notifications across all
// servers.
package mcp

import (
	"time"

	"github.com/corenexus/llmfabric/jsonvalue"
)

// TransportKind discriminates a ServerSpec's transport.
type TransportKind int

const (
	TransportStdio TransportKind = iota
	TransportHTTP
)

// ServerSpec describes one MCP server to connect to, discriminated by
// transport: stdio(Command,Args,Env) or http(URL,Headers). ID is unique
// within a Coordinator instance and is a process-lifetime key.
type ServerSpec struct {
	Transport TransportKind
	ID        string
	DisplayName string

	// stdio
	Command string
	Args    []string
	Env     []string

	// http
	URL     string
	Headers map[string]string
}

// StateKind discriminates ConnectionState's variants.
type StateKind int

const (
	StateIdle StateKind = iota
	StateConnecting
	StateConnected
	StateFailed
	StateReconnecting
	StateDisconnected
)

func (k StateKind) String() string {
	switch k {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// ConnectionState is a tagged variant over a ServerConnection's lifecycle:
// idle | connecting | connected{tools} | failed{message,retryCount} |
// reconnecting{attempt,maxAttempts,nextRetryAt} | disconnected.
type ConnectionState struct {
	Kind StateKind

	// connected
	Tools []ToolInfo

	// failed
	Message    string
	RetryCount int

	// reconnecting
	Attempt     int
	MaxAttempts int
	NextRetryAt *time.Time
}

func idleState() ConnectionState       { return ConnectionState{Kind: StateIdle} }
func connectingState() ConnectionState { return ConnectionState{Kind: StateConnecting} }
func connectedState(tools []ToolInfo) ConnectionState {
	return ConnectionState{Kind: StateConnected, Tools: tools}
}
func failedState(msg string, retryCount int) ConnectionState {
	return ConnectionState{Kind: StateFailed, Message: msg, RetryCount: retryCount}
}
func reconnectingState(attempt, max int, next *time.Time) ConnectionState {
	return ConnectionState{Kind: StateReconnecting, Attempt: attempt, MaxAttempts: max, NextRetryAt: next}
}
func disconnectedState() ConnectionState { return ConnectionState{Kind: StateDisconnected} }

// ToolInfo describes one tool a server advertises, augmented with the
// qualified identifier "<serverID>.<name>" used by ToolFilter.
type ToolInfo struct {
	ServerID    string
	Name        string
	Description string
	InputSchema jsonvalue.Value
}

// QualifiedID returns the "<serverID>.<name>" identifier ToolFilter
// matches against.
func (t ToolInfo) QualifiedID() string { return t.ServerID + "." + t.Name }

// ToolEntry is the flattened shape availableTools() and ToolFilter operate
// over: one entry per tool, across every connected server.
type ToolEntry struct {
	ServerID    string
	Name        string
	Description string
	Definition  jsonvalue.Value
}

func (t ToolEntry) QualifiedID() string { return t.ServerID + "." + t.Name }

// ServerSnapshot is one server's state as seen in a CoordinatorSnapshot.
type ServerSnapshot struct {
	ID    string
	State ConnectionState
	Tools []ToolInfo
}

// CoordinatorSnapshot is an immutable, point-in-time read-only view of
// every server's state, suitable for UI rendering.
type CoordinatorSnapshot struct {
	Servers map[string]ServerSnapshot
}

// StartResult is returned by StartAllAndWait.
type StartResult struct {
	ConnectedServers []string
	FailedServers    []FailedServer
}

// FailedServer names a server that failed to connect during StartAll.
type FailedServer struct {
	ServerID string
	Message  string
}

// CoordinatorEvent is the fine-grained per-connection event stream
// aggregated across all servers.
type CoordinatorEvent struct {
	ServerID string
	From     ConnectionState
	To       ConnectionState
}

// AlertKind discriminates the broadcast Alert stream, which is coarser and
// separate from CoordinatorEvent.
type AlertKind int

const (
	AlertConnectionFailed AlertKind = iota
	AlertConnectionLost
	AlertReconnecting
	AlertReconnected
	AlertReconnectGaveUp
	AlertToolTimedOut
	AlertServerUnhealthy
)

func (k AlertKind) String() string {
	switch k {
	case AlertConnectionFailed:
		return "connectionFailed"
	case AlertConnectionLost:
		return "connectionLost"
	case AlertReconnecting:
		return "reconnecting"
	case AlertReconnected:
		return "reconnected"
	case AlertReconnectGaveUp:
		return "reconnectGaveUp"
	case AlertToolTimedOut:
		return "toolTimedOut"
	case AlertServerUnhealthy:
		return "serverUnhealthy"
	default:
		return "unknown"
	}
}

// Alert is one entry on the coordinator's alert bus.
type Alert struct {
	Kind        AlertKind
	ServerID    string
	Message     string
	Attempt     int
	NextRetryAt *time.Time
	ToolName    string
	Timeout     time.Duration
}
