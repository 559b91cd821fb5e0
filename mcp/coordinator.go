package mcp

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"goa.design/clue/log"

	"github.com/corenexus/llmfabric/internal/clock"
	"github.com/corenexus/llmfabric/mcp/transport"
)

// Options configures a Coordinator.
type Options struct {
	// Clock backs every sleep the coordinator or its connections perform
	// (reconnect backoff, health-probe ticks, tool-call deadlines). A nil
	// Clock defaults to clock.Real{}.
	Clock clock.Clock
	// DefaultReconnectPolicy applies to any server without a per-server
	// override in ReconnectPolicies. Defaults to Never().
	DefaultReconnectPolicy ReconnectPolicy
	// ReconnectPolicies overrides DefaultReconnectPolicy per server id.
	ReconnectPolicies map[string]ReconnectPolicy
	// HealthCheckInterval, when positive, probes every connected server on
	// that cadence. Zero disables health probing.
	HealthCheckInterval time.Duration
	// StdioOptions/HTTPOptions carry transport-level tuning (protocol
	// version, client identity, handshake timeout) applied to every
	// connection dialed from a ServerSpec of the matching transport kind.
	StdioOptions transport.StdioOptions
	HTTPOptions  transport.HTTPOptions
	// Dial, when set, replaces the built-in stdio/HTTP dialer entirely.
	// Production callers leave it nil; tests inject a fake transport.Caller
	// without spawning a real subprocess or HTTP endpoint.
	Dial func(spec ServerSpec) dialer
}

// Coordinator owns N server connections and exposes a stable public
// surface plus two broadcast streams (events and alerts). It is the sole
// owner of every ServerConnection it creates.
type Coordinator struct {
	opts Options
	clk  clock.Clock

	mu          sync.Mutex
	connections map[string]*ServerConnection
	activeCalls map[string]string // requestID -> serverID

	events *bus[CoordinatorEvent]
	alerts *bus[Alert]

	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a Coordinator. Call StopAll when done to release every
// connection and stop the health-probe and reconnect supervisors.
func New(opts Options) *Coordinator {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	co := &Coordinator{
		opts:        opts,
		clk:         clk,
		connections: make(map[string]*ServerConnection),
		activeCalls: make(map[string]string),
		events:      newBus[CoordinatorEvent](64),
		alerts:      newBus[Alert](64),
		ctx:         ctx,
		cancel:      cancel,
	}
	if opts.HealthCheckInterval > 0 {
		go co.healthProbeLoop(opts.HealthCheckInterval)
	}
	return co
}

// Events returns the coordinator's aggregated per-connection
// state-transition stream.
func (co *Coordinator) Events() *subscription[CoordinatorEvent] { return co.events.Subscribe() }

// Alerts returns the coordinator's coarse-grained alert stream.
func (co *Coordinator) Alerts() *subscription[Alert] { return co.alerts.Subscribe() }

func (co *Coordinator) policyFor(serverID string) ReconnectPolicy {
	if p, ok := co.opts.ReconnectPolicies[serverID]; ok {
		return p
	}
	return co.opts.DefaultReconnectPolicy
}

func (co *Coordinator) dialerFor(spec ServerSpec) dialer {
	if co.opts.Dial != nil {
		return co.opts.Dial(spec)
	}
	return func(ctx context.Context) (transport.Caller, error) {
		switch spec.Transport {
		case TransportHTTP:
			opts := co.opts.HTTPOptions
			opts.Endpoint = spec.URL
			if opts.Headers == nil {
				opts.Headers = spec.Headers
			}
			return transport.NewHTTPCaller(ctx, opts)
		default:
			opts := co.opts.StdioOptions
			opts.Command = spec.Command
			opts.Args = spec.Args
			opts.Env = spec.Env
			return transport.NewStdioCaller(ctx, opts)
		}
	}
}

func (co *Coordinator) ensureConnection(spec ServerSpec) *ServerConnection {
	co.mu.Lock()
	if conn, ok := co.connections[spec.ID]; ok {
		co.mu.Unlock()
		return conn
	}
	conn := newServerConnection(spec, co.dialerFor(spec), co.clk, co.alerts)
	co.connections[spec.ID] = conn
	co.mu.Unlock()
	go co.forwardEvents(conn)
	return conn
}

func (co *Coordinator) forwardEvents(conn *ServerConnection) {
	sub := conn.Events()
	for ev := range sub.C() {
		co.events.Publish(ev)
		if ev.To.Kind == StateFailed {
			go co.superviseReconnect(conn)
		}
	}
}

// StartAll fans out a connection attempt per spec; every connection
// proceeds concurrently and StartAll never blocks on any of them.
func (co *Coordinator) StartAll(specs []ServerSpec) {
	for _, spec := range specs {
		conn := co.ensureConnection(spec)
		go func(c *ServerConnection) { _ = c.Connect(co.ctx) }(conn)
	}
}

// StartAllAndWait is like StartAll but blocks until every connection has
// reached either connected or failed, then reports which did which. The
// coordinator itself never returns an error from this call, even if every
// spec fails; callers that want that treated as fatal check
// len(result.FailedServers) == len(specs) themselves.
func (co *Coordinator) StartAllAndWait(ctx context.Context, specs []ServerSpec) StartResult {
	var wg sync.WaitGroup
	conns := make([]*ServerConnection, len(specs))
	for i, spec := range specs {
		conn := co.ensureConnection(spec)
		conns[i] = conn
		wg.Add(1)
		go func(c *ServerConnection) {
			defer wg.Done()
			_ = c.Connect(ctx)
		}(conn)
	}
	wg.Wait()

	var result StartResult
	for i, spec := range specs {
		st := conns[i].State()
		switch st.Kind {
		case StateConnected:
			result.ConnectedServers = append(result.ConnectedServers, spec.ID)
		case StateFailed:
			result.FailedServers = append(result.FailedServers, FailedServer{ServerID: spec.ID, Message: st.Message})
		}
	}
	return result
}

// superviseReconnect runs ExponentialBackoff's retry loop for one
// connection after it lands in failed. It is a no-op under Never, and
// refuses to re-enter if a reconnect loop for this connection is already
// running.
func (co *Coordinator) superviseReconnect(conn *ServerConnection) {
	policy := co.policyFor(conn.spec.ID)
	if policy.Kind == ReconnectNever {
		return
	}
	if !conn.tryBeginReconnect() {
		return
	}
	defer conn.endReconnect()

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if conn.State().Kind != StateFailed {
			return
		}
		delay := policy.delay(attempt)
		next := co.clk.Now().Add(delay)
		conn.MarkReconnecting(attempt, policy.MaxAttempts, &next)
		co.alerts.Publish(Alert{Kind: AlertReconnecting, ServerID: conn.spec.ID, Attempt: attempt, NextRetryAt: &next})

		if err := co.clk.Sleep(co.ctx, delay); err != nil {
			return
		}
		if err := conn.Connect(co.ctx); err == nil {
			co.alerts.Publish(Alert{Kind: AlertReconnected, ServerID: conn.spec.ID})
			return
		}
	}
	co.alerts.Publish(Alert{Kind: AlertReconnectGaveUp, ServerID: conn.spec.ID})
}

// CallTool resolves serverID to a connection, requires it to be connected,
// and issues the call with an optional deadline (zero means no deadline).
func (co *Coordinator) CallTool(ctx context.Context, serverID, name string, args json.RawMessage, timeout time.Duration) (string, error) {
	co.mu.Lock()
	conn, ok := co.connections[serverID]
	co.mu.Unlock()
	if !ok {
		return "", unknownServerErr(serverID)
	}

	requestID := uuid.NewString()
	co.mu.Lock()
	co.activeCalls[requestID] = serverID
	co.mu.Unlock()
	defer func() {
		co.mu.Lock()
		delete(co.activeCalls, requestID)
		co.mu.Unlock()
	}()

	result, err := conn.CallTool(ctx, requestID, name, args, timeout)
	if err != nil {
		log.Print(ctx, log.KV{K: "component", V: "mcp-coordinator"}, log.KV{K: "event", V: "tool_call_failed"}, log.KV{K: "server", V: serverID}, log.KV{K: "tool", V: name}, log.KV{K: "error", V: err.Error()})
	}
	return result, err
}

// CancelToolCall best-effort cancels the in-flight call identified by
// requestID, looking up which connection currently owns it.
func (co *Coordinator) CancelToolCall(ctx context.Context, requestID string) {
	co.mu.Lock()
	serverID, ok := co.activeCalls[requestID]
	conn := co.connections[serverID]
	co.mu.Unlock()
	if !ok || conn == nil {
		return
	}
	conn.CancelToolCall(ctx, requestID)
}

// Disconnect tears a single server's connection down cooperatively.
func (co *Coordinator) Disconnect(ctx context.Context, serverID string) error {
	co.mu.Lock()
	conn, ok := co.connections[serverID]
	co.mu.Unlock()
	if !ok {
		return unknownServerErr(serverID)
	}
	return conn.Disconnect(ctx)
}

// StopAll cancels all in-flight connection tasks, disconnects every
// connection, and awaits their terminal state before returning. It also
// stops the health-probe and reconnect supervisors.
func (co *Coordinator) StopAll(ctx context.Context) error {
	co.cancel()

	co.mu.Lock()
	conns := make([]*ServerConnection, 0, len(co.connections))
	for _, c := range co.connections {
		conns = append(conns, c)
	}
	co.mu.Unlock()

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(c *ServerConnection) {
			defer wg.Done()
			_ = c.Disconnect(ctx)
		}(conn)
	}
	wg.Wait()

	co.events.Close()
	co.alerts.Close()
	return nil
}

// AvailableTools returns every tool from every connected server, flattened
// for ToolFilter evaluation.
func (co *Coordinator) AvailableTools() []ToolEntry {
	co.mu.Lock()
	conns := make([]*ServerConnection, 0, len(co.connections))
	for _, c := range co.connections {
		conns = append(conns, c)
	}
	co.mu.Unlock()

	var entries []ToolEntry
	for _, conn := range conns {
		st := conn.State()
		if st.Kind != StateConnected {
			continue
		}
		for _, t := range st.Tools {
			entries = append(entries, ToolEntry{ServerID: t.ServerID, Name: t.Name, Description: t.Description, Definition: t.InputSchema})
		}
	}
	return entries
}

// Snapshot returns a consistent point-in-time read-only view of every
// server's state and tool catalogue.
func (co *Coordinator) Snapshot() CoordinatorSnapshot {
	co.mu.Lock()
	defer co.mu.Unlock()
	// Hold every connection's lock at once so no state changes between
	// reading one server and the next.
	for _, c := range co.connections {
		c.mu.Lock()
	}
	servers := make(map[string]ServerSnapshot, len(co.connections))
	for id, c := range co.connections {
		st := c.state
		servers[id] = ServerSnapshot{ID: id, State: st, Tools: st.Tools}
		c.mu.Unlock()
	}
	return CoordinatorSnapshot{Servers: servers}
}

func (co *Coordinator) healthProbeLoop(interval time.Duration) {
	for {
		if err := co.clk.Sleep(co.ctx, interval); err != nil {
			return
		}
		co.mu.Lock()
		conns := make([]*ServerConnection, 0, len(co.connections))
		for _, c := range co.connections {
			conns = append(conns, c)
		}
		co.mu.Unlock()
		for _, conn := range conns {
			if conn.State().Kind == StateConnected {
				conn.Probe(co.ctx)
			}
		}
	}
}
