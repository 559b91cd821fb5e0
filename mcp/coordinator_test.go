package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/corenexus/llmfabric/internal/clock"
	"github.com/corenexus/llmfabric/mcp/transport"
)

// fakeCaller is a hand-rolled transport.Caller test double, matching the
// narrow-interface fake style used by the provider adapters' client tests.
type fakeCaller struct {
	tools      []transport.ToolInfo
	listErr    error
	callFn     func(ctx context.Context, req transport.CallRequest) (transport.CallResponse, error)
	cancelled  []string
	closed     bool
}

func (f *fakeCaller) ListTools(ctx context.Context) ([]transport.ToolInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.tools, nil
}

func (f *fakeCaller) CallTool(ctx context.Context, req transport.CallRequest) (transport.CallResponse, error) {
	if f.callFn != nil {
		return f.callFn(ctx, req)
	}
	return transport.CallResponse{Result: []byte(`"ok"`)}, nil
}

func (f *fakeCaller) CancelTool(ctx context.Context, requestID string) {
	f.cancelled = append(f.cancelled, requestID)
}

func (f *fakeCaller) Close() error {
	f.closed = true
	return nil
}

func dialFake(caller *fakeCaller, err error) dialer {
	return func(ctx context.Context) (transport.Caller, error) {
		if err != nil {
			return nil, err
		}
		return caller, nil
	}
}

func TestCoordinator_StartAllAndWait_PartialStartup(t *testing.T) {
	good := &fakeCaller{tools: []transport.ToolInfo{{Name: "t1"}}}

	co := New(Options{
		Dial: func(spec ServerSpec) dialer {
			if spec.ID == "s1" {
				return dialFake(good, nil)
			}
			return dialFake(nil, errors.New("refused"))
		},
	})
	defer co.StopAll(context.Background())

	result := co.StartAllAndWait(context.Background(), []ServerSpec{
		{ID: "s1", Transport: TransportStdio},
		{ID: "s2", Transport: TransportStdio},
	})

	require.Equal(t, []string{"s1"}, result.ConnectedServers)
	require.Len(t, result.FailedServers, 1)
	require.Equal(t, "s2", result.FailedServers[0].ServerID)
	require.Equal(t, "refused", result.FailedServers[0].Message)

	tools := co.AvailableTools()
	require.Len(t, tools, 1)
	require.Equal(t, ToolEntry{ServerID: "s1", Name: "t1"}, tools[0])
}

func TestCoordinator_CallTool_UnknownServer(t *testing.T) {
	co := New(Options{})
	defer co.StopAll(context.Background())

	_, err := co.CallTool(context.Background(), "nope", "t1", nil, 0)
	require.Error(t, err)
	var ce *CoordinatorError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, ErrUnknownServer, ce.Kind)
}

func TestCoordinator_CallTool_NotConnected(t *testing.T) {
	caller := &fakeCaller{tools: []transport.ToolInfo{{Name: "t1"}}}
	co := New(Options{Dial: func(ServerSpec) dialer { return dialFake(caller, nil) }})
	defer co.StopAll(context.Background())

	// Register the connection without connecting it.
	co.ensureConnection(ServerSpec{ID: "s1", Transport: TransportStdio})

	_, err := co.CallTool(context.Background(), "s1", "t1", nil, 0)
	require.Error(t, err)
	var ce *CoordinatorError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, ErrNotConnected, ce.Kind)
}

func TestCoordinator_CallTool_Success(t *testing.T) {
	caller := &fakeCaller{tools: []transport.ToolInfo{{Name: "t1"}}}
	co := New(Options{Dial: func(ServerSpec) dialer { return dialFake(caller, nil) }})
	defer co.StopAll(context.Background())

	co.StartAllAndWait(context.Background(), []ServerSpec{{ID: "s1", Transport: TransportStdio}})

	result, err := co.CallTool(context.Background(), "s1", "t1", json.RawMessage(`{}`), 0)
	require.NoError(t, err)
	require.Equal(t, `"ok"`, result)
}

func TestCoordinator_CallTool_Timeout(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	hang := make(chan struct{})
	caller := &fakeCaller{
		tools: []transport.ToolInfo{{Name: "slow"}},
		callFn: func(ctx context.Context, req transport.CallRequest) (transport.CallResponse, error) {
			select {
			case <-ctx.Done():
				return transport.CallResponse{}, ctx.Err()
			case <-hang:
				return transport.CallResponse{Result: []byte(`"late"`)}, nil
			}
		},
	}
	co := New(Options{Clock: fake, Dial: func(ServerSpec) dialer { return dialFake(caller, nil) }})
	defer close(hang)
	defer co.StopAll(context.Background())

	co.StartAllAndWait(context.Background(), []ServerSpec{{ID: "s1", Transport: TransportStdio}})

	done := make(chan struct{})
	var err error
	go func() {
		_, err = co.CallTool(context.Background(), "s1", "slow", nil, 10*time.Millisecond)
		close(done)
	}()

	// allow the call and its timeout sleep to register, then advance past
	// the 10ms deadline.
	time.Sleep(20 * time.Millisecond)
	fake.Advance(10 * time.Millisecond)
	<-done

	require.Error(t, err)
	var ce *CoordinatorError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, ErrToolTimeout, ce.Kind)
	require.Equal(t, 10*time.Millisecond, ce.Timeout)
	require.Len(t, caller.cancelled, 1)
}

func TestCoordinator_Disconnect_UnknownServer(t *testing.T) {
	co := New(Options{})
	defer co.StopAll(context.Background())
	err := co.Disconnect(context.Background(), "nope")
	require.Error(t, err)
}

func TestCoordinator_Snapshot_ConsistentAcrossCalls(t *testing.T) {
	caller := &fakeCaller{tools: []transport.ToolInfo{{Name: "t1"}}}
	co := New(Options{Dial: func(ServerSpec) dialer { return dialFake(caller, nil) }})
	defer co.StopAll(context.Background())
	co.StartAllAndWait(context.Background(), []ServerSpec{{ID: "s1", Transport: TransportStdio}})

	a := co.Snapshot()
	b := co.Snapshot()
	require.Equal(t, a, b)
	require.Equal(t, StateConnected, a.Servers["s1"].State.Kind)
}

func TestCoordinator_Reconnect_ExponentialBackoff(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	attempts := 0
	co := New(Options{
		Clock:                  fake,
		DefaultReconnectPolicy: ExponentialBackoff(3, 10*time.Millisecond),
		Dial: func(ServerSpec) dialer {
			return func(ctx context.Context) (transport.Caller, error) {
				attempts++
				if attempts < 3 {
					return nil, errors.New("still down")
				}
				return &fakeCaller{tools: []transport.ToolInfo{{Name: "t1"}}}, nil
			}
		},
	})
	defer co.StopAll(context.Background())

	sub := co.Alerts()
	defer sub.Close()

	co.StartAll([]ServerSpec{{ID: "s1", Transport: TransportStdio}})

	// attempt 1 (outside the reconnect loop): StartAll's own Connect call.
	requireAlert(t, sub, AlertConnectionFailed)
	requireAlert(t, sub, AlertReconnecting)
	time.Sleep(20 * time.Millisecond) // let the supervisor goroutine reach its sleep
	fake.Advance(time.Second)

	// attempt 2, run from inside the reconnect loop.
	requireAlert(t, sub, AlertConnectionFailed)
	requireAlert(t, sub, AlertReconnecting)
	time.Sleep(20 * time.Millisecond)
	fake.Advance(time.Second)

	// attempt 3 succeeds.
	requireAlert(t, sub, AlertReconnected)

	require.Equal(t, 3, attempts)
	require.Equal(t, StateConnected, co.Snapshot().Servers["s1"].State.Kind)
}

func requireAlert(t *testing.T, sub *subscription[Alert], want AlertKind) Alert {
	t.Helper()
	select {
	case a, ok := <-sub.C():
		if !ok {
			t.Fatalf("alert stream closed waiting for %v", want)
		}
		require.Equal(t, want, a.Kind)
		return a
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for alert %v", want)
		return Alert{}
	}
}
