package control

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shadow-ai/src/bus"
	"shadow-ai/src/messages"
)

// testPorts sits away from the default range so a running resident does
// not interfere.
var testPorts = PortRange{Start: 49700, End: 49720}

func startServer(t *testing.T, h Handler, events Events) (*Server, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	srv := NewServer(testPorts, h, events)
	if err := srv.Start(ctx); err != nil {
		t.Skipf("loopback TCP unavailable in this environment: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })
	return srv, ctx
}

func TestParseRequest(t *testing.T) {
	req, err := ParseRequest("DELETE {\"path\":\"/tmp/a.png\"}\n")
	require.NoError(t, err)
	assert.Equal(t, CmdDelete, req.Command)

	var args DeleteArgs
	require.NoError(t, req.Bind(&args))
	assert.Equal(t, "/tmp/a.png", args.Path)

	req, err = ParseRequest("process\n")
	require.NoError(t, err)
	assert.Equal(t, CmdProcess, req.Command)
	assert.Empty(t, req.Args)

	_, err = ParseRequest("   \n")
	assert.ErrorIs(t, err, ErrEmptyRequest)

	_, err = ParseRequest("delete {not json")
	assert.Error(t, err)
}

func TestFormatRequestRoundTrip(t *testing.T) {
	line, err := FormatRequest(CmdSetOpacity, OpacityArgs{Opacity: 0.5})
	require.NoError(t, err)
	req, err := ParseRequest(line)
	require.NoError(t, err)

	var args OpacityArgs
	require.NoError(t, req.Bind(&args))
	assert.Equal(t, 0.5, args.Opacity)
}

func TestPortRangeNormalized(t *testing.T) {
	assert.Equal(t, PortRange{Start: 1024, End: 2000}, PortRange{Start: 10, End: 2000}.normalized())
	assert.Equal(t, PortRange{Start: 5000, End: 6000}, PortRange{Start: 6000, End: 5000}.normalized())
	assert.Equal(t, PortRange{Start: 60000, End: 65535}, PortRange{Start: 60000, End: 70000}.normalized())
}

func TestServerClientRoundTrip(t *testing.T) {
	h := HandlerFunc(func(_ context.Context, req Request) (any, error) {
		switch req.Command {
		case CmdToggleWindow:
			return WindowResult{Visible: false, Opacity: 0.8}, nil
		case CmdDelete:
			var args DeleteArgs
			if err := req.Bind(&args); err != nil {
				return nil, err
			}
			return StatusResult{Status: "deleted " + args.Path}, nil
		default:
			return nil, errors.New("unknown command")
		}
	})
	srv, ctx := startServer(t, h, nil)

	port, ok := DetectResidentPort(ctx, testPorts)
	require.True(t, ok)
	assert.Equal(t, srv.Port(), port)

	client, err := Connect(ctx, testPorts)
	require.NoError(t, err)

	var win WindowResult
	require.NoError(t, client.Call(ctx, CmdToggleWindow, nil, &win))
	assert.Equal(t, WindowResult{Visible: false, Opacity: 0.8}, win)

	var st StatusResult
	require.NoError(t, client.Call(ctx, CmdDelete, DeleteArgs{Path: "a.png"}, &st))
	assert.Equal(t, "deleted a.png", st.Status)

	err = client.Call(ctx, "bogus", nil, nil)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "unknown command", remote.Message)
}

func TestSecondServerTakesNextPort(t *testing.T) {
	h := HandlerFunc(func(context.Context, Request) (any, error) { return nil, nil })
	first, ctx := startServer(t, h, nil)

	second := NewServer(testPorts, h, nil)
	require.NoError(t, second.Start(ctx))
	defer second.Close()
	assert.Greater(t, second.Port(), first.Port())
}

func TestDetectWithoutResident(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, ok := DetectResidentPort(ctx, PortRange{Start: 49790, End: 49791})
	assert.False(t, ok)

	_, err := Connect(ctx, PortRange{Start: 49790, End: 49791})
	assert.ErrorIs(t, err, ErrNoResident)
}

func TestSubscribeStreamsEvents(t *testing.T) {
	b := bus.New()
	defer b.Shutdown()

	h := HandlerFunc(func(_ context.Context, req Request) (any, error) {
		if req.Command == CmdProcess {
			b.Publish(messages.ProcessingStarted{})
			b.Publish(messages.ProcessingStatus{Message: "working", Progress: 20})
			b.Publish(messages.SolutionError{Message: "Failed to process screenshot"})
		}
		return StatusResult{Status: "started"}, nil
	})
	srv, ctx := startServer(t, h, b)
	client := &Client{Port: srv.Port(), Timeout: time.Second}

	ev, err := client.CallAndWait(ctx, CmdProcess, nil, func(ev messages.Event) bool {
		return ev.Type() == messages.TypeSolutionError
	})
	require.NoError(t, err)
	se, ok := ev.(*messages.SolutionError)
	require.True(t, ok)
	assert.Equal(t, "Failed to process screenshot", se.Message)

	// the stream is torn down once the client stops reading
	require.Eventually(t, func() bool { return len(b.Subscribers()) == 0 }, 2*time.Second, 20*time.Millisecond)
}
