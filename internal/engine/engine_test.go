package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/storacha/mcp-storage-go/internal/jsonrpc"
	"github.com/storacha/mcp-storage-go/mcp"
	"github.com/storacha/mcp-storage-go/mcpservice"
	"github.com/storacha/mcp-storage-go/sessions"
)

type captureStream struct {
	mu     sync.Mutex
	frames []jsonrpc.Message
}

func (s *captureStream) WriteFrame(msg jsonrpc.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, msg)
	return nil
}

func (s *captureStream) Close() error { return nil }

func (s *captureStream) Frames() []jsonrpc.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]jsonrpc.Message, len(s.frames))
	copy(out, s.frames)
	return out
}

type echoArgs struct {
	Text string `json:"text"`
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	tools := mcpservice.NewToolsContainer(
		mcpservice.NewTool("echo", func(ctx context.Context, args echoArgs) (*mcp.CallToolResult, error) {
			return mcpservice.TextResult(args.Text), nil
		}),
		mcpservice.NewTool("boom", func(ctx context.Context, args echoArgs) (*mcp.CallToolResult, error) {
			return nil, errors.New("kaboom")
		}),
	)
	eng := New(mcp.ImplementationInfo{Name: "test-server", Version: "0.0.1"}, tools, opts...)
	eng.Start(t.Context())
	return eng
}

func openActiveSession(t *testing.T, eng *Engine) (*sessions.Session, *captureStream) {
	t.Helper()
	stream := &captureStream{}
	sess, err := eng.Open(stream)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := eng.Bind(t.Context(), sess); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if !sess.Activate() {
		t.Fatal("Activate() = false")
	}
	return sess, stream
}

func deliverAndDecode(t *testing.T, eng *Engine, sess *sessions.Session, stream *captureStream, raw string) *jsonrpc.Response {
	t.Helper()
	before := len(stream.Frames())
	if err := eng.Deliver(t.Context(), sess, jsonrpc.Message(raw)); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	frames := stream.Frames()
	if len(frames) != before+1 {
		t.Fatalf("Deliver() wrote %d frames, want 1", len(frames)-before)
	}
	var res jsonrpc.Response
	if err := json.Unmarshal(frames[len(frames)-1], &res); err != nil {
		t.Fatalf("failed to decode response frame: %v", err)
	}
	return &res
}

func TestOpenBeforeStart(t *testing.T) {
	tools := mcpservice.NewToolsContainer()
	eng := New(mcp.ImplementationInfo{Name: "test-server", Version: "0.0.1"}, tools)

	if _, err := eng.Open(&captureStream{}); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Open() error = %v, want ErrNotReady", err)
	}
}

func TestOpenAllocatesUniqueIDs(t *testing.T) {
	eng := newTestEngine(t)
	a, err := eng.Open(&captureStream{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	b, err := eng.Open(&captureStream{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if a.ID() == "" || a.ID() == b.ID() {
		t.Fatalf("Open() ids = %q, %q, want distinct non-empty", a.ID(), b.ID())
	}
	if a.State() != sessions.StatePendingBind {
		t.Fatalf("new session State() = %v, want pending-bind", a.State())
	}
}

func TestBindGateRejection(t *testing.T) {
	gateErr := errors.New("no capacity")
	eng := newTestEngine(t, WithSessionGate(func(ctx context.Context, sess *sessions.Session) error {
		return gateErr
	}))

	sess, err := eng.Open(&captureStream{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := eng.Bind(t.Context(), sess); !errors.Is(err, gateErr) {
		t.Fatalf("Bind() error = %v, want gate error", err)
	}
}

func TestDeliverInitialize(t *testing.T) {
	eng := newTestEngine(t)
	sess, stream := openActiveSession(t, eng)

	res := deliverAndDecode(t, eng, sess, stream,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","clientInfo":{"name":"test-client","version":"1.0.0"}}}`)

	if res.Error != nil {
		t.Fatalf("initialize returned error: %+v", res.Error)
	}
	var result mcp.InitializeResult
	if err := json.Unmarshal(res.Result, &result); err != nil {
		t.Fatalf("failed to decode initialize result: %v", err)
	}
	if result.ServerInfo.Name != "test-server" {
		t.Fatalf("ServerInfo.Name = %q, want test-server", result.ServerInfo.Name)
	}
	if result.Capabilities.Tools == nil {
		t.Fatal("initialize result advertises no tools capability")
	}
	if result.ProtocolVersion != mcp.LatestProtocolVersion {
		t.Fatalf("ProtocolVersion = %q, want %q", result.ProtocolVersion, mcp.LatestProtocolVersion)
	}
}

func TestDeliverPing(t *testing.T) {
	eng := newTestEngine(t)
	sess, stream := openActiveSession(t, eng)

	res := deliverAndDecode(t, eng, sess, stream, `{"jsonrpc":"2.0","id":"p1","method":"ping"}`)
	if res.Error != nil {
		t.Fatalf("ping returned error: %+v", res.Error)
	}
	if res.ID.String() != "p1" {
		t.Fatalf("response id = %q, want p1", res.ID.String())
	}
}

func TestDeliverToolsList(t *testing.T) {
	eng := newTestEngine(t)
	sess, stream := openActiveSession(t, eng)

	res := deliverAndDecode(t, eng, sess, stream, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	if res.Error != nil {
		t.Fatalf("tools/list returned error: %+v", res.Error)
	}
	var result mcp.ListToolsResult
	if err := json.Unmarshal(res.Result, &result); err != nil {
		t.Fatalf("failed to decode tools/list result: %v", err)
	}
	if len(result.Tools) != 2 {
		t.Fatalf("tools/list returned %d tools, want 2", len(result.Tools))
	}
}

func TestDeliverToolCall(t *testing.T) {
	eng := newTestEngine(t)
	sess, stream := openActiveSession(t, eng)

	res := deliverAndDecode(t, eng, sess, stream,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo","arguments":{"text":"hi"}}}`)
	if res.Error != nil {
		t.Fatalf("tools/call returned error: %+v", res.Error)
	}
	var result mcp.CallToolResult
	if err := json.Unmarshal(res.Result, &result); err != nil {
		t.Fatalf("failed to decode tools/call result: %v", err)
	}
	if result.IsError {
		t.Fatal("tools/call result flagged as error")
	}
	if len(result.Content) != 1 || result.Content[0].Text != "hi" {
		t.Fatalf("tools/call content = %+v, want single text block 'hi'", result.Content)
	}
}

func TestDeliverUnknownTool(t *testing.T) {
	eng := newTestEngine(t)
	sess, stream := openActiveSession(t, eng)

	res := deliverAndDecode(t, eng, sess, stream,
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"nope","arguments":{}}}`)
	if res.Error == nil {
		t.Fatal("tools/call for unknown tool returned no error")
	}
	if res.Error.Code != jsonrpc.ErrorCodeMethodNotFound {
		t.Fatalf("error code = %d, want %d", res.Error.Code, jsonrpc.ErrorCodeMethodNotFound)
	}
}

func TestDeliverToolFailure(t *testing.T) {
	eng := newTestEngine(t)
	sess, stream := openActiveSession(t, eng)

	res := deliverAndDecode(t, eng, sess, stream,
		`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"boom","arguments":{}}}`)
	if res.Error == nil {
		t.Fatal("failing tool returned no protocol error")
	}
	if res.Error.Code != jsonrpc.ErrorCodeInternalError {
		t.Fatalf("error code = %d, want %d", res.Error.Code, jsonrpc.ErrorCodeInternalError)
	}
}

func TestDeliverUnknownMethod(t *testing.T) {
	eng := newTestEngine(t)
	sess, stream := openActiveSession(t, eng)

	res := deliverAndDecode(t, eng, sess, stream, `{"jsonrpc":"2.0","id":6,"method":"resources/list"}`)
	if res.Error == nil || res.Error.Code != jsonrpc.ErrorCodeMethodNotFound {
		t.Fatalf("error = %+v, want method-not-found", res.Error)
	}
}

func TestDeliverNotificationWritesNothing(t *testing.T) {
	eng := newTestEngine(t)
	sess, stream := openActiveSession(t, eng)

	if err := eng.Deliver(t.Context(), sess, jsonrpc.Message(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if got := len(stream.Frames()); got != 0 {
		t.Fatalf("notification produced %d frames, want 0", got)
	}
}

func TestDeliverDropsClientResponses(t *testing.T) {
	eng := newTestEngine(t)
	sess, stream := openActiveSession(t, eng)

	if err := eng.Deliver(t.Context(), sess, jsonrpc.Message(`{"jsonrpc":"2.0","id":9,"result":{}}`)); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if got := len(stream.Frames()); got != 0 {
		t.Fatalf("client response produced %d frames, want 0", got)
	}
}

func TestDeliverInvalidPayload(t *testing.T) {
	eng := newTestEngine(t)
	sess, _ := openActiveSession(t, eng)

	if err := eng.Deliver(t.Context(), sess, jsonrpc.Message(`{not json`)); err == nil {
		t.Fatal("Deliver() accepted invalid JSON")
	}
}

func TestConcurrentToolCalls(t *testing.T) {
	eng := newTestEngine(t)
	sess, _ := openActiveSession(t, eng)

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func(i int) {
			raw := fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":"ping"}`, i)
			done <- eng.Deliver(context.Background(), sess, jsonrpc.Message(raw))
		}(i)
	}
	for i := 0; i < 8; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent Deliver() error = %v", err)
		}
	}
}
