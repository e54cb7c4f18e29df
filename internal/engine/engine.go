// Package engine implements the processing engine behind the transports: it
// owns session id generation, binds push streams to live processing contexts,
// and interprets the JSON-RPC messages delivered into a session. Replies are
// framed onto the session's push stream; the transports never see message
// contents beyond routing fields.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/storacha/mcp-storage-go/internal/jsonrpc"
	"github.com/storacha/mcp-storage-go/internal/logctx"
	"github.com/storacha/mcp-storage-go/mcp"
	"github.com/storacha/mcp-storage-go/mcpservice"
	"github.com/storacha/mcp-storage-go/sessions"
)

// ErrNotReady is returned for any session work attempted before Start.
var ErrNotReady = errors.New("engine not ready")

// SessionGate is invoked during Bind, before a session becomes deliverable.
// Returning an error makes the bind fail terminally for that connection
// attempt; the client must reconnect to obtain a new session.
type SessionGate func(ctx context.Context, sess *sessions.Session) error

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets the slog logger. Logs are discarded when not provided.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithInstructions sets the instructions string returned from initialize.
func WithInstructions(s string) Option {
	return func(e *Engine) { e.instructions = s }
}

// WithSessionGate installs a bind-time gate (capacity limits, maintenance
// windows, tests).
func WithSessionGate(gate SessionGate) Option {
	return func(e *Engine) { e.gate = gate }
}

// Engine dispatches delivered messages against the server's tool set.
type Engine struct {
	log          *slog.Logger
	info         mcp.ImplementationInfo
	tools        *mcpservice.ToolsContainer
	instructions string
	gate         SessionGate

	ready atomic.Bool
}

// New constructs an Engine. It is not ready until Start is called.
func New(info mcp.ImplementationInfo, tools *mcpservice.ToolsContainer, opts ...Option) *Engine {
	e := &Engine{
		log:   slog.New(slog.DiscardHandler),
		info:  info,
		tools: tools,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start marks the engine ready to accept sessions. Transports reject all
// traffic until then.
func (e *Engine) Start(ctx context.Context) {
	e.ready.Store(true)
	e.log.InfoContext(ctx, "engine.start", slog.String("server", e.info.Name), slog.String("version", e.info.Version))
}

// Ready reports whether the engine accepts session work.
func (e *Engine) Ready() bool { return e.ready.Load() }

// Info returns the server identity advertised during initialization.
func (e *Engine) Info() mcp.ImplementationInfo { return e.info }

// Open allocates a session id and wraps the stream in a pending-bind session.
// The engine is authoritative for id generation; transports must not invent
// ids of their own.
func (e *Engine) Open(stream sessions.ClientStream) (*sessions.Session, error) {
	if !e.Ready() {
		return nil, ErrNotReady
	}
	return sessions.NewSession(uuid.NewString(), stream), nil
}

// Bind completes the association of a session with the engine. On failure the
// caller must tear the session down; no frame is written because the stream
// may already be unusable.
func (e *Engine) Bind(ctx context.Context, sess *sessions.Session) error {
	if !e.Ready() {
		return ErrNotReady
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.gate != nil {
		if err := e.gate(ctx, sess); err != nil {
			return fmt.Errorf("session gate rejected bind: %w", err)
		}
	}
	return nil
}

// Deliver interprets one control message for an active session. Replies to
// requests are written onto the session's push stream, not returned. The
// returned error reports delivery-level failures only (unparseable payload,
// stream write failure); tool-level failures travel in-band.
func (e *Engine) Deliver(ctx context.Context, sess *sessions.Session, raw jsonrpc.Message) error {
	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("invalid JSON-RPC message: %w", err)
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: msg.Method,
		ID:     msg.ID.String(),
		Type:   msg.Type(),
	})

	req := msg.AsRequest()
	if req == nil {
		// Client-originated responses have no pending server request to
		// correlate with; log and drop.
		e.log.WarnContext(ctx, "engine.deliver.unexpected_response")
		return nil
	}

	if req.ID.IsNil() {
		e.handleNotification(ctx, req)
		return nil
	}

	res := e.handleRequest(ctx, req)

	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	if err := sess.WriteFrame(b); err != nil {
		return fmt.Errorf("failed to write response frame: %w", err)
	}
	return nil
}

func (e *Engine) handleNotification(ctx context.Context, req *jsonrpc.Request) {
	switch mcp.Method(req.Method) {
	case mcp.InitializedNotificationMethod:
		e.log.InfoContext(ctx, "session.initialized")
	default:
		e.log.DebugContext(ctx, "notification.ignored")
	}
}

func (e *Engine) handleRequest(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	switch mcp.Method(req.Method) {
	case mcp.InitializeMethod:
		return e.handleInitialize(ctx, req)
	case mcp.PingMethod:
		res, err := jsonrpc.NewResultResponse(req.ID, struct{}{})
		if err != nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, err.Error(), nil)
		}
		return res
	case mcp.ToolsListMethod:
		res, err := jsonrpc.NewResultResponse(req.ID, mcp.ListToolsResult{Tools: e.tools.ListTools()})
		if err != nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, err.Error(), nil)
		}
		return res
	case mcp.ToolsCallMethod:
		return e.handleToolCall(ctx, req)
	default:
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method), nil)
	}
}

func (e *Engine) handleInitialize(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	var initReq mcp.InitializeRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &initReq); err != nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid initialize params", nil)
		}
	}

	e.log.InfoContext(ctx, "session.initialize",
		slog.String("client", initReq.ClientInfo.Name),
		slog.String("client_version", initReq.ClientInfo.Version))

	res, err := jsonrpc.NewResultResponse(req.ID, mcp.InitializeResult{
		ProtocolVersion: mcp.LatestProtocolVersion,
		Capabilities: mcp.ServerCapabilities{
			Tools: &mcp.ToolsServerCapability{},
		},
		ServerInfo:   e.info,
		Instructions: e.instructions,
	})
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, err.Error(), nil)
	}
	return res
}

func (e *Engine) handleToolCall(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	var callReq mcp.CallToolRequestReceived
	if err := json.Unmarshal(req.Params, &callReq); err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid tools/call params", nil)
	}

	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: callReq.Name})
	e.log.InfoContext(ctx, "tool.call.start")

	result, err := e.tools.CallTool(ctx, &callReq)
	if err != nil {
		if errors.Is(err, mcpservice.ErrUnknownTool) {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, fmt.Sprintf("unknown tool: %s", callReq.Name), nil)
		}
		e.log.ErrorContext(ctx, "tool.call.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, err.Error(), nil)
	}

	e.log.InfoContext(ctx, "tool.call.ok")
	res, err := jsonrpc.NewResultResponse(req.ID, result)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, err.Error(), nil)
	}
	return res
}
