// Package ssehttp implements the HTTP+SSE transport: a long-lived,
// server-initiated push stream per connected client (GET /sse) bridged with a
// stateless, client-initiated control channel (POST /messages). Control
// messages are routed to the push stream bound to the addressed session;
// replies travel back on the stream, never on the control response.
package ssehttp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/storacha/mcp-storage-go/internal/engine"
	"github.com/storacha/mcp-storage-go/internal/jsonrpc"
	"github.com/storacha/mcp-storage-go/internal/logctx"
	"github.com/storacha/mcp-storage-go/mcp"
	"github.com/storacha/mcp-storage-go/sessions"
)

var _ http.Handler = (*Handler)(nil)

var jsonMediaType = contenttype.NewMediaType("application/json")

// SessionResolutionPolicy decides how the message router resolves a control
// request that carries no session id, after the query parameter and
// params.sessionId have both come up empty.
type SessionResolutionPolicy int

const (
	// ResolveExplicit rejects the request. Every control message must carry
	// a session id.
	ResolveExplicit SessionResolutionPolicy = iota
	// ResolveSingleFallback delivers to the only open session when exactly
	// one exists, and rejects otherwise.
	ResolveSingleFallback
)

// Option configures the Handler.
type Option func(*newConfig)

type newConfig struct {
	logger *slog.Logger
	policy SessionResolutionPolicy
}

// WithLogger sets the slog logger used by the handler. If not provided, logs
// are discarded.
func WithLogger(log *slog.Logger) Option {
	return func(c *newConfig) { c.logger = log }
}

// WithSessionResolution sets the fallback policy for control requests that
// carry no session id. The default is ResolveExplicit.
func WithSessionResolution(p SessionResolutionPolicy) Option {
	return func(c *newConfig) { c.policy = p }
}

// Handler serves the SSE transport endpoints. It owns the session registry
// for its lifetime; the registry is constructed with the handler and garbage
// collected with it, never shared across transports.
type Handler struct {
	mux    *http.ServeMux
	log    *slog.Logger
	eng    *engine.Engine
	reg    *sessions.Registry
	policy SessionResolutionPolicy
}

// New constructs a Handler around the given engine.
func New(eng *engine.Engine, opts ...Option) (*Handler, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}

	cfg := &newConfig{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(cfg)
	}

	h := &Handler{
		log:    slog.New(logctx.Handler{Handler: cfg.logger.Handler()}),
		eng:    eng,
		reg:    sessions.NewRegistry(),
		policy: cfg.policy,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /sse", h.handleSSE)
	mux.HandleFunc("POST /messages", h.handleMessages)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /{$}", h.handleInfo)
	mux.HandleFunc("OPTIONS /", h.handlePreflight)
	h.mux = mux
	return h, nil
}

// Registry exposes the handler's session registry for read-only inspection.
func (h *Handler) Registry() *sessions.Registry { return h.reg }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})))
}

// lockedWriteFlusher serializes concurrent writes/flushes onto one response
// and refuses to write after the request context is canceled.
type lockedWriteFlusher struct {
	w   io.Writer
	f   http.Flusher
	mu  sync.Mutex
	ctx context.Context
}

func (l *lockedWriteFlusher) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ctx.Err(); err != nil {
		return 0, err
	}
	return l.w.Write(p)
}

func (l *lockedWriteFlusher) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx.Err() != nil {
		return
	}
	l.f.Flush()
}

// sseStream adapts one SSE response into a sessions.ClientStream. Frames are
// `data: {json}` events terminated by a blank line. Close cancels the
// request-scoped context, which unblocks the acceptor and ends the response.
type sseStream struct {
	wf     *lockedWriteFlusher
	cancel context.CancelFunc
}

func (s *sseStream) WriteFrame(msg jsonrpc.Message) error {
	if _, err := s.wf.Write([]byte("data: ")); err != nil {
		return fmt.Errorf("failed to write frame prefix: %w", err)
	}
	if _, err := s.wf.Write(msg); err != nil {
		return fmt.Errorf("failed to write frame payload: %w", err)
	}
	if _, err := s.wf.Write([]byte("\n\n")); err != nil {
		return fmt.Errorf("failed to write frame terminator: %w", err)
	}
	s.wf.Flush()
	return nil
}

func (s *sseStream) Close() error {
	s.cancel()
	return nil
}

// handleSSE is the stream acceptor: it turns one incoming request into a
// live, registered, bound session and then holds the connection open until
// the client goes away.
func (h *Handler) handleSSE(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "sse.accept.start")

	setCORS(w)

	if !h.eng.Ready() {
		h.log.WarnContext(ctx, "sse.accept.not_ready")
		http.Error(w, "Server not initialized", http.StatusServiceUnavailable)
		return
	}

	f, ok := w.(http.Flusher)
	if !ok {
		h.log.ErrorContext(ctx, "sse.flusher.missing")
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wf := &lockedWriteFlusher{w: w, f: f, ctx: ctx}
	stream := &sseStream{wf: wf, cancel: cancel}

	// The engine is authoritative for id generation; nothing below may assume
	// an id exists before this call.
	sess, err := h.eng.Open(stream)
	if err != nil {
		h.log.ErrorContext(ctx, "sse.open.fail", slog.String("err", err.Error()))
		http.Error(w, "Server not initialized", http.StatusServiceUnavailable)
		return
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sess.ID(), State: string(sess.State())})

	// Register before binding so an immediate in-flight control message does
	// not spuriously miss; the router refuses pending-bind sessions, so
	// nothing is forwarded into an unbound engine.
	if err := h.reg.Register(sess); err != nil {
		h.log.ErrorContext(ctx, "session.register.fail", slog.String("err", err.Error()))
		http.Error(w, "failed to register session", http.StatusInternalServerError)
		return
	}

	// Disconnect observer: fires on client disconnect regardless of bind
	// outcome, removing the session and marking it closed. Remove is
	// idempotent, so racing the explicit teardown below is harmless.
	stop := context.AfterFunc(ctx, func() {
		h.reg.Remove(sess.ID())
	})
	defer stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	wf.Flush()

	if err := h.eng.Bind(ctx, sess); err != nil {
		// Terminal for this connection attempt; no frame is written because
		// the stream may already be unusable.
		h.log.ErrorContext(ctx, "session.bind.fail", slog.String("err", err.Error()))
		h.reg.Remove(sess.ID())
		return
	}

	if !sess.Activate() {
		// Client disconnected while the bind was in flight.
		h.log.InfoContext(ctx, "session.bind.abandoned")
		h.reg.Remove(sess.ID())
		return
	}

	initFrame, err := sessionInitFrame(sess.ID())
	if err != nil {
		h.log.ErrorContext(ctx, "session.init_frame.marshal.fail", slog.String("err", err.Error()))
		h.reg.Remove(sess.ID())
		return
	}
	if err := sess.WriteFrame(initFrame); err != nil {
		h.log.ErrorContext(ctx, "session.init_frame.write.fail", slog.String("err", err.Error()))
		h.reg.Remove(sess.ID())
		return
	}

	h.log.InfoContext(ctx, "sse.accept.ok", slog.Duration("dur", time.Since(start)))

	// Hold the connection open for pushed frames.
	<-ctx.Done()
	h.reg.Remove(sess.ID())
	h.log.InfoContext(ctx, "sse.stream.end", slog.Duration("dur", time.Since(start)))
}

// sessionInitFrame builds the one notification frame announcing a freshly
// bound session.
func sessionInitFrame(sessionID string) (jsonrpc.Message, error) {
	req, err := jsonrpc.NewRequest(nil, string(mcp.SystemNotifyMethod), mcp.SystemNotifyParams{
		Event:     mcp.EventSessionInit,
		SessionID: sessionID,
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(req)
}

// handleMessages is the message router: it resolves each stateless control
// request to exactly one active session and forwards the payload to the
// engine bound to it.
func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "messages.post.start")

	setCORS(w)

	if !h.eng.Ready() {
		h.log.WarnContext(ctx, "messages.not_ready")
		writeRPCError(w, http.StatusServiceUnavailable, nil, jsonrpc.ErrorCodeServerError, "Server not initialized")
		return
	}

	if ct, err := contenttype.GetMediaType(r); err != nil || !ct.Matches(jsonMediaType) {
		h.log.WarnContext(ctx, "messages.content_type.unsupported")
		writeRPCError(w, http.StatusUnsupportedMediaType, nil, jsonrpc.ErrorCodeInvalidRequest, "content-type must be application/json")
		return
	}

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		h.log.WarnContext(ctx, "messages.decode.fail", slog.String("err", err.Error()))
		writeRPCError(w, http.StatusBadRequest, nil, jsonrpc.ErrorCodeParseError, "invalid JSON body")
		return
	}

	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.log.WarnContext(ctx, "messages.message.invalid", slog.String("err", err.Error()))
		writeRPCError(w, http.StatusBadRequest, nil, jsonrpc.ErrorCodeInvalidRequest, "invalid JSON-RPC message: "+err.Error())
		return
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: msg.Method,
		ID:     msg.ID.String(),
		Type:   msg.Type(),
	})

	sessID, ok := h.resolveSessionID(r, &msg)
	if !ok {
		h.log.WarnContext(ctx, "session.resolve.fail")
		writeRPCError(w, http.StatusBadRequest, msg.ID, jsonrpc.ErrorCodeInvalidParams,
			"No session ID provided. Please provide a sessionId query parameter or connect to /sse first.")
		return
	}

	sess, found := h.reg.Lookup(sessID)
	if !found || sess.State() != sessions.StateActive {
		// Pending-bind sessions are discoverable but not yet deliverable;
		// they get the same answer as absent ones.
		h.log.InfoContext(ctx, "session.lookup.miss", slog.String("session_id", sessID))
		writeRPCError(w, http.StatusNotFound, msg.ID, jsonrpc.ErrorCodeServerError, "Session not found")
		return
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sess.ID(), State: string(sess.State())})

	if err := h.deliver(ctx, sess, jsonrpc.Message(raw)); err != nil {
		h.log.ErrorContext(ctx, "messages.deliver.fail", slog.String("err", err.Error()))
		writeRPCError(w, http.StatusInternalServerError, msg.ID, jsonrpc.ErrorCodeServerError,
			fmt.Sprintf("Internal server error: %v", err))
		return
	}

	w.WriteHeader(http.StatusAccepted)
	_, _ = io.WriteString(w, "Accepted")
	h.log.InfoContext(ctx, "messages.post.ok", slog.Duration("dur", time.Since(start)))
}

// deliver forwards one message into the engine, converting handler panics
// into ordinary errors so a misbehaving tool can never take the process down.
func (h *Handler) deliver(ctx context.Context, sess *sessions.Session, raw jsonrpc.Message) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return h.eng.Deliver(ctx, sess, raw)
}

// resolveSessionID applies the resolution order: query parameter, then
// params.sessionId, then the configured fallback policy.
func (h *Handler) resolveSessionID(r *http.Request, msg *jsonrpc.AnyMessage) (string, bool) {
	if id := r.URL.Query().Get("sessionId"); id != "" {
		return id, true
	}
	if id := msg.ParamsSessionID(); id != "" {
		return id, true
	}
	if h.policy == ResolveSingleFallback {
		if ids := h.reg.IDs(); len(ids) == 1 {
			return ids[0], true
		}
	}
	return "", false
}

// handleHealth reports liveness. Read-only: it must never mutate the registry.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	serverState := "initializing"
	if h.eng.Ready() {
		serverState = "initialized"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"server":              serverState,
		"activeConnections":   h.reg.Len(),
		"connectedSessionIds": h.reg.IDs(),
	})
}

// handleInfo serves the static service descriptor plus live counters.
func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	status := "initializing"
	if h.eng.Ready() {
		status = "ready"
	}
	info := h.eng.Info()
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    info.Name,
		"version": info.Version,
		"endpoints": map[string]string{
			"sse":      "/sse",
			"messages": "/messages",
			"health":   "/health",
		},
		"status":            status,
		"activeConnections": h.reg.Len(),
	})
}

func (h *Handler) handlePreflight(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	w.Header().Set("Access-Control-Max-Age", "600")
	w.WriteHeader(http.StatusNoContent)
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeRPCError emits the structured control-channel error envelope. The id
// echoes the request's when one was parseable.
func writeRPCError(w http.ResponseWriter, status int, id *jsonrpc.RequestID, code jsonrpc.ErrorCode, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(jsonrpc.NewErrorResponse(id, code, msg, nil))
}
