// Package stdio implements the standard-streams transport. It serves exactly
// one implicit session, so the session-multiplexing machinery of the SSE
// transport has no role here: messages are newline-delimited JSON-RPC on
// stdin, replies are newline-delimited JSON-RPC on stdout.
package stdio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/storacha/mcp-storage-go/internal/engine"
	"github.com/storacha/mcp-storage-go/internal/jsonrpc"
	"github.com/storacha/mcp-storage-go/internal/logctx"
	"github.com/storacha/mcp-storage-go/sessions"
)

// maxLineSize bounds one inbound message; uploads arrive base64-encoded in
// tool arguments, so the limit is generous.
const maxLineSize = 32 * 1024 * 1024

// Option configures the Handler.
type Option func(*Handler)

// WithLogger sets the slog logger. Logs are discarded when not provided.
func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) { h.log = log }
}

// WithIO overrides the reader/writer pair, primarily for tests.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(h *Handler) {
		h.in = in
		h.out = out
	}
}

// Handler is a single-connection stdio transport bound to an engine.
type Handler struct {
	eng *engine.Engine
	log *slog.Logger
	in  io.Reader
	out io.Writer
}

// NewHandler constructs a stdio Handler reading os.Stdin and writing
// os.Stdout by default.
func NewHandler(eng *engine.Engine, opts ...Option) *Handler {
	h := &Handler{
		eng: eng,
		log: slog.New(slog.DiscardHandler),
		in:  os.Stdin,
		out: os.Stdout,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = slog.New(logctx.Handler{Handler: h.log.Handler()})
	return h
}

// stdioStream frames messages as single lines on the output writer.
type stdioStream struct {
	mu  sync.Mutex
	out io.Writer
}

func (s *stdioStream) WriteFrame(msg jsonrpc.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.out.Write(msg); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	if _, err := s.out.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write frame terminator: %w", err)
	}
	return nil
}

func (s *stdioStream) Close() error { return nil }

// Serve runs the read loop until EOF on the input or context cancellation.
// It opens and binds the implicit session itself; delivery errors are logged
// and the loop continues, because a stdio peer has no control channel to
// receive a transport-level error on.
func (h *Handler) Serve(ctx context.Context) error {
	stream := &stdioStream{out: h.out}

	sess, err := h.eng.Open(stream)
	if err != nil {
		return fmt.Errorf("failed to open stdio session: %w", err)
	}
	if err := h.eng.Bind(ctx, sess); err != nil {
		return fmt.Errorf("failed to bind stdio session: %w", err)
	}
	if !sess.Activate() {
		return sessions.ErrSessionClosed
	}
	defer func() { _ = sess.Close() }()

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sess.ID(), State: string(sessions.StateActive)})
	h.log.InfoContext(ctx, "stdio.serve.start")

	scanner := bufio.NewScanner(h.in)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		// The frame is consumed by Deliver after the scanner's buffer would
		// be reused, so it has to be copied out.
		raw := make(jsonrpc.Message, len(line))
		copy(raw, line)

		if err := h.eng.Deliver(ctx, sess, raw); err != nil {
			h.log.ErrorContext(ctx, "stdio.deliver.fail", slog.String("err", err.Error()))
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read stdio input: %w", err)
	}

	h.log.InfoContext(ctx, "stdio.serve.end")
	return nil
}
