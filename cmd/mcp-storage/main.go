// Command mcp-storage runs the Storacha MCP storage server over stdio or the
// HTTP+SSE transport, selected by MCP_TRANSPORT_MODE.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/storacha/mcp-storage-go/config"
	"github.com/storacha/mcp-storage-go/internal/engine"
	"github.com/storacha/mcp-storage-go/mcp"
	"github.com/storacha/mcp-storage-go/mcpservice"
	"github.com/storacha/mcp-storage-go/ssehttp"
	"github.com/storacha/mcp-storage-go/stdio"
	"github.com/storacha/mcp-storage-go/storage"
	"github.com/storacha/mcp-storage-go/tools"
)

const (
	serverName    = "mcp-storage"
	serverVersion = "1.0.0"
)

const serverInstructions = "Stores and retrieves content-addressed files on the Storacha network. " +
	"Use the upload tool to store base64-encoded files and the retrieve tool to fetch them by CID."

func main() {
	// Logs go to stderr: in stdio mode stdout carries protocol frames and must
	// stay clean.
	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	if err := run(log); err != nil {
		log.Error("server.exit", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	storageCfg, err := storage.LoadConfig()
	if err != nil {
		return err
	}
	client, err := storage.NewClient(storageCfg)
	if err != nil {
		return err
	}
	log.Info("storage.client.ready", slog.String("did", client.DID()))

	if storageCfg.Delegation == "" && storageCfg.DelegationFile != "" {
		go func() {
			if err := storage.WatchDelegationFile(ctx, log, storageCfg.DelegationFile, client); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("delegation.watch.exit", slog.String("err", err.Error()))
			}
		}()
	}

	eng := engine.New(
		mcp.ImplementationInfo{Name: serverName, Version: serverVersion},
		mcpservice.NewToolsContainer(tools.All(client)...),
		engine.WithLogger(log),
		engine.WithInstructions(serverInstructions),
	)
	eng.Start(ctx)

	switch cfg.TransportMode {
	case config.TransportStdio:
		return stdio.NewHandler(eng, stdio.WithLogger(log)).Serve(ctx)
	case config.TransportSSE:
		return serveSSE(ctx, log, cfg, eng)
	default:
		return fmt.Errorf("unknown transport mode: %s", cfg.TransportMode)
	}
}

func serveSSE(ctx context.Context, log *slog.Logger, cfg config.Config, eng *engine.Engine) error {
	h, err := ssehttp.New(eng, ssehttp.WithLogger(log))
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       cfg.ConnectionTimeout(),
		// Request contexts descend from ctx so open SSE streams unblock on
		// shutdown instead of pinning Shutdown until its deadline.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http.listen", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("http.shutdown.start")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	log.Info("http.shutdown.ok")
	return <-errCh
}
