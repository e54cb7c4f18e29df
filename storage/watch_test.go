package storage

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchDelegationFileReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "delegation")
	if err := os.WriteFile(path, []byte("initial"), 0o600); err != nil {
		t.Fatalf("failed to seed delegation file: %v", err)
	}

	c := newTestClient(t, "https://gw.example", "https://bridge.example")
	c.SetDelegation("initial")

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- WatchDelegationFile(ctx, slog.New(slog.DiscardHandler), path, c)
	}()

	// Give the watcher a moment to install before mutating the file.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte("rotated\n"), 0o600); err != nil {
		t.Fatalf("failed to rotate delegation file: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for c.Delegation() != "rotated" {
		if time.Now().After(deadline) {
			t.Fatalf("Delegation() = %q, watcher never picked up rotation", c.Delegation())
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("WatchDelegationFile() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("WatchDelegationFile() did not return after cancel")
	}
}

func TestWatchDelegationFileMissingDir(t *testing.T) {
	c := newTestClient(t, "https://gw.example", "https://bridge.example")
	err := WatchDelegationFile(t.Context(), slog.New(slog.DiscardHandler), "/does/not/exist/delegation", c)
	if err == nil {
		t.Fatal("WatchDelegationFile() succeeded for missing directory")
	}
}
