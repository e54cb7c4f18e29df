package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PRIVATE_KEY", testPrivateKey(0x42))

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.GatewayURL != DefaultGatewayURL {
		t.Fatalf("GatewayURL = %q, want %q", cfg.GatewayURL, DefaultGatewayURL)
	}
	if cfg.UploadServiceURL != DefaultUploadServiceURL {
		t.Fatalf("UploadServiceURL = %q, want %q", cfg.UploadServiceURL, DefaultUploadServiceURL)
	}
}

func TestLoadConfigRequiresPrivateKey(t *testing.T) {
	t.Setenv("PRIVATE_KEY", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() succeeded without PRIVATE_KEY")
	}
}

func TestResolveDelegationInline(t *testing.T) {
	cfg := Config{Delegation: "inline-proof", DelegationFile: "/does/not/exist"}
	got, err := cfg.ResolveDelegation()
	if err != nil {
		t.Fatalf("ResolveDelegation() error = %v", err)
	}
	if got != "inline-proof" {
		t.Fatalf("ResolveDelegation() = %q, want inline-proof", got)
	}
}

func TestResolveDelegationFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "delegation")
	if err := os.WriteFile(path, []byte("file-proof\n"), 0o600); err != nil {
		t.Fatalf("failed to write delegation file: %v", err)
	}

	cfg := Config{DelegationFile: path}
	got, err := cfg.ResolveDelegation()
	if err != nil {
		t.Fatalf("ResolveDelegation() error = %v", err)
	}
	if got != "file-proof" {
		t.Fatalf("ResolveDelegation() = %q, want file-proof", got)
	}
}

func TestResolveDelegationEmpty(t *testing.T) {
	got, err := Config{}.ResolveDelegation()
	if err != nil {
		t.Fatalf("ResolveDelegation() error = %v", err)
	}
	if got != "" {
		t.Fatalf("ResolveDelegation() = %q, want empty", got)
	}
}
