// Package config loads the server's process-level configuration from the
// environment. Storage-specific settings live in the storage package.
package config

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

// Transport modes.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// Config holds the transport and listener configuration.
type Config struct {
	// TransportMode selects stdio or sse.
	TransportMode string `env:"MCP_TRANSPORT_MODE,default=stdio"`
	// Host is the listen host for the SSE transport.
	Host string `env:"MCP_SERVER_HOST,default=localhost"`
	// Port is the listen port for the SSE transport.
	Port int `env:"MCP_SERVER_PORT,default=3001"`
	// ConnectionTimeoutMS bounds how long an idle SSE connection is kept open.
	ConnectionTimeoutMS int `env:"MCP_CONNECTION_TIMEOUT,default=30000"`
}

// Load populates a Config from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.TransportMode != TransportStdio && cfg.TransportMode != TransportSSE {
		return Config{}, fmt.Errorf("invalid MCP_TRANSPORT_MODE %q: must be %q or %q", cfg.TransportMode, TransportStdio, TransportSSE)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("invalid MCP_SERVER_PORT %d", cfg.Port)
	}
	return cfg, nil
}

// ListenAddr renders the host:port pair the SSE transport binds to.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ConnectionTimeout returns the idle-connection bound as a duration.
func (c Config) ConnectionTimeout() time.Duration {
	return time.Duration(c.ConnectionTimeoutMS) * time.Millisecond
}
