// Package storage implements the Storacha network client: uploads through
// the HTTP upload bridge, retrievals through the trustless gateway, and the
// agent identity derived from the configured private key.
package storage

import (
	"fmt"
	"os"
	"strings"

	"github.com/joeshaw/envdecode"
)

// DefaultGatewayURL is the gateway used for retrievals when GATEWAY_URL is unset.
const DefaultGatewayURL = "https://storacha.link"

// DefaultUploadServiceURL is the upload bridge used when UPLOAD_SERVICE_URL is unset.
const DefaultUploadServiceURL = "https://up.storacha.network/bridge"

// Config holds the storage client configuration, loaded from the environment.
type Config struct {
	// PrivateKey is the agent's ed25519 signing key (multibase base64pad).
	PrivateKey string `env:"PRIVATE_KEY,required"`
	// Delegation is the base64-encoded proof granting this agent access to a
	// storage space.
	Delegation string `env:"DELEGATION"`
	// DelegationFile optionally points at a file carrying the delegation
	// proof; it takes effect when Delegation is empty and is watched for
	// rotation at runtime.
	DelegationFile string `env:"DELEGATION_FILE"`
	// GatewayURL is the retrieval gateway base URL.
	GatewayURL string `env:"GATEWAY_URL,default=https://storacha.link"`
	// UploadServiceURL is the upload bridge endpoint.
	UploadServiceURL string `env:"UPLOAD_SERVICE_URL,default=https://up.storacha.network/bridge"`
}

// LoadConfig populates a Config from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load storage config: %w", err)
	}
	cfg.PrivateKey = strings.TrimSpace(cfg.PrivateKey)
	cfg.Delegation = strings.TrimSpace(cfg.Delegation)
	return cfg, nil
}

// ResolveDelegation returns the configured delegation proof, reading
// DelegationFile when the inline value is absent. An empty result is not an
// error: uploads may carry their own delegation per call.
func (c Config) ResolveDelegation() (string, error) {
	if c.Delegation != "" {
		return c.Delegation, nil
	}
	if c.DelegationFile == "" {
		return "", nil
	}
	b, err := os.ReadFile(c.DelegationFile)
	if err != nil {
		return "", fmt.Errorf("failed to read delegation file: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}
