// Package tools declares the storage tools the server exposes over MCP:
// upload, retrieve, identity and a hello smoke-test tool.
package tools

import (
	"github.com/storacha/mcp-storage-go/mcpservice"
	"github.com/storacha/mcp-storage-go/storage"
)

// All returns the full tool set backed by client.
func All(client *storage.Client) []mcpservice.StaticTool {
	return []mcpservice.StaticTool{
		Upload(client),
		Retrieve(client),
		Identity(client),
		Hello(),
	}
}
