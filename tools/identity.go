package tools

import (
	"context"

	"github.com/storacha/mcp-storage-go/mcp"
	"github.com/storacha/mcp-storage-go/mcpservice"
	"github.com/storacha/mcp-storage-go/storage"
)

type identityArgs struct{}

// Identity builds the identity tool, reporting the agent's did:key derived
// from the configured private key.
func Identity(client *storage.Client) mcpservice.StaticTool {
	return mcpservice.NewTool("identity", func(ctx context.Context, _ identityArgs) (*mcp.CallToolResult, error) {
		return mcpservice.JSONResult(struct {
			ID string `json:"id"`
		}{ID: client.DID()})
	}, mcpservice.WithToolDescription("Returns the DID key of the Storacha agent loaded from the private key."))
}
