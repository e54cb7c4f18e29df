package tools

import (
	"context"

	"github.com/storacha/mcp-storage-go/mcp"
	"github.com/storacha/mcp-storage-go/mcpservice"
	"github.com/storacha/mcp-storage-go/storage"
)

type retrieveArgs struct {
	// Filepath is "cid/filename"; the filename segment is optional.
	Filepath string `json:"filepath" jsonschema:"description=Path of the resource to retrieve in the form cid/filename"`
}

// Retrieve builds the retrieve tool: it fetches a stored object from the
// gateway and returns its bytes base64-encoded together with the content type.
func Retrieve(client *storage.Client) mcpservice.StaticTool {
	return mcpservice.NewTool("retrieve", func(ctx context.Context, args retrieveArgs) (*mcp.CallToolResult, error) {
		if args.Filepath == "" {
			return mcpservice.Errorf("Retrieve failed: filepath is required"), nil
		}

		result, err := client.Retrieve(ctx, args.Filepath)
		if err != nil {
			return mcpservice.Errorf("Retrieve failed: %v", err), nil
		}

		return mcpservice.JSONResult(result)
	}, mcpservice.WithToolDescription("Retrieve a file from the Storacha network by CID. Returns the file content as base64 along with its content type."))
}
