package tools

import (
	"context"
	"fmt"

	"github.com/storacha/mcp-storage-go/mcp"
	"github.com/storacha/mcp-storage-go/mcpservice"
)

type helloArgs struct {
	Name string `json:"name" jsonschema:"description=Name to greet"`
}

// Hello builds the hello tool, a connectivity smoke test with no storage
// dependency.
func Hello() mcpservice.StaticTool {
	return mcpservice.NewTool("hello", func(ctx context.Context, args helloArgs) (*mcp.CallToolResult, error) {
		name := args.Name
		if name == "" {
			name = "world"
		}
		return mcpservice.TextResult(fmt.Sprintf("Hello, %s!", name)), nil
	}, mcpservice.WithToolDescription("Say hello. Useful for verifying the server is reachable."))
}
