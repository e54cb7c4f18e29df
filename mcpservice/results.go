package mcpservice

import (
	"encoding/json"
	"fmt"

	"github.com/storacha/mcp-storage-go/mcp"
)

// TextResult builds a successful tool result with a single text block.
func TextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.ContentBlock{{Type: "text", Text: text}},
	}
}

// JSONResult marshals v and returns it as a single text block, the shape the
// storage tools use for structured payloads.
func JSONResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool result: %w", err)
	}
	return TextResult(string(b)), nil
}

// Errorf builds an in-band tool error result. The call itself succeeds at the
// protocol level; isError tells the client the tool reported a failure.
func Errorf(format string, a ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.ContentBlock{{Type: "text", Text: fmt.Sprintf(format, a...)}},
		IsError: true,
	}
}
