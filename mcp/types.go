// Package mcp declares the subset of Model Context Protocol wire types the
// storage server speaks: the initialization handshake, the tools capability,
// and the transport-level session notification.
package mcp

// LatestProtocolVersion is the newest MCP revision this server negotiates.
const LatestProtocolVersion = "2025-06-18"

// ImplementationInfo names one side of the MCP handshake.
type ImplementationInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Title   string `json:"title,omitempty"`
}

// ClientCapabilities enumerates the optional features a client advertises.
// The storage server does not act on any of them; the struct exists so the
// initialize params round-trip faithfully.
type ClientCapabilities struct {
	Experimental map[string]any `json:"experimental,omitempty"`
}

// ServerCapabilities enumerates the features this server advertises.
type ServerCapabilities struct {
	Tools *ToolsServerCapability `json:"tools,omitempty"`
}

// ToolsServerCapability advertises tool support.
type ToolsServerCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ContentBlock is one unit of tool output.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Tool describes a callable tool and its input schema.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema ToolInputSchema `json:"inputSchema"`
}

// ToolInputSchema is a JSON-schema-like description of tool input.
type ToolInputSchema struct {
	Type                 string                    `json:"type"`
	Properties           map[string]SchemaProperty `json:"properties,omitempty"`
	Required             []string                  `json:"required,omitempty"`
	AdditionalProperties bool                      `json:"additionalProperties,omitzero"`
}

// SchemaProperty is a simplified schema node used in tool input schemas.
type SchemaProperty struct {
	Type        string                    `json:"type,omitempty"`
	Description string                    `json:"description,omitzero"`
	Items       *SchemaProperty           `json:"items,omitempty"`
	Properties  map[string]SchemaProperty `json:"properties,omitempty"`
	Enum        []any                     `json:"enum,omitempty"`
}
