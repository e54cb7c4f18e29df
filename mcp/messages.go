package mcp

import "encoding/json"

// Method is an MCP method identifier used in JSON-RPC messages.
type Method string

const (
	InitializeMethod              Method = "initialize"
	InitializedNotificationMethod Method = "notifications/initialized"
	PingMethod                    Method = "ping"

	ToolsListMethod Method = "tools/list"
	ToolsCallMethod Method = "tools/call"

	// SystemNotifyMethod carries transport-level notifications on the push
	// stream, outside the MCP method namespace.
	SystemNotifyMethod Method = "system.notify"
)

// EventSessionInit is the system.notify event announcing a freshly bound
// session and the id the client must use on the control channel.
const EventSessionInit = "session_init"

// SystemNotifyParams is the params payload of a system.notify notification.
type SystemNotifyParams struct {
	Event     string `json:"event"`
	SessionID string `json:"sessionId,omitempty"`
}

// InitializeRequest starts the MCP initialization handshake.
type InitializeRequest struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      ImplementationInfo `json:"clientInfo"`
}

// InitializeResult returns negotiated capabilities and server info.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ImplementationInfo `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitzero"`
}

// ListToolsResult returns the available tools.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolRequestReceived is the server-received representation of a tool call.
type CallToolRequestReceived struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallToolResult represents a tool invocation result.
type CallToolResult struct {
	Content []ContentBlock `json:"content,omitempty"`
	IsError bool           `json:"isError,omitzero"`
}
