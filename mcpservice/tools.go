// Package mcpservice provides the building blocks for declaring the tools a
// server exposes: typed tool constructors with reflected input schemas and a
// threadsafe container the engine dispatches against.
package mcpservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/storacha/mcp-storage-go/mcp"
)

// ErrUnknownTool is returned by CallTool when no tool matches the request name.
var ErrUnknownTool = errors.New("unknown tool")

// ToolHandler is the function signature used to handle a tool invocation.
type ToolHandler func(ctx context.Context, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error)

// StaticTool pairs an MCP tool descriptor with its handler.
type StaticTool struct {
	Descriptor mcp.Tool
	Handler    ToolHandler
}

// ToolOption configures NewTool behavior.
type ToolOption func(*toolConfig)

type toolConfig struct {
	description               string
	allowAdditionalProperties bool // default false (strict)
}

// WithToolDescription sets the tool description used in listings.
func WithToolDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// WithToolAllowAdditionalProperties controls whether unknown argument fields
// are allowed. When false (default) the generated schema sets
// additionalProperties=false and decoding rejects unknown fields.
func WithToolAllowAdditionalProperties(allow bool) ToolOption {
	return func(c *toolConfig) { c.allowAdditionalProperties = allow }
}

// NewTool constructs a StaticTool from a typed args struct A. The input
// schema is reflected from A with invopop/jsonschema and down-converted to
// MCP's simplified shape; at call time the raw arguments are decoded into A
// before fn is invoked. Malformed arguments produce an in-band tool error
// rather than a handler failure.
func NewTool[A any](name string, fn func(ctx context.Context, args A) (*mcp.CallToolResult, error), opts ...ToolOption) StaticTool {
	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	desc := mcp.Tool{
		Name:        name,
		Description: cfg.description,
		InputSchema: reflectToMCPInputSchema[A](cfg.allowAdditionalProperties),
	}

	handler := func(ctx context.Context, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
		var a A
		if len(req.Arguments) > 0 {
			if cfg.allowAdditionalProperties {
				if err := json.Unmarshal(req.Arguments, &a); err != nil {
					return Errorf("invalid arguments: %v", err), nil
				}
			} else {
				dec := json.NewDecoder(bytes.NewReader(req.Arguments))
				dec.DisallowUnknownFields()
				if err := dec.Decode(&a); err != nil {
					return Errorf("invalid arguments: %v", err), nil
				}
			}
		}
		return fn(ctx, a)
	}

	return StaticTool{Descriptor: desc, Handler: handler}
}

// reflectToMCPInputSchema reflects a Go type A into a jsonschema.Schema and
// converts it to the simplified mcp.ToolInputSchema.
func reflectToMCPInputSchema[A any](allowAdditional bool) mcp.ToolInputSchema {
	r := &jsonschema.Reflector{
		DoNotReference:            true, // inline defs
		ExpandedStruct:            true, // put struct at root
		AllowAdditionalProperties: allowAdditional,
	}
	s := r.Reflect(new(A))

	// Only object schemas map onto the MCP tool input shape. Anything else
	// becomes an empty object with the configured additionalProperties policy.
	if s == nil || s.Type != "object" {
		return mcp.ToolInputSchema{
			Type:                 "object",
			Properties:           map[string]mcp.SchemaProperty{},
			AdditionalProperties: allowAdditional,
		}
	}

	props := make(map[string]mcp.SchemaProperty)
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			props[el.Key] = toMCPProperty(el.Value)
		}
	}
	var required []string
	if len(s.Required) > 0 {
		required = append(required, s.Required...)
	}

	return mcp.ToolInputSchema{
		Type:                 "object",
		Properties:           props,
		Required:             required,
		AdditionalProperties: allowAdditional,
	}
}

// toMCPProperty recursively maps a jsonschema.Schema node to the simplified
// MCP SchemaProperty.
func toMCPProperty(s *jsonschema.Schema) mcp.SchemaProperty {
	if s == nil {
		return mcp.SchemaProperty{}
	}
	p := mcp.SchemaProperty{
		Type:        s.Type,
		Description: s.Description,
	}
	if len(s.Enum) > 0 {
		p.Enum = s.Enum
	}
	if s.Type == "array" && s.Items != nil {
		item := toMCPProperty(s.Items)
		p.Items = &item
	}
	if s.Type == "object" && s.Properties != nil {
		m := make(map[string]mcp.SchemaProperty, s.Properties.Len())
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			m[el.Key] = toMCPProperty(el.Value)
		}
		p.Properties = m
	}
	return p
}

// ToolsContainer owns a threadsafe set of tool descriptors and handlers. The
// engine lists and dispatches against it.
type ToolsContainer struct {
	mu       sync.RWMutex
	tools    []mcp.Tool
	handlers map[string]ToolHandler
}

// NewToolsContainer constructs a ToolsContainer with the given tool definitions.
func NewToolsContainer(defs ...StaticTool) *ToolsContainer {
	tc := &ToolsContainer{}
	tc.Replace(defs...)
	return tc
}

// Replace swaps the full set of tools.
func (tc *ToolsContainer) Replace(defs ...StaticTool) {
	tools := make([]mcp.Tool, 0, len(defs))
	handlers := make(map[string]ToolHandler, len(defs))
	for _, def := range defs {
		tools = append(tools, def.Descriptor)
		handlers[def.Descriptor.Name] = def.Handler
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.tools = tools
	tc.handlers = handlers
}

// ListTools returns the current tool descriptors.
func (tc *ToolsContainer) ListTools() []mcp.Tool {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	out := make([]mcp.Tool, len(tc.tools))
	copy(out, tc.tools)
	return out
}

// CallTool dispatches a tool call to the registered handler.
func (tc *ToolsContainer) CallTool(ctx context.Context, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
	tc.mu.RLock()
	handler, ok := tc.handlers[req.Name]
	tc.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownTool
	}
	return handler(ctx, req)
}
