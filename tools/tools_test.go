package tools

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/storacha/mcp-storage-go/mcp"
	"github.com/storacha/mcp-storage-go/mcpservice"
	"github.com/storacha/mcp-storage-go/storage"
)

const testCID = "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"

func testPrivateKey() string {
	raw := append([]byte{0x80, 0x26}, make([]byte, ed25519.SeedSize)...)
	for i := 2; i < len(raw); i++ {
		raw[i] = 0x42
	}
	return "M" + base64.StdEncoding.EncodeToString(raw)
}

func newTestClient(t *testing.T, gatewayURL, bridgeURL string) *storage.Client {
	t.Helper()
	c, err := storage.NewClient(storage.Config{
		PrivateKey:       testPrivateKey(),
		Delegation:       "dGVzdA==",
		GatewayURL:       gatewayURL,
		UploadServiceURL: bridgeURL,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func callTool(t *testing.T, tool mcpservice.StaticTool, args string) *mcp.CallToolResult {
	t.Helper()
	result, err := tool.Handler(context.Background(), &mcp.CallToolRequestReceived{
		Name:      tool.Descriptor.Name,
		Arguments: json.RawMessage(args),
	})
	if err != nil {
		t.Fatalf("tool %s handler error = %v", tool.Descriptor.Name, err)
	}
	return result
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) != 1 || result.Content[0].Type != "text" {
		t.Fatalf("result content = %+v, want single text block", result.Content)
	}
	return result.Content[0].Text
}

func TestAllRegistersFourTools(t *testing.T) {
	client := newTestClient(t, "https://gw.example", "https://bridge.example")
	defs := All(client)
	if len(defs) != 4 {
		t.Fatalf("All() returned %d tools, want 4", len(defs))
	}
	want := map[string]bool{"upload": true, "retrieve": true, "identity": true, "hello": true}
	for _, def := range defs {
		if !want[def.Descriptor.Name] {
			t.Fatalf("unexpected tool %q", def.Descriptor.Name)
		}
		delete(want, def.Descriptor.Name)
	}
	if len(want) != 0 {
		t.Fatalf("missing tools: %v", want)
	}
}

func TestHello(t *testing.T) {
	result := callTool(t, Hello(), `{"name":"Storacha"}`)
	if result.IsError {
		t.Fatal("hello flagged as error")
	}
	if got := textOf(t, result); got != "Hello, Storacha!" {
		t.Fatalf("hello text = %q", got)
	}
}

func TestHelloDefaultsName(t *testing.T) {
	result := callTool(t, Hello(), `{}`)
	if got := textOf(t, result); got != "Hello, world!" {
		t.Fatalf("hello text = %q", got)
	}
}

func TestIdentity(t *testing.T) {
	client := newTestClient(t, "https://gw.example", "https://bridge.example")

	result := callTool(t, Identity(client), `{}`)
	if result.IsError {
		t.Fatal("identity flagged as error")
	}
	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(textOf(t, result)), &payload); err != nil {
		t.Fatalf("failed to decode identity payload: %v", err)
	}
	if payload.ID != client.DID() {
		t.Fatalf("identity id = %q, want %q", payload.ID, client.DID())
	}
	if !strings.HasPrefix(payload.ID, "did:key:z6Mk") {
		t.Fatalf("identity id = %q, want did:key:z6Mk prefix", payload.ID)
	}
}

func TestUploadTool(t *testing.T) {
	bridge := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"root":  testCID,
			"files": []map[string]string{{"name": "a.txt", "cid": testCID}},
		})
	}))
	t.Cleanup(bridge.Close)

	client := newTestClient(t, "https://gw.example", bridge.URL)
	content := base64.StdEncoding.EncodeToString([]byte("hello"))

	result := callTool(t, Upload(client), `{"file":"`+content+`","name":"a.txt"}`)
	if result.IsError {
		t.Fatalf("upload flagged as error: %s", textOf(t, result))
	}
	var payload storage.UploadResult
	if err := json.Unmarshal([]byte(textOf(t, result)), &payload); err != nil {
		t.Fatalf("failed to decode upload payload: %v", err)
	}
	if payload.Root != testCID {
		t.Fatalf("upload root = %q, want %q", payload.Root, testCID)
	}
}

func TestUploadToolValidation(t *testing.T) {
	client := newTestClient(t, "https://gw.example", "https://bridge.example")
	tool := Upload(client)

	result := callTool(t, tool, `{"name":"a.txt"}`)
	if !result.IsError {
		t.Fatal("upload without file content not flagged as error")
	}
	if got := textOf(t, result); !strings.HasPrefix(got, "Upload failed:") {
		t.Fatalf("error text = %q, want Upload failed: prefix", got)
	}

	result = callTool(t, tool, `{"file":"aGk="}`)
	if !result.IsError {
		t.Fatal("upload without name not flagged as error")
	}
}

func TestUploadToolRejectsUnknownArgs(t *testing.T) {
	client := newTestClient(t, "https://gw.example", "https://bridge.example")
	result := callTool(t, Upload(client), `{"file":"aGk=","name":"a","bogus":true}`)
	if !result.IsError {
		t.Fatal("upload accepted unknown argument field")
	}
}

func TestRetrieveTool(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("data"))
	}))
	t.Cleanup(gateway.Close)

	client := newTestClient(t, gateway.URL, "https://bridge.example")

	result := callTool(t, Retrieve(client), `{"filepath":"`+testCID+`/a.txt"}`)
	if result.IsError {
		t.Fatalf("retrieve flagged as error: %s", textOf(t, result))
	}
	var payload storage.RetrieveResult
	if err := json.Unmarshal([]byte(textOf(t, result)), &payload); err != nil {
		t.Fatalf("failed to decode retrieve payload: %v", err)
	}
	if payload.Data != base64.StdEncoding.EncodeToString([]byte("data")) {
		t.Fatalf("retrieve data = %q", payload.Data)
	}
	if payload.Type != "text/plain" {
		t.Fatalf("retrieve type = %q", payload.Type)
	}
}

func TestRetrieveToolErrors(t *testing.T) {
	client := newTestClient(t, "https://gw.example", "https://bridge.example")
	tool := Retrieve(client)

	result := callTool(t, tool, `{}`)
	if !result.IsError {
		t.Fatal("retrieve without filepath not flagged as error")
	}
	if got := textOf(t, result); !strings.HasPrefix(got, "Retrieve failed:") {
		t.Fatalf("error text = %q, want Retrieve failed: prefix", got)
	}

	result = callTool(t, tool, `{"filepath":"not-a-cid/x"}`)
	if !result.IsError {
		t.Fatal("retrieve with invalid CID not flagged as error")
	}
}

func TestToolSchemas(t *testing.T) {
	client := newTestClient(t, "https://gw.example", "https://bridge.example")

	upload := Upload(client).Descriptor
	if upload.InputSchema.Type != "object" {
		t.Fatalf("upload schema type = %q", upload.InputSchema.Type)
	}
	for _, field := range []string{"file", "name"} {
		if _, ok := upload.InputSchema.Properties[field]; !ok {
			t.Fatalf("upload schema missing %q property", field)
		}
	}

	retrieve := Retrieve(client).Descriptor
	if _, ok := retrieve.InputSchema.Properties["filepath"]; !ok {
		t.Fatal("retrieve schema missing filepath property")
	}
	if retrieve.Description == "" {
		t.Fatal("retrieve tool has no description")
	}
}
