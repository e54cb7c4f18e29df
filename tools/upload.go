package tools

import (
	"context"

	"github.com/storacha/mcp-storage-go/mcp"
	"github.com/storacha/mcp-storage-go/mcpservice"
	"github.com/storacha/mcp-storage-go/storage"
)

type uploadArgs struct {
	// File is the content to store, standard base64 encoded.
	File string `json:"file" jsonschema:"description=The content of the file encoded as a base64 string"`
	// Name is the filename recorded in the stored directory.
	Name string `json:"name" jsonschema:"description=Name for the uploaded file"`
	// Delegation optionally overrides the server's configured proof.
	Delegation string `json:"delegation,omitempty" jsonschema:"description=Delegation proof to use for this upload (base64 encoded)"`
	// PublishToIPFS asks the service to announce the upload on the IPFS DHT.
	PublishToIPFS bool `json:"publishToIPFS,omitempty" jsonschema:"description=Whether to publish the file to the IPFS network"`
}

// Upload builds the upload tool: it stores a single base64-encoded file and
// returns the root CID and gateway URL. Failures are reported in-band.
func Upload(client *storage.Client) mcpservice.StaticTool {
	return mcpservice.NewTool("upload", func(ctx context.Context, args uploadArgs) (*mcp.CallToolResult, error) {
		if args.File == "" {
			return mcpservice.Errorf("Upload failed: file is required"), nil
		}
		if args.Name == "" {
			return mcpservice.Errorf("Upload failed: name is required"), nil
		}

		result, err := client.Upload(ctx, []storage.UploadFile{{
			Name:    args.Name,
			Content: args.File,
		}}, storage.UploadOptions{
			Delegation:    args.Delegation,
			PublishToIPFS: args.PublishToIPFS,
		})
		if err != nil {
			return mcpservice.Errorf("Upload failed: %v", err), nil
		}

		return mcpservice.JSONResult(result)
	}, mcpservice.WithToolDescription("Upload a file to the Storacha network. The file is stored as content-addressed data and becomes retrievable by CID."))
}
