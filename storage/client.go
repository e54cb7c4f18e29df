package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// DefaultUploadRetries is the retry count for upload bridge calls when the
// caller does not override it.
const DefaultUploadRetries = 3

// maxRetrieveSize caps a gateway response body. Larger payloads do not fit a
// tool result anyway once base64-expanded.
const maxRetrieveSize = 128 * 1024 * 1024

// ErrNoDelegation indicates an upload was attempted with no delegation proof
// configured and none supplied with the call.
var ErrNoDelegation = errors.New("no delegation proof available")

// UploadFile is one file in an upload request. Content is standard base64.
type UploadFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// UploadOptions carries per-call upload overrides.
type UploadOptions struct {
	// Delegation overrides the client's configured delegation proof.
	Delegation string
	// Retries overrides DefaultUploadRetries; negative means no retries.
	Retries int
	// PublishToIPFS asks the service to announce the content on the public
	// IPFS DHT.
	PublishToIPFS bool
}

// UploadedFile describes one stored file in an upload result.
type UploadedFile struct {
	Name string `json:"name"`
	CID  string `json:"cid"`
	URL  string `json:"url"`
}

// UploadResult is the outcome of a successful upload.
type UploadResult struct {
	Root  string         `json:"root"`
	URL   string         `json:"url"`
	Files []UploadedFile `json:"files"`
}

// RetrieveResult is a gateway object returned to the caller: the raw bytes
// re-encoded as standard base64, plus the gateway-reported content type.
type RetrieveResult struct {
	Data string `json:"data"`
	Type string `json:"type"`
}

// Client talks to the Storacha upload bridge and retrieval gateway on behalf
// of the agent identity derived from the configured private key.
type Client struct {
	signer     *Signer
	gatewayURL *url.URL
	bridgeURL  *url.URL
	httpClient *http.Client

	mu         sync.RWMutex
	delegation string
}

// NewClient builds a Client from cfg. The private key is parsed eagerly so a
// malformed key fails at startup rather than on first use.
func NewClient(cfg Config) (*Client, error) {
	signer, err := ParseSigner(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	gw, err := url.Parse(cfg.GatewayURL)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway url: %w", err)
	}
	bridge, err := url.Parse(cfg.UploadServiceURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upload service url: %w", err)
	}

	delegation, err := cfg.ResolveDelegation()
	if err != nil {
		return nil, err
	}

	return &Client{
		signer:     signer,
		gatewayURL: gw,
		bridgeURL:  bridge,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		delegation: delegation,
	}, nil
}

// DID returns the agent's did:key identity.
func (c *Client) DID() string { return c.signer.DID() }

// Delegation returns the currently configured delegation proof.
func (c *Client) Delegation() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.delegation
}

// SetDelegation replaces the delegation proof. Used by the delegation file
// watcher on rotation.
func (c *Client) SetDelegation(proof string) {
	c.mu.Lock()
	c.delegation = strings.TrimSpace(proof)
	c.mu.Unlock()
}

type bridgeUploadRequest struct {
	Files         []UploadFile `json:"files"`
	PublishToIPFS bool         `json:"publishToIPFS,omitempty"`
}

type bridgeUploadResponse struct {
	Root  string `json:"root"`
	Files []struct {
		Name string `json:"name"`
		CID  string `json:"cid"`
	} `json:"files"`
	Error string `json:"error"`
}

// Upload stores files through the upload bridge and returns the resulting
// root CID plus gateway URLs. Transient bridge failures are retried.
func (c *Client) Upload(ctx context.Context, files []UploadFile, opts UploadOptions) (*UploadResult, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files to upload")
	}
	for _, f := range files {
		if f.Name == "" {
			return nil, fmt.Errorf("file name is required")
		}
		if _, err := base64.StdEncoding.DecodeString(f.Content); err != nil {
			return nil, fmt.Errorf("file %s: content is not valid base64: %w", f.Name, err)
		}
	}

	delegation := opts.Delegation
	if delegation == "" {
		delegation = c.Delegation()
	}
	if delegation == "" {
		return nil, ErrNoDelegation
	}

	body, err := json.Marshal(bridgeUploadRequest{Files: files, PublishToIPFS: opts.PublishToIPFS})
	if err != nil {
		return nil, fmt.Errorf("failed to encode upload request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.bridgeURL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", delegation)
	req.Header.Set("X-Agent-DID", c.signer.DID())

	retries := opts.Retries
	if retries == 0 {
		retries = DefaultUploadRetries
	} else if retries < 0 {
		retries = 0
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = c.httpClient
	rc.RetryMax = retries
	rc.Logger = nil

	resp, err := rc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload response: %w", err)
	}

	var decoded bridgeUploadResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil && resp.StatusCode < 300 {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decoded.Error != "" {
			return nil, fmt.Errorf("upload rejected: %s", decoded.Error)
		}
		return nil, fmt.Errorf("upload failed: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if decoded.Root == "" {
		return nil, fmt.Errorf("upload response missing root CID")
	}

	result := &UploadResult{
		Root: decoded.Root,
		URL:  c.GatewayURLFor(decoded.Root, ""),
	}
	for _, f := range decoded.Files {
		result.Files = append(result.Files, UploadedFile{
			Name: f.Name,
			CID:  f.CID,
			URL:  c.GatewayURLFor(decoded.Root, f.Name),
		})
	}
	return result, nil
}

// Retrieve fetches cid (optionally a filename within it) from the gateway and
// returns the bytes base64-encoded along with the reported content type.
func (c *Client) Retrieve(ctx context.Context, resourcePath string) (*RetrieveResult, error) {
	cid, filename, err := SplitResourcePath(resourcePath)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.GatewayURLFor(cid, filename), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build retrieve request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retrieve request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("retrieve failed: HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRetrieveSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if mediaType, _, found := strings.Cut(contentType, ";"); found {
		contentType = strings.TrimSpace(mediaType)
	}

	return &RetrieveResult{
		Data: base64.StdEncoding.EncodeToString(data),
		Type: contentType,
	}, nil
}

// GatewayURLFor renders the gateway URL for cid, optionally scoped to a
// filename within the DAG.
func (c *Client) GatewayURLFor(cid, filename string) string {
	u := *c.gatewayURL
	u.Path = "/ipfs/" + cid
	if filename != "" {
		u.Path += "/" + filename
	}
	return u.String()
}
