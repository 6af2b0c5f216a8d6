// Package sandbox wraps the remote execution sandbox's file API. The loader
// consumes only the ContentFetcher interface; the full Client adds the
// listing and save endpoints used by the CLI.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// ErrNotFound is returned when the sandbox reports a missing file.
var ErrNotFound = errors.New("sandbox: file not found")

// FileContent is a fetched file's payload.
type FileContent struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// FileInfo describes one file in a session's tree listing.
type FileInfo struct {
	Path  string `json:"path"`
	Size  int64  `json:"size"`
	IsDir bool   `json:"is_dir"`
}

// ContentFetcher is the single collaborator the load pipeline needs.
type ContentFetcher interface {
	FetchFileContent(ctx context.Context, sessionID, path string) (*FileContent, error)
}

// FetcherFunc adapts a function to the ContentFetcher interface.
type FetcherFunc func(ctx context.Context, sessionID, path string) (*FileContent, error)

func (f FetcherFunc) FetchFileContent(ctx context.Context, sessionID, path string) (*FileContent, error) {
	return f(ctx, sessionID, path)
}

// envelope is the sandbox API's uniform response wrapper. Failure is
// signaled via Success=false plus a message, not transport errors.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Client wraps HTTP calls to the sandbox file API.
type Client struct {
	BaseURL string
	APIKey  string
	client  *http.Client
}

// NewClient creates a sandbox API client. The fetch timeout is applied per
// call via context, not on the http.Client, so callers stay in control.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		client:  &http.Client{},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("sandbox API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !env.Success {
		if env.Error == "" {
			env.Error = "unknown sandbox error"
		}
		return nil, fmt.Errorf("sandbox: %s", env.Error)
	}
	return env.Data, nil
}

// FetchFileContent retrieves one file's content from the session.
func (c *Client) FetchFileContent(ctx context.Context, sessionID, path string) (*FileContent, error) {
	q := url.Values{"path": {path}}
	data, err := c.do(ctx, http.MethodGet,
		fmt.Sprintf("/v1/sessions/%s/files/content?%s", url.PathEscape(sessionID), q.Encode()), nil)
	if err != nil {
		return nil, err
	}
	var fc FileContent
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("decode file content: %w", err)
	}
	if fc.Path == "" {
		fc.Path = path
	}
	return &fc, nil
}

// ListFiles returns the session's file tree under dir ("" for the root).
func (c *Client) ListFiles(ctx context.Context, sessionID, dir string) ([]FileInfo, error) {
	q := url.Values{}
	if dir != "" {
		q.Set("dir", dir)
	}
	path := fmt.Sprintf("/v1/sessions/%s/files", url.PathEscape(sessionID))
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Files []FileInfo `json:"files"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode file list: %w", err)
	}
	return out.Files, nil
}

// SaveFile writes content back to the sandbox.
func (c *Client) SaveFile(ctx context.Context, sessionID, path, content string) error {
	body := map[string]string{"path": path, "content": content}
	_, err := c.do(ctx, http.MethodPut,
		fmt.Sprintf("/v1/sessions/%s/files/content", url.PathEscape(sessionID)), body)
	return err
}
