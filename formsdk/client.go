package formsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Backend is the forms platform capability set used by provisioning.
type Backend interface {
	UploadDocument(ctx context.Context, path string) (string, error)
	ReadTemplate(ctx context.Context, id int) (*FormDefinition, error)
	CreateCase(ctx context.Context, form *FormDefinition, siteUid int) (int, error)
	ListSites(ctx context.Context) ([]Site, error)
}

// APIError is a non-2xx answer from the forms platform.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("forms api %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// TransportError is a failure to reach the forms platform at all.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("forms api %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

type ClientOptions struct {
	BaseURL      string
	APIKey       string
	APIKeyHeader string
	// RatePerMinute <= 0 disables client-side throttling.
	RatePerMinute int
	Timeout       time.Duration
	HTTPClient    *http.Client
}

// Client talks JSON to the forms platform. Build it once per process and share it.
type Client struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	http      *http.Client
	limiter   <-chan time.Time
}

var _ Backend = (*Client)(nil)

func NewClient(opts ClientOptions) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("forms api base url is empty")
	}
	apiKeyHeader := strings.TrimSpace(opts.APIKeyHeader)
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	c := &Client{
		baseURL:   baseURL,
		apiKey:    opts.APIKey,
		apiKeyHdr: apiKeyHeader,
		http:      httpClient,
	}
	if opts.RatePerMinute > 0 {
		c.limiter = time.Tick(time.Minute / time.Duration(opts.RatePerMinute))
	}
	return c, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	select {
	case <-c.limiter:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	if err := c.wait(ctx); err != nil {
		return &TransportError{Method: method, Path: path, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set(c.apiKeyHdr, c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Method: method, Path: path, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: "malformed response: " + err.Error()}
	}
	return nil
}

// UploadDocument uploads a PDF and returns the platform's checksum handle.
func (c *Client) UploadDocument(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	var resp uploadResponse
	if err := c.do(ctx, http.MethodPost, "/api/pdfs", mw.FormDataContentType(), &buf, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Checksum) == "" {
		return "", &APIError{Method: http.MethodPost, Path: "/api/pdfs", StatusCode: http.StatusOK, Body: "empty checksum"}
	}
	return resp.Checksum, nil
}

func (c *Client) ReadTemplate(ctx context.Context, id int) (*FormDefinition, error) {
	var form FormDefinition
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/templates/%d", id), "", nil, &form); err != nil {
		return nil, err
	}
	return &form, nil
}

// CreateCase deploys form to one site and returns the platform case id.
func (c *Client) CreateCase(ctx context.Context, form *FormDefinition, siteUid int) (int, error) {
	payload, err := json.Marshal(createCaseRequest{SiteUid: siteUid, Form: form})
	if err != nil {
		return 0, err
	}
	var resp createCaseResponse
	if err := c.do(ctx, http.MethodPost, "/api/cases", "application/json", bytes.NewReader(payload), &resp); err != nil {
		return 0, err
	}
	id, err := resp.CaseId.Int64()
	if err != nil || id <= 0 {
		return 0, &APIError{Method: http.MethodPost, Path: "/api/cases", StatusCode: http.StatusOK, Body: fmt.Sprintf("invalid case id %q", resp.CaseId)}
	}
	return int(id), nil
}

func (c *Client) ListSites(ctx context.Context) ([]Site, error) {
	var sites []Site
	if err := c.do(ctx, http.MethodGet, "/api/sites", "", nil, &sites); err != nil {
		return nil, err
	}
	return sites, nil
}
