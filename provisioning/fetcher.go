package provisioning

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Fetcher downloads LA documents from the route information site.
type Fetcher struct {
	baseURL   string
	outputDir string
	http      *http.Client
}

func NewFetcher(baseURL, outputDir string, httpClient *http.Client) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{
		baseURL:   strings.TrimRight(baseURL, "/"),
		outputDir: outputDir,
		http:      httpClient,
	}
}

func (f *Fetcher) URL(routeId int, w Window) string {
	return fmt.Sprintf("%s/%s.pdf", f.baseURL, w.ResourceId(routeId))
}

// LocalPath is where Fetch stores the document for routeId and w.
func (f *Fetcher) LocalPath(routeId int, w Window) string {
	return filepath.Join(f.outputDir, w.ResourceId(routeId)+".pdf")
}

// Fetch downloads the document and returns its local path. A previous
// download for the same route and window is replaced.
func (f *Fetcher) Fetch(ctx context.Context, routeId int, w Window) (string, error) {
	url := f.URL(routeId, w)
	if err := os.MkdirAll(f.outputDir, 0o755); err != nil {
		return "", &FetchError{Kind: FetchLocalIO, URL: url, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &FetchError{Kind: FetchNetwork, URL: url, Err: err}
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return "", &FetchError{Kind: FetchNetwork, URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &FetchError{Kind: FetchNotFound, URL: url, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	dest := f.LocalPath(routeId, w)
	tmp, err := os.CreateTemp(f.outputDir, filepath.Base(dest)+".*.part")
	if err != nil {
		return "", &FetchError{Kind: FetchLocalIO, URL: url, Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		kind := FetchNetwork
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			kind = FetchLocalIO
		}
		return "", &FetchError{Kind: kind, URL: url, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return "", &FetchError{Kind: FetchLocalIO, URL: url, Err: err}
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return "", &FetchError{Kind: FetchLocalIO, URL: url, Err: err}
	}
	return dest, nil
}
