package formsdk

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(ClientOptions{BaseURL: srv.URL + "/", APIKey: "secret"})
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient(ClientOptions{BaseURL: "  "})
	assert.Error(t, err)
}

func TestClient_UploadDocument(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/pdfs", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		body, _ := io.ReadAll(file)
		assert.Equal(t, "La-24.pdf", header.Filename)
		assert.Equal(t, "%PDF", string(body))
		_, _ = w.Write([]byte(`{"checksum":"abc123"}`))
	})

	path := filepath.Join(t.TempDir(), "La-24.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o644))
	ref, err := c.UploadDocument(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "abc123", ref)
}

func TestClient_UploadDocument_EmptyChecksum(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"checksum":""}`))
	})
	path := filepath.Join(t.TempDir(), "a.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o644))
	_, err := c.UploadDocument(context.Background(), path)
	var apiErr *APIError
	assert.ErrorAs(t, err, &apiErr)
}

func TestClient_ReadTemplateAndCreateCase(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/templates/9":
			_, _ = w.Write([]byte(`{"id":9,"label":"LA","repeated":0,"elements":[{"id":1,"label":"e","dataItems":[{"id":2,"type":"None","label":"l"},{"id":3,"type":"ShowPdf","label":"p"}]}]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/cases":
			var req createCaseRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, 7, req.SiteUid)
			assert.Equal(t, "LA", req.Form.Label)
			_, _ = w.Write([]byte(`{"caseId":4711}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/sites":
			_, _ = w.Write([]byte(`[{"siteUid":7,"name":"Aalborg"}]`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	form, err := c.ReadTemplate(ctx, 9)
	require.NoError(t, err)
	slots, err := form.Slots()
	require.NoError(t, err)
	assert.Equal(t, 3, slots.PdfItem.Id)

	id, err := c.CreateCase(ctx, form, 7)
	require.NoError(t, err)
	assert.Equal(t, 4711, id)

	sites, err := c.ListSites(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Site{{SiteUid: 7, Name: "Aalborg"}}, sites)

	_, err = c.ReadTemplate(ctx, 10)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	c, err := NewClient(ClientOptions{BaseURL: url})
	require.NoError(t, err)

	_, err = c.ListSites(context.Background())
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.True(t, errors.Unwrap(err) != nil)
}
