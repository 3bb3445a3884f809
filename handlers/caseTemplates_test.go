package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/lacase_backend/config"
	"github.com/mmdatafocus/lacase_backend/models"
	"github.com/mmdatafocus/lacase_backend/provisioning"
	"github.com/mmdatafocus/lacase_backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeStore struct {
	page    *models.CaseRecordPage
	err     error
	pingErr error
	lastQ   models.CaseRecordQuery
}

func (s *fakeStore) List(_ context.Context, q models.CaseRecordQuery) (*models.CaseRecordPage, error) {
	s.lastQ = q
	return s.page, s.err
}

func (s *fakeStore) ListRuns(context.Context, int) ([]models.ProvisioningRun, error) {
	return []models.ProvisioningRun{{ID: 1, Status: models.RunStatusSuccess}}, s.err
}

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }

type fakeProvisioner struct {
	routes      []config.Route
	triggeredBy string
	err         error
}

func (p *fakeProvisioner) Run(ctx context.Context, routes []config.Route) (*provisioning.Report, error) {
	p.routes = routes
	p.triggeredBy, _ = utils.GetTriggeredByFromContext(ctx)
	if p.err != nil {
		return nil, p.err
	}
	report := &provisioning.Report{CorrelationId: "cid", TriggeredBy: p.triggeredBy}
	for _, r := range routes {
		report.Routes = append(report.Routes, provisioning.RouteReport{Route: r, Outcome: provisioning.Succeeded(1, nil)})
	}
	return report, nil
}

var testRoutes = []config.Route{
	{RouteId: 24, DisplayName: "Århus H - Aalborg"},
	{RouteId: 25, DisplayName: "Aalborg - Lindholm"},
}

func newRouter(store *fakeStore, p *fakeProvisioner) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CorrelationMiddleware(), LocaleMiddleware())
	Register(r, store, p, testRoutes)
	return r
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func samplePage() *models.CaseRecordPage {
	return &models.CaseRecordPage{Total: 3, CaseTemplates: []models.CaseRecordListItem{
		{ID: 1, Title: "Århus H - Aalborg", CreatedAt: time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC), ShowFrom: "2024-03-14", ShowTo: "2024-03-15"},
		{ID: 2, Title: "Aalborg - Lindholm", CreatedAt: time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC), ShowFrom: "2024-03-14", ShowTo: "2024-03-15"},
	}}
}

func TestListCaseTemplates(t *testing.T) {
	store := &fakeStore{page: samplePage()}
	r := newRouter(store, &fakeProvisioner{})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/case-templates?sort=title&isSortDsc=true&nameFilter=Aal&offset=0&pageSize=2", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("x-correlation-id"))

	var page models.CaseRecordPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.EqualValues(t, 3, page.Total)
	assert.Len(t, page.CaseTemplates, 2)
	assert.Equal(t, models.CaseRecordQuery{Sort: "title", IsSortDsc: true, NameFilter: "Aal", PageSize: 2}, store.lastQ)
}

func TestListCaseTemplates_LocalizedGenericError(t *testing.T) {
	store := &fakeStore{err: errors.New("db exploded: table case_records missing")}
	r := newRouter(store, &fakeProvisioner{})

	req := httptest.NewRequest(http.MethodGet, "/api/case-templates", nil)
	req.Header.Set("Accept-Language", "da-DK,da;q=0.9,en;q=0.8")
	w := serve(r, req)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Der opstod en fejl under hentning af listen")
	assert.NotContains(t, w.Body.String(), "db exploded")

	req = httptest.NewRequest(http.MethodGet, "/api/case-templates", nil)
	req.Header.Set("Accept-Language", "en-US")
	w = serve(r, req)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "An error occurred while obtaining the list")

	// Bad query parameters are answered the same way.
	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/case-templates?offset=-1", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestExportCaseTemplates(t *testing.T) {
	store := &fakeStore{page: samplePage()}
	r := newRouter(store, &fakeProvisioner{})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/case-templates/export?nameFilter=Aal", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
	assert.Equal(t, models.MaxPageSize, store.lastQ.PageSize)

	f, err := excelize.OpenReader(strings.NewReader(w.Body.String()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("LA")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, models.CaseRecordExportHeadings, rows[0])
	assert.Equal(t, "Århus H - Aalborg", rows[1][1])
	assert.Equal(t, "2024-03-15", rows[2][3])
}

func TestProvision(t *testing.T) {
	p := &fakeProvisioner{}
	r := newRouter(&fakeStore{}, p)

	w := serve(r, httptest.NewRequest(http.MethodPost, "/api/case-templates/provision", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testRoutes, p.routes)
	assert.Equal(t, models.RunTriggeredManual, p.triggeredBy)
	assert.Contains(t, w.Body.String(), `"status":"success"`)

	req := httptest.NewRequest(http.MethodPost, "/api/case-templates/provision", strings.NewReader(`{"routeIds":[25]}`))
	req.Header.Set("Content-Type", "application/json")
	w = serve(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []config.Route{testRoutes[1]}, p.routes)

	req = httptest.NewRequest(http.MethodPost, "/api/case-templates/provision", strings.NewReader(`{"routeIds":[99]}`))
	req.Header.Set("Content-Type", "application/json")
	w = serve(r, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "99")

	p.err = provisioning.ErrNoRoutes
	w = serve(r, httptest.NewRequest(http.MethodPost, "/api/case-templates/provision", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthAndRuns(t *testing.T) {
	store := &fakeStore{}
	r := newRouter(store, &fakeProvisioner{})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/provisioning-runs?limit=5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"success"`)

	store.pingErr = errors.New("down")
	w = serve(r, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPubSubPush(t *testing.T) {
	p := &fakeProvisioner{}
	r := newRouter(&fakeStore{}, p)

	// data is base64 of {"routeIds":[24]}.
	body := `{"message":{"data":"eyJyb3V0ZUlkcyI6WzI0XX0=","attributes":{"correlation_id":"cid-push"},"messageId":"1"},"subscription":"s"}`
	w := serve(r, httptest.NewRequest(http.MethodPost, "/pubsub/la-provision", strings.NewReader(body)))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []config.Route{testRoutes[0]}, p.routes)
	assert.Equal(t, models.RunTriggeredSystem, p.triggeredBy)

	p.routes = nil
	w = serve(r, httptest.NewRequest(http.MethodPost, "/pubsub/la-provision", strings.NewReader("not json")))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Nil(t, p.routes)

	p.err = errors.New("store unreachable")
	w = serve(r, httptest.NewRequest(http.MethodPost, "/pubsub/la-provision", strings.NewReader(`{"message":{"messageId":"2"}}`)))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, testRoutes, p.routes)
}
