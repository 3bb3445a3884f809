package provisioning

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/lacase_backend/config"
	"github.com/mmdatafocus/lacase_backend/formsdk"
	"github.com/mmdatafocus/lacase_backend/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testTemplate() formsdk.FormDefinition {
	return formsdk.FormDefinition{
		Id:    9,
		Label: "LA template",
		Elements: []formsdk.DataElement{{
			Id:    1,
			Label: "template",
			DataItems: []formsdk.DataItem{
				{Id: 10, Type: formsdk.DataItemNone, Label: "route"},
				{Id: 11, Type: formsdk.DataItemShowPdf, Label: "document"},
				{Id: 12, Type: formsdk.DataItemCheckBox, Label: "Læst og forstået"},
			},
		}},
	}
}

// fakeBackend is an in-memory forms platform.
type fakeBackend struct {
	mu        sync.Mutex
	template  formsdk.FormDefinition
	sites     []formsdk.Site
	failSites map[int]error
	uploadErr error

	// listSitesDelay holds ListSites back, e.g. to let a lease expire.
	listSitesDelay time.Duration

	uploads []string
	cases   map[int][]*formsdk.FormDefinition
	nextId  int
}

func newFakeBackend(siteIds ...int) *fakeBackend {
	b := &fakeBackend{
		template:  testTemplate(),
		failSites: map[int]error{},
		cases:     map[int][]*formsdk.FormDefinition{},
		nextId:    1000,
	}
	for _, id := range siteIds {
		b.sites = append(b.sites, formsdk.Site{SiteUid: id, Name: fmt.Sprintf("site %d", id)})
	}
	return b
}

func (b *fakeBackend) UploadDocument(_ context.Context, path string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.uploadErr != nil {
		return "", b.uploadErr
	}
	b.uploads = append(b.uploads, path)
	return "chk-" + filepath.Base(path), nil
}

func (b *fakeBackend) ReadTemplate(_ context.Context, id int) (*formsdk.FormDefinition, error) {
	if id != b.template.Id {
		return nil, &formsdk.APIError{Method: http.MethodGet, Path: fmt.Sprintf("/api/templates/%d", id), StatusCode: http.StatusNotFound}
	}
	t := b.template.Clone()
	return &t, nil
}

func (b *fakeBackend) CreateCase(_ context.Context, form *formsdk.FormDefinition, siteUid int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failSites[siteUid]; err != nil {
		return 0, err
	}
	b.nextId++
	f := form.Clone()
	b.cases[siteUid] = append(b.cases[siteUid], &f)
	return b.nextId, nil
}

func (b *fakeBackend) ListSites(context.Context) ([]formsdk.Site, error) {
	time.Sleep(b.listSitesDelay)
	return append([]formsdk.Site(nil), b.sites...), nil
}

func (b *fakeBackend) setSiteFailure(siteUid int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.failSites, siteUid)
		return
	}
	b.failSites[siteUid] = err
}

func (b *fakeBackend) casesFor(siteUid int) []*formsdk.FormDefinition {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*formsdk.FormDefinition(nil), b.cases[siteUid]...)
}

func (b *fakeBackend) caseCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.cases {
		n += len(c)
	}
	return n
}

// documentServer serves a PDF for every path except those listed in missing.
type documentServer struct {
	*httptest.Server
	mu       sync.Mutex
	hits     []string
	missing  map[string]bool
	contents string
}

func newDocumentServer(t *testing.T) *documentServer {
	ds := &documentServer{missing: map[string]bool{}, contents: "%PDF-1.4 la"}
	ds.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ds.mu.Lock()
		ds.hits = append(ds.hits, r.URL.Path)
		missing := false
		for frag := range ds.missing {
			if strings.Contains(r.URL.Path, frag) {
				missing = true
			}
		}
		contents := ds.contents
		ds.mu.Unlock()
		if missing {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte(contents))
	}))
	t.Cleanup(ds.Close)
	return ds
}

func (ds *documentServer) setMissing(fragment string, missing bool) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if missing {
		ds.missing[fragment] = true
		return
	}
	delete(ds.missing, fragment)
}

func (ds *documentServer) requested() []string {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return append([]string(nil), ds.hits...)
}

func newTestCaseStore(t *testing.T, loc *time.Location) *models.CaseStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()))
	db, err := gorm.Open(sqlite.Open(dsn), config.GormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, models.MigrateTable(db))
	return models.NewCaseStore(db, loc)
}

type recordingNotifier struct {
	mu      sync.Mutex
	reports []*Report
	err     error
}

func (n *recordingNotifier) Notify(_ context.Context, r *Report) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reports = append(n.reports, r)
	return n.err
}

type failingPinger struct{ RecordStore }

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

type harness struct {
	settings *config.Settings
	backend  *fakeBackend
	docs     *documentServer
	store    *models.CaseStore
	locker   *LocalLocker
	notifier *recordingNotifier
	clock    FixedClock
}

var (
	routeAarhus   = config.Route{RouteId: 24, DisplayName: "Århus H - Aalborg"}
	routeLindholm = config.Route{RouteId: 25, DisplayName: "Aalborg - Lindholm"}
)

func newHarness(t *testing.T, siteIds ...int) *harness {
	t.Helper()
	loc := mustLoc(t)
	h := &harness{
		backend:  newFakeBackend(siteIds...),
		docs:     newDocumentServer(t),
		locker:   NewLocalLocker(),
		notifier: &recordingNotifier{},
		clock:    FixedClock{T: time.Date(2024, 3, 13, 10, 0, 0, 0, loc)},
	}
	// Before the cutoff, so the window is 2024-03-14..2024-03-15.
	h.store = newTestCaseStore(t, loc)
	h.settings = &config.Settings{
		Routes:           []config.Route{routeAarhus, routeLindholm},
		CutoffHour:       14,
		Location:         loc,
		TemplateId:       9,
		ProductLabel:     "Banedanmark LA",
		Locale:           language.Danish,
		DocumentBaseURL:  h.docs.URL,
		OutputDir:        t.TempDir(),
		HTTPTimeout:      5 * time.Second,
		RouteConcurrency: 2,
		SiteConcurrency:  2,
		LockTTL:          time.Minute,
	}
	return h
}

func (h *harness) orchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	o, err := New(h.settings, Deps{
		Store:    h.store,
		Runs:     h.store,
		Backend:  h.backend,
		Locker:   h.locker,
		Notifier: h.notifier,
		Clock:    h.clock,
		Logger:   logger,
	})
	require.NoError(t, err)
	return o
}

// cancellingBackend cancels the run's context right after each case is created.
type cancellingBackend struct {
	*fakeBackend
	cancel context.CancelFunc
}

func (b cancellingBackend) CreateCase(ctx context.Context, form *formsdk.FormDefinition, siteUid int) (int, error) {
	id, err := b.fakeBackend.CreateCase(ctx, form, siteUid)
	b.cancel()
	return id, err
}

// lostLease never refreshes.
type lostLease struct{}

func (lostLease) Refresh(context.Context, time.Duration) error { return ErrLeaseLost }
func (lostLease) Release(context.Context) error { return nil }

type losingLocker struct{}

func (losingLocker) Obtain(context.Context, string, time.Duration) (Lease, error) {
	return lostLease{}, nil
}

// steppingClock advances by step on every call.
type steppingClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}
