package provisioning

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/mmdatafocus/lacase_backend/config"
	"github.com/mmdatafocus/lacase_backend/formsdk"
	"github.com/mmdatafocus/lacase_backend/models"
	"github.com/mmdatafocus/lacase_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("lacase_backend/provisioning")

const moduleName = "provisioning"

// persistTimeout bounds the record write that follows case creation.
const persistTimeout = 30 * time.Second

// RecordStore is the persistence the orchestrator needs.
type RecordStore interface {
	Ping(ctx context.Context) error
	FindActive(ctx context.Context, title string, start, end time.Time) (*models.CaseRecord, bool, error)
	CreateWithSites(ctx context.Context, rec *models.CaseRecord, sites []models.CaseRecordSite) error
}

type RunStore interface {
	SaveRun(ctx context.Context, run *models.ProvisioningRun) error
}

// Deps are the collaborators of an Orchestrator. Store, Backend and Locker are
// required; the rest are optional.
type Deps struct {
	Store    RecordStore
	Runs     RunStore
	Backend  formsdk.Backend
	Locker   Locker
	Archiver Archiver
	Notifier Notifier
	Clock    Clock
	Logger   *logrus.Logger
	// nil builds one from Settings.
	Fetcher *Fetcher
}

// Orchestrator provisions LA cases for a set of routes.
type Orchestrator struct {
	cutoff           Cutoff
	templateId       int
	lockTTL          time.Duration
	routeConcurrency int

	store    RecordStore
	runs     RunStore
	backend  formsdk.Backend
	locker   Locker
	archiver Archiver
	notifier Notifier
	clock    Clock
	logger   *logrus.Logger

	fetcher      *Fetcher
	ingestor     *Ingestor
	materializer *Materializer
	dispatcher   *Dispatcher
}

func New(s *config.Settings, d Deps) (*Orchestrator, error) {
	if s == nil {
		return nil, errors.New("settings are required")
	}
	if d.Store == nil || d.Backend == nil || d.Locker == nil {
		return nil, errors.New("store, backend and locker are required")
	}
	if d.Clock == nil {
		d.Clock = SystemClock{}
	}
	if d.Logger == nil {
		d.Logger = config.GetLogger()
	}
	if d.Fetcher == nil {
		d.Fetcher = NewFetcher(s.DocumentBaseURL, s.OutputDir, &http.Client{Timeout: s.HTTPTimeout})
	}
	return &Orchestrator{
		cutoff:           Cutoff{Hour: s.CutoffHour, Minute: s.CutoffMinute, Location: s.Location},
		templateId:       s.TemplateId,
		lockTTL:          s.LockTTL,
		routeConcurrency: max(s.RouteConcurrency, 1),
		store:            d.Store,
		runs:             d.Runs,
		backend:          d.Backend,
		locker:           d.Locker,
		archiver:         d.Archiver,
		notifier:         d.Notifier,
		clock:            d.Clock,
		logger:           d.Logger,
		fetcher:          d.Fetcher,
		ingestor:         NewIngestor(d.Backend),
		materializer:     NewMaterializer(s.ProductLabel, s.Locale),
		dispatcher:       NewDispatcher(d.Backend, s.SiteConcurrency),
	}, nil
}

// Window is the window a run started now would provision.
func (o *Orchestrator) Window() Window {
	return ComputeWindow(o.clock.Now(), o.cutoff)
}

// Run provisions every route for the current window. Route failures are
// reported in the Report; an error is returned only when the run could not
// start at all (no or invalid routes, unreachable store).
func (o *Orchestrator) Run(ctx context.Context, routes []config.Route) (*Report, error) {
	if len(routes) == 0 {
		return nil, ErrNoRoutes
	}
	for _, r := range routes {
		if r.RouteId <= 0 || strings.TrimSpace(r.DisplayName) == "" {
			return nil, fmt.Errorf("%w: %+v", ErrInvalidRoute, r)
		}
	}
	if err := o.store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("store unreachable: %w", err)
	}

	ctx, cid := utils.EnsureCorrelationId(ctx)
	triggeredBy, _ := utils.GetTriggeredByFromContext(ctx)
	if triggeredBy == "" {
		triggeredBy = models.RunTriggeredSystem
	}

	ctx, span := tracer.Start(ctx, "provisioning.Run", trace.WithAttributes(
		attribute.String("correlation_id", cid),
		attribute.Int("routes", len(routes)),
	))
	defer span.End()

	now := o.clock.Now()
	report := &Report{
		CorrelationId: cid,
		TriggeredBy:   triggeredBy,
		Window:        ComputeWindow(now, o.cutoff),
		StartedAt:     now,
		Routes:        make([]RouteReport, len(routes)),
	}
	o.logger.WithFields(logrus.Fields{
		"correlation_id": cid,
		"window":         report.Window.String(),
		"cutoff_crossed": report.Window.CutoffCrossed,
		"routes":         len(routes),
	}).Info("provisioning run started")

	var g errgroup.Group
	g.SetLimit(o.routeConcurrency)
	for i, route := range routes {
		i, route := i, route
		g.Go(func() error {
			report.Routes[i] = RouteReport{Route: route, Outcome: o.provisionRoute(ctx, route, report.Window)}
			return nil
		})
	}
	_ = g.Wait()
	report.FinishedAt = o.clock.Now()

	status := report.Status()
	span.SetAttributes(attribute.String("status", status))
	o.logger.WithFields(logrus.Fields{
		"correlation_id": cid,
		"status":         status,
		"succeeded":      report.Count(OutcomeSucceeded),
		"deduplicated":   report.Count(OutcomeDeduplicated),
		"failed":         report.Count(OutcomeFailed),
	}).Info("provisioning run finished")

	// Bookkeeping must not turn a finished run into a failure.
	if o.runs != nil {
		if err := o.runs.SaveRun(context.WithoutCancel(ctx), report.ToRun()); err != nil {
			config.LogError(o.logger, moduleName, "Run", "save provisioning run", cid, err)
		}
	}
	if o.notifier != nil {
		if err := o.notifier.Notify(context.WithoutCancel(ctx), report); err != nil {
			config.LogError(o.logger, moduleName, "Run", "notify provisioning report", cid, err)
		}
	}
	return report, nil
}

func (o *Orchestrator) provisionRoute(ctx context.Context, route config.Route, w Window) (outcome Outcome) {
	ctx, span := tracer.Start(ctx, "provisioning.route", trace.WithAttributes(
		attribute.Int("route_id", route.RouteId),
		attribute.String("window", w.String()),
	))
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	log := o.logger.WithFields(logrus.Fields{
		"correlation_id": cid,
		"route_id":       route.RouteId,
		"route":          route.DisplayName,
	})
	defer func() {
		span.SetAttributes(attribute.String("outcome", string(outcome.Kind)))
		if outcome.Err != nil {
			span.RecordError(outcome.Err)
			span.SetStatus(codes.Error, string(outcome.Stage))
			log.WithFields(logrus.Fields{"stage": outcome.Stage}).WithError(outcome.Err).Error("route provisioning failed")
		}
		span.End()
	}()

	// Held across dedup and persist so concurrent runs cannot both create.
	lease, err := o.locker.Obtain(ctx, routeLockKey(route.RouteId, w), o.lockTTL)
	if err != nil {
		return Failed(StageLock, err)
	}
	held := keepAlive(ctx, lease, o.lockTTL)
	defer func() {
		if rerr := held.Release(context.WithoutCancel(ctx)); rerr != nil {
			log.WithError(rerr).Warn("release route lock")
		}
	}()

	existing, found, err := o.store.FindActive(ctx, route.DisplayName, w.StartDate, w.EndDate)
	if err != nil {
		return Failed(StageDedup, err)
	}
	if found {
		log.WithField("case_record_id", existing.ID).Info("route already provisioned for window")
		return Deduplicated(existing.ID)
	}

	localPath, err := o.fetcher.Fetch(ctx, route.RouteId, w)
	if err != nil {
		return Failed(StageFetch, err)
	}
	log.WithField("path", localPath).Debug("LA document fetched")

	if o.archiver != nil {
		if aerr := o.archiver.Archive(ctx, localPath, filepath.Base(localPath)); aerr != nil {
			config.LogError(o.logger, moduleName, "provisionRoute", "archive LA document", localPath, aerr)
		}
	}

	documentReference, err := o.ingestor.Ingest(ctx, localPath)
	if err != nil {
		return Failed(StageIngest, err)
	}

	template, err := o.backend.ReadTemplate(ctx, o.templateId)
	if err != nil {
		return Failed(StageMaterialize, fmt.Errorf("read template %d: %w", o.templateId, err))
	}
	form, err := o.materializer.Materialize(*template, route, w, documentReference)
	if err != nil {
		return Failed(StageMaterialize, err)
	}

	sites, err := o.backend.ListSites(ctx)
	if err != nil {
		return Failed(StageDispatch, fmt.Errorf("list sites: %w", err))
	}
	siteIds := make([]int, 0, len(sites))
	for _, s := range sites {
		siteIds = append(siteIds, s.SiteUid)
	}
	if err := held.Err(); err != nil {
		return Failed(StageLock, err)
	}
	results := o.dispatcher.Dispatch(ctx, form, siteIds)

	links := make([]models.CaseRecordSite, 0, len(results))
	for _, r := range results {
		if r.OK() {
			links = append(links, models.CaseRecordSite{SiteId: r.SiteId, BackingCaseId: r.BackingCaseId})
		} else {
			log.WithFields(logrus.Fields{"site_id": r.SiteId}).WithError(r.Err).Warn("case creation failed for site")
		}
	}
	if len(results) > 0 && len(links) == 0 {
		// Nothing reached a field worker; leave the window open for the next run.
		out := Failed(StageDispatch, ErrNoSiteSucceeded)
		out.Sites = results
		return out
	}

	rec := &models.CaseRecord{
		Title:             route.DisplayName,
		StartAt:           w.StartDate,
		EndAt:             w.EndDate,
		DocumentReference: documentReference,
	}
	if err := held.Err(); err != nil {
		log.WithError(err).Warn("route lock lost during dispatch")
	}
	// Cases already exist on the platform; the record is written even after ctx is done.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := o.store.CreateWithSites(persistCtx, rec, links); err != nil {
		out := Failed(StagePersist, err)
		out.Sites = results
		return out
	}

	log.WithFields(logrus.Fields{
		"case_record_id": rec.ID,
		"sites_ok":       len(links),
		"sites_failed":   len(results) - len(links),
	}).Info("route provisioned")
	return Succeeded(rec.ID, results)
}
