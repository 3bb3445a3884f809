package provisioning

import (
	"encoding/json"
	"time"

	"github.com/mmdatafocus/lacase_backend/config"
	"github.com/mmdatafocus/lacase_backend/models"
)

type OutcomeKind string

const (
	OutcomeSucceeded    OutcomeKind = "succeeded"
	OutcomeDeduplicated OutcomeKind = "deduplicated"
	OutcomeFailed       OutcomeKind = "failed"
)

type Stage string

const (
	StageLock        Stage = "lock"
	StageDedup       Stage = "dedup"
	StageFetch       Stage = "fetch"
	StageIngest      Stage = "ingest"
	StageMaterialize Stage = "materialize"
	StageDispatch    Stage = "dispatch"
	StagePersist     Stage = "persist"
)

// Outcome is the end state of one route in a run. Stage and Err are set only
// for failures; Sites only once dispatch ran.
type Outcome struct {
	Kind         OutcomeKind
	Stage        Stage
	Err          error
	CaseRecordId int
	Sites        []SiteResult
}

func Succeeded(caseRecordId int, sites []SiteResult) Outcome {
	return Outcome{Kind: OutcomeSucceeded, CaseRecordId: caseRecordId, Sites: sites}
}

func Deduplicated(caseRecordId int) Outcome {
	return Outcome{Kind: OutcomeDeduplicated, CaseRecordId: caseRecordId}
}

func Failed(stage Stage, err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Stage: stage, Err: err}
}

func (o Outcome) SucceededSites() []SiteResult {
	var out []SiteResult
	for _, s := range o.Sites {
		if s.OK() {
			out = append(out, s)
		}
	}
	return out
}

func (o Outcome) FailedSites() []SiteResult {
	var out []SiteResult
	for _, s := range o.Sites {
		if !s.OK() {
			out = append(out, s)
		}
	}
	return out
}

// Partial is a success where some sites did not get a case.
func (o Outcome) Partial() bool {
	return o.Kind == OutcomeSucceeded && len(o.FailedSites()) > 0
}

type failedSiteJSON struct {
	SiteId int    `json:"siteId"`
	Error  string `json:"error"`
}

type outcomeJSON struct {
	Kind         OutcomeKind      `json:"kind"`
	Stage        Stage            `json:"stage,omitempty"`
	Error        string           `json:"error,omitempty"`
	CaseRecordId int              `json:"caseRecordId,omitempty"`
	Partial      bool             `json:"partial,omitempty"`
	Sites        []SiteResult     `json:"sites,omitempty"`
	FailedSites  []failedSiteJSON `json:"failedSites,omitempty"`
}

func failedSitesJSON(sites []SiteResult) []failedSiteJSON {
	var out []failedSiteJSON
	for _, s := range sites {
		if !s.OK() {
			out = append(out, failedSiteJSON{SiteId: s.SiteId, Error: s.Err.Error()})
		}
	}
	return out
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	out := outcomeJSON{
		Kind:         o.Kind,
		Stage:        o.Stage,
		CaseRecordId: o.CaseRecordId,
		Partial:      o.Partial(),
		Sites:        o.SucceededSites(),
		FailedSites:  failedSitesJSON(o.Sites),
	}
	if o.Err != nil {
		out.Error = o.Err.Error()
	}
	return json.Marshal(out)
}

type RouteReport struct {
	Route   config.Route `json:"route"`
	Outcome Outcome      `json:"outcome"`
}

// Report covers every route of one run, in the order the routes were given.
type Report struct {
	CorrelationId string        `json:"correlationId"`
	TriggeredBy   string        `json:"triggeredBy"`
	Window        Window        `json:"window"`
	StartedAt     time.Time     `json:"startedAt"`
	FinishedAt    time.Time     `json:"finishedAt"`
	Routes        []RouteReport `json:"routes"`
}

func (r *Report) Count(kind OutcomeKind) int {
	n := 0
	for _, rr := range r.Routes {
		if rr.Outcome.Kind == kind {
			n++
		}
	}
	return n
}

// Status is failed when no route succeeded or deduplicated, partial when any
// route failed or lost sites, success otherwise.
func (r *Report) Status() string {
	failed := r.Count(OutcomeFailed)
	if len(r.Routes) > 0 && failed == len(r.Routes) {
		return models.RunStatusFailed
	}
	if failed > 0 {
		return models.RunStatusPartial
	}
	for _, rr := range r.Routes {
		if rr.Outcome.Partial() {
			return models.RunStatusPartial
		}
	}
	return models.RunStatusSuccess
}

// ToRun converts the report into its persisted form.
func (r *Report) ToRun() *models.ProvisioningRun {
	run := &models.ProvisioningRun{
		CorrelationId:     r.CorrelationId,
		WindowStart:       r.Window.StartDate,
		WindowEnd:         r.Window.EndDate,
		CutoffCrossed:     r.Window.CutoffCrossed,
		Status:            r.Status(),
		TriggeredBy:       r.TriggeredBy,
		RouteCount:        len(r.Routes),
		SucceededCount:    r.Count(OutcomeSucceeded),
		DeduplicatedCount: r.Count(OutcomeDeduplicated),
		FailedCount:       r.Count(OutcomeFailed),
		StartedAt:         r.StartedAt,
		FinishedAt:        r.FinishedAt,
		DurationMs:        r.FinishedAt.Sub(r.StartedAt).Milliseconds(),
	}
	for _, rr := range r.Routes {
		o := rr.Outcome
		row := models.ProvisioningRunRoute{
			RouteId:        rr.Route.RouteId,
			Title:          rr.Route.DisplayName,
			Outcome:        string(o.Kind),
			Stage:          string(o.Stage),
			SitesSucceeded: len(o.SucceededSites()),
			SitesFailed:    len(o.FailedSites()),
		}
		if o.Err != nil {
			row.Message = o.Err.Error()
		}
		if o.CaseRecordId > 0 {
			id := o.CaseRecordId
			row.CaseRecordId = &id
		}
		if failed := failedSitesJSON(o.Sites); len(failed) > 0 {
			row.FailedSitesJSON, _ = json.Marshal(failed)
		}
		run.Routes = append(run.Routes, row)
	}
	return run
}
