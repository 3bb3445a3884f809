package provisioning

import (
	"context"
	"errors"

	"github.com/mmdatafocus/lacase_backend/formsdk"
	"golang.org/x/sync/errgroup"
)

// SiteResult is the outcome of case creation for one site.
type SiteResult struct {
	SiteId        int   `json:"siteId"`
	BackingCaseId int   `json:"backingCaseId,omitempty"`
	Err           error `json:"-"`
}

func (r SiteResult) OK() bool { return r.Err == nil }

// Dispatcher creates one case per site with at most concurrency requests in flight.
type Dispatcher struct {
	backend     formsdk.Backend
	concurrency int
}

func NewDispatcher(backend formsdk.Backend, concurrency int) *Dispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Dispatcher{backend: backend, concurrency: concurrency}
}

// Dispatch attempts every site and returns results in the order of sites.
// A failing site never stops the others.
func (d *Dispatcher) Dispatch(ctx context.Context, form *formsdk.FormDefinition, sites []int) []SiteResult {
	results := make([]SiteResult, len(sites))
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, siteId := range sites {
		i, siteId := i, siteId
		g.Go(func() error {
			results[i] = d.createCase(ctx, form, siteId)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (d *Dispatcher) createCase(ctx context.Context, form *formsdk.FormDefinition, siteId int) SiteResult {
	if err := ctx.Err(); err != nil {
		return SiteResult{SiteId: siteId, Err: &DispatchError{Kind: DispatchSiteUnreachable, SiteId: siteId, Err: err}}
	}
	caseId, err := d.backend.CreateCase(ctx, form, siteId)
	if err != nil {
		return SiteResult{SiteId: siteId, Err: &DispatchError{Kind: classifyDispatch(err), SiteId: siteId, Err: err}}
	}
	return SiteResult{SiteId: siteId, BackingCaseId: caseId}
}

func classifyDispatch(err error) DispatchErrorKind {
	var transportErr *formsdk.TransportError
	if errors.As(err, &transportErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return DispatchSiteUnreachable
	}
	return DispatchBackingRejected
}
