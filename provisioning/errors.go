package provisioning

import (
	"errors"
	"fmt"
)

var (
	ErrProvisioningInProgress = errors.New("provisioning for this route and window is in progress elsewhere")
	ErrNoRoutes               = errors.New("no routes to provision")
	ErrInvalidRoute           = errors.New("invalid route")
	ErrNoSiteSucceeded        = errors.New("case creation failed for every site")
	ErrLeaseLost              = errors.New("route lock expired before the route finished")
)

type FetchErrorKind string

const (
	FetchNotFound FetchErrorKind = "NotFound"
	FetchNetwork  FetchErrorKind = "Network"
	FetchLocalIO  FetchErrorKind = "LocalIO"
)

type FetchError struct {
	Kind FetchErrorKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

type IngestErrorKind string

const IngestUploadFailed IngestErrorKind = "UploadFailed"

type IngestError struct {
	Kind IngestErrorKind
	Path string
	Err  error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest %s (%s): %v", e.Path, e.Kind, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

type DispatchErrorKind string

const (
	DispatchSiteUnreachable DispatchErrorKind = "SiteUnreachable"
	DispatchBackingRejected DispatchErrorKind = "BackingRejected"
)

type DispatchError struct {
	Kind   DispatchErrorKind
	SiteId int
	Err    error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch site %d (%s): %v", e.SiteId, e.Kind, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
