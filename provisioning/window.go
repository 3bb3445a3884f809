package provisioning

import (
	"fmt"
	"time"

	"github.com/mmdatafocus/lacase_backend/utils"
)

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns T.
type FixedClock struct{ T time.Time }

func (c FixedClock) Now() time.Time { return c.T }

// Cutoff is the local time of day after which the window moves one day forward.
type Cutoff struct {
	Hour     int
	Minute   int
	Location *time.Location
}

// Window is the two-day validity period a run provisions for.
type Window struct {
	StartDate     time.Time `json:"startDate"`
	EndDate       time.Time `json:"endDate"`
	CutoffCrossed bool      `json:"cutoffCrossed"`
}

// ComputeWindow returns [today+1, today+2], or [today+2, today+3] when now is
// strictly after the cutoff. Dates are midnights in the cutoff location.
func ComputeWindow(now time.Time, cutoff Cutoff) Window {
	loc := cutoff.Location
	if loc == nil {
		loc = now.Location()
	}
	local := now.In(loc)
	today := utils.DateOnly(local, loc)
	cutoffAt := time.Date(today.Year(), today.Month(), today.Day(), cutoff.Hour, cutoff.Minute, 0, 0, loc)

	crossed := local.After(cutoffAt)
	offset := 1
	if crossed {
		offset = 2
	}
	start := today.AddDate(0, 0, offset)
	return Window{
		StartDate:     start,
		EndDate:       start.AddDate(0, 0, 1),
		CutoffCrossed: crossed,
	}
}

// ResourceId names the LA document of a route for this window, e.g. La-24-2024-03-14-2024-03-15.
func (w Window) ResourceId(routeId int) string {
	return fmt.Sprintf("La-%d-%s-%s", routeId, utils.FormatDate(w.StartDate), utils.FormatDate(w.EndDate))
}

func (w Window) String() string {
	return utils.FormatDate(w.StartDate) + ".." + utils.FormatDate(w.EndDate)
}
