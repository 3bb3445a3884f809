package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/lacase_backend/config"
	"github.com/mmdatafocus/lacase_backend/models"
	"github.com/mmdatafocus/lacase_backend/provisioning"
	"github.com/mmdatafocus/lacase_backend/utils"
)

const moduleName = "handlers"

type CaseLister interface {
	List(ctx context.Context, q models.CaseRecordQuery) (*models.CaseRecordPage, error)
}

type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]models.ProvisioningRun, error)
}

type Provisioner interface {
	Run(ctx context.Context, routes []config.Route) (*provisioning.Report, error)
}

// ListCaseTemplatesHandler serves the paged listing of provisioned LA cases.
// Every failure is answered with the same localized message; details go to the log.
func ListCaseTemplatesHandler(store CaseLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q models.CaseRecordQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			config.LogError(config.GetLogger(), moduleName, "ListCaseTemplatesHandler", "binding query", c.Request.URL.RawQuery, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": localize(c, msgErrorObtainingLists)})
			return
		}
		page, err := store.List(c.Request.Context(), q)
		if err != nil {
			config.LogError(config.GetLogger(), moduleName, "ListCaseTemplatesHandler", "listing case records", q, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": localize(c, msgErrorObtainingLists)})
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

// ExportCaseTemplatesHandler writes the filtered listing as an xlsx workbook.
func ExportCaseTemplatesHandler(store CaseLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q models.CaseRecordQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": localize(c, msgInvalidRequest)})
			return
		}
		q.Offset = 0
		q.PageSize = models.MaxPageSize
		page, err := store.List(c.Request.Context(), q)
		if err != nil {
			config.LogError(config.GetLogger(), moduleName, "ExportCaseTemplatesHandler", "listing case records", q, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": localize(c, msgErrorExportingLists)})
			return
		}

		filename := fmt.Sprintf("la-cases-%s.xlsx", time.Now().Format("20060102"))
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Status(http.StatusOK)
		if err := utils.WriteExcel(c.Writer, "LA", page.CaseTemplates, models.CaseRecordExportHeadings...); err != nil {
			config.LogError(config.GetLogger(), moduleName, "ExportCaseTemplatesHandler", "writing workbook", filename, err)
			_ = c.Error(err)
		}
	}
}

type ProvisionRequest struct {
	// Empty means every configured route.
	RouteIds []int `json:"routeIds" binding:"omitempty,dive,gt=0"`
}

// ProvisionHandler runs provisioning synchronously and returns the run report.
func ProvisionHandler(p Provisioner, routes []config.Route) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ProvisionRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": localize(c, msgInvalidRequest), "details": utils.ProcessValidationErrors(err)})
			return
		}

		selected, unknown := selectRoutes(routes, req.RouteIds)
		if len(unknown) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": localize(c, msgUnknownRoute), "routeIds": unknown})
			return
		}

		ctx := utils.SetTriggeredByInContext(c.Request.Context(), models.RunTriggeredManual)
		report, err := p.Run(ctx, selected)
		if err != nil {
			config.LogError(config.GetLogger(), moduleName, "ProvisionHandler", "running provisioning", req, err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": localize(c, msgProvisioningFailed)})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": report.Status(), "report": report})
	}
}

func selectRoutes(routes []config.Route, ids []int) ([]config.Route, []int) {
	if len(ids) == 0 {
		return routes, nil
	}
	byId := make(map[int]config.Route, len(routes))
	for _, r := range routes {
		byId[r.RouteId] = r
	}
	var selected []config.Route
	var unknown []int
	seen := map[int]bool{}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		r, ok := byId[id]
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		selected = append(selected, r)
	}
	return selected, unknown
}

func ListRunsHandler(runs RunLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 20
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}
		list, err := runs.ListRuns(c.Request.Context(), limit)
		if err != nil {
			config.LogError(config.GetLogger(), moduleName, "ListRunsHandler", "listing runs", limit, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": localize(c, msgErrorObtainingRuns)})
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": list})
	}
}

// Pinger is satisfied by the case store.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthHandler(p Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p == nil {
			c.Status(http.StatusNoContent)
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": localize(c, msgServiceNotReady)})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// Register mounts the LA case routes on r.
func Register(r gin.IRouter, store interface {
	CaseLister
	RunLister
	Pinger
}, p Provisioner, routes []config.Route) {
	r.GET("/healthz", HealthHandler(store))
	api := r.Group("/api")
	api.GET("/case-templates", ListCaseTemplatesHandler(store))
	api.GET("/case-templates/export", ExportCaseTemplatesHandler(store))
	api.POST("/case-templates/provision", ProvisionHandler(p, routes))
	api.GET("/provisioning-runs", ListRunsHandler(store))

	r.POST("/pubsub/la-provision", PubSubPushHandler(p, routes))
}
