package models

import "time"

const (
	RunStatusSuccess = "success"
	RunStatusPartial = "partial"
	RunStatusFailed  = "failed"
)

const (
	RunTriggeredManual = "manual"
	RunTriggeredSystem = "system"
	RunTriggeredCLI    = "cli"
)

// ProvisioningRun is the durable report of one orchestrator run.
type ProvisioningRun struct {
	ID                uint                   `gorm:"primary_key" json:"id"`
	CorrelationId     string                 `gorm:"size:64;index;not null" json:"correlation_id"`
	WindowStart       time.Time              `gorm:"not null" json:"window_start"`
	WindowEnd         time.Time              `gorm:"not null" json:"window_end"`
	CutoffCrossed     bool                   `json:"cutoff_crossed"`
	Status            string                 `gorm:"size:20;not null;index" json:"status"`
	TriggeredBy       string                 `gorm:"size:20" json:"triggered_by"`
	RouteCount        int                    `json:"route_count"`
	SucceededCount    int                    `json:"succeeded_count"`
	DeduplicatedCount int                    `json:"deduplicated_count"`
	FailedCount       int                    `json:"failed_count"`
	StartedAt         time.Time              `json:"started_at"`
	FinishedAt        time.Time              `json:"finished_at"`
	DurationMs        int64                  `json:"duration_ms"`
	CreatedAt         time.Time              `gorm:"autoCreateTime" json:"created_at"`
	Routes            []ProvisioningRunRoute `gorm:"foreignKey:RunId" json:"routes,omitempty"`
}

// ProvisioningRunRoute is the outcome of one route within a run. Failed sites
// are kept here; they are not retried for the same window.
type ProvisioningRunRoute struct {
	ID              uint      `gorm:"primary_key" json:"id"`
	RunId           uint      `gorm:"index;not null" json:"run_id"`
	RouteId         int       `gorm:"not null" json:"route_id"`
	Title           string    `gorm:"size:250;not null" json:"title"`
	Outcome         string    `gorm:"size:20;not null" json:"outcome"`
	Stage           string    `gorm:"size:20" json:"stage"`
	Message         string    `gorm:"type:text" json:"message"`
	CaseRecordId    *int      `json:"case_record_id"`
	SitesSucceeded  int       `json:"sites_succeeded"`
	SitesFailed     int       `json:"sites_failed"`
	FailedSitesJSON []byte    `gorm:"type:json" json:"failed_sites"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}
