package models

import (
	"fmt"
	"time"
)

type WorkflowState string

const (
	WorkflowStateActive  WorkflowState = "active"
	WorkflowStateRemoved WorkflowState = "removed"
)

// CaseRecord is one provisioned LA case per route per window.
// ActiveKey holds "title|start|end" while the record is active and NULL once
// removed; its unique index keeps at most one active record per window.
type CaseRecord struct {
	ID                int              `gorm:"primary_key" json:"id"`
	Title             string           `gorm:"size:250;not null;index" json:"title"`
	StartAt           time.Time        `gorm:"not null;index" json:"start_at"`
	EndAt             time.Time        `gorm:"not null" json:"end_at"`
	DocumentReference string           `gorm:"size:255;not null" json:"document_reference"`
	WorkflowState     WorkflowState    `gorm:"size:20;not null;index;default:active" json:"workflow_state"`
	ActiveKey         *string          `gorm:"size:300;uniqueIndex" json:"-"`
	CreatedAt         time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
	Sites             []CaseRecordSite `gorm:"foreignKey:CaseRecordId" json:"sites,omitempty"`
}

// CaseRecordSite links a CaseRecord to the case created for one site in the
// backing system. The backing system owns the case lifecycle.
type CaseRecordSite struct {
	ID            int       `gorm:"primary_key" json:"id"`
	CaseRecordId  int       `gorm:"not null;uniqueIndex:uniq_case_record_site,priority:1" json:"case_record_id"`
	SiteId        int       `gorm:"not null;uniqueIndex:uniq_case_record_site,priority:2" json:"site_id"`
	BackingCaseId int       `gorm:"not null" json:"backing_case_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// CaseRecordKey is the dedup identity of an active record.
func CaseRecordKey(title string, start, end time.Time) string {
	return fmt.Sprintf("%s|%s|%s", title, start.Format("2006-01-02"), end.Format("2006-01-02"))
}

type CaseRecordListItem struct {
	ID        int       `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	ShowFrom  string    `json:"showFrom"`
	ShowTo    string    `json:"showTo"`
}

func (i CaseRecordListItem) GetCellValues() []interface{} {
	return []interface{}{i.ID, i.Title, i.ShowFrom, i.ShowTo, i.CreatedAt.Format(time.RFC3339)}
}

// CaseRecordExportHeadings matches CaseRecordListItem.GetCellValues.
var CaseRecordExportHeadings = []string{"Id", "Title", "ShowFrom", "ShowTo", "CreatedAt"}
