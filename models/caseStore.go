package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/lacase_backend/config"
	"github.com/mmdatafocus/lacase_backend/utils"
	"gorm.io/gorm"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 1000
)

// CaseStore persists case records, their site links and run reports.
// Times are stored in UTC; dates are interpreted in loc.
type CaseStore struct {
	db  *gorm.DB
	loc *time.Location
}

func NewCaseStore(db *gorm.DB, loc *time.Location) *CaseStore {
	if loc == nil {
		loc = time.Local
	}
	return &CaseStore{db: db, loc: loc}
}

// Ping verifies the store is reachable.
func (s *CaseStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return config.ErrDatabaseNotReady
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *CaseStore) dayRange(t time.Time) (time.Time, time.Time) {
	day := utils.DateOnly(t, s.loc)
	return day.UTC(), day.AddDate(0, 0, 1).UTC()
}

// FindActive looks up the active record for (title, start date, end date).
func (s *CaseStore) FindActive(ctx context.Context, title string, start, end time.Time) (*CaseRecord, bool, error) {
	startFrom, startTo := s.dayRange(start)
	endFrom, endTo := s.dayRange(end)

	var rec CaseRecord
	err := s.db.WithContext(ctx).
		Where("title = ? AND workflow_state = ?", title, WorkflowStateActive).
		Where("start_at >= ? AND start_at < ?", startFrom, startTo).
		Where("end_at >= ? AND end_at < ?", endFrom, endTo).
		Order("id").
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &PersistenceError{Kind: PersistenceOther, Op: "find active case record", Err: err}
	}
	return &rec, true, nil
}

// CreateWithSites inserts rec and its site links in one transaction.
// A second active record for the same window fails with ConstraintViolation.
func (s *CaseStore) CreateWithSites(ctx context.Context, rec *CaseRecord, sites []CaseRecordSite) error {
	if rec == nil {
		return errors.New("case record is nil")
	}
	startDate := utils.DateOnly(rec.StartAt, s.loc)
	endDate := utils.DateOnly(rec.EndAt, s.loc)
	key := CaseRecordKey(rec.Title, startDate, endDate)

	rec.StartAt = rec.StartAt.UTC()
	rec.EndAt = rec.EndAt.UTC()
	rec.WorkflowState = WorkflowStateActive
	rec.ActiveKey = &key
	rec.Sites = nil

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		if len(sites) == 0 {
			return nil
		}
		for i := range sites {
			sites[i].CaseRecordId = rec.ID
		}
		return tx.Create(&sites).Error
	})
	if err != nil {
		kind := PersistenceOther
		if utils.IsDuplicateKeyErr(err) {
			kind = PersistenceConstraintViolation
		}
		return &PersistenceError{Kind: kind, Op: "create case record", Err: err}
	}
	rec.Sites = sites
	return nil
}

// Remove soft-deletes a record and frees its window for a new active record.
func (s *CaseStore) Remove(ctx context.Context, id int) error {
	res := s.db.WithContext(ctx).Model(&CaseRecord{}).
		Where("id = ? AND workflow_state = ?", id, WorkflowStateActive).
		Updates(map[string]interface{}{
			"workflow_state": WorkflowStateRemoved,
			"active_key":     nil,
		})
	if res.Error != nil {
		return &PersistenceError{Kind: PersistenceOther, Op: "remove case record", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}

// GetWithSites loads a record with its site links.
func (s *CaseStore) GetWithSites(ctx context.Context, id int) (*CaseRecord, error) {
	var rec CaseRecord
	err := s.db.WithContext(ctx).Preload("Sites", func(db *gorm.DB) *gorm.DB {
		return db.Order("site_id")
	}).Take(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CaseRecordQuery is the listing request.
type CaseRecordQuery struct {
	Sort       string `form:"sort" json:"sort"`
	IsSortDsc  bool   `form:"isSortDsc" json:"isSortDsc"`
	NameFilter string `form:"nameFilter" json:"nameFilter"`
	Offset     int    `form:"offset" json:"offset" binding:"min=0"`
	PageSize   int    `form:"pageSize" json:"pageSize" binding:"min=0,max=1000"`
}

type CaseRecordPage struct {
	Total         int64                `json:"total"`
	CaseTemplates []CaseRecordListItem `json:"caseTemplates"`
}

var caseRecordSortColumns = map[string]string{
	"id":         "id",
	"title":      "title",
	"startat":    "start_at",
	"start_at":   "start_at",
	"endat":      "end_at",
	"end_at":     "end_at",
	"createdat":  "created_at",
	"created_at": "created_at",
}

// likeEscaper makes nameFilter a plain substring under ESCAPE '!'.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// List returns a page of non-removed records. Total counts every non-removed
// record regardless of nameFilter.
func (s *CaseStore) List(ctx context.Context, q CaseRecordQuery) (*CaseRecordPage, error) {
	orderField := "id"
	if q.Sort != "" {
		col, ok := caseRecordSortColumns[strings.ToLower(strings.TrimSpace(q.Sort))]
		if !ok {
			return nil, fmt.Errorf("unsupported sort field %q", q.Sort)
		}
		orderField = col
		if q.IsSortDsc {
			orderField += " DESC"
		}
	}
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	dbCtx := s.db.WithContext(ctx).Model(&CaseRecord{}).
		Where("workflow_state <> ?", WorkflowStateRemoved)
	if q.NameFilter != "" {
		dbCtx = dbCtx.Where("title LIKE ? ESCAPE '!'", "%"+likeEscaper.Replace(q.NameFilter)+"%")
	}

	var records []CaseRecord
	if err := dbCtx.Order(orderField).Order("id").Offset(offset).Limit(pageSize).Find(&records).Error; err != nil {
		return nil, err
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&CaseRecord{}).
		Where("workflow_state <> ?", WorkflowStateRemoved).
		Count(&total).Error; err != nil {
		return nil, err
	}

	page := &CaseRecordPage{Total: total, CaseTemplates: make([]CaseRecordListItem, 0, len(records))}
	for _, r := range records {
		page.CaseTemplates = append(page.CaseTemplates, CaseRecordListItem{
			ID:        r.ID,
			Title:     r.Title,
			CreatedAt: r.CreatedAt,
			ShowFrom:  utils.FormatDate(r.StartAt.In(s.loc)),
			ShowTo:    utils.FormatDate(r.EndAt.In(s.loc)),
		})
	}
	return page, nil
}

// SaveRun stores a run report with its route rows.
func (s *CaseStore) SaveRun(ctx context.Context, run *ProvisioningRun) error {
	run.WindowStart = run.WindowStart.UTC()
	run.WindowEnd = run.WindowEnd.UTC()
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return &PersistenceError{Kind: PersistenceOther, Op: "save provisioning run", Err: err}
	}
	return nil
}

// ListRuns returns the latest runs, newest first.
func (s *CaseStore) ListRuns(ctx context.Context, limit int) ([]ProvisioningRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var runs []ProvisioningRun
	err := s.db.WithContext(ctx).Preload("Routes").Order("id DESC").Limit(limit).Find(&runs).Error
	return runs, err
}
