package models

import (
	"github.com/mmdatafocus/lacase_backend/config"
	"gorm.io/gorm"
)

// MigrateTable creates or updates every table this service owns.
func MigrateTable(db *gorm.DB) error {
	if db == nil {
		return config.ErrDatabaseNotReady
	}
	return db.AutoMigrate(
		&CaseRecord{}, &CaseRecordSite{},
		&ProvisioningRun{}, &ProvisioningRunRoute{},
	)
}
