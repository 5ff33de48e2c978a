package database

import (
	"fmt"

	"github.com/yeremiapane/floor-ops/models"
	"github.com/yeremiapane/floor-ops/utils"
	"gorm.io/gorm"
)

// Models lists every persisted type in migration order.
func Models() []interface{} {
	return []interface{}{
		&models.Table{},
		&models.Session{},
		&models.SessionItem{},
		&models.AuditLogEntry{},
		&models.MenuItem{},
		&models.BillingSetting{},
	}
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return err
	}

	// Verify the indexes the engine relies on for correctness and ordering.
	required := []struct {
		model interface{}
		name  string
	}{
		{&models.Table{}, "idx_tables_tenant_code"},
		{&models.Session{}, "idx_sessions_active_table_id"},
		{&models.AuditLogEntry{}, "idx_audit_table_time"},
		{&models.AuditLogEntry{}, "idx_audit_session_time"},
	}
	indexes := 0
	for _, r := range required {
		if !db.Migrator().HasIndex(r.model, r.name) {
			return fmt.Errorf("index %s missing after migration", r.name)
		}
		indexes++
	}
	utils.InfoLogger.WithField("indexes", indexes).Info("AutoMigrate completed")
	return nil
}
