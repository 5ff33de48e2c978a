package models

import (
	"time"

	"gorm.io/gorm"
)

type TableStatus string

const (
	TableVacant        TableStatus = "VACANT"
	TableActive        TableStatus = "ACTIVE"
	TableReady         TableStatus = "READY"
	TableBillRequested TableStatus = "BILL_REQUESTED"
	TableDirty         TableStatus = "DIRTY"
)

// Occupied reports whether a session owns the table in this status.
func (s TableStatus) Occupied() bool {
	return s == TableActive || s == TableReady || s == TableBillRequested
}

func (s TableStatus) Valid() bool {
	switch s {
	case TableVacant, TableActive, TableReady, TableBillRequested, TableDirty:
		return true
	}
	return false
}

// Table is one physical seating unit of a tenant. Status, SessionID and
// Version only change through the engine's compare-and-set updates; Version is
// bumped on every write so a stale reader never wins.
type Table struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	TenantID        string         `gorm:"type:varchar(64);not null;uniqueIndex:idx_tables_tenant_code" json:"tenant_id"`
	Code            string         `gorm:"type:varchar(50);not null;uniqueIndex:idx_tables_tenant_code" json:"code"`
	Capacity        int            `gorm:"not null;default:2" json:"capacity"`
	Status          TableStatus    `gorm:"type:varchar(20);not null;default:'VACANT';index" json:"status"`
	SessionID       *string        `gorm:"type:varchar(36);index" json:"session_id,omitempty"`
	Version         uint           `gorm:"not null;default:0" json:"version"`
	StatusChangedAt time.Time      `gorm:"not null" json:"status_changed_at"`
	CreatedAt       time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}
