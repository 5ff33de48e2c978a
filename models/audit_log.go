package models

import (
	"time"

	"gorm.io/datatypes"
)

type AuditKind string

const (
	AuditClaim      AuditKind = "claim"
	AuditJoin       AuditKind = "join"
	AuditResume     AuditKind = "resume"
	AuditItems      AuditKind = "items"
	AuditTransition AuditKind = "transition"
	AuditSettle     AuditKind = "settle"
	AuditClear      AuditKind = "clear"
	AuditReset      AuditKind = "reset"
	AuditAssign     AuditKind = "assign"
	AuditArchive    AuditKind = "archive"
)

// AuditLogEntry is append-only. ID doubles as the insertion sequence that
// breaks timestamp ties.
type AuditLogEntry struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	TenantID   string         `gorm:"type:varchar(64);not null;index" json:"tenant_id"`
	TableID    uint           `gorm:"not null;index:idx_audit_table_time,priority:1" json:"table_id"`
	TableCode  string         `gorm:"type:varchar(50);not null" json:"table_code"`
	SessionID  *string        `gorm:"type:varchar(36);index:idx_audit_session_time,priority:1" json:"session_id,omitempty"`
	ActorID    string         `gorm:"type:varchar(64);not null" json:"actor_id"`
	ActorRole  string         `gorm:"type:varchar(20);not null" json:"actor_role"`
	Kind       AuditKind      `gorm:"type:varchar(20);not null" json:"kind"`
	Action     string         `gorm:"type:varchar(100);not null" json:"action"`
	FromStatus string         `gorm:"type:varchar(20)" json:"from_status,omitempty"`
	ToStatus   string         `gorm:"type:varchar(20)" json:"to_status,omitempty"`
	Override   bool           `gorm:"not null;default:false" json:"override"`
	Payload    datatypes.JSON `json:"payload,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;index:idx_audit_table_time,priority:2;index:idx_audit_session_time,priority:2" json:"created_at"`
}
