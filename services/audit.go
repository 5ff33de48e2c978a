package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yeremiapane/floor-ops/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditRecorder appends audit entries inside the caller's transaction. An
// append error must abort that transaction; there is no fire-and-forget path.
type AuditRecorder struct {
	Now func() time.Time
}

// Append stamps the entry and inserts it. The timestamp never goes backwards
// for a table, so per-table order by (created_at, id) matches commit order
// even if the wall clock steps back.
func (r *AuditRecorder) Append(tx *gorm.DB, entry *models.AuditLogEntry) error {
	var last models.AuditLogEntry
	if err := tx.Where("table_id = ?", entry.TableID).
		Order("created_at DESC, id DESC").
		Limit(1).
		Find(&last).Error; err != nil {
		return fmt.Errorf("read last audit entry: %w", err)
	}

	ts := r.Now()
	if last.ID != 0 && last.CreatedAt.After(ts) {
		ts = last.CreatedAt
	}
	entry.ID = 0
	entry.CreatedAt = ts

	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func auditPayload(v interface{}) datatypes.JSON {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

func newEntry(actor Actor, table *models.Table, sessionID *string, kind models.AuditKind, action string) *models.AuditLogEntry {
	return &models.AuditLogEntry{
		TenantID:  actor.TenantID,
		TableID:   table.ID,
		TableCode: table.Code,
		SessionID: sessionID,
		ActorID:   actor.ID,
		ActorRole: string(actor.Role),
		Kind:      kind,
		Action:    action,
	}
}

// AuditFilter narrows an audit query. TenantID is mandatory; zero values of
// the other fields mean "any".
type AuditFilter struct {
	TenantID  string
	TableCode string
	SessionID string
	From      time.Time
	To        time.Time
	Limit     int
}

const (
	defaultAuditLimit = 200
	maxAuditLimit     = 1000
)

// AuditLog reads entries ordered by time, ties broken by insertion order.
type AuditLog struct {
	DB *gorm.DB
}

func NewAuditLog(db *gorm.DB) *AuditLog {
	return &AuditLog{DB: db}
}

func (a *AuditLog) Query(ctx context.Context, f AuditFilter) ([]models.AuditLogEntry, error) {
	if f.TenantID == "" {
		return nil, newError(ErrValidation, "tenant is required")
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return nil, newError(ErrValidation, "time range is inverted")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}

	q := a.DB.WithContext(ctx).Where("tenant_id = ?", f.TenantID)
	if f.TableCode != "" {
		q = q.Where("table_code = ?", f.TableCode)
	}
	if f.SessionID != "" {
		q = q.Where("session_id = ?", f.SessionID)
	}
	if !f.From.IsZero() {
		q = q.Where("created_at >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		q = q.Where("created_at <= ?", f.To.UTC())
	}

	var entries []models.AuditLogEntry
	if err := q.Order("created_at ASC, id ASC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// Journey is every entry of one session, oldest first.
func (a *AuditLog) Journey(ctx context.Context, tenantID, sessionID string) ([]models.AuditLogEntry, error) {
	if sessionID == "" {
		return nil, newError(ErrValidation, "session is required")
	}
	return a.Query(ctx, AuditFilter{TenantID: tenantID, SessionID: sessionID, Limit: maxAuditLimit})
}
