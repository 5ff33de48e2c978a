package services

import (
	"context"
	"strings"

	"github.com/yeremiapane/floor-ops/kds"
	"github.com/yeremiapane/floor-ops/models"
	"gorm.io/gorm"
)

// AssignStaff records the waiter responsible for a session. Reassigning to
// the same staff member under the same name is a no-op that still succeeds.
func (e *Engine) AssignStaff(ctx context.Context, actor Actor, sessionID, staffID, staffName string) (*models.Session, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}
	if !actor.oneOf(models.RoleWaiter, models.RoleManager, models.RoleAdmin) {
		return nil, newError(ErrForbidden, "role %s may not assign staff", actor.Role)
	}
	staffID = strings.TrimSpace(staffID)
	if staffID == "" {
		return nil, newError(ErrValidation, "staff_id is required")
	}
	// Waiters can only pick a session up themselves.
	if actor.Role == models.RoleWaiter && staffID != actor.ID {
		return nil, newError(ErrForbidden, "waiters may only assign themselves")
	}

	var (
		session *models.Session
		table   *models.Table
		changed bool
	)
	err := e.run(ctx, "assign", func(tx *gorm.DB) error {
		var err error
		session, table, err = loadOwnedSession(tx, actor.TenantID, sessionID, false)
		if err != nil {
			return err
		}
		changed = session.StaffID == nil || *session.StaffID != staffID || session.StaffName != staffName
		if !changed {
			return nil
		}

		now := e.Now()
		if err := casTable(tx, table, now, nil); err != nil {
			return err
		}
		if err := tx.Model(&models.Session{}).Where("id = ?", session.ID).Updates(map[string]interface{}{
			"staff_id":   staffID,
			"staff_name": staffName,
			"updated_at": now,
		}).Error; err != nil {
			return err
		}
		previous, previousName := "", session.StaffName
		if session.StaffID != nil {
			previous = *session.StaffID
		}
		session.StaffID = &staffID
		session.StaffName = staffName
		session.UpdatedAt = now

		entry := newEntry(actor, table, &session.ID, models.AuditAssign, "Staff assigned")
		entry.FromStatus = string(session.Status)
		entry.ToStatus = string(session.Status)
		entry.Payload = auditPayload(map[string]interface{}{
			"staff_id":      staffID,
			"staff_name":    staffName,
			"previous":      previous,
			"previous_name": previousName,
		})
		return e.Audit.Append(tx, entry)
	})
	if err != nil {
		return nil, err
	}

	if changed {
		e.publish(actor.TenantID, []notice{{kds.EventStaffAssigned, map[string]interface{}{
			"table_code": table.Code,
			"session_id": session.ID,
			"staff_id":   staffID,
			"staff_name": staffName,
		}}})
	}
	return session, nil
}

// ArchiveTable soft-deletes a vacant table. Its code stays reserved and its
// audit history stays queryable.
func (e *Engine) ArchiveTable(ctx context.Context, actor Actor, tableCode string) (*models.Table, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}
	if !actor.Role.Privileged() {
		return nil, newError(ErrForbidden, "role %s may not archive tables", actor.Role)
	}

	var table *models.Table
	err := e.run(ctx, "archive", func(tx *gorm.DB) error {
		var err error
		table, err = loadTableByCode(tx, actor.TenantID, tableCode)
		if err != nil {
			return err
		}
		if table.Status != models.TableVacant {
			return newError(ErrInvalidTransition, "table %s must be VACANT to archive, it is %s", table.Code, table.Status).
				withState(table.Status, "")
		}
		now := e.Now()
		if err := casTable(tx, table, now, map[string]interface{}{"deleted_at": now}); err != nil {
			return err
		}
		table.DeletedAt = gorm.DeletedAt{Time: now, Valid: true}

		entry := newEntry(actor, table, nil, models.AuditArchive, "Table archived")
		entry.FromStatus = string(table.Status)
		entry.ToStatus = string(table.Status)
		return e.Audit.Append(tx, entry)
	})
	if err != nil {
		return nil, err
	}

	e.publish(actor.TenantID, []notice{{kds.EventTableArchived, map[string]interface{}{
		"table_code": table.Code,
	}}})
	return table, nil
}

type AlertKind string

const (
	AlertComplaint  AlertKind = "complaint"
	AlertCallWaiter AlertKind = "call_waiter"
)

const maxAlertMessage = 500

// RaiseAlert broadcasts a guest alert for a table. Alerts are not persisted
// and do not change any status.
func (e *Engine) RaiseAlert(ctx context.Context, actor Actor, tableCode string, kind AlertKind, message string) error {
	if err := actor.validate(); err != nil {
		return err
	}
	event := kds.EventWaiterCalled
	switch kind {
	case AlertCallWaiter:
	case AlertComplaint:
		event = kds.EventComplaintRaised
	default:
		return newError(ErrValidation, "unknown alert kind %q", kind)
	}
	if len(message) > maxAlertMessage {
		return newError(ErrValidation, "message is longer than %d characters", maxAlertMessage)
	}

	table, err := loadTableByCode(e.DB.WithContext(ctx), actor.TenantID, tableCode)
	if err != nil {
		return err
	}
	payload := map[string]interface{}{
		"table_code": table.Code,
		"status":     table.Status,
		"message":    message,
	}
	if table.SessionID != nil {
		payload["session_id"] = *table.SessionID
	}
	e.publish(actor.TenantID, []notice{{event, payload}})
	return nil
}
