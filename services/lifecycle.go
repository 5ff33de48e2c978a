package services

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/floor-ops/kds"
	"github.com/yeremiapane/floor-ops/models"
	"github.com/yeremiapane/floor-ops/utils"
	"gorm.io/gorm"
)

// TransitionResult is what a committed transition leaves behind.
type TransitionResult struct {
	Session *models.Session `json:"session,omitempty"`
	Table   *models.Table   `json:"table"`
	From    string          `json:"from"`
	To      string          `json:"to"`
}

// Advance moves a session one step along the service pipeline. Moving to
// CLOSED settles the session with no discount.
func (e *Engine) Advance(ctx context.Context, actor Actor, sessionID string, to models.SessionStatus) (*TransitionResult, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}
	if !to.Valid() || to == models.SessionCancelled {
		return nil, newError(ErrValidation, "unknown target status %q", to)
	}
	if to == models.SessionClosed {
		return e.Settle(ctx, actor, sessionID, 0)
	}

	var result *TransitionResult
	err := e.run(ctx, "transition", func(tx *gorm.DB) error {
		session, table, err := loadOwnedSession(tx, actor.TenantID, sessionID, false)
		if err != nil {
			return err
		}
		from := session.Status
		if err := CheckTransition(from, to, actor.Role); err != nil {
			var fe *FloorError
			if errors.As(err, &fe) {
				fe.TableStatus = table.Status
			}
			return err
		}

		now := e.Now()
		tableFrom := table.Status
		if err := setTableStatus(tx, table, now, to.TableStatus(), table.SessionID); err != nil {
			return err
		}
		if err := casSessionStatus(tx, session, from, map[string]interface{}{
			"status":     to,
			"updated_at": now,
		}); err != nil {
			return err
		}
		session.Status = to
		session.UpdatedAt = now

		rule, _ := lookupSessionRule(from, to)
		entry := newEntry(actor, table, &session.ID, models.AuditTransition, rule.Label)
		entry.FromStatus = string(from)
		entry.ToStatus = string(to)
		if tableFrom != table.Status {
			entry.Payload = auditPayload(map[string]interface{}{
				"table_from": tableFrom,
				"table_to":   table.Status,
			})
		}
		if err := e.Audit.Append(tx, entry); err != nil {
			return err
		}

		result = &TransitionResult{Session: session, Table: table, From: string(from), To: string(to)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logTransition(actor, result.Table, result.Session.ID, result.From, result.To)
	payload := map[string]interface{}{
		"table_code": result.Table.Code,
		"session_id": result.Session.ID,
		"status":     result.To,
	}
	e.publish(actor.TenantID, []notice{
		{kds.EventOrderUpdate, payload},
		{kds.EventTableUpdate, map[string]interface{}{
			"table_code": result.Table.Code,
			"status":     result.Table.Status,
		}},
	})
	return result, nil
}

// Settle closes a session that asked for the bill, freezing its totals and
// sending the table to DIRTY. It is the only way into CLOSED, so settling an
// already closed session is an invalid transition.
func (e *Engine) Settle(ctx context.Context, actor Actor, sessionID string, discount int64) (*TransitionResult, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}
	if discount < 0 {
		return nil, newError(ErrValidation, "discount cannot be negative")
	}

	var result *TransitionResult
	err := e.run(ctx, "settle", func(tx *gorm.DB) error {
		session, table, err := loadOwnedSession(tx, actor.TenantID, sessionID, true)
		if err != nil {
			return err
		}
		from := session.Status
		if err := CheckTransition(from, models.SessionClosed, actor.Role); err != nil {
			var fe *FloorError
			if errors.As(err, &fe) {
				fe.TableStatus = table.Status
			}
			return err
		}

		taxRate, serviceRate, err := e.billingRates(tx, actor.TenantID)
		if err != nil {
			return err
		}
		totals, err := computeTotals(session.Items, discount, taxRate, serviceRate)
		if err != nil {
			return err
		}

		now := e.Now()
		tableFrom := table.Status
		if err := setTableStatus(tx, table, now, models.TableDirty, nil); err != nil {
			return err
		}
		if err := casSessionStatus(tx, session, from, map[string]interface{}{
			"status":          models.SessionClosed,
			"active_table_id": nil,
			"subtotal":        totals.Subtotal,
			"discount":        totals.Discount,
			"tax":             totals.Tax,
			"service_charge":  totals.ServiceCharge,
			"total":           totals.Total,
			"settled_at":      now,
			"updated_at":      now,
		}); err != nil {
			return err
		}
		session.Status = models.SessionClosed
		session.ActiveTableID = nil
		session.Subtotal = totals.Subtotal
		session.Discount = totals.Discount
		session.Tax = totals.Tax
		session.ServiceCharge = totals.ServiceCharge
		session.Total = totals.Total
		session.SettledAt = &now
		session.UpdatedAt = now

		entry := newEntry(actor, table, &session.ID, models.AuditSettle, "Session settled")
		entry.FromStatus = string(from)
		entry.ToStatus = string(models.SessionClosed)
		entry.Payload = auditPayload(map[string]interface{}{
			"table_from": tableFrom,
			"table_to":   table.Status,
			"totals":     totals,
		})
		if err := e.Audit.Append(tx, entry); err != nil {
			return err
		}

		result = &TransitionResult{Session: session, Table: table, From: string(from), To: string(models.SessionClosed)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logTransition(actor, result.Table, result.Session.ID, result.From, result.To)
	utils.InfoLogger.WithFields(logrus.Fields{
		"tenant":   actor.TenantID,
		"session":  result.Session.ID,
		"subtotal": utils.FormatIDR(result.Session.Subtotal),
		"discount": utils.FormatIDR(result.Session.Discount),
		"total":    utils.FormatIDR(result.Session.Total),
	}).Info("session settled")
	e.publish(actor.TenantID, []notice{
		{kds.EventOrderSettled, map[string]interface{}{
			"table_code": result.Table.Code,
			"session_id": result.Session.ID,
			"total":      result.Session.Total,
		}},
		{kds.EventTableUpdate, map[string]interface{}{
			"table_code": result.Table.Code,
			"status":     result.Table.Status,
		}},
	})
	return result, nil
}

type Totals struct {
	Subtotal      int64 `json:"subtotal"`
	Discount      int64 `json:"discount"`
	Tax           int64 `json:"tax"`
	ServiceCharge int64 `json:"service_charge"`
	Total         int64 `json:"total"`
}

// computeTotals works in minor units. Tax and service charge are rates over
// the subtotal, rounded half away from zero.
func computeTotals(items []models.SessionItem, discount int64, taxRate, serviceRate float64) (Totals, error) {
	var t Totals
	for _, it := range items {
		t.Subtotal += it.LineTotal()
	}
	if discount > t.Subtotal {
		return t, newError(ErrValidation, "discount %d exceeds subtotal %d", discount, t.Subtotal)
	}
	t.Discount = discount
	t.Tax = int64(math.Round(float64(t.Subtotal) * taxRate))
	t.ServiceCharge = int64(math.Round(float64(t.Subtotal) * serviceRate))
	t.Total = t.Subtotal - t.Discount + t.Tax + t.ServiceCharge
	return t, nil
}

func (e *Engine) billingRates(tx *gorm.DB, tenantID string) (float64, float64, error) {
	var setting models.BillingSetting
	err := tx.Where("tenant_id = ?", tenantID).Limit(1).Find(&setting).Error
	if err != nil {
		return 0, 0, err
	}
	if setting.TenantID == "" {
		return e.Options.DefaultTaxRate, e.Options.DefaultServiceChargeRate, nil
	}
	return setting.TaxRate, setting.ServiceChargeRate, nil
}

func casSessionStatus(tx *gorm.DB, session *models.Session, from models.SessionStatus, updates map[string]interface{}) error {
	res := tx.Model(&models.Session{}).
		Where("id = ? AND status = ?", session.ID, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return newError(ErrStaleWrite, "session %s changed concurrently", session.ID)
	}
	return nil
}

// ClearTable returns a DIRTY table to VACANT once housekeeping is done.
func (e *Engine) ClearTable(ctx context.Context, actor Actor, tableCode string) (*TransitionResult, error) {
	result, err := e.tableOp(ctx, actor, TableOpClear, tableCode, "")
	if err != nil {
		return nil, err
	}
	e.publish(actor.TenantID, []notice{
		{kds.EventTableCleared, map[string]interface{}{"table_code": result.Table.Code}},
		{kds.EventTableUpdate, map[string]interface{}{"table_code": result.Table.Code, "status": result.Table.Status}},
	})
	return result, nil
}

// EmergencyReset force-vacates an occupied table. The owning session is
// cancelled, not closed, so it never counts as revenue, and the audit entry
// is flagged as a manual override.
func (e *Engine) EmergencyReset(ctx context.Context, actor Actor, tableCode, reason string) (*TransitionResult, error) {
	result, err := e.tableOp(ctx, actor, TableOpReset, tableCode, reason)
	if err != nil {
		return nil, err
	}
	payload := map[string]interface{}{"table_code": result.Table.Code}
	if result.Session != nil {
		payload["session_id"] = result.Session.ID
	}
	e.publish(actor.TenantID, []notice{
		{kds.EventTableReset, payload},
		{kds.EventTableUpdate, map[string]interface{}{"table_code": result.Table.Code, "status": result.Table.Status}},
	})
	return result, nil
}

func (e *Engine) tableOp(ctx context.Context, actor Actor, op TableOp, tableCode, reason string) (*TransitionResult, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}
	rule := tableTransitions[op]
	if !roleIn(actor.Role, rule.Roles) {
		return nil, newError(ErrForbidden, "role %s may not %s tables", actor.Role, op)
	}

	var result *TransitionResult
	err := e.run(ctx, string(op), func(tx *gorm.DB) error {
		table, err := loadTableByCode(tx, actor.TenantID, tableCode)
		if err != nil {
			return err
		}
		if !rule.allowsFrom(table.Status) {
			return newError(ErrInvalidTransition, "cannot %s table %s while it is %s", op, table.Code, table.Status).
				withState(table.Status, "")
		}

		now := e.Now()
		from := table.Status
		var cancelled *models.Session
		var before models.SessionStatus
		if op == TableOpReset && table.SessionID != nil {
			cancelled, before, err = cancelSession(tx, actor.TenantID, *table.SessionID, reason, now)
			if err != nil {
				return err
			}
		}
		if err := setTableStatus(tx, table, now, rule.To, nil); err != nil {
			return err
		}

		kind := models.AuditClear
		if op == TableOpReset {
			kind = models.AuditReset
		}
		var sessionID *string
		if cancelled != nil {
			sessionID = &cancelled.ID
		}
		entry := newEntry(actor, table, sessionID, kind, rule.Label)
		entry.FromStatus = string(from)
		entry.ToStatus = string(rule.To)
		entry.Override = rule.Override
		if op == TableOpReset {
			p := map[string]interface{}{"reason": reason}
			if cancelled != nil {
				p["session_status_before"] = before
			}
			entry.Payload = auditPayload(p)
		}
		if err := e.Audit.Append(tx, entry); err != nil {
			return err
		}

		result = &TransitionResult{Session: cancelled, Table: table, From: string(from), To: string(rule.To)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sid := ""
	if result.Session != nil {
		sid = result.Session.ID
	}
	e.logTransition(actor, result.Table, sid, result.From, result.To)
	return result, nil
}

func cancelSession(tx *gorm.DB, tenantID, sessionID, reason string, now time.Time) (*models.Session, models.SessionStatus, error) {
	var session models.Session
	err := tx.Where("tenant_id = ? AND id = ?", tenantID, sessionID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Owner pointer to nothing: vacate anyway.
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	if session.Status.Terminal() {
		return nil, "", nil
	}
	before := session.Status
	if err := casSessionStatus(tx, &session, before, map[string]interface{}{
		"status":          models.SessionCancelled,
		"active_table_id": nil,
		"cancelled_at":    now,
		"cancel_reason":   reason,
		"updated_at":      now,
	}); err != nil {
		return nil, "", err
	}
	session.Status = models.SessionCancelled
	session.ActiveTableID = nil
	session.CancelledAt = &now
	session.CancelReason = reason
	session.UpdatedAt = now
	return &session, before, nil
}
