package services

import (
	"context"
	"errors"

	"github.com/yeremiapane/floor-ops/kds"
	"github.com/yeremiapane/floor-ops/models"
	"gorm.io/gorm"
)

const maxLineQuantity = 99

// AddItems appends priced lines to a live session. It never changes the
// session or table status; the kitchen and floor advance those explicitly.
func (e *Engine) AddItems(ctx context.Context, actor Actor, sessionID string, reqs []ItemRequest) (*models.Session, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}
	if !actor.oneOf(models.RoleGuest, models.RoleWaiter, models.RoleManager, models.RoleAdmin) {
		return nil, newError(ErrForbidden, "role %s may not add items", actor.Role)
	}
	if len(reqs) == 0 {
		return nil, newError(ErrValidation, "at least one item is required")
	}
	for _, r := range reqs {
		if r.ItemID == "" {
			return nil, newError(ErrValidation, "item id is required")
		}
		if r.Quantity < 1 || r.Quantity > maxLineQuantity {
			return nil, newError(ErrValidation, "quantity must be between 1 and %d", maxLineQuantity)
		}
	}
	if e.Catalog == nil {
		return nil, errors.New("no catalog configured")
	}

	// Prices are snapshotted now; later catalog edits never reach these lines.
	priced, err := e.Catalog.Price(ctx, actor.TenantID, reqs)
	if err != nil {
		return nil, err
	}

	var (
		session *models.Session
		table   *models.Table
	)
	err = e.run(ctx, "add items", func(tx *gorm.DB) error {
		var err error
		session, table, err = loadOwnedSession(tx, actor.TenantID, sessionID, false)
		if err != nil {
			return err
		}

		now := e.Now()
		if err := casTable(tx, table, now, nil); err != nil {
			return err
		}

		lines := make([]models.SessionItem, 0, len(priced))
		summary := make([]models.ItemLine, 0, len(priced))
		for i, p := range priced {
			lines = append(lines, models.SessionItem{
				SessionID:     session.ID,
				ItemID:        p.ItemID,
				Name:          p.Name,
				Quantity:      reqs[i].Quantity,
				UnitPrice:     p.UnitPrice,
				Variant:       p.Variant,
				Modifiers:     auditPayload(p.Modifiers),
				ModifierTotal: p.ModifierTotal,
				Notes:         reqs[i].Notes,
				CreatedAt:     now,
			})
			summary = append(summary, models.ItemLine{Name: p.Name, Quantity: reqs[i].Quantity})
		}
		if err := tx.Create(&lines).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Session{}).
			Where("id = ?", session.ID).
			Update("updated_at", now).Error; err != nil {
			return err
		}

		entry := newEntry(actor, table, &session.ID, models.AuditItems, "Items added")
		entry.Payload = auditPayload(map[string]interface{}{"items": summary})
		if err := e.Audit.Append(tx, entry); err != nil {
			return err
		}

		return tx.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
			First(session, "id = ?", session.ID).Error
	})
	if err != nil {
		return nil, err
	}

	e.publish(actor.TenantID, []notice{{kds.EventItemsAdded, map[string]interface{}{
		"table_code": table.Code,
		"session_id": session.ID,
		"item_count": session.ItemCount(),
	}}})
	return session, nil
}

// GetSession returns a session of the caller's tenant with its items.
func (e *Engine) GetSession(ctx context.Context, actor Actor, sessionID string) (*models.Session, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}
	var session models.Session
	err := e.DB.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("tenant_id = ? AND id = ?", actor.TenantID, sessionID).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(ErrSessionNotFound, "session %s not found", sessionID)
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}
