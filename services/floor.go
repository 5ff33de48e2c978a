package services

import (
	"context"
	"time"

	"github.com/yeremiapane/floor-ops/models"
	"gorm.io/gorm"
)

// FloorProjector builds the dashboard floor view straight from the current
// table and session rows. It holds no cache, so what it returns is never
// older than the query that produced it.
type FloorProjector struct {
	DB  *gorm.DB
	Now func() time.Time
}

func NewFloorProjector(db *gorm.DB) *FloorProjector {
	return &FloorProjector{DB: db, Now: func() time.Time { return time.Now().UTC() }}
}

type itemSummaryRow struct {
	SessionID string
	Name      string
	Quantity  int
}

// Project returns one entry per live table of the tenant, ordered by code.
// Three queries run in one read transaction regardless of the table count.
func (p *FloorProjector) Project(ctx context.Context, tenantID string) (*models.FloorView, error) {
	if tenantID == "" {
		return nil, newError(ErrValidation, "tenant is required")
	}

	var (
		tables   []models.Table
		sessions []models.Session
		lines    []itemSummaryRow
	)
	err := p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ?", tenantID).Order("code ASC").Find(&tables).Error; err != nil {
			return err
		}
		ids := make([]string, 0, len(tables))
		for _, t := range tables {
			if t.SessionID != nil && t.Status.Occupied() {
				ids = append(ids, *t.SessionID)
			}
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("tenant_id = ? AND id IN ?", tenantID, ids).Find(&sessions).Error; err != nil {
			return err
		}
		return tx.Model(&models.SessionItem{}).
			Select("session_id, name, SUM(quantity) AS quantity").
			Where("session_id IN ?", ids).
			Group("session_id, name").
			Order("session_id, name").
			Scan(&lines).Error
	})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*models.Session, len(sessions))
	for i := range sessions {
		byID[sessions[i].ID] = &sessions[i]
	}
	summaries := make(map[string][]models.ItemLine)
	counts := make(map[string]int)
	for _, l := range lines {
		summaries[l.SessionID] = append(summaries[l.SessionID], models.ItemLine{Name: l.Name, Quantity: l.Quantity})
		counts[l.SessionID] += l.Quantity
	}

	now := p.Now()
	view := &models.FloorView{
		Tables:      make([]models.FloorViewEntry, 0, len(tables)),
		GeneratedAt: now,
	}
	for _, t := range tables {
		entry := models.FloorViewEntry{
			TableCode:  t.Code,
			Capacity:   t.Capacity,
			Status:     t.Status,
			UpdatedAt:  t.UpdatedAt,
			AgeSeconds: ageSeconds(now, t.StatusChangedAt),
		}
		if t.SessionID != nil && t.Status.Occupied() {
			if s, ok := byID[*t.SessionID]; ok {
				entry.SessionID = s.ID
				entry.Order = s.Status
				entry.PartySize = s.PartySize
				entry.Waiter = s.StaffName
				entry.ItemCount = counts[s.ID]
				entry.ItemSummary = summaries[s.ID]
				if s.UpdatedAt.After(entry.UpdatedAt) {
					entry.UpdatedAt = s.UpdatedAt
				}
			}
		}
		view.Tables = append(view.Tables, entry)
		view.Summary.Add(t.Status)
	}
	return view, nil
}

func ageSeconds(now, since time.Time) int64 {
	if since.IsZero() || since.After(now) {
		return 0
	}
	return int64(now.Sub(since) / time.Second)
}
