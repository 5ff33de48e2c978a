package services

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/yeremiapane/floor-ops/models"
	"gorm.io/gorm"
)

// ItemRequest is one line a caller wants to add to a session.
type ItemRequest struct {
	ItemID    string   `json:"item_id" binding:"required"`
	Quantity  int      `json:"quantity" binding:"required"`
	Variant   string   `json:"variant"`
	Modifiers []string `json:"modifiers"`
	Notes     string   `json:"notes"`
}

type ModifierSnapshot struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

// PricedItem is the catalog's answer for one ItemRequest at call time.
type PricedItem struct {
	ItemID        string
	Name          string
	UnitPrice     int64
	Variant       string
	Modifiers     []ModifierSnapshot
	ModifierTotal int64
}

// Catalog prices requested items. The catalog itself is maintained by
// another service; the engine only takes snapshots from it.
type Catalog interface {
	Price(ctx context.Context, tenantID string, reqs []ItemRequest) ([]PricedItem, error)
}

// GormCatalog reads menu_items.
type GormCatalog struct {
	DB *gorm.DB
}

func NewGormCatalog(db *gorm.DB) *GormCatalog {
	return &GormCatalog{DB: db}
}

func (c *GormCatalog) Price(ctx context.Context, tenantID string, reqs []ItemRequest) ([]PricedItem, error) {
	ids := make([]string, 0, len(reqs))
	for _, r := range reqs {
		ids = append(ids, r.ItemID)
	}

	var rows []models.MenuItem
	if err := c.DB.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]models.MenuItem, len(rows))
	for _, m := range rows {
		byID[m.ID] = m
	}

	out := make([]PricedItem, 0, len(reqs))
	for _, r := range reqs {
		m, ok := byID[r.ItemID]
		if !ok || !m.Available {
			return nil, newError(ErrValidation, "menu item %s is not available", r.ItemID)
		}
		priced, err := priceOne(m, r)
		if err != nil {
			return nil, err
		}
		out = append(out, priced)
	}
	return out, nil
}

func priceOne(m models.MenuItem, r ItemRequest) (PricedItem, error) {
	p := PricedItem{ItemID: m.ID, Name: m.Name, UnitPrice: m.Price}

	if r.Variant != "" {
		variants := map[string]int64{}
		if len(m.VariantPrices) > 0 {
			if err := json.Unmarshal(m.VariantPrices, &variants); err != nil {
				return p, err
			}
		}
		price, ok := variants[r.Variant]
		if !ok {
			return p, newError(ErrValidation, "%s has no variant %q", m.Name, r.Variant)
		}
		p.Variant = r.Variant
		p.UnitPrice = price
	}

	if len(r.Modifiers) > 0 {
		mods := map[string]int64{}
		if len(m.Modifiers) > 0 {
			if err := json.Unmarshal(m.Modifiers, &mods); err != nil {
				return p, err
			}
		}
		names := append([]string(nil), r.Modifiers...)
		sort.Strings(names)
		for _, name := range names {
			delta, ok := mods[name]
			if !ok {
				return p, newError(ErrValidation, "%s has no modifier %q", m.Name, name)
			}
			p.Modifiers = append(p.Modifiers, ModifierSnapshot{Name: name, Price: delta})
			p.ModifierTotal += delta
		}
	}
	return p, nil
}
