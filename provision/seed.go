// Package provision seeds tenants' floor plans and menus from a YAML file
// for local development and demos.
package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/floor-ops/models"
	"github.com/yeremiapane/floor-ops/utils"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FloorPlan struct {
	Tenants []Tenant `yaml:"tenants"`
}

type Tenant struct {
	ID                string     `yaml:"id"`
	TaxRate           *float64   `yaml:"tax_rate"`
	ServiceChargeRate *float64   `yaml:"service_charge_rate"`
	Tables            []Table    `yaml:"tables"`
	Menu              []MenuItem `yaml:"menu"`
}

type Table struct {
	Code     string `yaml:"code"`
	Capacity int    `yaml:"capacity"`
}

type MenuItem struct {
	ID        string           `yaml:"id"`
	Name      string           `yaml:"name"`
	Price     int64            `yaml:"price"`
	Variants  map[string]int64 `yaml:"variants"`
	Modifiers map[string]int64 `yaml:"modifiers"`
	Available *bool            `yaml:"available"`
}

// Stats counts what Apply wrote.
type Stats struct {
	TablesCreated int
	TablesUpdated int
	MenuItems     int
	Billing       int
}

func LoadFile(path string) (*FloorPlan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

func Load(r io.Reader) (*FloorPlan, error) {
	var plan FloorPlan
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&plan); err != nil {
		return nil, fmt.Errorf("decode floor plan: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (p *FloorPlan) Validate() error {
	seenTenant := map[string]bool{}
	seenItem := map[string]bool{}
	for i, t := range p.Tenants {
		if strings.TrimSpace(t.ID) == "" {
			return fmt.Errorf("tenants[%d]: id is required", i)
		}
		if seenTenant[t.ID] {
			return fmt.Errorf("tenant %s listed twice", t.ID)
		}
		seenTenant[t.ID] = true

		seenCode := map[string]bool{}
		for j, tb := range t.Tables {
			if strings.TrimSpace(tb.Code) == "" {
				return fmt.Errorf("tenant %s tables[%d]: code is required", t.ID, j)
			}
			if seenCode[tb.Code] {
				return fmt.Errorf("tenant %s: table %s listed twice", t.ID, tb.Code)
			}
			seenCode[tb.Code] = true
			if tb.Capacity < 0 {
				return fmt.Errorf("tenant %s table %s: capacity cannot be negative", t.ID, tb.Code)
			}
		}
		for j, m := range t.Menu {
			if m.ID == "" || m.Name == "" {
				return fmt.Errorf("tenant %s menu[%d]: id and name are required", t.ID, j)
			}
			if seenItem[m.ID] {
				return fmt.Errorf("menu item %s listed twice", m.ID)
			}
			seenItem[m.ID] = true
			if m.Price < 0 {
				return fmt.Errorf("menu item %s: price cannot be negative", m.ID)
			}
		}
		if (t.TaxRate != nil && *t.TaxRate < 0) || (t.ServiceChargeRate != nil && *t.ServiceChargeRate < 0) {
			return fmt.Errorf("tenant %s: rates cannot be negative", t.ID)
		}
	}
	return nil
}

// Apply upserts the plan in one transaction. Existing tables only get their
// capacity updated; status, owner and version are left to the engine.
func Apply(ctx context.Context, db *gorm.DB, plan *FloorPlan) (Stats, error) {
	var stats Stats
	now := time.Now().UTC()

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, t := range plan.Tenants {
			for _, tb := range t.Tables {
				created, err := upsertTable(tx, t.ID, tb, now)
				if err != nil {
					return err
				}
				if created {
					stats.TablesCreated++
				} else {
					stats.TablesUpdated++
				}
			}

			for _, m := range t.Menu {
				item, err := menuRow(t.ID, m, now)
				if err != nil {
					return err
				}
				if err := checkMenuOwner(tx, item); err != nil {
					return err
				}
				if err := tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "id"}},
					DoUpdates: clause.AssignmentColumns([]string{"name", "price", "variant_prices", "modifiers", "available", "updated_at"}),
				}).Create(&item).Error; err != nil {
					return fmt.Errorf("menu item %s: %w", m.ID, err)
				}
				stats.MenuItems++
			}

			if t.TaxRate != nil || t.ServiceChargeRate != nil {
				setting := models.BillingSetting{TenantID: t.ID, UpdatedAt: now}
				if t.TaxRate != nil {
					setting.TaxRate = *t.TaxRate
				}
				if t.ServiceChargeRate != nil {
					setting.ServiceChargeRate = *t.ServiceChargeRate
				}
				if err := tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "tenant_id"}},
					DoUpdates: clause.AssignmentColumns([]string{"tax_rate", "service_charge_rate", "updated_at"}),
				}).Create(&setting).Error; err != nil {
					return fmt.Errorf("billing for %s: %w", t.ID, err)
				}
				stats.Billing++
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"tables_created": stats.TablesCreated,
		"tables_updated": stats.TablesUpdated,
		"menu_items":     stats.MenuItems,
	}).Info("floor plan applied")
	return stats, nil
}

func upsertTable(tx *gorm.DB, tenantID string, tb Table, now time.Time) (bool, error) {
	capacity := tb.Capacity
	if capacity == 0 {
		capacity = 2
	}

	var existing models.Table
	err := tx.Unscoped().Where("tenant_id = ? AND code = ?", tenantID, tb.Code).Limit(1).Find(&existing).Error
	if err != nil {
		return false, err
	}
	if existing.ID != 0 {
		// Capacity is metadata, so the version is not bumped.
		return false, tx.Unscoped().Model(&models.Table{}).
			Where("id = ?", existing.ID).
			Update("capacity", capacity).Error
	}

	table := models.Table{
		TenantID:        tenantID,
		Code:            tb.Code,
		Capacity:        capacity,
		Status:          models.TableVacant,
		StatusChangedAt: now,
	}
	if err := tx.Create(&table).Error; err != nil {
		return false, fmt.Errorf("table %s/%s: %w", tenantID, tb.Code, err)
	}
	return true, nil
}

// checkMenuOwner refuses to upsert an id that belongs to another tenant.
func checkMenuOwner(tx *gorm.DB, item models.MenuItem) error {
	var existing models.MenuItem
	if err := tx.Select("id", "tenant_id").Where("id = ?", item.ID).Limit(1).Find(&existing).Error; err != nil {
		return err
	}
	if existing.ID != "" && existing.TenantID != item.TenantID {
		return fmt.Errorf("menu item %s belongs to tenant %s, not %s", item.ID, existing.TenantID, item.TenantID)
	}
	return nil
}

func menuRow(tenantID string, m MenuItem, now time.Time) (models.MenuItem, error) {
	item := models.MenuItem{
		ID:        m.ID,
		TenantID:  tenantID,
		Name:      m.Name,
		Price:     m.Price,
		Available: m.Available == nil || *m.Available,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if len(m.Variants) > 0 {
		b, err := json.Marshal(m.Variants)
		if err != nil {
			return item, err
		}
		item.VariantPrices = datatypes.JSON(b)
	}
	if len(m.Modifiers) > 0 {
		b, err := json.Marshal(m.Modifiers)
		if err != nil {
			return item, err
		}
		item.Modifiers = datatypes.JSON(b)
	}
	return item, nil
}
