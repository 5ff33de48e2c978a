package models

import (
	"time"

	"gorm.io/datatypes"
)

// MenuItem is the catalog row prices are snapshotted from. Catalog CRUD lives
// outside this service; rows are only read here (and seeded in development).
//
// VariantPrices maps a variant name to the unit price that replaces Price.
// Modifiers maps a modifier name to the per-unit price delta it adds.
type MenuItem struct {
	ID            string         `gorm:"type:varchar(64);primaryKey" json:"id"`
	TenantID      string         `gorm:"type:varchar(64);not null;index" json:"tenant_id"`
	Name          string         `gorm:"type:varchar(255);not null" json:"name"`
	Price         int64          `gorm:"not null" json:"price"`
	VariantPrices datatypes.JSON `json:"variant_prices,omitempty"`
	Modifiers     datatypes.JSON `json:"modifiers,omitempty"`
	Available     bool           `gorm:"not null" json:"available"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
}

// BillingSetting holds a tenant's settlement rates. Maintained elsewhere.
type BillingSetting struct {
	TenantID          string    `gorm:"type:varchar(64);primaryKey" json:"tenant_id"`
	TaxRate           float64   `gorm:"not null;default:0" json:"tax_rate"`
	ServiceChargeRate float64   `gorm:"not null;default:0" json:"service_charge_rate"`
	UpdatedAt         time.Time `gorm:"not null" json:"updated_at"`
}
