package models

import (
	"time"

	"gorm.io/datatypes"
)

type SessionStatus string

const (
	SessionNew           SessionStatus = "NEW"
	SessionPreparing     SessionStatus = "PREPARING"
	SessionReady         SessionStatus = "READY"
	SessionServed        SessionStatus = "SERVED"
	SessionBillRequested SessionStatus = "BILL_REQUESTED"
	SessionClosed        SessionStatus = "CLOSED"
	SessionCancelled     SessionStatus = "CANCELLED"
)

var pipelineRank = map[SessionStatus]int{
	SessionNew:           1,
	SessionPreparing:     2,
	SessionReady:         3,
	SessionServed:        4,
	SessionBillRequested: 5,
	SessionClosed:        6,
}

// Rank is the position in the service pipeline; CANCELLED and unknown values are 0.
func (s SessionStatus) Rank() int {
	return pipelineRank[s]
}

func (s SessionStatus) Terminal() bool {
	return s == SessionClosed || s == SessionCancelled
}

func (s SessionStatus) Valid() bool {
	return s == SessionCancelled || pipelineRank[s] > 0
}

// TableStatus is the table status a session in this status keeps its table at.
func (s SessionStatus) TableStatus() TableStatus {
	switch s {
	case SessionNew, SessionPreparing:
		return TableActive
	case SessionReady, SessionServed:
		return TableReady
	case SessionBillRequested:
		return TableBillRequested
	case SessionClosed:
		return TableDirty
	default:
		return TableVacant
	}
}

// Session is one party's occupancy of a table. ActiveTableID mirrors TableID
// while the session is not terminal; its unique index is the storage-level
// guard against two live sessions on one table.
type Session struct {
	ID            string        `gorm:"type:varchar(36);primaryKey" json:"id"`
	TenantID      string        `gorm:"type:varchar(64);not null;index" json:"tenant_id"`
	TableID       uint          `gorm:"not null;index" json:"table_id"`
	TableCode     string        `gorm:"type:varchar(50);not null" json:"table_code"`
	ActiveTableID *uint         `gorm:"uniqueIndex" json:"-"`
	TokenHash     string        `gorm:"type:varchar(100)" json:"-"`
	PartySize     int           `gorm:"not null" json:"party_size"`
	StaffID       *string       `gorm:"type:varchar(64)" json:"staff_id,omitempty"`
	StaffName     string        `gorm:"type:varchar(255)" json:"staff_name,omitempty"`
	Status        SessionStatus `gorm:"type:varchar(20);not null;default:'NEW';index" json:"status"`
	Items         []SessionItem `gorm:"foreignKey:SessionID" json:"items"`

	// Settlement totals in minor units, frozen when the session is CLOSED.
	Subtotal      int64      `gorm:"not null;default:0" json:"subtotal"`
	Discount      int64      `gorm:"not null;default:0" json:"discount"`
	Tax           int64      `gorm:"not null;default:0" json:"tax"`
	ServiceCharge int64      `gorm:"not null;default:0" json:"service_charge"`
	Total         int64      `gorm:"not null;default:0" json:"total"`
	SettledAt     *time.Time `json:"settled_at,omitempty"`

	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CancelReason string     `gorm:"type:text" json:"cancel_reason,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// ItemCount is the total quantity ordered so far.
func (s *Session) ItemCount() int {
	n := 0
	for _, it := range s.Items {
		n += it.Quantity
	}
	return n
}

// SessionItem is an ordered line. Name and prices are snapshots taken when the
// line was added and are never recomputed from the catalog.
type SessionItem struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	SessionID     string         `gorm:"type:varchar(36);not null;index" json:"session_id"`
	ItemID        string         `gorm:"type:varchar(64);not null" json:"item_id"`
	Name          string         `gorm:"type:varchar(255);not null" json:"name"`
	Quantity      int            `gorm:"not null" json:"quantity"`
	UnitPrice     int64          `gorm:"not null" json:"unit_price"`
	Variant       string         `gorm:"type:varchar(100)" json:"variant,omitempty"`
	Modifiers     datatypes.JSON `json:"modifiers,omitempty"`
	ModifierTotal int64          `gorm:"not null;default:0" json:"modifier_total"`
	Notes         string         `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
}

func (i SessionItem) LineTotal() int64 {
	return int64(i.Quantity) * (i.UnitPrice + i.ModifierTotal)
}
