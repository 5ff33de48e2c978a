package models

import "time"

// FloorViewEntry is a derived, never persisted projection of one table.
type FloorViewEntry struct {
	TableCode   string        `json:"table_code"`
	Capacity    int           `json:"capacity"`
	Status      TableStatus   `json:"status"`
	SessionID   string        `json:"session_id,omitempty"`
	Order       SessionStatus `json:"order_status,omitempty"`
	PartySize   int           `json:"party_size,omitempty"`
	Waiter      string        `json:"waiter,omitempty"`
	ItemCount   int           `json:"item_count"`
	ItemSummary []ItemLine    `json:"items,omitempty"`
	UpdatedAt   time.Time     `json:"updated_at"`
	AgeSeconds  int64         `json:"age_seconds"`
}

type ItemLine struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type FloorSummary struct {
	Vacant        int `json:"vacant"`
	Active        int `json:"active"`
	Ready         int `json:"ready"`
	BillRequested int `json:"bill_requested"`
	Dirty         int `json:"dirty"`
	Total         int `json:"total"`
}

type FloorView struct {
	Tables      []FloorViewEntry `json:"tables"`
	Summary     FloorSummary     `json:"summary"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// Add counts one table in status.
func (s *FloorSummary) Add(status TableStatus) {
	switch status {
	case TableVacant:
		s.Vacant++
	case TableActive:
		s.Active++
	case TableReady:
		s.Ready++
	case TableBillRequested:
		s.BillRequested++
	case TableDirty:
		s.Dirty++
	}
	s.Total++
}
