package services

import (
	"github.com/yeremiapane/floor-ops/models"
)

type sessionRule struct {
	From   models.SessionStatus
	To     models.SessionStatus
	Label  string
	Roles  []models.Role
	Settle bool
}

// sessionTransitions is the complete set of forward moves a session may make.
// Anything not listed, including every backwards move, is rejected.
var sessionTransitions = []sessionRule{
	{From: models.SessionNew, To: models.SessionPreparing, Label: "Order sent to kitchen",
		Roles: []models.Role{models.RoleKitchen, models.RoleWaiter, models.RoleManager, models.RoleAdmin}},
	{From: models.SessionNew, To: models.SessionReady, Label: "Order ready (no kitchen routing)",
		Roles: []models.Role{models.RoleKitchen, models.RoleWaiter, models.RoleManager, models.RoleAdmin}},
	{From: models.SessionPreparing, To: models.SessionReady, Label: "Order ready",
		Roles: []models.Role{models.RoleKitchen, models.RoleManager, models.RoleAdmin}},
	{From: models.SessionReady, To: models.SessionServed, Label: "Order served",
		Roles: []models.Role{models.RoleWaiter, models.RoleManager, models.RoleAdmin}},
	{From: models.SessionServed, To: models.SessionBillRequested, Label: "Bill requested",
		Roles: []models.Role{models.RoleGuest, models.RoleWaiter, models.RoleCashier, models.RoleManager, models.RoleAdmin}},
	{From: models.SessionBillRequested, To: models.SessionClosed, Label: "Session settled", Settle: true,
		Roles: []models.Role{models.RoleCashier, models.RoleManager, models.RoleAdmin}},
}

func lookupSessionRule(from, to models.SessionStatus) (sessionRule, bool) {
	for _, r := range sessionTransitions {
		if r.From == from && r.To == to {
			return r, true
		}
	}
	return sessionRule{}, false
}

type TableOp string

const (
	TableOpClear TableOp = "clear"
	TableOpReset TableOp = "reset"
)

type tableRule struct {
	From     []models.TableStatus
	To       models.TableStatus
	Label    string
	Roles    []models.Role
	Override bool
}

var tableTransitions = map[TableOp]tableRule{
	TableOpClear: {
		From:  []models.TableStatus{models.TableDirty},
		To:    models.TableVacant,
		Label: "Table cleared",
		Roles: []models.Role{models.RoleCleaner, models.RoleWaiter, models.RoleManager, models.RoleAdmin},
	},
	TableOpReset: {
		From:     []models.TableStatus{models.TableActive, models.TableReady, models.TableBillRequested},
		To:       models.TableVacant,
		Label:    "Emergency reset (manual override)",
		Roles:    []models.Role{models.RoleManager, models.RoleAdmin},
		Override: true,
	},
}

func (r tableRule) allowsFrom(s models.TableStatus) bool {
	for _, f := range r.From {
		if f == s {
			return true
		}
	}
	return false
}

func roleIn(role models.Role, roles []models.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// CheckTransition answers whether role may move a session from one status to
// another, without touching storage. Dashboards use it to grey out actions.
func CheckTransition(from, to models.SessionStatus, role models.Role) error {
	rule, ok := lookupSessionRule(from, to)
	if !ok {
		return newError(ErrInvalidTransition, "cannot move order from %s to %s", from, to).
			withState(from.TableStatus(), from)
	}
	if !roleIn(role, rule.Roles) {
		return newError(ErrForbidden, "role %s may not move order from %s to %s", role, from, to).
			withState(from.TableStatus(), from)
	}
	return nil
}

// NextStatuses lists the statuses role may move a session to from its current one.
func NextStatuses(from models.SessionStatus, role models.Role) []models.SessionStatus {
	var out []models.SessionStatus
	for _, r := range sessionTransitions {
		if r.From == from && roleIn(role, r.Roles) {
			out = append(out, r.To)
		}
	}
	return out
}
