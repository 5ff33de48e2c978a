package models

type Role string

const (
	RoleGuest   Role = "guest"
	RoleWaiter  Role = "waiter"
	RoleKitchen Role = "kitchen"
	RoleCashier Role = "cashier"
	RoleCleaner Role = "cleaner"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleGuest, RoleWaiter, RoleKitchen, RoleCashier, RoleCleaner, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// Privileged roles may run manual overrides such as the emergency reset.
func (r Role) Privileged() bool {
	return r == RoleManager || r == RoleAdmin
}

func (r Role) Staff() bool {
	return r.Valid() && r != RoleGuest
}
