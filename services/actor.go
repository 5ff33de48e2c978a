package services

import "github.com/yeremiapane/floor-ops/models"

// Actor is the caller as resolved by the auth/tenant middleware.
type Actor struct {
	TenantID string
	ID       string
	Name     string
	Role     models.Role
}

// GuestActor is the identity unauthenticated guest devices act under.
func GuestActor(tenantID string) Actor {
	return Actor{TenantID: tenantID, ID: "guest", Name: "Guest", Role: models.RoleGuest}
}

func (a Actor) validate() error {
	if a.TenantID == "" {
		return newError(ErrValidation, "tenant is required")
	}
	if !a.Role.Valid() {
		return newError(ErrForbidden, "unknown role %q", a.Role)
	}
	return nil
}

func (a Actor) oneOf(roles ...models.Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}
