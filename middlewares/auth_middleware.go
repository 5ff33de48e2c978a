package middlewares

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/floor-ops/models"
	"github.com/yeremiapane/floor-ops/services"
	"github.com/yeremiapane/floor-ops/utils"
)

const (
	actorKey     = "actor"
	TenantHeader = "X-Tenant-ID"
)

// StaffAuth requires a valid staff bearer token and puts the resolved actor
// in the context.
func StaffAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("Authorization header missing"))
			c.Abort()
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("invalid token format"))
			c.Abort()
			return
		}

		actor, err := staffActor(secret, strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			utils.RespondError(c, http.StatusUnauthorized, err)
			c.Abort()
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

// GuestOrStaff lets unauthenticated guest devices through as the guest actor
// of the tenant named in the X-Tenant-ID header. A bearer token, when sent,
// must be valid and takes precedence so staff can act on guest routes.
func GuestOrStaff(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authHeader := c.GetHeader("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
			actor, err := staffActor(secret, strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				utils.RespondError(c, http.StatusUnauthorized, err)
				c.Abort()
				return
			}
			c.Set(actorKey, actor)
			c.Next()
			return
		}

		tenantID := strings.TrimSpace(c.GetHeader(TenantHeader))
		if tenantID == "" {
			utils.RespondError(c, http.StatusBadRequest, errors.New(TenantHeader+" header missing"))
			c.Abort()
			return
		}
		c.Set(actorKey, services.GuestActor(tenantID))
		c.Next()
	}
}

func staffActor(secret []byte, tokenString string) (services.Actor, error) {
	claims, err := utils.ParseToken(secret, tokenString)
	if err != nil {
		return services.Actor{}, err
	}
	role := models.Role(claims.Role)
	if !role.Staff() {
		return services.Actor{}, errors.New("token does not carry a staff role")
	}
	return services.Actor{
		TenantID: claims.TenantID,
		ID:       claims.UserID,
		Name:     claims.Name,
		Role:     role,
	}, nil
}

// ActorFrom returns the actor set by StaffAuth or GuestOrStaff.
func ActorFrom(c *gin.Context) (services.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return services.Actor{}, false
	}
	actor, ok := v.(services.Actor)
	return actor, ok
}

// SetActor is used by handlers under test to skip token handling.
func SetActor(c *gin.Context, actor services.Actor) {
	c.Set(actorKey, actor)
}
