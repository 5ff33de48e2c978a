package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/floor-ops/middlewares"
	"github.com/yeremiapane/floor-ops/services"
	"github.com/yeremiapane/floor-ops/utils"
)

type errorData struct {
	Kind          string `json:"kind"`
	TableStatus   string `json:"table_status,omitempty"`
	SessionStatus string `json:"session_status,omitempty"`
}

var errorKinds = []struct {
	kind   error
	name   string
	status int
}{
	{services.ErrForbidden, "forbidden", http.StatusForbidden},
	{services.ErrTableNotFound, "table_not_found", http.StatusNotFound},
	{services.ErrSessionNotFound, "session_not_found", http.StatusNotFound},
	{services.ErrTableNotReady, "table_not_ready", http.StatusConflict},
	{services.ErrSessionConflict, "session_conflict", http.StatusConflict},
	{services.ErrInvalidTransition, "invalid_transition", http.StatusUnprocessableEntity},
	{services.ErrStaleWrite, "stale_write", http.StatusServiceUnavailable},
	{services.ErrValidation, "validation", http.StatusBadRequest},
}

// respondFloorError writes an engine error with the current table and
// session status so the client can re-render without another round trip.
func respondFloorError(c *gin.Context, err error) {
	var fe *services.FloorError
	if !errors.As(err, &fe) {
		utils.ErrorLogger.WithError(err).WithField("path", c.FullPath()).Error("unexpected engine error")
		utils.RespondError(c, http.StatusInternalServerError, errors.New("internal error"))
		return
	}

	// ErrForbidden is checked first: a forbidden error also matches ErrInvalidTransition.
	for _, k := range errorKinds {
		if fe.Kind != k.kind {
			continue
		}
		if k.status == http.StatusServiceUnavailable {
			c.Header("Retry-After", "1")
		}
		utils.RespondErrorData(c, k.status, fe, errorData{
			Kind:          k.name,
			TableStatus:   string(fe.TableStatus),
			SessionStatus: string(fe.SessionStatus),
		})
		return
	}
	utils.RespondError(c, http.StatusInternalServerError, fe)
}

func actorOrAbort(c *gin.Context) (services.Actor, bool) {
	actor, ok := middlewares.ActorFrom(c)
	if !ok {
		utils.RespondError(c, http.StatusUnauthorized, errors.New("unauthorized"))
		c.Abort()
	}
	return actor, ok
}
