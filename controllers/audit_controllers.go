package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/floor-ops/services"
	"github.com/yeremiapane/floor-ops/utils"
)

type AuditController struct {
	Log *services.AuditLog
}

func NewAuditController(log *services.AuditLog) *AuditController {
	return &AuditController{Log: log}
}

// GetAudit -> GET /admin/audit?table=&session=&from=&to=&limit=
// from and to are RFC3339 timestamps.
func (ac *AuditController) GetAudit(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	filter := services.AuditFilter{
		TenantID:  actor.TenantID,
		TableCode: c.Query("table"),
		SessionID: c.Query("session"),
	}
	var err error
	if filter.From, err = parseTimeParam(c, "from"); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if filter.To, err = parseTimeParam(c, "to"); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if raw := c.Query("limit"); raw != "" {
		filter.Limit, err = strconv.Atoi(raw)
		if err != nil || filter.Limit < 0 {
			utils.RespondError(c, http.StatusBadRequest, errors.New("invalid limit"))
			return
		}
	}

	entries, err := ac.Log.Query(c.Request.Context(), filter)
	if err != nil {
		respondFloorError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Audit trail", entries)
}

// GetJourney -> GET /admin/sessions/:id/journey
func (ac *AuditController) GetJourney(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	entries, err := ac.Log.Journey(c.Request.Context(), actor.TenantID, c.Param("id"))
	if err != nil {
		respondFloorError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Session journey", entries)
}

func parseTimeParam(c *gin.Context, name string) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.New("invalid " + name + ": expected RFC3339")
	}
	return t, nil
}
