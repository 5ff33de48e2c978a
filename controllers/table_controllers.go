package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/floor-ops/services"
	"github.com/yeremiapane/floor-ops/utils"
)

type TableController struct {
	Engine    *services.Engine
	Projector *services.FloorProjector
}

func NewTableController(engine *services.Engine, projector *services.FloorProjector) *TableController {
	return &TableController{Engine: engine, Projector: projector}
}

// GetFloor -> GET /admin/floor
func (tc *TableController) GetFloor(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	view, err := tc.Projector.Project(c.Request.Context(), actor.TenantID)
	if err != nil {
		respondFloorError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Floor view", view)
}

// ClearTable -> POST /admin/tables/:code/clear
func (tc *TableController) ClearTable(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	result, err := tc.Engine.ClearTable(c.Request.Context(), actor, c.Param("code"))
	if err != nil {
		respondFloorError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Table cleared", result)
}

// ResetTable -> POST /admin/tables/:code/reset
func (tc *TableController) ResetTable(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason" binding:"required,max=500"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	result, err := tc.Engine.EmergencyReset(c.Request.Context(), actor, c.Param("code"), req.Reason)
	if err != nil {
		respondFloorError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Table reset", result)
}

// ArchiveTable -> DELETE /admin/tables/:code
func (tc *TableController) ArchiveTable(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	table, err := tc.Engine.ArchiveTable(c.Request.Context(), actor, c.Param("code"))
	if err != nil {
		respondFloorError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Table archived", table)
}

// RaiseAlert -> POST /tables/:code/alerts
func (tc *TableController) RaiseAlert(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req struct {
		Kind    string `json:"kind" binding:"required"`
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	err := tc.Engine.RaiseAlert(c.Request.Context(), actor, c.Param("code"), services.AlertKind(req.Kind), req.Message)
	if err != nil {
		respondFloorError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusAccepted, "Alert sent", nil)
}
