package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/floor-ops/models"
	"github.com/yeremiapane/floor-ops/services"
	"github.com/yeremiapane/floor-ops/utils"
)

type SessionController struct {
	Engine *services.Engine
}

func NewSessionController(engine *services.Engine) *SessionController {
	return &SessionController{Engine: engine}
}

// Claim -> POST /tables/:code/claim
func (sc *SessionController) Claim(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req struct {
		SessionToken string `json:"session_token" binding:"required"`
		PartySize    int    `json:"party_size"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	result, err := sc.Engine.Claim(c.Request.Context(), actor, services.ClaimRequest{
		TableCode:    c.Param("code"),
		SessionToken: req.SessionToken,
		PartySize:    req.PartySize,
	})
	if err != nil {
		respondFloorError(c, err)
		return
	}

	code := http.StatusOK
	message := "Joined existing session"
	if result.Outcome == services.ClaimNew {
		code = http.StatusCreated
		message = "Table claimed"
	}
	utils.RespondJSON(c, code, message, result)
}

// GetSession -> GET /sessions/:id
func (sc *SessionController) GetSession(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	session, err := sc.Engine.GetSession(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondFloorError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Session", session)
}

// AddItems -> POST /sessions/:id/items
func (sc *SessionController) AddItems(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req struct {
		Items []services.ItemRequest `json:"items" binding:"required,min=1,dive"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	session, err := sc.Engine.AddItems(c.Request.Context(), actor, c.Param("id"), req.Items)
	if err != nil {
		respondFloorError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Items added", session)
}

// Transition -> POST /sessions/:id/transition and /admin/sessions/:id/transition
func (sc *SessionController) Transition(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req struct {
		To string `json:"to" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	result, err := sc.Engine.Advance(c.Request.Context(), actor, c.Param("id"), models.SessionStatus(req.To))
	if err != nil {
		respondFloorError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Status updated", result)
}

// Settle -> POST /admin/sessions/:id/settle
func (sc *SessionController) Settle(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req struct {
		Discount int64 `json:"discount" binding:"min=0"`
	}
	// An empty body settles without discount.
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondError(c, http.StatusBadRequest, err)
			return
		}
	}

	result, err := sc.Engine.Settle(c.Request.Context(), actor, c.Param("id"), req.Discount)
	if err != nil {
		respondFloorError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Session settled", result)
}

// Assign -> POST /admin/sessions/:id/assign
func (sc *SessionController) Assign(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req struct {
		StaffID   string `json:"staff_id"`
		StaffName string `json:"staff_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	// A waiter with an empty body picks the session up themselves.
	if req.StaffID == "" && actor.Role == models.RoleWaiter {
		req.StaffID, req.StaffName = actor.ID, actor.Name
	}

	session, err := sc.Engine.AssignStaff(c.Request.Context(), actor, c.Param("id"), req.StaffID, req.StaffName)
	if err != nil {
		respondFloorError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Staff assigned", session)
}
