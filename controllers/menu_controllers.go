package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/floor-ops/models"
	"github.com/yeremiapane/floor-ops/utils"
	"gorm.io/gorm"
)

type MenuController struct {
	DB *gorm.DB
}

func NewMenuController(db *gorm.DB) *MenuController {
	return &MenuController{DB: db}
}

// GetMenu -> GET /menu
// Lists the tenant's orderable items so guest devices can build AddItems requests.
func (mc *MenuController) GetMenu(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var items []models.MenuItem
	err := mc.DB.WithContext(c.Request.Context()).
		Where("tenant_id = ? AND available = ?", actor.TenantID, true).
		Order("name ASC").
		Find(&items).Error
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of menu items", items)
}
