package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/floor-ops/controllers"
	"github.com/yeremiapane/floor-ops/kds"
	"github.com/yeremiapane/floor-ops/middlewares"
	"github.com/yeremiapane/floor-ops/models"
	"github.com/yeremiapane/floor-ops/services"
	"gorm.io/gorm"
)

type Deps struct {
	DB        *gorm.DB
	Engine    *services.Engine
	Projector *services.FloorProjector
	AuditLog  *services.AuditLog
	Hub       *kds.Hub

	JWTSecret       []byte
	CORSOrigin      string
	Heartbeat       time.Duration
	GuestRatePerSec float64
	GuestBurst      int
}

func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.LoggerMiddleware())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddlewares(d.CORSOrigin))

	sessionController := controllers.NewSessionController(d.Engine)
	tableController := controllers.NewTableController(d.Engine, d.Projector)
	auditController := controllers.NewAuditController(d.AuditLog)
	menuController := controllers.NewMenuController(d.DB)
	streamController := controllers.NewStreamController(d.Hub, d.Heartbeat)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": true, "clients": d.Hub.ClientCount()})
	})

	// Guest device routes
	guestLimiter := middlewares.NewRateLimiter(d.GuestRatePerSec, d.GuestBurst)
	guest := r.Group("/")
	guest.Use(guestLimiter.RateLimit(), middlewares.GuestOrStaff(d.JWTSecret))
	{
		guest.GET("/menu", menuController.GetMenu)
		guest.POST("/tables/:code/claim", sessionController.Claim)
		guest.POST("/tables/:code/alerts", tableController.RaiseAlert)
		guest.GET("/sessions/:id", sessionController.GetSession)
		guest.POST("/sessions/:id/items", sessionController.AddItems)
		guest.POST("/sessions/:id/transition", sessionController.Transition)
	}

	// Staff routes
	admin := r.Group("/admin")
	admin.Use(middlewares.StaffAuth(d.JWTSecret))
	{
		admin.GET("/floor", tableController.GetFloor)
		admin.GET("/stream", streamController.SSE)

		admin.POST("/sessions/:id/transition", sessionController.Transition)
		admin.POST("/sessions/:id/settle", sessionController.Settle)
		admin.POST("/sessions/:id/assign", sessionController.Assign)

		admin.POST("/tables/:code/clear", tableController.ClearTable)
		admin.POST("/tables/:code/reset", tableController.ResetTable)
		admin.DELETE("/tables/:code", tableController.ArchiveTable)

		managers := admin.Group("/")
		managers.Use(middlewares.RequireRoles(models.RoleManager, models.RoleAdmin, models.RoleCashier))
		{
			managers.GET("/audit", auditController.GetAudit)
			managers.GET("/sessions/:id/journey", auditController.GetJourney)
		}
	}

	r.GET("/ws", middlewares.WebSocketAuthMiddleware(d.JWTSecret), streamController.WebSocket)

	return r
}
