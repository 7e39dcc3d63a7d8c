package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fixdrop-app/fixdrop-api/internal/middleware"
	"github.com/fixdrop-app/fixdrop-api/internal/models"
	"github.com/fixdrop-app/fixdrop-api/internal/service"
)

// Routes groups the handlers mounted by RegisterRoutes.
type Routes struct {
	Auth          *AuthHandler
	Repairs       *RepairHandler
	Handoffs      *HandoffHandler
	Catalog       *CatalogHandler
	Notifications *NotificationHandler

	AuthService    *service.AuthService
	MetricsService *service.MetricsService
}

// RegisterRoutes mounts the API surface under the given prefix.
func RegisterRoutes(r *gin.Engine, prefix string, routes Routes) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	if routes.MetricsService != nil {
		r.GET("/metrics", gin.WrapH(routes.MetricsService.Handler()))
	}

	api := r.Group(prefix)

	api.POST("/auth/login", routes.Auth.Login)

	api.GET("/repair-statuses", routes.Catalog.Statuses)
	api.GET("/relay-points", routes.Catalog.RelayPoints)

	authed := api.Group("")
	authed.Use(middleware.JWT(routes.AuthService))

	repairs := authed.Group("/repairs")
	repairs.POST("", middleware.RequireRoles(models.RoleClient), routes.Repairs.Create)
	repairs.GET("", routes.Repairs.List)
	repairs.GET("/:id", routes.Repairs.Get)
	repairs.PATCH("/:id/diagnosis", middleware.RequireRoles(models.RoleTechnician, models.RoleAdmin), routes.Repairs.Diagnose)
	repairs.POST("/:id/transition", middleware.RequireRoles(models.RoleTechnician, models.RoleAdmin), routes.Repairs.Transition)
	repairs.POST("/:id/ready", middleware.RequireRoles(models.RoleTechnician, models.RoleAdmin), routes.Repairs.Ready)
	repairs.POST("/:id/cancel", middleware.RequireRoles(models.RoleAdmin), routes.Repairs.Cancel)

	handoffs := authed.Group("/handoffs")
	handoffs.POST("/issue", middleware.RequireRoles(models.RoleClient, models.RoleAdmin), routes.Handoffs.Issue)
	handoffs.GET("/:codeId/receipt", middleware.RequireRoles(models.RoleRelay, models.RoleAdmin), routes.Handoffs.Receipt)
	handoffs.POST("/redeem/code", middleware.RequireRoles(models.RoleRelay), routes.Handoffs.RedeemCode)
	handoffs.POST("/redeem/token", middleware.RequireRoles(models.RoleRelay), routes.Handoffs.RedeemToken)

	notifications := authed.Group("/notifications")
	notifications.GET("", routes.Notifications.List)
	notifications.POST("/:id/read", routes.Notifications.MarkRead)
	notifications.DELETE("/:id", routes.Notifications.Delete)
}
