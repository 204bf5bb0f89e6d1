package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/batch-admission/internal/handler"
	"github.com/iliyamo/batch-admission/internal/middleware"
)

// RegisterAdmin registers reconciliation endpoints for ADMIN tokens.
func RegisterAdmin(e *echo.Echo, h *handler.ReconciliationHandler, jwtSecret string) {
	g := e.Group("/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleAdmin),
	)
	g.GET("/reconciliations", h.List)
	g.POST("/reconciliations/:id/resolve", h.Resolve)
}
