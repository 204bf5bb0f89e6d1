// Package router registers the HTTP routes of the admission API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/batch-admission/internal/handler"
)

// RegisterRoutes registers the unauthenticated health checks.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
}
