package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/batch-admission/internal/handler"
	"github.com/iliyamo/batch-admission/internal/middleware"
)

// RegisterApplicant registers reservation and payment status under /v1.
// Reservation is rate limited; availability is public and cached.
func RegisterApplicant(e *echo.Echo, r *handler.ReservationHandler, p *handler.PaymentHandler, jwtSecret string, limit, cache echo.MiddlewareFunc) {
	e.GET("/v1/batches/:id/availability", r.Availability, cache)

	g := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleApplicant, middleware.RoleAdmin),
	)
	g.POST("/applications/:id/reserve", r.Reserve, limit)
	g.GET("/payments/:tran_id", p.Status)
}
