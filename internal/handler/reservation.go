package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/batch-admission/internal/middleware"
	"github.com/iliyamo/batch-admission/internal/model"
	"github.com/iliyamo/batch-admission/internal/repository"
	"github.com/iliyamo/batch-admission/internal/service"
)

// ReservationHandler exposes seat reservation and batch availability.
type ReservationHandler struct {
	Svc *service.ReservationService
	Log *zap.Logger
}

func NewReservationHandler(svc *service.ReservationService, log *zap.Logger) *ReservationHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReservationHandler{Svc: svc, Log: log}
}

// Reserve handles POST /v1/applications/:id/reserve. Applicants may only
// reserve for their own application; admins for any.
func (h *ReservationHandler) Reserve(c echo.Context) error {
	appID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || appID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid application id"})
	}
	ctx := c.Request().Context()

	if middleware.Role(c) != middleware.RoleAdmin {
		uid, ok := middleware.UserID(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}
		app, err := h.Svc.Application(ctx, appID)
		if err != nil {
			return writeError(c, h.Log, err)
		}
		if app.UserID != uid {
			return writeError(c, h.Log, repository.ErrForbidden)
		}
	}

	res, err := h.Svc.Reserve(ctx, appID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"tran_id":      res.Payment.TranID,
		"redirect_url": res.RedirectURL,
		"hold_token":   res.Hold.HoldToken,
		"expires_at":   res.Hold.ExpiresAt,
		"amount":       model.FormatMinor(res.Payment.AmountMinor),
		"currency":     res.Payment.Currency,
	})
}

// Availability handles GET /v1/batches/:id/availability. The numbers are
// advisory.
func (h *ReservationHandler) Availability(c echo.Context) error {
	batchID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || batchID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid batch id"})
	}
	a, err := h.Svc.Availability(c.Request().Context(), batchID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, a)
}
