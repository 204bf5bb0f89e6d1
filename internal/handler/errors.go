package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/batch-admission/internal/repository"
	"github.com/iliyamo/batch-admission/internal/service"
)

// errorStatus maps service and repository errors to HTTP status codes and
// client-facing messages. Unknown errors are 500.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrCapacityExhausted):
		return http.StatusConflict, "Seats full for this batch."
	case errors.Is(err, service.ErrAlreadyPaid):
		return http.StatusConflict, "application already paid"
	case errors.Is(err, service.ErrActiveHoldExists):
		return http.StatusConflict, "application already holds a seat"
	case errors.Is(err, service.ErrGatewayUnavailable):
		return http.StatusBadGateway, "payment gateway unavailable"
	case errors.Is(err, service.ErrGatewayRejected):
		return http.StatusBadGateway, "payment gateway rejected the request"
	case errors.Is(err, service.ErrPaymentNotFound):
		return http.StatusNotFound, "payment not found"
	case errors.Is(err, service.ErrApplicationNotFound):
		return http.StatusNotFound, "application not found"
	case errors.Is(err, service.ErrBatchNotFound):
		return http.StatusNotFound, "batch not found"
	case errors.Is(err, service.ErrHoldNotFound):
		return http.StatusNotFound, "hold not found"
	case errors.Is(err, repository.ErrReconciliationNotFound):
		return http.StatusNotFound, "reconciliation case not found"
	case errors.Is(err, repository.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, service.ErrMissingReference):
		return http.StatusBadRequest, "missing val_id"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeError(c echo.Context, log *zap.Logger, err error) error {
	status, msg := errorStatus(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.JSON(status, echo.Map{"error": msg})
}
