package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/batch-admission/internal/model"
	"github.com/iliyamo/batch-admission/internal/service"
)

// ReconciliationHandler lets admins list and resolve capacity-race cases.
type ReconciliationHandler struct {
	Svc *service.ReconciliationService
	Log *zap.Logger
}

func NewReconciliationHandler(svc *service.ReconciliationService, log *zap.Logger) *ReconciliationHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReconciliationHandler{Svc: svc, Log: log}
}

// List handles GET /v1/admin/reconciliations?status=OPEN&limit=50.
func (h *ReconciliationHandler) List(c echo.Context) error {
	status := model.ReconciliationStatus(strings.ToUpper(c.QueryParam("status")))
	switch status {
	case "", model.ReconciliationOpen, model.ReconciliationResolved:
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status"})
	}
	limit := 0
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid limit"})
		}
		limit = n
	}
	cases, err := h.Svc.List(c.Request().Context(), status, limit)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	out := make([]echo.Map, 0, len(cases))
	for _, rc := range cases {
		m := echo.Map{
			"id":             rc.ID,
			"payment_id":     rc.PaymentID,
			"tran_id":        rc.TranID,
			"application_id": rc.ApplicationID,
			"batch_id":       rc.BatchID,
			"reason":         rc.Reason,
			"status":         rc.Status,
			"created_at":     rc.CreatedAt,
		}
		if rc.ResolvedAt != nil {
			m["resolved_at"] = rc.ResolvedAt
			m["note"] = rc.Note
		}
		out = append(out, m)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out})
}

// Resolve handles POST /v1/admin/reconciliations/:id/resolve with a JSON
// body {"note": "..."}.
func (h *ReconciliationHandler) Resolve(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var body struct {
		Note string `json:"note"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	body.Note = strings.TrimSpace(body.Note)
	if body.Note == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "note is required"})
	}
	if err := h.Svc.Resolve(c.Request().Context(), id, body.Note); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "status": model.ReconciliationResolved})
}
