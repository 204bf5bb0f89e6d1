package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/batch-admission/internal/middleware"
	"github.com/iliyamo/batch-admission/internal/model"
	"github.com/iliyamo/batch-admission/internal/service"
)

// ApplicationLookup reads an application for ownership checks.
type ApplicationLookup interface {
	Application(ctx context.Context, id uint64) (*model.Application, error)
}

// PaymentHandler serves the gateway callbacks and the payment status
// endpoint. Callback bodies are never trusted: only tran_id and val_id are
// read, and val_id is only ever passed back to the gateway.
type PaymentHandler struct {
	Svc  *service.FinalizationService
	Apps ApplicationLookup
	Log  *zap.Logger
	// FrontendURL, when set, is echoed in browser return responses so the
	// client can navigate to its result page.
	FrontendURL string
}

func NewPaymentHandler(svc *service.FinalizationService, apps ApplicationLookup, frontendURL string, log *zap.Logger) *PaymentHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &PaymentHandler{Svc: svc, Apps: apps, FrontendURL: frontendURL, Log: log}
}

// BrowserReturn handles GET|POST /v1/payments/ssl/{success,fail,cancel}.
func (h *PaymentHandler) BrowserReturn(kind service.ReturnKind) echo.HandlerFunc {
	return func(c echo.Context) error {
		form, err := c.FormParams()
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid form"})
		}
		tranID := form.Get("tran_id")
		if tranID == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing tran_id"})
		}
		payload, _ := json.Marshal(form)

		p, err := h.Svc.RecordBrowserReturn(c.Request().Context(), kind, tranID, form.Get("val_id"), payload)
		if err != nil {
			return writeError(c, h.Log, err)
		}
		body := echo.Map{
			"tran_id": p.TranID,
			"result":  string(kind),
			"status":  p.Status,
		}
		if h.FrontendURL != "" {
			body["next"] = h.FrontendURL + "/payments/" + string(kind) + "?ref=" + p.TranID
		}
		return c.JSON(http.StatusOK, body)
	}
}

// IPN handles POST /v1/payments/ipn. Mismatches and capacity races are
// answered 200 so the gateway stops retrying; only unavailability of the
// validator is answered 502, which makes the gateway try again later.
func (h *PaymentHandler) IPN(c echo.Context) error {
	tranID, valID := c.FormValue("tran_id"), c.FormValue("val_id")
	if tranID == "" || valID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing tran_id or val_id"})
	}
	return h.finalize(c, tranID, valID)
}

func (h *PaymentHandler) finalize(c echo.Context, tranID, reference string) error {
	ctx := c.Request().Context()
	settled, err := h.Svc.Finalize(ctx, tranID, service.Assertion{Reference: reference})
	var recon *service.ReconciliationError
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, echo.Map{"ok": true, "tran_id": tranID, "settled": settled, "status": model.PaymentValidated})
	case errors.As(err, &recon):
		return c.JSON(http.StatusOK, echo.Map{
			"ok":             true,
			"tran_id":        tranID,
			"settled":        settled,
			"status":         model.PaymentValidated,
			"reconciliation": true,
			"reason":         recon.Case.Reason,
		})
	case errors.Is(err, service.ErrValidationMismatch), errors.Is(err, service.ErrValidationPending):
		status := model.PaymentStatus("")
		if p, perr := h.Svc.PaymentStatus(ctx, tranID); perr == nil {
			status = p.Payment.Status
		}
		return c.JSON(http.StatusOK, echo.Map{"ok": false, "tran_id": tranID, "status": status})
	default:
		return writeError(c, h.Log, err)
	}
}

// Status handles GET /v1/payments/:tran_id for the application owner or an
// admin.
func (h *PaymentHandler) Status(c echo.Context) error {
	ctx := c.Request().Context()
	view, err := h.Svc.PaymentStatus(ctx, c.Param("tran_id"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	if middleware.Role(c) != middleware.RoleAdmin {
		uid, ok := middleware.UserID(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}
		app, err := h.Apps.Application(ctx, view.Payment.ApplicationID)
		if err != nil {
			return writeError(c, h.Log, err)
		}
		if app.UserID != uid {
			// Do not reveal that the transaction exists.
			return writeError(c, h.Log, service.ErrPaymentNotFound)
		}
	}
	return c.JSON(http.StatusOK, paymentResponse(view))
}

func paymentResponse(v *service.PaymentView) echo.Map {
	p := v.Payment
	out := echo.Map{
		"tran_id":        p.TranID,
		"application_id": p.ApplicationID,
		"batch_id":       p.Context.BatchID,
		"status":         p.Status,
		"amount":         model.FormatMinor(p.AmountMinor),
		"currency":       p.Currency,
		"gateway":        p.Gateway,
		"created_at":     p.CreatedAt,
		"updated_at":     p.UpdatedAt,
	}
	if p.ValidatedAt != nil {
		out["validated_at"] = p.ValidatedAt
	}
	if p.BankTranID != "" {
		out["bank_tran_id"] = p.BankTranID
	}
	if v.Hold != nil {
		out["hold"] = echo.Map{
			"status":     v.Hold.Status,
			"expires_at": v.Hold.ExpiresAt,
		}
	}
	return out
}
