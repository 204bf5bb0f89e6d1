package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/iliyamo/batch-admission/internal/event"
	"github.com/iliyamo/batch-admission/internal/gateway"
	"github.com/iliyamo/batch-admission/internal/model"
	"github.com/iliyamo/batch-admission/internal/repository"
)

// Assertion is a caller's claim that a transaction completed. Only the
// reference is used, and only to ask the gateway.
type Assertion struct {
	Reference string
}

// FinalizationService turns gateway-confirmed payments into settlements.
// Browser returns and IPN deliveries for the same tran_id may arrive in any
// order and any number of times; at most one of them validates.
type FinalizationService struct {
	store    repository.Store
	gw       gateway.Client
	bus      *event.Bus
	clock    Clock
	settings Settings
	log      *zap.Logger
}

func NewFinalizationService(store repository.Store, gw gateway.Client, bus *event.Bus, clock Clock, settings Settings, log *zap.Logger) *FinalizationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &FinalizationService{store: store, gw: gw, bus: bus, clock: clock, settings: settings, log: log}
}

// Finalize validates tranID with the gateway and, if every cross-check
// passes, settles it. It returns true only for the call that performed
// the transition to VALIDATED.
func (s *FinalizationService) Finalize(ctx context.Context, tranID string, a Assertion) (settled bool, err error) {
	ctx, span := startSpan(ctx, "FinalizationService.Finalize", attribute.String("payment.tran_id", tranID))
	defer func() {
		span.SetAttributes(attribute.Bool("payment.settled", settled))
		endSpan(span, err)
	}()

	p, err := s.store.PaymentByTranID(ctx, tranID)
	if err != nil {
		return false, err
	}
	if p.IsValidated() {
		return false, nil
	}
	ref := a.Reference
	if ref == "" {
		ref = p.ValID
	}
	if ref == "" {
		return false, ErrMissingReference
	}

	v, gwErr := s.validate(ctx, ref)
	if gwErr != nil && !errors.Is(gwErr, gateway.ErrRejected) {
		s.log.Warn("gateway validation unavailable", zap.String("tran_id", tranID), zap.Error(gwErr))
		return false, fmt.Errorf("%w: %v", ErrGatewayUnavailable, gwErr)
	}
	// A validator answer about another transaction, or none at all, says
	// nothing about this payment and must not change it.
	if gwErr != nil || v.TranID != tranID {
		s.log.Warn("validation does not belong to payment",
			zap.String("tran_id", tranID), zap.String("reference", ref), zap.Error(gwErr))
		if gwErr != nil {
			return false, fmt.Errorf("%w: %v", ErrValidationMismatch, gwErr)
		}
		return false, fmt.Errorf("%w: validator returned tran_id %q", ErrValidationMismatch, v.TranID)
	}

	var settledEv event.PaymentSettled
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		p, err := tx.LockPayment(ctx, tranID)
		if err != nil {
			return err
		}
		if p.IsValidated() {
			return errAlreadySettled
		}
		now := s.clock.Now()
		p.ValidationResponse = v.Raw
		if v.ValID != "" {
			p.ValID = v.ValID
		}
		p.BankTranID = v.BankTranID
		p.RiskLevel = v.RiskLevel

		if v.Status == gateway.StatusPending {
			p.UpdatedAt = now
			if err := tx.UpdatePayment(ctx, p); err != nil {
				return err
			}
			return repository.Commit(ErrValidationPending)
		}
		if reason := s.mismatch(p, v); reason != "" {
			if err := p.MarkFailed(failedStatus(v.Status), now); err != nil {
				return err
			}
			if err := tx.UpdatePayment(ctx, p); err != nil {
				return err
			}
			if err := releaseHold(ctx, tx, p, now); err != nil {
				return err
			}
			return repository.Commit(fmt.Errorf("%w: %s", ErrValidationMismatch, reason))
		}

		if err := p.MarkValidated(now); err != nil {
			return err
		}
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}
		settledEv = event.PaymentSettled{
			PaymentID:     p.ID,
			TranID:        p.TranID,
			ApplicationID: p.ApplicationID,
			BatchID:       p.Context.BatchID,
			AmountMinor:   p.AmountMinor,
			Currency:      p.Currency,
			HoldToken:     p.Context.HoldToken,
			SettledAt:     now,
		}
		if err := s.bus.DispatchSettlement(ctx, tx, settledEv); err != nil {
			var race *ReconciliationError
			if errors.As(err, &race) {
				return repository.Commit(err)
			}
			return err
		}
		return nil
	})

	var race *ReconciliationError
	switch {
	case err == nil:
		s.log.Info("payment settled",
			zap.String("tran_id", tranID),
			zap.Uint64("application_id", settledEv.ApplicationID),
			zap.Uint64("batch_id", settledEv.BatchID))
		s.bus.Publish(ctx, settledEv)
		return true, nil
	case errors.Is(err, errAlreadySettled):
		return false, nil
	case errors.As(err, &race):
		s.log.Error("validated payment needs reconciliation",
			zap.String("tran_id", tranID),
			zap.String("reason", race.Case.Reason),
			zap.Uint64("application_id", race.Case.ApplicationID),
			zap.Uint64("batch_id", race.Case.BatchID),
			zap.Uint64("case_id", race.Case.ID))
		s.bus.Publish(ctx, event.ReconciliationRequired{
			CaseID:        race.Case.ID,
			PaymentID:     race.Case.PaymentID,
			TranID:        race.Case.TranID,
			ApplicationID: race.Case.ApplicationID,
			BatchID:       race.Case.BatchID,
			Reason:        race.Case.Reason,
			CreatedAt:     race.Case.CreatedAt,
		})
		return true, race
	case errors.Is(err, ErrValidationMismatch):
		s.log.Warn("payment validation failed", zap.String("tran_id", tranID), zap.Error(err))
		return false, err
	default:
		return false, err
	}
}

var errAlreadySettled = errors.New("already settled")

func (s *FinalizationService) validate(ctx context.Context, ref string) (*gateway.Validation, error) {
	if s.settings.GatewayTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.settings.GatewayTimeout)
		defer cancel()
	}
	return s.gw.Validate(ctx, ref)
}

// mismatch returns why v does not settle p, or "" when it does.
func (s *FinalizationService) mismatch(p *model.Payment, v *gateway.Validation) string {
	switch {
	case v.Status != gateway.StatusValid:
		return "gateway status " + string(v.Status)
	case v.AmountMinor != p.AmountMinor || !s.settings.feeMatches(v.AmountMinor, v.Currency):
		return fmt.Sprintf("amount %s %s does not match fee", model.FormatMinor(v.AmountMinor), v.Currency)
	case v.Currency != p.Currency:
		return "currency " + v.Currency + " does not match payment"
	case !v.LowRisk:
		return "risk level " + v.RiskLevel
	}
	return ""
}

func failedStatus(st gateway.Status) model.PaymentStatus {
	switch st {
	case gateway.StatusCancelled:
		return model.PaymentCancelled
	case gateway.StatusExpired:
		return model.PaymentExpired
	default:
		return model.PaymentFailed
	}
}
