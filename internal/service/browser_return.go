package service

import (
	"context"
	"encoding/json"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/iliyamo/batch-admission/internal/model"
	"github.com/iliyamo/batch-admission/internal/repository"
)

// ReturnKind is the hosted page outcome reported by the browser redirect.
type ReturnKind string

const (
	ReturnSuccess ReturnKind = "success"
	ReturnFail    ReturnKind = "fail"
	ReturnCancel  ReturnKind = "cancel"
)

func (k ReturnKind) status() model.PaymentStatus {
	switch k {
	case ReturnSuccess:
		return model.PaymentBrowserSuccess
	case ReturnCancel:
		return model.PaymentBrowserCancel
	default:
		return model.PaymentBrowserFail
	}
}

// RecordBrowserReturn stores a browser redirect. It is informational: only
// Finalize can validate a payment. Fail and cancel release the bound hold;
// success with a val_id tries to finalize straight away.
func (s *FinalizationService) RecordBrowserReturn(ctx context.Context, kind ReturnKind, tranID, valID string, payload json.RawMessage) (*model.Payment, error) {
	ctx, span := startSpan(ctx, "FinalizationService.RecordBrowserReturn",
		attribute.String("payment.tran_id", tranID), attribute.String("return.kind", string(kind)))

	var out *model.Payment
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		p, err := tx.LockPayment(ctx, tranID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if !p.IsTerminal() {
			p.RecordBrowserReturn(kind.status(), payload, now)
			if kind == ReturnSuccess && valID != "" && p.ValID == "" {
				p.ValID = valID
			}
			if err := tx.UpdatePayment(ctx, p); err != nil {
				return err
			}
		}
		if kind != ReturnSuccess && !p.IsValidated() {
			if err := releaseHold(ctx, tx, p, now); err != nil {
				return err
			}
		}
		out = p
		return nil
	})
	endSpan(span, err)
	if err != nil {
		return nil, err
	}

	if kind == ReturnSuccess && valID != "" && !out.IsValidated() {
		settled, ferr := s.Finalize(ctx, tranID, Assertion{Reference: valID})
		if ferr != nil {
			s.log.Warn("finalize on browser return", zap.String("tran_id", tranID), zap.Error(ferr))
		}
		if settled || ferr != nil {
			if p, err := s.store.PaymentByTranID(ctx, tranID); err == nil {
				out = p
			}
		}
	}
	return out, nil
}

// PaymentView is the read model returned by the status endpoint.
type PaymentView struct {
	Payment *model.Payment
	Hold    *model.SeatHold
}

// PaymentStatus reads a payment and its bound hold without locking.
func (s *FinalizationService) PaymentStatus(ctx context.Context, tranID string) (*PaymentView, error) {
	p, err := s.store.PaymentByTranID(ctx, tranID)
	if err != nil {
		return nil, err
	}
	view := &PaymentView{Payment: p}
	if tok := p.Context.HoldToken; tok != "" {
		h, err := s.store.HoldByToken(ctx, tok)
		if err != nil && !errors.Is(err, repository.ErrHoldNotFound) {
			return nil, err
		}
		view.Hold = h
	}
	return view, nil
}
