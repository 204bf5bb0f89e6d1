package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/iliyamo/batch-admission/internal/gateway"
	"github.com/iliyamo/batch-admission/internal/model"
	"github.com/iliyamo/batch-admission/internal/repository"
)

// ReserveResult is what an applicant needs to continue to the hosted
// payment page.
type ReserveResult struct {
	Hold        *model.SeatHold
	Payment     *model.Payment
	RedirectURL string
}

// ReservationService creates seat holds and opens the payment bound to
// each of them.
type ReservationService struct {
	store    repository.Store
	gw       gateway.Client
	ledger   *Ledger
	clock    Clock
	settings Settings
	log      *zap.Logger
}

func NewReservationService(store repository.Store, gw gateway.Client, ledger *Ledger, clock Clock, settings Settings, log *zap.Logger) *ReservationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReservationService{store: store, gw: gw, ledger: ledger, clock: clock, settings: settings, log: log}
}

// Application returns the application row, for ownership checks.
func (s *ReservationService) Application(ctx context.Context, id uint64) (*model.Application, error) {
	return s.store.ApplicationByID(ctx, id)
}

// Availability returns an advisory snapshot of a batch.
func (s *ReservationService) Availability(ctx context.Context, batchID uint64) (*Availability, error) {
	return s.ledger.Snapshot(ctx, s.store, batchID)
}

// Reserve claims a seat for the application and opens a gateway session
// for it. The capacity decision and both inserts happen under the batch
// lock; the gateway call happens after commit.
func (s *ReservationService) Reserve(ctx context.Context, applicationID uint64) (res *ReserveResult, err error) {
	ctx, span := startSpan(ctx, "ReservationService.Reserve", attribute.Int64("application.id", int64(applicationID)))
	defer func() { endSpan(span, err) }()

	var (
		app  *model.Application
		hold *model.SeatHold
		pay  *model.Payment
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		app, err = tx.LockApplication(ctx, applicationID)
		if err != nil {
			return err
		}
		if app.IsPaid {
			return ErrAlreadyPaid
		}
		batch, err := tx.LockBatch(ctx, app.BatchID)
		if err != nil {
			return err
		}

		available, err := s.ledger.Available(ctx, tx, batch)
		if err != nil {
			return err
		}
		// Checked after the sweep so a lapsed hold does not block a retry.
		if _, err := tx.HeldHoldForApplication(ctx, app.ID); err == nil {
			return ErrActiveHoldExists
		} else if !errors.Is(err, repository.ErrHoldNotFound) {
			return err
		}
		if available <= 0 {
			return ErrCapacityExhausted
		}

		now := s.clock.Now()
		hold = model.NewSeatHold(app.ID, batch.ID, now, s.settings.HoldDuration)
		if err := tx.CreateHold(ctx, hold); err != nil {
			if errors.Is(err, repository.ErrDuplicateHold) {
				return ErrActiveHoldExists
			}
			return err
		}

		tranID, err := model.NewTranID()
		if err != nil {
			return err
		}
		pay = &model.Payment{
			TranID:        tranID,
			ApplicationID: app.ID,
			AmountMinor:   s.settings.FeeMinor,
			Currency:      s.settings.Currency,
			Gateway:       s.gw.Name(),
			Status:        model.PaymentInitiated,
			Context: model.CreationContext{
				HoldToken:     hold.HoldToken,
				ApplicationID: app.ID,
				BatchID:       batch.ID,
				ProductName:   s.settings.ProductName,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.CreatePayment(ctx, pay)
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("payment.tran_id", pay.TranID))

	sess, gwErr := s.openSession(ctx, app, pay)
	if gwErr != nil {
		// The request context may already be done; the cleanup must land.
		if cerr := s.abandon(context.WithoutCancel(ctx), pay.TranID, gwErr); cerr != nil {
			s.log.Error("release hold after gateway failure",
				zap.String("tran_id", pay.TranID), zap.Error(cerr))
		}
		s.log.Warn("gateway session failed", zap.String("tran_id", pay.TranID), zap.Error(gwErr))
		if errors.Is(gwErr, gateway.ErrRejected) {
			return nil, fmt.Errorf("%w: %v", ErrGatewayRejected, gwErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, gwErr)
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		p, err := tx.LockPayment(ctx, pay.TranID)
		if err != nil {
			return err
		}
		// A fast IPN may already have moved the payment on.
		if err := p.MarkRedirected(sess.SessionKey, sess.URL, sess.Raw, s.clock.Now()); err != nil {
			p.SessionKey, p.GatewayURL, p.InitResponse = sess.SessionKey, sess.URL, sess.Raw
		}
		pay = p
		return tx.UpdatePayment(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("seat held",
		zap.Uint64("application_id", app.ID),
		zap.Uint64("batch_id", hold.BatchID),
		zap.String("tran_id", pay.TranID),
		zap.Time("expires_at", hold.ExpiresAt))
	return &ReserveResult{Hold: hold, Payment: pay, RedirectURL: sess.URL}, nil
}

func (s *ReservationService) openSession(ctx context.Context, app *model.Application, pay *model.Payment) (*gateway.Session, error) {
	if s.settings.GatewayTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.settings.GatewayTimeout)
		defer cancel()
	}
	sess, err := s.gw.OpenSession(ctx, gateway.SessionRequest{
		TranID:          pay.TranID,
		AmountMinor:     pay.AmountMinor,
		Currency:        pay.Currency,
		ProductName:     s.settings.ProductName,
		ProductCategory: s.settings.ProductCategory,
		Customer: gateway.Customer{
			Name:     app.StudentName,
			Email:    app.Email,
			Phone:    app.Mobile,
			Address:  app.Address,
			City:     app.City,
			Postcode: app.Postcode,
			Country:  app.Country,
		},
	})
	if err != nil {
		return nil, err
	}
	if sess.URL == "" {
		return nil, fmt.Errorf("%w: empty redirect url", gateway.ErrRejected)
	}
	return sess, nil
}

// abandon cancels the hold of a payment whose session could not be opened
// and marks the payment FAILED with the gateway error kept for audit.
func (s *ReservationService) abandon(ctx context.Context, tranID string, cause error) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		p, err := tx.LockPayment(ctx, tranID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if err := releaseHold(ctx, tx, p, now); err != nil {
			return err
		}
		if p.IsValidated() {
			return nil
		}
		raw, _ := json.Marshal(map[string]string{"error": cause.Error()})
		p.InitResponse = raw
		if err := p.MarkFailed(model.PaymentFailed, now); err != nil {
			return err
		}
		return tx.UpdatePayment(ctx, p)
	})
}

// releaseHold cancels the hold bound to p if it is still HELD. The payment
// row must already be locked; application, batch and hold are locked here
// in that order. It is a no-op on a second call.
func releaseHold(ctx context.Context, tx repository.Tx, p *model.Payment, now time.Time) error {
	token := p.Context.HoldToken
	if token == "" {
		return nil
	}
	if _, err := tx.LockApplication(ctx, p.ApplicationID); err != nil {
		return err
	}
	if _, err := tx.LockBatch(ctx, p.Context.BatchID); err != nil {
		return err
	}
	h, err := tx.LockHoldByToken(ctx, token)
	if errors.Is(err, repository.ErrHoldNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = tx.TransitionHold(ctx, h.ID, model.HoldHeld, model.HoldCancelled, now)
	return err
}
