// Package memstore is an in-memory repository.Store used by tests and by
// the memory store driver. It honours the same locking contract as the
// MySQL store: Lock* methods take exclusive per-row locks that are held until
// the transaction ends, and a rolled back transaction leaves no trace.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/batch-admission/internal/model"
	"github.com/iliyamo/batch-admission/internal/repository"
)

// Store keeps every table in maps guarded by mu. Row locks live in locks and
// are independent of mu, which is only held for the duration of one call.
type Store struct {
	mu sync.Mutex

	batches       map[uint64]*model.Batch
	apps          map[uint64]*model.Application
	holds         map[uint64]*model.SeatHold
	holdByToken   map[string]uint64
	payments      map[uint64]*model.Payment
	paymentByTran map[string]uint64
	recon         map[uint64]*model.ReconciliationCase

	nextBatch, nextApp, nextHold, nextPayment, nextRecon uint64

	locks *rowLocks
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		batches:       map[uint64]*model.Batch{},
		apps:          map[uint64]*model.Application{},
		holds:         map[uint64]*model.SeatHold{},
		holdByToken:   map[string]uint64{},
		payments:      map[uint64]*model.Payment{},
		paymentByTran: map[string]uint64{},
		recon:         map[uint64]*model.ReconciliationCase{},
		locks:         newRowLocks(),
	}
}

// AddBatch inserts a batch, assigning an ID when b.ID is zero.
func (s *Store) AddBatch(b model.Batch) model.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == 0 {
		s.nextBatch++
		b.ID = s.nextBatch
	} else if b.ID > s.nextBatch {
		s.nextBatch = b.ID
	}
	s.batches[b.ID] = &b
	return b
}

// AddApplication inserts an application, assigning an ID when a.ID is zero.
func (s *Store) AddApplication(a model.Application) model.Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == 0 {
		s.nextApp++
		a.ID = s.nextApp
	} else if a.ID > s.nextApp {
		s.nextApp = a.ID
	}
	s.apps[a.ID] = &a
	return a
}

// Batch returns a copy of the batch row.
func (s *Store) Batch(id uint64) (model.Batch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return model.Batch{}, false
	}
	return *b, true
}

// Holds returns copies of the holds owned by an application in creation
// order.
func (s *Store) Holds(applicationID uint64) []model.SeatHold {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.SeatHold
	for _, h := range s.holds {
		if h.ApplicationID == applicationID {
			out = append(out, *h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Payments returns copies of the payments of an application in creation
// order.
func (s *Store) Payments(applicationID uint64) []model.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Payment
	for _, p := range s.payments {
		if p.ApplicationID == applicationID {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ExpireHold rewinds a hold's expiry, for tests that need a hold to lapse
// without waiting.
func (s *Store) ExpireHold(token string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.holdByToken[token]
	if !ok {
		return repository.ErrHoldNotFound
	}
	s.holds[id].ExpiresAt = at
	return nil
}

// WithTx runs fn with a transaction that holds row locks until it returns.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	t := &memTx{s: s, held: map[string]bool{}}
	committed := false
	defer func() {
		if !committed {
			t.rollback()
		}
		t.release()
	}()

	err := fn(ctx, t)
	if err != nil && !repository.ShouldCommit(err) {
		return err
	}
	committed = true
	return err
}

// PaymentByTranID waits for any writer of the payment row so it never
// observes uncommitted state.
func (s *Store) PaymentByTranID(ctx context.Context, tranID string) (*model.Payment, error) {
	key := paymentKey(tranID)
	if err := s.locks.acquire(ctx, key); err != nil {
		return nil, err
	}
	defer s.locks.release(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.paymentByTran[tranID]
	if !ok {
		return nil, repository.ErrPaymentNotFound
	}
	p := clonePayment(s.payments[id])
	return &p, nil
}

func (s *Store) ApplicationByID(ctx context.Context, id uint64) (*model.Application, error) {
	key := appKey(id)
	if err := s.locks.acquire(ctx, key); err != nil {
		return nil, err
	}
	defer s.locks.release(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apps[id]
	if !ok {
		return nil, repository.ErrApplicationNotFound
	}
	cp := cloneApplication(a)
	return &cp, nil
}

// HoldByToken waits for any writer of the hold row, like PaymentByTranID.
func (s *Store) HoldByToken(ctx context.Context, token string) (*model.SeatHold, error) {
	key := holdKey(token)
	if err := s.locks.acquire(ctx, key); err != nil {
		return nil, err
	}
	defer s.locks.release(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.holdByToken[token]
	if !ok {
		return nil, repository.ErrHoldNotFound
	}
	h := *s.holds[id]
	return &h, nil
}

func (s *Store) BatchAvailability(ctx context.Context, batchID uint64, now time.Time) (*model.Batch, int, error) {
	key := batchKey(batchID)
	if err := s.locks.acquire(ctx, key); err != nil {
		return nil, 0, err
	}
	defer s.locks.release(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[batchID]
	if !ok {
		return nil, 0, repository.ErrBatchNotFound
	}
	cp := *b
	return &cp, s.activeCountLocked(batchID, now), nil
}

func (s *Store) ListReconciliations(ctx context.Context, status model.ReconciliationStatus, limit int) ([]model.ReconciliationCase, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ReconciliationCase, 0, len(s.recon))
	for _, c := range s.recon {
		if status == "" || c.Status == status {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ResolveReconciliation(ctx context.Context, id uint64, note string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.recon[id]
	if !ok {
		return repository.ErrReconciliationNotFound
	}
	if c.Status != model.ReconciliationOpen {
		return repository.ErrConflict
	}
	now = now.UTC()
	c.Status = model.ReconciliationResolved
	c.Note = note
	c.ResolvedAt = &now
	return nil
}

func (s *Store) activeCountLocked(batchID uint64, now time.Time) int {
	n := 0
	for _, h := range s.holds {
		if h.BatchID == batchID && h.IsActive(now) {
			n++
		}
	}
	return n
}

func paymentKey(tranID string) string { return "payment:" + tranID }
func appKey(id uint64) string         { return fmt.Sprintf("application:%d", id) }
func batchKey(id uint64) string       { return fmt.Sprintf("batch:%d", id) }
func holdKey(token string) string     { return "hold:" + token }

func clonePayment(p *model.Payment) model.Payment {
	cp := *p
	cp.InitResponse = append([]byte(nil), p.InitResponse...)
	cp.CallbackPayload = append([]byte(nil), p.CallbackPayload...)
	cp.ValidationResponse = append([]byte(nil), p.ValidationResponse...)
	if p.ValidatedAt != nil {
		t := *p.ValidatedAt
		cp.ValidatedAt = &t
	}
	return cp
}

func cloneApplication(a *model.Application) model.Application {
	cp := *a
	if a.PaidPaymentID != nil {
		id := *a.PaidPaymentID
		cp.PaidPaymentID = &id
	}
	return cp
}

var _ repository.Store = (*Store)(nil)
