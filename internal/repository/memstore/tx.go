package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/batch-admission/internal/model"
	"github.com/iliyamo/batch-admission/internal/repository"
)

// rowLocks is a set of exclusive locks keyed by row. A one-slot channel is
// used instead of a sync.Mutex so waiters can give up when their context
// is cancelled.
type rowLocks struct {
	mu sync.Mutex
	m  map[string]chan struct{}
}

func newRowLocks() *rowLocks { return &rowLocks{m: map[string]chan struct{}{}} }

func (l *rowLocks) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.m[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.m[key] = ch
	}
	return ch
}

func (l *rowLocks) acquire(ctx context.Context, key string) error {
	select {
	case l.slot(key) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *rowLocks) release(key string) { <-l.slot(key) }

// memTx records an undo entry for every write so rollback can restore the
// maps exactly.
type memTx struct {
	s     *Store
	held  map[string]bool
	order []string
	undo  []func()
}

func (t *memTx) lock(ctx context.Context, key string) error {
	if t.held[key] {
		return nil
	}
	if err := t.s.locks.acquire(ctx, key); err != nil {
		return err
	}
	t.held[key] = true
	t.order = append(t.order, key)
	return nil
}

func (t *memTx) release() {
	for i := len(t.order) - 1; i >= 0; i-- {
		t.s.locks.release(t.order[i])
	}
	t.order = nil
	t.held = map[string]bool{}
}

func (t *memTx) rollback() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) LockPayment(ctx context.Context, tranID string) (*model.Payment, error) {
	if err := t.lock(ctx, paymentKey(tranID)); err != nil {
		return nil, err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	id, ok := t.s.paymentByTran[tranID]
	if !ok {
		return nil, repository.ErrPaymentNotFound
	}
	p := clonePayment(t.s.payments[id])
	return &p, nil
}

func (t *memTx) LockApplication(ctx context.Context, id uint64) (*model.Application, error) {
	if err := t.lock(ctx, appKey(id)); err != nil {
		return nil, err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	a, ok := t.s.apps[id]
	if !ok {
		return nil, repository.ErrApplicationNotFound
	}
	cp := cloneApplication(a)
	return &cp, nil
}

func (t *memTx) LockBatch(ctx context.Context, id uint64) (*model.Batch, error) {
	if err := t.lock(ctx, batchKey(id)); err != nil {
		return nil, err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	b, ok := t.s.batches[id]
	if !ok {
		return nil, repository.ErrBatchNotFound
	}
	cp := *b
	return &cp, nil
}

// SweepExpiredHolds locks the batch row (every batch, in id order, when
// batchID is zero) before touching its holds.
func (t *memTx) SweepExpiredHolds(ctx context.Context, batchID uint64, now time.Time) (int64, error) {
	ids := []uint64{batchID}
	if batchID == 0 {
		t.s.mu.Lock()
		ids = ids[:0]
		for id := range t.s.batches {
			ids = append(ids, id)
		}
		t.s.mu.Unlock()
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	for _, id := range ids {
		if err := t.lock(ctx, batchKey(id)); err != nil {
			return 0, err
		}
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var n int64
	for _, h := range t.s.holds {
		if batchID != 0 && h.BatchID != batchID {
			continue
		}
		if h.Status == model.HoldHeld && !h.ExpiresAt.After(now) {
			if err := t.transitionLocked(h, model.HoldExpired, now); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

func (t *memTx) ActiveHoldCount(ctx context.Context, batchID uint64, now time.Time) (int, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.s.activeCountLocked(batchID, now), nil
}

func (t *memTx) HeldHoldForApplication(ctx context.Context, applicationID uint64) (*model.SeatHold, error) {
	t.s.mu.Lock()
	var found *model.SeatHold
	for _, h := range t.s.holds {
		if h.ApplicationID == applicationID && h.Status == model.HoldHeld {
			cp := *h
			found = &cp
			break
		}
	}
	t.s.mu.Unlock()
	if found == nil {
		return nil, repository.ErrHoldNotFound
	}
	if err := t.lock(ctx, holdKey(found.HoldToken)); err != nil {
		return nil, err
	}
	return found, nil
}

func (t *memTx) LockHoldByToken(ctx context.Context, token string) (*model.SeatHold, error) {
	if err := t.lock(ctx, holdKey(token)); err != nil {
		return nil, err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	id, ok := t.s.holdByToken[token]
	if !ok {
		return nil, repository.ErrHoldNotFound
	}
	h := *t.s.holds[id]
	return &h, nil
}

// CreateHold enforces the same uniqueness the MySQL schema does: one HELD
// hold per application and unique tokens.
func (t *memTx) CreateHold(ctx context.Context, h *model.SeatHold) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if _, dup := t.s.holdByToken[h.HoldToken]; dup {
		return repository.ErrDuplicateHold
	}
	for _, other := range t.s.holds {
		if other.ApplicationID == h.ApplicationID && other.Status == model.HoldHeld {
			return repository.ErrDuplicateHold
		}
	}
	t.s.nextHold++
	h.ID = t.s.nextHold
	row := *h
	t.s.holds[row.ID] = &row
	t.s.holdByToken[row.HoldToken] = row.ID
	t.undo = append(t.undo, func() {
		delete(t.s.holds, row.ID)
		delete(t.s.holdByToken, row.HoldToken)
	})
	return nil
}

func (t *memTx) TransitionHold(ctx context.Context, id uint64, from, to model.HoldStatus, now time.Time) (bool, error) {
	if from != model.HoldHeld {
		return false, model.ErrHoldNotHeld
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	h, ok := t.s.holds[id]
	if !ok {
		return false, repository.ErrHoldNotFound
	}
	if h.Status != from {
		return false, nil
	}
	if err := t.transitionLocked(h, to, now); err != nil {
		return false, err
	}
	return true, nil
}

// transitionLocked applies the model's HELD-only transition and records the
// undo entry.
func (t *memTx) transitionLocked(h *model.SeatHold, to model.HoldStatus, now time.Time) error {
	prev := *h
	if err := h.Transition(to, now); err != nil {
		return err
	}
	t.undo = append(t.undo, func() { *h = prev })
	return nil
}

func (t *memTx) IncrementConfirmed(ctx context.Context, batchID uint64, now time.Time) error {
	if err := t.lock(ctx, batchKey(batchID)); err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	b, ok := t.s.batches[batchID]
	if !ok {
		return repository.ErrBatchNotFound
	}
	if b.ConfirmedSeats >= b.TotalSeats {
		return repository.ErrBatchFull
	}
	prev := *b
	b.ConfirmedSeats++
	b.UpdatedAt = now.UTC()
	t.undo = append(t.undo, func() { *b = prev })
	return nil
}

func (t *memTx) MarkApplicationPaid(ctx context.Context, applicationID, paymentID uint64, now time.Time) error {
	if err := t.lock(ctx, appKey(applicationID)); err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	a, ok := t.s.apps[applicationID]
	if !ok {
		return repository.ErrApplicationNotFound
	}
	prev := cloneApplication(a)
	a.IsPaid = true
	pid := paymentID
	a.PaidPaymentID = &pid
	a.UpdatedAt = now.UTC()
	t.undo = append(t.undo, func() { *a = prev })
	return nil
}

func (t *memTx) CreatePayment(ctx context.Context, p *model.Payment) error {
	if err := t.lock(ctx, paymentKey(p.TranID)); err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if _, dup := t.s.paymentByTran[p.TranID]; dup {
		return repository.ErrDuplicateTranID
	}
	t.s.nextPayment++
	p.ID = t.s.nextPayment
	row := clonePayment(p)
	t.s.payments[row.ID] = &row
	t.s.paymentByTran[row.TranID] = row.ID
	t.undo = append(t.undo, func() {
		delete(t.s.payments, row.ID)
		delete(t.s.paymentByTran, row.TranID)
	})
	return nil
}

func (t *memTx) UpdatePayment(ctx context.Context, p *model.Payment) error {
	if err := t.lock(ctx, paymentKey(p.TranID)); err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	cur, ok := t.s.payments[p.ID]
	if !ok {
		return repository.ErrPaymentNotFound
	}
	prev := clonePayment(cur)
	next := clonePayment(p)
	// tran_id, amount and creation context are immutable after insert
	next.TranID, next.AmountMinor, next.Currency, next.Context = prev.TranID, prev.AmountMinor, prev.Currency, prev.Context
	*cur = next
	t.undo = append(t.undo, func() { *cur = prev })
	return nil
}

func (t *memTx) CreateReconciliation(ctx context.Context, c *model.ReconciliationCase) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, other := range t.s.recon {
		if other.PaymentID == c.PaymentID {
			return repository.ErrConflict
		}
	}
	t.s.nextRecon++
	c.ID = t.s.nextRecon
	row := *c
	t.s.recon[row.ID] = &row
	t.undo = append(t.undo, func() { delete(t.s.recon, row.ID) })
	return nil
}

var _ repository.Tx = (*memTx)(nil)
