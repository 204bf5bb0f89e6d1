package event

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/iliyamo/batch-admission/internal/repository"
)

// SettlementListener reacts to a settlement inside the transaction that
// validated the payment. An error rolls that transaction back unless it is
// wrapped with repository.Commit.
type SettlementListener interface {
	HandleSettlement(ctx context.Context, tx repository.Tx, ev PaymentSettled) error
}

// SettlementListenerFunc adapts a function to SettlementListener.
type SettlementListenerFunc func(ctx context.Context, tx repository.Tx, ev PaymentSettled) error

func (f SettlementListenerFunc) HandleSettlement(ctx context.Context, tx repository.Tx, ev PaymentSettled) error {
	return f(ctx, tx, ev)
}

// Subscriber receives events after the transaction that produced them has
// committed. Delivery is best effort.
type Subscriber interface {
	Notify(ctx context.Context, ev Event) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ctx context.Context, ev Event) error

func (f SubscriberFunc) Notify(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Bus is a synchronous dispatcher.
type Bus struct {
	mu          sync.RWMutex
	listeners   []SettlementListener
	subscribers map[string][]Subscriber
	log         *zap.Logger
}

// NewBus returns an empty Bus.
func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{subscribers: map[string][]Subscriber{}, log: log}
}

// OnSettlement registers an in-transaction listener.
func (b *Bus) OnSettlement(l SettlementListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Subscribe registers s for events with the given name.
func (b *Bus) Subscribe(name string, s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[name] = append(b.subscribers[name], s)
}

// DispatchSettlement runs the listeners in registration order on tx and
// stops at the first error.
func (b *Bus) DispatchSettlement(ctx context.Context, tx repository.Tx, ev PaymentSettled) error {
	b.mu.RLock()
	ls := append([]SettlementListener(nil), b.listeners...)
	b.mu.RUnlock()
	for _, l := range ls {
		if err := l.HandleSettlement(ctx, tx, ev); err != nil {
			return err
		}
	}
	return nil
}

// Publish delivers ev to its subscribers. Failures are logged, never
// returned: the state change behind ev is already committed.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subscribers[ev.Name()]...)
	b.mu.RUnlock()
	for _, s := range subs {
		if err := s.Notify(ctx, ev); err != nil {
			b.log.Warn("event subscriber failed", zap.String("event", ev.Name()), zap.Error(err))
		}
	}
}
