package event

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/batch-admission/internal/repository"
)

func TestDispatchSettlementStopsAtFirstError(t *testing.T) {
	b := NewBus(nil)
	var calls []string
	boom := errors.New("boom")
	b.OnSettlement(SettlementListenerFunc(func(ctx context.Context, tx repository.Tx, ev PaymentSettled) error {
		calls = append(calls, "first")
		return boom
	}))
	b.OnSettlement(SettlementListenerFunc(func(ctx context.Context, tx repository.Tx, ev PaymentSettled) error {
		calls = append(calls, "second")
		return nil
	}))

	err := b.DispatchSettlement(context.Background(), nil, PaymentSettled{TranID: "ADM-1"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first"}, calls)
}

func TestPublishRoutesByNameAndSwallowsErrors(t *testing.T) {
	b := NewBus(nil)
	var got []Event
	b.Subscribe(NamePaymentSettled, SubscriberFunc(func(ctx context.Context, ev Event) error {
		return errors.New("broker down")
	}))
	b.Subscribe(NamePaymentSettled, SubscriberFunc(func(ctx context.Context, ev Event) error {
		got = append(got, ev)
		return nil
	}))

	b.Publish(context.Background(), PaymentSettled{TranID: "ADM-1"})
	b.Publish(context.Background(), ReconciliationRequired{TranID: "ADM-2"})

	if assert.Len(t, got, 1) {
		assert.Equal(t, "ADM-1", got[0].(PaymentSettled).TranID)
	}
}
