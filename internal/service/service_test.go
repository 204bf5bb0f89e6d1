package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/batch-admission/internal/event"
	"github.com/iliyamo/batch-admission/internal/gateway"
	"github.com/iliyamo/batch-admission/internal/model"
	"github.com/iliyamo/batch-admission/internal/repository/memstore"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testSettings = Settings{
	FeeMinor:        462500,
	Currency:        "BDT",
	HoldDuration:    10 * time.Minute,
	ProductName:     "Admission Fee",
	ProductCategory: "Education",
	GatewayTimeout:  time.Second,
}

type fixture struct {
	store *memstore.Store
	gw    *gateway.Mock
	clock *fakeClock
	bus   *event.Bus
	svc   *Services
	batch model.Batch

	mu        sync.Mutex
	published []event.Event
}

func newFixture(t *testing.T, seats int) *fixture {
	t.Helper()
	f := &fixture{
		store: memstore.New(),
		gw:    gateway.NewMock("http://localhost:8080"),
		clock: &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		bus:   event.NewBus(nil),
	}
	f.batch = f.store.AddBatch(model.Batch{Name: "Morning", TotalSeats: seats})
	record := event.SubscriberFunc(func(ctx context.Context, ev event.Event) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.published = append(f.published, ev)
		return nil
	})
	f.bus.Subscribe(event.NamePaymentSettled, record)
	f.bus.Subscribe(event.NameReconciliationRequired, record)
	f.svc = New(f.store, f.gw, f.bus, f.clock, testSettings, nil)
	return f
}

func (f *fixture) addApplicant(name string) model.Application {
	return f.store.AddApplication(model.Application{
		BatchID:     f.batch.ID,
		UserID:      1,
		StudentName: name,
		Email:       "student@example.com",
	})
}

func (f *fixture) reserve(t *testing.T, appID uint64) *ReserveResult {
	t.Helper()
	res, err := f.svc.Reservation.Reserve(context.Background(), appID)
	require.NoError(t, err)
	return res
}

func (f *fixture) events(name string) []event.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []event.Event
	for _, ev := range f.published {
		if ev.Name() == name {
			out = append(out, ev)
		}
	}
	return out
}

func (f *fixture) confirmed(t *testing.T) int {
	t.Helper()
	b, ok := f.store.Batch(f.batch.ID)
	require.True(t, ok)
	return b.ConfirmedSeats
}
