// Package service holds the seat-admission core: reservation, payment
// finalization and settlement.
package service

import (
	"go.uber.org/zap"

	"github.com/iliyamo/batch-admission/internal/event"
	"github.com/iliyamo/batch-admission/internal/gateway"
	"github.com/iliyamo/batch-admission/internal/repository"
)

// Services is the wired admission core shared by the HTTP server and the
// CLI.
type Services struct {
	Sweeper        *ExpirySweeper
	Ledger         *Ledger
	Reservation    *ReservationService
	Finalization   *FinalizationService
	Reconciliation *ReconciliationService
	Bus            *event.Bus
}

// New wires the services around one store and gateway and registers the
// settlement listener on bus.
func New(store repository.Store, gw gateway.Client, bus *event.Bus, clock Clock, settings Settings, log *zap.Logger) *Services {
	if log == nil {
		log = zap.NewNop()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	sweeper := NewExpirySweeper(store, clock, log.Named("sweeper"))
	ledger := NewLedger(sweeper, clock)
	bus.OnSettlement(NewSettlementListener(ledger, clock, settings, log.Named("settlement")))
	return &Services{
		Sweeper:        sweeper,
		Ledger:         ledger,
		Reservation:    NewReservationService(store, gw, ledger, clock, settings, log.Named("reservation")),
		Finalization:   NewFinalizationService(store, gw, bus, clock, settings, log.Named("finalization")),
		Reconciliation: NewReconciliationService(store, clock, log.Named("reconciliation")),
		Bus:            bus,
	}
}
