package model

import "time"

// Batch is a fixed-capacity class section. ConfirmedSeats is the capacity
// ledger: it only grows through settlement and never exceeds TotalSeats.
type Batch struct {
	ID             uint64    // batches.id
	Name           string    // batches.name
	TotalSeats     int       // batches.total_seats
	ConfirmedSeats int       // batches.confirmed_seats
	CreatedAt      time.Time // batches.created_at
	UpdatedAt      time.Time // batches.updated_at
}

// Available returns the seats still admissible given the number of active
// holds counted under the same lock. It never goes negative.
func (b Batch) Available(activeHolds int) int {
	n := b.TotalSeats - b.ConfirmedSeats - activeHolds
	if n < 0 {
		return 0
	}
	return n
}

// Full reports whether the ledger alone has reached capacity.
func (b Batch) Full() bool { return b.ConfirmedSeats >= b.TotalSeats }
