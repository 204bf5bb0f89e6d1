package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// HoldStatus is the lifecycle state of a SeatHold.
type HoldStatus string

const (
	HoldHeld      HoldStatus = "HELD"
	HoldConfirmed HoldStatus = "CONFIRMED"
	HoldExpired   HoldStatus = "EXPIRED"
	HoldCancelled HoldStatus = "CANCELLED"
)

// ErrHoldNotHeld is returned when a transition is attempted on a hold that
// already left the HELD state.
var ErrHoldNotHeld = errors.New("seat hold is not in HELD state")

// SeatHold is a temporary claim on one seat of a batch while the bound
// payment is in flight. At most one hold per application may be HELD.
type SeatHold struct {
	ID            uint64     // seat_holds.id
	ApplicationID uint64     // seat_holds.application_id
	BatchID       uint64     // seat_holds.batch_id
	HoldToken     string     // seat_holds.hold_token, join key into the payment creation context
	ExpiresAt     time.Time  // seat_holds.expires_at
	Status        HoldStatus // seat_holds.status
	CreatedAt     time.Time  // seat_holds.created_at
	UpdatedAt     time.Time  // seat_holds.updated_at
}

// NewSeatHold builds a HELD hold expiring ttl after now.
func NewSeatHold(applicationID, batchID uint64, now time.Time, ttl time.Duration) *SeatHold {
	now = now.UTC()
	return &SeatHold{
		ApplicationID: applicationID,
		BatchID:       batchID,
		HoldToken:     uuid.NewString(),
		ExpiresAt:     now.Add(ttl),
		Status:        HoldHeld,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// IsActive reports whether the hold still counts against capacity at now.
func (h *SeatHold) IsActive(now time.Time) bool {
	return h.Status == HoldHeld && h.ExpiresAt.After(now)
}

// Transition moves a HELD hold to the given state. Every other state is
// immutable.
func (h *SeatHold) Transition(to HoldStatus, now time.Time) error {
	if h.Status != HoldHeld {
		return ErrHoldNotHeld
	}
	h.Status = to
	h.UpdatedAt = now.UTC()
	return nil
}
