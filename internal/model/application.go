package model

import "time"

// Application is an admission application submitted by a student. The
// admission core only reads it, except for the paid flag set on settlement.
type Application struct {
	ID            uint64
	BatchID       uint64
	UserID        uint64 // owner, as carried in the access token subject
	StudentName   string
	Email         string
	Mobile        string
	Address       string
	City          string
	Postcode      string
	Country       string
	IsPaid        bool
	PaidPaymentID *uint64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
