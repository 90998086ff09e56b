// Package vault is the escrow engine for time-metered bookings.
//
// Flow:
//  1. Payer books a session → rate × booked seconds moves payer → custody
//  2. Oracle reports the actual duration → custody pays the payee for the
//     time used (capped at the booking) and refunds the rest to the payer
//  3. If the oracle never reports, the payer reclaims the full deposit once
//     the booking is StaleAfter old
//
// A booking leaves pending exactly once. Funds and the booking record always
// move together inside one txn unit.
package vault

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/mbd888/sessionvault/internal/amount"
	"github.com/mbd888/sessionvault/internal/authz"
)

var (
	ErrNotInitialized     = errors.New("vault: not initialized")
	ErrAlreadyInitialized = errors.New("vault: already initialized")
	ErrNotAuthorized      = authz.ErrNotAuthorized
	ErrInvalidConfig      = errors.New("vault: admin, token and oracle are required")
	ErrInvalidAddress     = errors.New("vault: payer and payee are required")
	ErrInvalidRate        = errors.New("vault: rate must be non-negative")
	ErrInvalidDuration    = errors.New("vault: booked duration must be positive")
	ErrOverflow           = amount.ErrOverflow
	ErrBookingNotFound    = errors.New("vault: booking not found")
	ErrInvalidState       = errors.New("vault: booking is not pending")
	ErrTooEarly           = errors.New("vault: booking is not yet reclaimable")
)

// StaleAfter is how long a booking must stay pending before its payer may reclaim it.
const StaleAfter = 24 * time.Hour

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusPending   Status = "pending"   // Deposit held, awaiting oracle
	StatusFinalized Status = "finalized" // Settled by the oracle
	StatusReclaimed Status = "reclaimed" // Deposit returned to the payer after timeout
)

// Config is the one-time vault configuration.
type Config struct {
	Admin         string    `json:"admin"`
	Token         string    `json:"token"`
	Oracle        string    `json:"oracle"`
	InitializedAt time.Time `json:"initializedAt"`
}

// Booking is one escrow record. Settlement fields are nil while pending.
type Booking struct {
	ID             uint64
	Payer          string
	Payee          string
	Rate           *big.Int
	BookedDuration uint64
	Deposit        *big.Int
	Status         Status
	CreatedAt      time.Time

	ActualDuration *uint64 // finalize only
	Payout         *big.Int
	Refund         *big.Int
	SettledAt      *time.Time
}

// IsTerminal returns true once the booking has left pending.
func (b *Booking) IsTerminal() bool {
	return b.Status == StatusFinalized || b.Status == StatusReclaimed
}

// Clone returns a deep copy.
func (b *Booking) Clone() *Booking {
	cp := *b
	cp.Rate = amount.Clone(b.Rate)
	cp.Deposit = amount.Clone(b.Deposit)
	if b.ActualDuration != nil {
		d := *b.ActualDuration
		cp.ActualDuration = &d
	}
	if b.Payout != nil {
		cp.Payout = amount.Clone(b.Payout)
	}
	if b.Refund != nil {
		cp.Refund = amount.Clone(b.Refund)
	}
	if b.SettledAt != nil {
		t := *b.SettledAt
		cp.SettledAt = &t
	}
	return &cp
}

// Store persists the vault configuration, bookings and the booking id counter.
// Stores return copies and do not enforce lifecycle rules.
type Store interface {
	// Atomic runs fn as one failure-atomic unit. Token transfers made with
	// the unit's context join it.
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error

	GetConfig(ctx context.Context) (*Config, error)
	// InitConfig fails with ErrAlreadyInitialized if a config exists.
	InitConfig(ctx context.Context, cfg *Config) error

	// NextBookingID hands out 1, 2, 3, ... Each value is returned at most
	// once across committed units.
	NextBookingID(ctx context.Context) (uint64, error)
	CreateBooking(ctx context.Context, b *Booking) error
	// GetBooking locks the row for the rest of the unit when called inside Atomic.
	GetBooking(ctx context.Context, id uint64) (*Booking, error)
	UpdateBooking(ctx context.Context, b *Booking) error

	ListByParty(ctx context.Context, addr string, limit int) ([]*Booking, error)
	ListStale(ctx context.Context, createdBefore time.Time, limit int) ([]*Booking, error)
}

// TokenTransferrer moves funds. Transfers are all-or-nothing and join the
// Store's unit when given its context.
type TokenTransferrer interface {
	Transfer(ctx context.Context, token, from, to string, amt *big.Int, reference string) error
}

// Notifier receives lifecycle events after they commit. Implementations must
// not block.
type Notifier interface {
	BookingCreated(b *Booking)
	SessionFinalized(b *Booking, actualDuration uint64, total *big.Int)
	SessionReclaimed(b *Booking, refunded *big.Int)
}

// CreateBookingRequest is the body of POST /v1/bookings.
type CreateBookingRequest struct {
	Payer          string `json:"payer" binding:"required"`
	Payee          string `json:"payee" binding:"required"`
	Rate           string `json:"rate" binding:"required"`
	BookedDuration uint64 `json:"bookedDuration"`
}

// FinalizeRequest is the body of POST /v1/bookings/:id/finalize.
type FinalizeRequest struct {
	ActualDuration *uint64 `json:"actualDuration" binding:"required"`
}

// ReclaimRequest is the body of POST /v1/bookings/:id/reclaim.
type ReclaimRequest struct {
	Caller string `json:"caller" binding:"required"`
}

// InitializeRequest is the body of POST /v1/vault/initialize.
type InitializeRequest struct {
	Admin  string `json:"admin" binding:"required"`
	Token  string `json:"token" binding:"required"`
	Oracle string `json:"oracle" binding:"required"`
}
