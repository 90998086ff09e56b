package vault

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/mbd888/sessionvault/internal/amount"
	"github.com/mbd888/sessionvault/internal/authz"
	"github.com/mbd888/sessionvault/internal/clock"
	"github.com/mbd888/sessionvault/internal/logging"
	"github.com/mbd888/sessionvault/internal/syncutil"
	"github.com/mbd888/sessionvault/internal/traces"
)

// Service implements the booking lifecycle.
type Service struct {
	store    Store
	tokens   TokenTransferrer
	custody  string
	auth     authz.Authorizer
	clock    clock.Clock
	notifier Notifier
	locks    *syncutil.IDLocks
}

// NewService creates a vault service. custody is the account that holds
// deposits between booking and settlement.
func NewService(store Store, tokens TokenTransferrer, custody string) *Service {
	return &Service{
		store:   store,
		tokens:  tokens,
		custody: strings.ToLower(custody),
		auth:    authz.ContextAuthorizer{},
		clock:   clock.Monotonic(clock.NewSystem()),
		locks:   syncutil.NewIDLocks(),
	}
}

// WithAuthorizer replaces the per-call authorization check.
func (s *Service) WithAuthorizer(a authz.Authorizer) *Service {
	s.auth = a
	return s
}

// WithClock sets the ledger clock. It is wrapped so readings never regress.
func (s *Service) WithClock(c clock.Clock) *Service {
	s.clock = clock.Monotonic(c)
	return s
}

// WithNotifier adds a lifecycle event sink.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// Custody returns the account holding escrowed deposits.
func (s *Service) Custody() string {
	return s.custody
}

// Initialize stores the vault configuration. It succeeds once.
func (s *Service) Initialize(ctx context.Context, admin, token, oracle string) (_ *Config, retErr error) {
	ctx, span := traces.StartSpan(ctx, "vault.Initialize", traces.Principal(admin))
	defer func() {
		observe("initialize", retErr)
		traces.End(span, retErr)
	}()

	cfg := &Config{
		Admin:         strings.ToLower(strings.TrimSpace(admin)),
		Token:         strings.TrimSpace(token),
		Oracle:        strings.ToLower(strings.TrimSpace(oracle)),
		InitializedAt: s.clock.Now(),
	}
	if cfg.Admin == "" || cfg.Token == "" || cfg.Oracle == "" {
		return nil, ErrInvalidConfig
	}

	if err := s.store.InitConfig(ctx, cfg); err != nil {
		return nil, err
	}

	logging.L(ctx).Info("vault initialized", "admin", cfg.Admin, "token", cfg.Token, "oracle", cfg.Oracle)
	return cfg, nil
}

// Config returns the vault configuration.
func (s *Service) Config(ctx context.Context) (*Config, error) {
	return s.store.GetConfig(ctx)
}

// Admin returns the configured administrator.
func (s *Service) Admin(ctx context.Context) (string, error) {
	cfg, err := s.store.GetConfig(ctx)
	if err != nil {
		return "", err
	}
	return cfg.Admin, nil
}

// Token returns the configured payment token.
func (s *Service) Token(ctx context.Context) (string, error) {
	cfg, err := s.store.GetConfig(ctx)
	if err != nil {
		return "", err
	}
	return cfg.Token, nil
}

// Oracle returns the configured oracle.
func (s *Service) Oracle(ctx context.Context) (string, error) {
	cfg, err := s.store.GetConfig(ctx)
	if err != nil {
		return "", err
	}
	return cfg.Oracle, nil
}

// CreateBooking escrows rate × bookedDuration from payer and returns the new
// booking id. The payer must authorize the call.
func (s *Service) CreateBooking(ctx context.Context, payer, payee string, rate *big.Int, bookedDuration uint64) (_ uint64, retErr error) {
	ctx, span := traces.StartSpan(ctx, "vault.CreateBooking",
		traces.Principal(payer),
		traces.Duration(bookedDuration),
	)
	defer func() {
		observe("create_booking", retErr)
		traces.End(span, retErr)
	}()

	cfg, err := s.store.GetConfig(ctx)
	if err != nil {
		return 0, err
	}
	if rate == nil || rate.Sign() < 0 {
		return 0, ErrInvalidRate
	}
	if bookedDuration == 0 {
		return 0, ErrInvalidDuration
	}
	payer = strings.ToLower(strings.TrimSpace(payer))
	payee = strings.ToLower(strings.TrimSpace(payee))
	if payer == "" || payee == "" {
		return 0, ErrInvalidAddress
	}
	// Custody cannot pay into or be paid out of itself.
	if payer == s.custody || payee == s.custody {
		return 0, ErrInvalidAddress
	}
	deposit, err := amount.MulDuration(rate, bookedDuration)
	if err != nil {
		return 0, ErrOverflow
	}
	if err := s.auth.Require(ctx, payer); err != nil {
		return 0, err
	}

	var booking *Booking
	err = s.store.Atomic(ctx, func(ctx context.Context) error {
		id, err := s.store.NextBookingID(ctx)
		if err != nil {
			return fmt.Errorf("allocate booking id: %w", err)
		}
		if deposit.Sign() > 0 {
			if err := s.tokens.Transfer(ctx, cfg.Token, payer, s.custody, deposit, reference(id, "deposit")); err != nil {
				return err
			}
		}
		booking = &Booking{
			ID:             id,
			Payer:          payer,
			Payee:          payee,
			Rate:           amount.Clone(rate),
			BookedDuration: bookedDuration,
			Deposit:        deposit,
			Status:         StatusPending,
			CreatedAt:      s.clock.Now(),
		}
		return s.store.CreateBooking(ctx, booking)
	})
	if err != nil {
		return 0, err
	}

	bookingsCreated.Inc()
	span.SetAttributes(traces.BookingID(booking.ID), traces.Amount(amount.Format(deposit)))
	logging.L(ctx).Info("booking created",
		"booking_id", booking.ID,
		"payer", booking.Payer,
		"payee", booking.Payee,
		"deposit", amount.Format(deposit),
	)
	if s.notifier != nil {
		s.notifier.BookingCreated(booking.Clone())
	}
	return booking.ID, nil
}

// FinalizeSession settles a pending booking for the reported duration. Only
// the configured oracle may call it.
func (s *Service) FinalizeSession(ctx context.Context, id uint64, actualDuration uint64) (_ *Booking, retErr error) {
	ctx, span := traces.StartSpan(ctx, "vault.FinalizeSession",
		traces.BookingID(id),
		traces.Duration(actualDuration),
	)
	defer func() {
		observe("finalize_session", retErr)
		traces.End(span, retErr)
	}()

	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cfg, err := s.store.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.auth.Require(ctx, cfg.Oracle); err != nil {
		return nil, err
	}

	var (
		booking *Booking
		st      Settlement
	)
	err = s.store.Atomic(ctx, func(ctx context.Context) error {
		b, err := s.store.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if b.Status != StatusPending {
			return ErrInvalidState
		}
		st, err = Settle(b, actualDuration)
		if err != nil {
			return err
		}

		if st.Payout.Sign() > 0 {
			if err := s.tokens.Transfer(ctx, cfg.Token, s.custody, b.Payee, st.Payout, reference(id, "payout")); err != nil {
				return err
			}
		}
		if st.Refund.Sign() > 0 {
			if err := s.tokens.Transfer(ctx, cfg.Token, s.custody, b.Payer, st.Refund, reference(id, "refund")); err != nil {
				return err
			}
		}

		now := s.clock.Now()
		d := actualDuration
		b.Status = StatusFinalized
		b.ActualDuration = &d
		b.Payout = st.Payout
		b.Refund = st.Refund
		b.SettledAt = &now
		if err := s.store.UpdateBooking(ctx, b); err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	bookingsSettled.WithLabelValues(string(StatusFinalized)).Inc()
	addVolume("payee", st.Payout)
	addVolume("payer", st.Refund)
	sessionUsage.Observe(float64(st.Effective) / float64(booking.BookedDuration))
	logging.L(ctx).Info("session finalized",
		"booking_id", id,
		"actual_duration", actualDuration,
		"payout", amount.Format(st.Payout),
		"refund", amount.Format(st.Refund),
	)
	if s.notifier != nil {
		s.notifier.SessionFinalized(booking.Clone(), actualDuration, amount.Clone(st.Payout))
	}
	return booking.Clone(), nil
}

// ReclaimStaleSession returns the full deposit of a booking that has stayed
// pending for at least StaleAfter. Only the booking's payer may call it.
func (s *Service) ReclaimStaleSession(ctx context.Context, caller string, id uint64) (_ *Booking, retErr error) {
	ctx, span := traces.StartSpan(ctx, "vault.ReclaimStaleSession",
		traces.BookingID(id),
		traces.Principal(caller),
	)
	defer func() {
		observe("reclaim_stale_session", retErr)
		traces.End(span, retErr)
	}()

	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cfg, err := s.store.GetConfig(ctx)
	if err != nil {
		return nil, err
	}

	var booking *Booking
	err = s.store.Atomic(ctx, func(ctx context.Context) error {
		b, err := s.store.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if b.Status != StatusPending {
			return ErrInvalidState
		}
		if !strings.EqualFold(strings.TrimSpace(caller), b.Payer) {
			return ErrNotAuthorized
		}
		if err := s.auth.Require(ctx, b.Payer); err != nil {
			return err
		}
		now := s.clock.Now()
		if now.Sub(b.CreatedAt) < StaleAfter {
			return ErrTooEarly
		}

		if b.Deposit.Sign() > 0 {
			if err := s.tokens.Transfer(ctx, cfg.Token, s.custody, b.Payer, b.Deposit, reference(id, "reclaim")); err != nil {
				return err
			}
		}

		b.Status = StatusReclaimed
		b.Payout = new(big.Int)
		b.Refund = amount.Clone(b.Deposit)
		b.SettledAt = &now
		if err := s.store.UpdateBooking(ctx, b); err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	bookingsSettled.WithLabelValues(string(StatusReclaimed)).Inc()
	addVolume("payer", booking.Deposit)
	logging.L(ctx).Info("session reclaimed",
		"booking_id", id,
		"payer", booking.Payer,
		"amount", amount.Format(booking.Deposit),
	)
	if s.notifier != nil {
		s.notifier.SessionReclaimed(booking.Clone(), amount.Clone(booking.Deposit))
	}
	return booking.Clone(), nil
}

// GetBooking returns a snapshot of a booking.
func (s *Service) GetBooking(ctx context.Context, id uint64) (*Booking, error) {
	return s.store.GetBooking(ctx, id)
}

// Listing limits for ListByParty.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// ListByParty returns bookings where addr is payer or payee, newest first.
// Non-positive limits use DefaultListLimit; larger ones are capped at
// MaxListLimit.
func (s *Service) ListByParty(ctx context.Context, addr string, limit int) ([]*Booking, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	return s.store.ListByParty(ctx, strings.ToLower(addr), limit)
}

func reference(id uint64, leg string) string {
	return fmt.Sprintf("booking:%d:%s", id, leg)
}
