// Package token moves fungible token balances between accounts.
//
// Every transfer is all-or-nothing: the debit, the credit and the journal
// entry commit together. When called inside an enclosing txn unit the
// transfer joins that unit, so an escrow operation can roll back a transfer
// it already made.
package token

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mbd888/sessionvault/internal/amount"
	"github.com/mbd888/sessionvault/internal/clock"
	"github.com/mbd888/sessionvault/internal/txn"
)

var (
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	ErrInvalidAmount       = errors.New("token: invalid amount")
	ErrInvalidAccount      = errors.New("token: invalid account")
	ErrSelfTransfer        = errors.New("token: source and destination are the same account")
)

// MintAccount is the source recorded for minted funds.
const MintAccount = "mint"

// Transfer is one journal entry.
type Transfer struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Amount    string    `json:"amount"`
	Reference string    `json:"reference,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists balances and the transfer journal.
type Store interface {
	Balance(ctx context.Context, token, account string) (*big.Int, error)
	// Debit fails with ErrInsufficientBalance rather than going negative.
	Debit(ctx context.Context, token, account string, amt *big.Int) error
	Credit(ctx context.Context, token, account string, amt *big.Int) error
	Record(ctx context.Context, t *Transfer) error
	History(ctx context.Context, token, account string, limit int) ([]*Transfer, error)
}

// Ledger is the fund transfer channel.
type Ledger struct {
	store  Store
	runner txn.Runner
	clock  clock.Clock
}

// New creates a ledger. runner must be the same unit runner the store joins.
func New(store Store, runner txn.Runner) *Ledger {
	return &Ledger{store: store, runner: runner, clock: clock.NewSystem()}
}

// WithClock sets the clock used to stamp journal entries.
func (l *Ledger) WithClock(c clock.Clock) *Ledger {
	l.clock = c
	return l
}

// Transfer moves amt from one account to another.
func (l *Ledger) Transfer(ctx context.Context, token, from, to string, amt *big.Int, reference string) error {
	from, to = normalize(from), normalize(to)
	if from == "" || to == "" || token == "" {
		return ErrInvalidAccount
	}
	if from == to {
		return ErrSelfTransfer
	}
	if amt == nil || amt.Sign() <= 0 || !amount.InRange(amt) {
		return ErrInvalidAmount
	}

	return l.runner.Atomic(ctx, func(ctx context.Context) error {
		if err := l.store.Debit(ctx, token, from, amt); err != nil {
			return err
		}
		if err := l.store.Credit(ctx, token, to, amt); err != nil {
			return fmt.Errorf("token: credit %s: %w", to, err)
		}
		return l.store.Record(ctx, l.entry(token, from, to, amt, reference))
	})
}

// Mint credits new funds to an account. Only exposed by development tooling.
func (l *Ledger) Mint(ctx context.Context, token, to string, amt *big.Int) error {
	to = normalize(to)
	if to == "" || token == "" {
		return ErrInvalidAccount
	}
	if amt == nil || amt.Sign() <= 0 || !amount.InRange(amt) {
		return ErrInvalidAmount
	}

	return l.runner.Atomic(ctx, func(ctx context.Context) error {
		if err := l.store.Credit(ctx, token, to, amt); err != nil {
			return err
		}
		return l.store.Record(ctx, l.entry(token, MintAccount, to, amt, "mint"))
	})
}

// Balance returns the account's balance in token. Unknown accounts hold zero.
func (l *Ledger) Balance(ctx context.Context, token, account string) (*big.Int, error) {
	return l.store.Balance(ctx, token, normalize(account))
}

// History returns the most recent transfers touching account, newest first.
func (l *Ledger) History(ctx context.Context, token, account string, limit int) ([]*Transfer, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return l.store.History(ctx, token, normalize(account), limit)
}

func (l *Ledger) entry(token, from, to string, amt *big.Int, reference string) *Transfer {
	return &Transfer{
		ID:        uuid.NewString(),
		Token:     token,
		From:      from,
		To:        to,
		Amount:    amount.Format(amt),
		Reference: reference,
		CreatedAt: l.clock.Now(),
	}
}

func normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
