package vault

import (
	"math/big"

	"github.com/mbd888/sessionvault/internal/amount"
)

// Settlement is the split of a deposit at finalization.
type Settlement struct {
	Effective uint64   // seconds charged: min(actual, booked)
	Payout    *big.Int // to the payee
	Refund    *big.Int // back to the payer
}

// Settle computes how b's deposit divides for a reported actual duration.
// Durations past the booking are charged as the full booking. Payout and
// Refund are non-negative and always sum to the deposit.
func Settle(b *Booking, actualDuration uint64) (Settlement, error) {
	effective := min(actualDuration, b.BookedDuration)

	payout, err := amount.MulDuration(b.Rate, effective)
	if err != nil {
		return Settlement{}, ErrOverflow
	}
	refund, err := amount.Sub(b.Deposit, payout)
	if err != nil {
		return Settlement{}, ErrOverflow
	}
	return Settlement{Effective: effective, Payout: payout, Refund: refund}, nil
}
