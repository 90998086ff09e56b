package notify

import (
	"math/big"

	"github.com/google/uuid"

	"github.com/mbd888/sessionvault/internal/amount"
	"github.com/mbd888/sessionvault/internal/clock"
	"github.com/mbd888/sessionvault/internal/experts"
	"github.com/mbd888/sessionvault/internal/vault"
)

// Emitter turns service callbacks into events on a Dispatcher. It satisfies
// vault.Notifier and experts.Notifier.
type Emitter struct {
	d     *Dispatcher
	clock clock.Clock
}

// NewEmitter creates an emitter publishing to d.
func NewEmitter(d *Dispatcher, c clock.Clock) *Emitter {
	if c == nil {
		c = clock.NewSystem()
	}
	return &Emitter{d: d, clock: c}
}

func (e *Emitter) emit(t EventType, bookingID uint64, parties []string, data map[string]interface{}) {
	if e == nil || e.d == nil {
		return
	}
	e.d.Publish(&Event{
		ID:        "evt_" + uuid.NewString(),
		Type:      t,
		Timestamp: e.clock.Now(),
		BookingID: bookingID,
		Parties:   parties,
		Data:      data,
	})
}

// BookingCreated emits booking.created.
func (e *Emitter) BookingCreated(b *vault.Booking) {
	e.emit(EventBookingCreated, b.ID, []string{b.Payer, b.Payee}, map[string]interface{}{
		"bookingId":      b.ID,
		"payer":          b.Payer,
		"payee":          b.Payee,
		"rate":           amount.Format(b.Rate),
		"bookedDuration": b.BookedDuration,
		"deposit":        amount.Format(b.Deposit),
	})
}

// SessionFinalized emits session.finalized.
func (e *Emitter) SessionFinalized(b *vault.Booking, actualDuration uint64, total *big.Int) {
	e.emit(EventSessionFinalized, b.ID, []string{b.Payer, b.Payee}, map[string]interface{}{
		"bookingId":      b.ID,
		"payer":          b.Payer,
		"payee":          b.Payee,
		"actualDuration": actualDuration,
		"totalPayment":   amount.Format(total),
		"refund":         amount.Format(b.Refund),
	})
}

// SessionReclaimed emits session.reclaimed.
func (e *Emitter) SessionReclaimed(b *vault.Booking, refunded *big.Int) {
	e.emit(EventSessionReclaimed, b.ID, []string{b.Payer, b.Payee}, map[string]interface{}{
		"bookingId": b.ID,
		"payer":     b.Payer,
		"payee":     b.Payee,
		"amount":    amount.Format(refunded),
	})
}

// ExpertStatusChanged emits expert.status_changed.
func (e *Emitter) ExpertStatusChanged(expert string, from, to experts.Status, admin string) {
	e.emit(EventExpertStatusChanged, 0, []string{expert}, map[string]interface{}{
		"expert":    expert,
		"oldStatus": string(from),
		"newStatus": string(to),
		"admin":     admin,
	})
}

var (
	_ vault.Notifier   = (*Emitter)(nil)
	_ experts.Notifier = (*Emitter)(nil)
)
