package vault

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/sessionvault/internal/authz"
	"github.com/mbd888/sessionvault/internal/clock"
	"github.com/mbd888/sessionvault/internal/token"
	"github.com/mbd888/sessionvault/internal/txn"
)

const (
	testToken = "usdc"
	admin     = "0xad00000000000000000000000000000000000001"
	oracle    = "0x0c00000000000000000000000000000000000002"
	payer     = "0xaa00000000000000000000000000000000000003"
	payee     = "0xbb00000000000000000000000000000000000004"
	custody   = "0xcc00000000000000000000000000000000000005"
	stranger  = "0xdd00000000000000000000000000000000000006"
)

var t0 = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu        sync.Mutex
	created   []uint64
	finalized []uint64
	totals    []string
	reclaimed []uint64
	refunds   []string
}

func (r *recordingNotifier) BookingCreated(b *Booking) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, b.ID)
}

func (r *recordingNotifier) SessionFinalized(b *Booking, _ uint64, total *big.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finalized = append(r.finalized, b.ID)
	r.totals = append(r.totals, total.String())
}

func (r *recordingNotifier) SessionReclaimed(b *Booking, refunded *big.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reclaimed = append(r.reclaimed, b.ID)
	r.refunds = append(r.refunds, refunded.String())
}

type harness struct {
	svc      *Service
	store    *MemoryStore
	ledger   *token.Ledger
	clock    *clock.Manual
	notifier *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mem := txn.NewMemory()
	h := &harness{
		store:    NewMemoryStore(mem),
		ledger:   token.New(token.NewMemoryStore(mem), mem),
		clock:    clock.NewManual(t0),
		notifier: &recordingNotifier{},
	}
	h.svc = NewService(h.store, h.ledger, custody).
		WithClock(h.clock).
		WithNotifier(h.notifier)
	return h
}

func newInitializedHarness(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t)
	_, err := h.svc.Initialize(context.Background(), admin, testToken, oracle)
	require.NoError(t, err)
	return h
}

func as(principal string) context.Context {
	return authz.WithPrincipal(context.Background(), principal)
}

func (h *harness) fund(t *testing.T, account string, units int64) {
	t.Helper()
	require.NoError(t, h.ledger.Mint(context.Background(), testToken, account, big.NewInt(units)))
}

func (h *harness) balance(t *testing.T, account string) int64 {
	t.Helper()
	b, err := h.ledger.Balance(context.Background(), testToken, account)
	require.NoError(t, err)
	return b.Int64()
}

func (h *harness) book(t *testing.T, rate int64, duration uint64) uint64 {
	t.Helper()
	id, err := h.svc.CreateBooking(as(payer), payer, payee, big.NewInt(rate), duration)
	require.NoError(t, err)
	return id
}

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

func TestInitialize(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Admin(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = h.svc.Token(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = h.svc.Oracle(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)

	cfg, err := h.svc.Initialize(ctx, "0xAD00000000000000000000000000000000000001", testToken, oracle)
	require.NoError(t, err)
	assert.Equal(t, admin, cfg.Admin)
	assert.Equal(t, t0, cfg.InitializedAt)

	got, err := h.svc.Admin(ctx)
	require.NoError(t, err)
	assert.Equal(t, admin, got)
	got, err = h.svc.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, testToken, got)
	got, err = h.svc.Oracle(ctx)
	require.NoError(t, err)
	assert.Equal(t, oracle, got)
}

func TestInitialize_OnlyOnce(t *testing.T) {
	h := newInitializedHarness(t)

	_, err := h.svc.Initialize(context.Background(), stranger, "other", stranger)
	assert.ErrorIs(t, err, ErrAlreadyInitialized)

	got, err := h.svc.Oracle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, oracle, got, "second initialize must not overwrite")
}

func TestInitialize_RequiresAllFields(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Initialize(context.Background(), admin, "", oracle)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = h.svc.Admin(context.Background())
	assert.ErrorIs(t, err, ErrNotInitialized)
}

// ---------------------------------------------------------------------------
// CreateBooking
// ---------------------------------------------------------------------------

func TestCreateBooking_EscrowsDeposit(t *testing.T) {
	h := newInitializedHarness(t)
	h.fund(t, payer, 1500)

	id := h.book(t, 10, 100)
	assert.Equal(t, uint64(1), id)

	b, err := h.svc.GetBooking(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, b.Status)
	assert.Equal(t, "1000", b.Deposit.String())
	assert.Equal(t, "10", b.Rate.String())
	assert.Equal(t, uint64(100), b.BookedDuration)
	assert.Equal(t, payer, b.Payer)
	assert.Equal(t, payee, b.Payee)
	assert.Equal(t, t0, b.CreatedAt)
	assert.Nil(t, b.Payout)

	assert.Equal(t, int64(500), h.balance(t, payer))
	assert.Equal(t, int64(1000), h.balance(t, custody))
	assert.Equal(t, []uint64{1}, h.notifier.created)
}

func TestCreateBooking_IDsAreSequential(t *testing.T) {
	h := newInitializedHarness(t)
	h.fund(t, payer, 100)

	for want := uint64(1); want <= 5; want++ {
		assert.Equal(t, want, h.book(t, 1, 10))
	}
}

func TestCreateBooking_Rejections(t *testing.T) {
	h := newInitializedHarness(t)
	h.fund(t, payer, 1_000_000)

	tests := []struct {
		name     string
		ctx      context.Context
		rate     *big.Int
		duration uint64
		wantErr  error
	}{
		{"negative rate", as(payer), big.NewInt(-1), 100, ErrInvalidRate},
		{"nil rate", as(payer), nil, 100, ErrInvalidRate},
		{"zero duration", as(payer), big.NewInt(10), 0, ErrInvalidDuration},
		{"overflow", as(payer), new(big.Int).Lsh(big.NewInt(1), 100), 1 << 40, ErrOverflow},
		{"unsigned call", context.Background(), big.NewInt(10), 100, ErrNotAuthorized},
		{"signed by payee", as(payee), big.NewInt(10), 100, ErrNotAuthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.CreateBooking(tt.ctx, payer, payee, tt.rate, tt.duration)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Equal(t, int64(1_000_000), h.balance(t, payer), "no rejected call may move funds")
	assert.Equal(t, uint64(1), h.book(t, 1, 1), "rejected calls must not consume ids")
}

func TestCreateBooking_RejectsCustodyAsParty(t *testing.T) {
	h := newInitializedHarness(t)
	h.fund(t, payer, 1000)
	h.fund(t, custody, 1000)

	_, err := h.svc.CreateBooking(as(payer), payer, custody, big.NewInt(10), 100)
	assert.ErrorIs(t, err, ErrInvalidAddress, "custody as payee")

	_, err = h.svc.CreateBooking(as(custody), custody, payee, big.NewInt(10), 100)
	assert.ErrorIs(t, err, ErrInvalidAddress, "custody as payer")

	_, err = h.svc.CreateBooking(as(payer), payer, "0x"+strings.ToUpper(custody[2:]), big.NewInt(10), 100)
	assert.ErrorIs(t, err, ErrInvalidAddress, "custody compared case-insensitively")

	assert.Equal(t, int64(1000), h.balance(t, payer))
	assert.Equal(t, int64(1000), h.balance(t, custody))
	assert.Equal(t, uint64(1), h.book(t, 1, 1), "rejected calls must not consume ids")
}

func TestCreateBooking_NotInitialized(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.CreateBooking(as(payer), payer, payee, big.NewInt(10), 100)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestCreateBooking_InsufficientBalanceCreatesNothing(t *testing.T) {
	h := newInitializedHarness(t)
	h.fund(t, payer, 999)

	_, err := h.svc.CreateBooking(as(payer), payer, payee, big.NewInt(10), 100)
	assert.ErrorIs(t, err, token.ErrInsufficientBalance)

	_, err = h.svc.GetBooking(context.Background(), 1)
	assert.ErrorIs(t, err, ErrBookingNotFound)
	assert.Equal(t, int64(999), h.balance(t, payer))
	assert.Empty(t, h.notifier.created)

	h.fund(t, payer, 1)
	assert.Equal(t, uint64(1), h.book(t, 10, 100), "failed creation must not burn the id")
}

func TestCreateBooking_ZeroRate(t *testing.T) {
	h := newInitializedHarness(t)

	id := h.book(t, 0, 3600)
	b, err := h.svc.GetBooking(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "0", b.Deposit.String())

	_, err = h.svc.FinalizeSession(as(oracle), id, 1800)
	require.NoError(t, err)
	assert.Equal(t, int64(0), h.balance(t, payee))
}

func TestCreateBooking_ConcurrentIDsAreDense(t *testing.T) {
	h := newInitializedHarness(t)
	h.fund(t, payer, 1000)

	const n = 40
	ids := make(chan uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := h.svc.CreateBooking(as(payer), payer, payee, big.NewInt(1), 5)
			if err != nil {
				t.Errorf("create failed: %v", err)
				return
			}
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint64]bool)
	for id := range ids {
		assert.False(t, seen[id], "id %d handed out twice", id)
		seen[id] = true
	}
	for id := uint64(1); id <= n; id++ {
		assert.True(t, seen[id], "id %d missing", id)
	}
	assert.Equal(t, int64(1000-n*5), h.balance(t, payer))
}

// ---------------------------------------------------------------------------
// FinalizeSession
// ---------------------------------------------------------------------------

func TestFinalizeSession_Settlement(t *testing.T) {
	tests := []struct {
		name       string
		actual     uint64
		wantPayee  int64
		wantRefund int64
	}{
		{"partial", 50, 500, 500},
		{"full", 100, 1000, 0},
		{"cancelled", 0, 0, 1000},
		{"overrun is capped", 250, 1000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newInitializedHarness(t)
			h.fund(t, payer, 1000)
			id := h.book(t, 10, 100)

			b, err := h.svc.FinalizeSession(as(oracle), id, tt.actual)
			require.NoError(t, err)

			assert.Equal(t, StatusFinalized, b.Status)
			require.NotNil(t, b.ActualDuration)
			assert.Equal(t, tt.actual, *b.ActualDuration)
			assert.Equal(t, tt.wantPayee, b.Payout.Int64())
			assert.Equal(t, tt.wantRefund, b.Refund.Int64())
			assert.Equal(t, t0, *b.SettledAt)

			assert.Equal(t, tt.wantPayee, h.balance(t, payee))
			assert.Equal(t, tt.wantRefund, h.balance(t, payer))
			assert.Equal(t, int64(0), h.balance(t, custody))

			require.Len(t, h.notifier.totals, 1)
			assert.Equal(t, big.NewInt(tt.wantPayee).String(), h.notifier.totals[0])
		})
	}
}

func TestFinalizeSession_ConservesDeposit(t *testing.T) {
	h := newInitializedHarness(t)
	h.fund(t, payer, 1_000_000)

	for actual := uint64(0); actual <= 40; actual += 7 {
		id := h.book(t, 13, 37)
		b, err := h.svc.FinalizeSession(as(oracle), id, actual)
		require.NoError(t, err)
		sum := new(big.Int).Add(b.Payout, b.Refund)
		assert.Equal(t, b.Deposit.String(), sum.String(), "actual=%d", actual)
	}
	assert.Equal(t, int64(0), h.balance(t, custody))
	assert.Equal(t, int64(1_000_000), h.balance(t, payer)+h.balance(t, payee))
}

func TestFinalizeSession_Twice(t *testing.T) {
	h := newInitializedHarness(t)
	h.fund(t, payer, 1000)
	id := h.book(t, 10, 100)

	_, err := h.svc.FinalizeSession(as(oracle), id, 50)
	require.NoError(t, err)

	_, err = h.svc.FinalizeSession(as(oracle), id, 100)
	assert.ErrorIs(t, err, ErrInvalidState)

	assert.Equal(t, int64(500), h.balance(t, payee))
	assert.Equal(t, int64(500), h.balance(t, payer))
	assert.Len(t, h.notifier.finalized, 1)
}

func TestFinalizeSession_BookingNotFound(t *testing.T) {
	h := newInitializedHarness(t)
	_, err := h.svc.FinalizeSession(as(oracle), 999, 10)
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestFinalizeSession_OnlyOracle(t *testing.T) {
	h := newInitializedHarness(t)
	h.fund(t, payer, 1000)
	id := h.book(t, 10, 100)

	for _, who := range []string{payer, payee, admin, stranger, ""} {
		_, err := h.svc.FinalizeSession(as(who), id, 50)
		assert.ErrorIs(t, err, ErrNotAuthorized, "caller %q", who)
	}

	b, err := h.svc.GetBooking(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, b.Status)
	assert.Equal(t, int64(1000), h.balance(t, custody))
}

func TestFinalizeSession_NotInitialized(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.FinalizeSession(as(oracle), 1, 10)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

// failingTransfers fails the nth transfer it sees (1-based).
type failingTransfers struct {
	inner TokenTransferrer
	failN int
	calls int
}

var errTransferDown = errors.New("transfer channel unavailable")

func (f *failingTransfers) Transfer(ctx context.Context, tok, from, to string, amt *big.Int, ref string) error {
	f.calls++
	if f.calls == f.failN {
		return errTransferDown
	}
	return f.inner.Transfer(ctx, tok, from, to, amt, ref)
}

func TestFinalizeSession_FailedRefundRollsBackPayout(t *testing.T) {
	h := newInitializedHarness(t)
	h.fund(t, payer, 1000)
	id := h.book(t, 10, 100)

	// Deposit was transfer 1 on the real ledger; the wrapper counts from here.
	flaky := &failingTransfers{inner: h.ledger, failN: 2}
	h.svc.tokens = flaky

	_, err := h.svc.FinalizeSession(as(oracle), id, 30)
	assert.ErrorIs(t, err, errTransferDown)

	b, err := h.svc.GetBooking(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, b.Status)
	assert.Nil(t, b.Payout)
	assert.Equal(t, int64(0), h.balance(t, payee), "payout must roll back with the failed refund")
	assert.Equal(t, int64(1000), h.balance(t, custody))
	assert.Empty(t, h.notifier.finalized)

	// The booking is still settleable once transfers recover.
	h.svc.tokens = h.ledger
	_, err = h.svc.FinalizeSession(as(oracle), id, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(300), h.balance(t, payee))
	assert.Equal(t, int64(700), h.balance(t, payer))
}

func TestFinalizeSession_ConcurrentExactlyOnce(t *testing.T) {
	h := newInitializedHarness(t)
	h.fund(t, payer, 1000)
	id := h.book(t, 10, 100)

	const n = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.FinalizeSession(as(oracle), id, 100)
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrInvalidState) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, int64(1000), h.balance(t, payee))
}

// ---------------------------------------------------------------------------
// ReclaimStaleSession
// ---------------------------------------------------------------------------

func TestReclaim_AfterTimeout(t *testing.T) {
	h := newInitializedHarness(t)
	h.fund(t, payer, 1000)
	id := h.book(t, 10, 100)

	h.clock.Advance(25 * time.Hour)

	b, err := h.svc.ReclaimStaleSession(as(payer), payer, id)
	require.NoError(t, err)
	assert.Equal(t, StatusReclaimed, b.Status)
	assert.Equal(t, "1000", b.Refund.String())
	assert.Equal(t, "0", b.Payout.String())
	assert.Nil(t, b.ActualDuration)

	assert.Equal(t, int64(1000), h.balance(t, payer))
	assert.Equal(t, int64(0), h.balance(t, custody))
	assert.Equal(t, []string{"1000"}, h.notifier.refunds)
}

func TestReclaim_Threshold(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		wantErr error
	}{
		{"immediately", 0, ErrTooEarly},
		{"one second early", StaleAfter - time.Second, ErrTooEarly},
		{"exactly at threshold", StaleAfter, nil},
		{"well after", 90000 * time.Second, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newInitializedHarness(t)
			h.fund(t, payer, 1000)
			id := h.book(t, 10, 100)

			h.clock.Advance(tt.elapsed)
			_, err := h.svc.ReclaimStaleSession(as(payer), payer, id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, int64(1000), h.balance(t, custody))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(1000), h.balance(t, payer))
		})
	}
}

func TestReclaim_OnlyPayer(t *testing.T) {
	h := newInitializedHarness(t)
	h.fund(t, payer, 1000)
	id := h.book(t, 10, 100)
	h.clock.Advance(25 * time.Hour)

	for _, who := range []string{payee, admin, oracle, stranger} {
		_, err := h.svc.ReclaimStaleSession(as(who), who, id)
		assert.ErrorIs(t, err, ErrNotAuthorized, "caller %s", who)
	}

	// Naming the payer without the payer's signature is not enough.
	_, err := h.svc.ReclaimStaleSession(as(stranger), payer, id)
	assert.ErrorIs(t, err, ErrNotAuthorized)
	_, err = h.svc.ReclaimStaleSession(context.Background(), payer, id)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	assert.Equal(t, int64(1000), h.balance(t, custody))
}

func TestReclaim_AfterFinalize(t *testing.T) {
	h := newInitializedHarness(t)
	h.fund(t, payer, 1000)
	id := h.book(t, 10, 100)

	_, err := h.svc.FinalizeSession(as(oracle), id, 100)
	require.NoError(t, err)

	h.clock.Advance(25 * time.Hour)
	_, err = h.svc.ReclaimStaleSession(as(payer), payer, id)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, int64(0), h.balance(t, payer))
	assert.Equal(t, int64(1000), h.balance(t, payee))
}

func TestReclaim_Twice_AndFinalizeAfterReclaim(t *testing.T) {
	h := newInitializedHarness(t)
	h.fund(t, payer, 1000)
	id := h.book(t, 10, 100)
	h.clock.Advance(25 * time.Hour)

	_, err := h.svc.ReclaimStaleSession(as(payer), payer, id)
	require.NoError(t, err)

	_, err = h.svc.ReclaimStaleSession(as(payer), payer, id)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = h.svc.FinalizeSession(as(oracle), id, 50)
	assert.ErrorIs(t, err, ErrInvalidState)

	assert.Equal(t, int64(1000), h.balance(t, payer))
	assert.Equal(t, int64(0), h.balance(t, payee))
	assert.Len(t, h.notifier.reclaimed, 1)
}

func TestReclaim_BookingNotFound(t *testing.T) {
	h := newInitializedHarness(t)
	_, err := h.svc.ReclaimStaleSession(as(payer), payer, 42)
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestReclaim_ClockStepBackDoesNotUnlockEarly(t *testing.T) {
	h := newInitializedHarness(t)
	h.fund(t, payer, 1000)
	h.clock.Advance(time.Hour)
	id := h.book(t, 10, 100)

	h.clock.Set(t0)
	h.clock.Advance(24*time.Hour + 30*time.Minute)
	_, err := h.svc.ReclaimStaleSession(as(payer), payer, id)
	assert.ErrorIs(t, err, ErrTooEarly)
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

func TestGetBooking_ReturnsSnapshot(t *testing.T) {
	h := newInitializedHarness(t)
	h.fund(t, payer, 1000)
	id := h.book(t, 10, 100)

	b, err := h.svc.GetBooking(context.Background(), id)
	require.NoError(t, err)
	b.Status = StatusReclaimed
	b.Deposit.SetInt64(1)

	again, err := h.svc.GetBooking(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, again.Status)
	assert.Equal(t, "1000", again.Deposit.String())
}

func TestListByParty(t *testing.T) {
	h := newInitializedHarness(t)
	h.fund(t, payer, 1000)
	h.book(t, 1, 10)
	h.book(t, 1, 10)
	h.fund(t, stranger, 100)
	_, err := h.svc.CreateBooking(as(stranger), stranger, admin, big.NewInt(1), 10)
	require.NoError(t, err)

	asPayer, err := h.svc.ListByParty(context.Background(), payer, 10)
	require.NoError(t, err)
	require.Len(t, asPayer, 2)
	assert.Equal(t, uint64(2), asPayer[0].ID, "newest first")

	asPayee, err := h.svc.ListByParty(context.Background(), "0xBB00000000000000000000000000000000000004", 10)
	require.NoError(t, err)
	assert.Len(t, asPayee, 2)

	limited, err := h.svc.ListByParty(context.Background(), payer, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestListByParty_LimitBounds(t *testing.T) {
	h := newInitializedHarness(t)
	h.fund(t, payer, 1000)
	for i := 0; i < DefaultListLimit+5; i++ {
		h.book(t, 1, 1)
	}

	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"zero uses default", 0, DefaultListLimit},
		{"negative uses default", -1, DefaultListLimit},
		{"within bounds", 7, 7},
		{"above max is capped, not reset", MaxListLimit + 1, DefaultListLimit + 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.svc.ListByParty(context.Background(), payer, tt.limit)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}
