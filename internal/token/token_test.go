package token

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/sessionvault/internal/txn"
)

const (
	usdc  = "usdc"
	alice = "0xaaaa000000000000000000000000000000000001"
	bob   = "0xbbbb000000000000000000000000000000000002"
)

func newTestLedger() (*Ledger, *txn.Memory) {
	mem := txn.NewMemory()
	return New(NewMemoryStore(mem), mem), mem
}

func balanceOf(t *testing.T, l *Ledger, account string) int64 {
	t.Helper()
	b, err := l.Balance(context.Background(), usdc, account)
	require.NoError(t, err)
	return b.Int64()
}

func TestTransfer_MovesFunds(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()
	require.NoError(t, l.Mint(ctx, usdc, alice, big.NewInt(1000)))

	require.NoError(t, l.Transfer(ctx, usdc, alice, bob, big.NewInt(400), "booking:1"))

	assert.Equal(t, int64(600), balanceOf(t, l, alice))
	assert.Equal(t, int64(400), balanceOf(t, l, bob))

	history, err := l.History(ctx, usdc, bob, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "400", history[0].Amount)
	assert.Equal(t, "booking:1", history[0].Reference)
	assert.NotEmpty(t, history[0].ID)
}

func TestTransfer_NormalizesAddresses(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()
	require.NoError(t, l.Mint(ctx, usdc, "0xAAAA000000000000000000000000000000000001", big.NewInt(5)))
	assert.Equal(t, int64(5), balanceOf(t, l, alice))
}

func TestTransfer_InsufficientBalanceLeavesNoTrace(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()
	require.NoError(t, l.Mint(ctx, usdc, alice, big.NewInt(100)))

	err := l.Transfer(ctx, usdc, alice, bob, big.NewInt(101), "")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, int64(100), balanceOf(t, l, alice))
	assert.Equal(t, int64(0), balanceOf(t, l, bob))

	history, err := l.History(ctx, usdc, bob, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestTransfer_RejectsBadInput(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	assert.ErrorIs(t, l.Transfer(ctx, usdc, alice, bob, big.NewInt(0), ""), ErrInvalidAmount)
	assert.ErrorIs(t, l.Transfer(ctx, usdc, alice, bob, big.NewInt(-1), ""), ErrInvalidAmount)
	assert.ErrorIs(t, l.Transfer(ctx, usdc, alice, bob, nil, ""), ErrInvalidAmount)
	assert.ErrorIs(t, l.Transfer(ctx, usdc, "", bob, big.NewInt(1), ""), ErrInvalidAccount)
	assert.ErrorIs(t, l.Transfer(ctx, usdc, alice, alice, big.NewInt(1), ""), ErrSelfTransfer)
	assert.ErrorIs(t, l.Mint(ctx, usdc, alice, big.NewInt(0)), ErrInvalidAmount)
}

func TestTransfer_JoinsEnclosingUnit(t *testing.T) {
	l, mem := newTestLedger()
	ctx := context.Background()
	require.NoError(t, l.Mint(ctx, usdc, alice, big.NewInt(1000)))

	boom := errors.New("later step failed")
	err := mem.Atomic(ctx, func(ctx context.Context) error {
		if err := l.Transfer(ctx, usdc, alice, bob, big.NewInt(300), "first"); err != nil {
			return err
		}
		if err := l.Transfer(ctx, usdc, bob, alice, big.NewInt(100), "second"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, int64(1000), balanceOf(t, l, alice))
	assert.Equal(t, int64(0), balanceOf(t, l, bob))
	history, err := l.History(ctx, usdc, alice, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1, "only the mint survives")
}

func TestBalance_ReturnsCopy(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()
	require.NoError(t, l.Mint(ctx, usdc, alice, big.NewInt(10)))

	b, err := l.Balance(ctx, usdc, alice)
	require.NoError(t, err)
	b.SetInt64(1_000_000)

	assert.Equal(t, int64(10), balanceOf(t, l, alice))
}

func TestBalance_PerToken(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()
	require.NoError(t, l.Mint(ctx, "eurc", alice, big.NewInt(10)))
	assert.Equal(t, int64(0), balanceOf(t, l, alice))
}
