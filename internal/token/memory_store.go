package token

import (
	"context"
	"math/big"

	"github.com/mbd888/sessionvault/internal/amount"
	"github.com/mbd888/sessionvault/internal/txn"
)

// MemoryStore keeps balances in memory for development mode and tests.
// Writes join the txn.Memory unit in the context and register their undo.
type MemoryStore struct {
	mem       *txn.Memory
	balances  map[string]*big.Int
	transfers []*Transfer
}

// NewMemoryStore creates a store whose writes join units run by mem.
func NewMemoryStore(mem *txn.Memory) *MemoryStore {
	return &MemoryStore{
		mem:      mem,
		balances: make(map[string]*big.Int),
	}
}

func balanceKey(token, account string) string {
	return token + "|" + account
}

func (m *MemoryStore) Balance(ctx context.Context, token, account string) (*big.Int, error) {
	var out *big.Int
	m.mem.Read(ctx, func() {
		out = amount.Clone(m.balances[balanceKey(token, account)])
	})
	return out, nil
}

func (m *MemoryStore) Debit(ctx context.Context, token, account string, amt *big.Int) error {
	return m.mem.Write(ctx, func(j *txn.Journal) error {
		key := balanceKey(token, account)
		prev := amount.Clone(m.balances[key])
		if prev.Cmp(amt) < 0 {
			return ErrInsufficientBalance
		}
		m.balances[key] = new(big.Int).Sub(prev, amt)
		j.OnRollback(func() { m.balances[key] = prev })
		return nil
	})
}

func (m *MemoryStore) Credit(ctx context.Context, token, account string, amt *big.Int) error {
	return m.mem.Write(ctx, func(j *txn.Journal) error {
		key := balanceKey(token, account)
		prev, existed := m.balances[key]
		m.balances[key] = new(big.Int).Add(amount.Clone(prev), amt)
		j.OnRollback(func() {
			if existed {
				m.balances[key] = prev
			} else {
				delete(m.balances, key)
			}
		})
		return nil
	})
}

func (m *MemoryStore) Record(ctx context.Context, t *Transfer) error {
	return m.mem.Write(ctx, func(j *txn.Journal) error {
		cp := *t
		m.transfers = append(m.transfers, &cp)
		n := len(m.transfers) - 1
		j.OnRollback(func() { m.transfers = m.transfers[:n] })
		return nil
	})
}

func (m *MemoryStore) History(ctx context.Context, token, account string, limit int) ([]*Transfer, error) {
	var out []*Transfer
	m.mem.Read(ctx, func() {
		for i := len(m.transfers) - 1; i >= 0 && len(out) < limit; i-- {
			t := m.transfers[i]
			if t.Token != token || (t.From != account && t.To != account) {
				continue
			}
			cp := *t
			out = append(out, &cp)
		}
	})
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
