package experts

import (
	"context"
	"sort"
	"time"

	"github.com/mbd888/sessionvault/internal/txn"
)

// MemoryStore is an in-memory registry store.
type MemoryStore struct {
	mem     *txn.Memory
	admin   string
	records map[string]*Record
}

// NewMemoryStore creates a store whose writes join units run by mem.
func NewMemoryStore(mem *txn.Memory) *MemoryStore {
	return &MemoryStore{mem: mem, records: make(map[string]*Record)}
}

func (m *MemoryStore) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.mem.Atomic(ctx, fn)
}

func (m *MemoryStore) GetAdmin(ctx context.Context) (string, error) {
	var admin string
	m.mem.Read(ctx, func() { admin = m.admin })
	if admin == "" {
		return "", ErrNotInitialized
	}
	return admin, nil
}

func (m *MemoryStore) InitAdmin(ctx context.Context, admin string, _ time.Time) error {
	return m.mem.Write(ctx, func(j *txn.Journal) error {
		if m.admin != "" {
			return ErrAlreadyInitialized
		}
		m.admin = admin
		j.OnRollback(func() { m.admin = "" })
		return nil
	})
}

func (m *MemoryStore) GetRecord(ctx context.Context, expert string) (*Record, error) {
	var out *Record
	m.mem.Read(ctx, func() {
		if r, ok := m.records[expert]; ok {
			cp := *r
			out = &cp
		}
	})
	return out, nil
}

func (m *MemoryStore) PutRecord(ctx context.Context, r *Record) error {
	return m.mem.Write(ctx, func(j *txn.Journal) error {
		prev, existed := m.records[r.Expert]
		cp := *r
		m.records[r.Expert] = &cp
		j.OnRollback(func() {
			if existed {
				m.records[r.Expert] = prev
			} else {
				delete(m.records, r.Expert)
			}
		})
		return nil
	})
}

func (m *MemoryStore) List(ctx context.Context, status Status, limit int) ([]*Record, error) {
	var out []*Record
	m.mem.Read(ctx, func() {
		for _, r := range m.records {
			if status == "" || r.Status == status {
				cp := *r
				out = append(out, &cp)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Expert < out[j].Expert })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
