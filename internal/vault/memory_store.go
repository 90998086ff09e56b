package vault

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/mbd888/sessionvault/internal/txn"
)

var errDuplicateBooking = errors.New("vault: booking id already used")

// MemoryStore is an in-memory vault store for development mode and tests.
// It joins units run by the shared txn.Memory, so token transfers made in
// the same unit roll back with it.
type MemoryStore struct {
	mem      *txn.Memory
	config   *Config
	lastID   uint64
	bookings map[uint64]*Booking
}

// NewMemoryStore creates a store. Pass the same mem to the token store.
func NewMemoryStore(mem *txn.Memory) *MemoryStore {
	return &MemoryStore{
		mem:      mem,
		bookings: make(map[uint64]*Booking),
	}
}

func (m *MemoryStore) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.mem.Atomic(ctx, fn)
}

func (m *MemoryStore) GetConfig(ctx context.Context) (*Config, error) {
	var out *Config
	m.mem.Read(ctx, func() {
		if m.config != nil {
			cp := *m.config
			out = &cp
		}
	})
	if out == nil {
		return nil, ErrNotInitialized
	}
	return out, nil
}

func (m *MemoryStore) InitConfig(ctx context.Context, cfg *Config) error {
	return m.mem.Write(ctx, func(j *txn.Journal) error {
		if m.config != nil {
			return ErrAlreadyInitialized
		}
		cp := *cfg
		m.config = &cp
		j.OnRollback(func() { m.config = nil })
		return nil
	})
}

func (m *MemoryStore) NextBookingID(ctx context.Context) (uint64, error) {
	var id uint64
	err := m.mem.Write(ctx, func(j *txn.Journal) error {
		m.lastID++
		id = m.lastID
		j.OnRollback(func() { m.lastID-- })
		return nil
	})
	return id, err
}

func (m *MemoryStore) CreateBooking(ctx context.Context, b *Booking) error {
	return m.mem.Write(ctx, func(j *txn.Journal) error {
		if _, exists := m.bookings[b.ID]; exists {
			return errDuplicateBooking
		}
		m.bookings[b.ID] = b.Clone()
		j.OnRollback(func() { delete(m.bookings, b.ID) })
		return nil
	})
}

func (m *MemoryStore) GetBooking(ctx context.Context, id uint64) (*Booking, error) {
	var out *Booking
	m.mem.Read(ctx, func() {
		if b, ok := m.bookings[id]; ok {
			out = b.Clone()
		}
	})
	if out == nil {
		return nil, ErrBookingNotFound
	}
	return out, nil
}

func (m *MemoryStore) UpdateBooking(ctx context.Context, b *Booking) error {
	return m.mem.Write(ctx, func(j *txn.Journal) error {
		prev, ok := m.bookings[b.ID]
		if !ok {
			return ErrBookingNotFound
		}
		m.bookings[b.ID] = b.Clone()
		j.OnRollback(func() { m.bookings[b.ID] = prev })
		return nil
	})
}

func (m *MemoryStore) ListByParty(ctx context.Context, addr string, limit int) ([]*Booking, error) {
	var out []*Booking
	m.mem.Read(ctx, func() {
		for _, b := range m.bookings {
			if b.Payer == addr || b.Payee == addr {
				out = append(out, b.Clone())
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ListStale(ctx context.Context, createdBefore time.Time, limit int) ([]*Booking, error) {
	var out []*Booking
	m.mem.Read(ctx, func() {
		for _, b := range m.bookings {
			if b.Status == StatusPending && !b.CreatedAt.After(createdBefore) {
				out = append(out, b.Clone())
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
