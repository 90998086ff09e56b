package vault

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mbd888/sessionvault/internal/clock"
)

// Monitor periodically reports pending bookings that their payers may now
// reclaim. It only observes; reclaiming stays a payer action.
type Monitor struct {
	store    Store
	clock    clock.Clock
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool

	reported map[uint64]struct{}
}

// NewMonitor creates a stale-booking monitor.
func NewMonitor(store Store, c clock.Clock, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Monitor{
		store:    store,
		clock:    c,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}, 1),
		reported: make(map[uint64]struct{}),
	}
}

// Running reports whether the loop is active.
func (m *Monitor) Running() bool {
	return m.running.Load()
}

// Start runs the scan loop until ctx ends or Stop is called. Call in a goroutine.
func (m *Monitor) Start(ctx context.Context) {
	m.running.Store(true)
	defer m.running.Store(false)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.safeScan(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.safeScan(ctx)
		}
	}
}

// Stop signals the loop to exit.
func (m *Monitor) Stop() {
	select {
	case m.stop <- struct{}{}:
	default:
	}
}

func (m *Monitor) safeScan(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("panic in stale booking monitor", "panic", fmt.Sprint(r))
		}
	}()
	m.scan(ctx)
}

// scan returns the number of reclaimable bookings found.
func (m *Monitor) scan(ctx context.Context) int {
	cutoff := m.clock.Now().Add(-StaleAfter)
	stale, err := m.store.ListStale(ctx, cutoff, 1000)
	if err != nil {
		m.logger.Warn("failed to list stale bookings", "error", err)
		return 0
	}

	reclaimableBookings.Set(float64(len(stale)))

	current := make(map[uint64]struct{}, len(stale))
	for _, b := range stale {
		current[b.ID] = struct{}{}
		if _, seen := m.reported[b.ID]; seen {
			continue
		}
		m.logger.Info("booking reclaimable by payer",
			"booking_id", b.ID,
			"payer", b.Payer,
			"payee", b.Payee,
			"deposit", b.Deposit.String(),
			"created_at", b.CreatedAt,
		)
	}
	m.reported = current
	return len(stale)
}
