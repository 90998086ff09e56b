package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/mbd888/sessionvault/internal/txn"
)

// PostgresStore persists the vault in PostgreSQL. Statements join the
// serializable transaction carried in the context by Atomic.
type PostgresStore struct {
	sql *txn.SQL
}

// NewPostgresStore creates a PostgreSQL-backed vault store.
func NewPostgresStore(runner *txn.SQL) *PostgresStore {
	return &PostgresStore{sql: runner}
}

func (p *PostgresStore) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	return p.sql.Atomic(ctx, fn)
}

func (p *PostgresStore) GetConfig(ctx context.Context) (*Config, error) {
	cfg := &Config{}
	err := p.sql.Exec(ctx).QueryRowContext(ctx, `
		SELECT admin_addr, token_id, oracle_addr, initialized_at
		FROM vault_config WHERE id = 1
	`).Scan(&cfg.Admin, &cfg.Token, &cfg.Oracle, &cfg.InitializedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, err
	}
	cfg.InitializedAt = cfg.InitializedAt.UTC()
	return cfg, nil
}

func (p *PostgresStore) InitConfig(ctx context.Context, cfg *Config) error {
	result, err := p.sql.Exec(ctx).ExecContext(ctx, `
		INSERT INTO vault_config (id, admin_addr, token_id, oracle_addr, initialized_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, cfg.Admin, cfg.Token, cfg.Oracle, cfg.InitializedAt)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrAlreadyInitialized
	}
	return nil
}

func (p *PostgresStore) NextBookingID(ctx context.Context) (uint64, error) {
	var id int64
	err := p.sql.Exec(ctx).QueryRowContext(ctx, `
		INSERT INTO vault_counters (name, value) VALUES ('booking_id', 1)
		ON CONFLICT (name) DO UPDATE SET value = vault_counters.value + 1
		RETURNING value
	`).Scan(&id)
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func (p *PostgresStore) CreateBooking(ctx context.Context, b *Booking) error {
	_, err := p.sql.Exec(ctx).ExecContext(ctx, `
		INSERT INTO bookings (
			id, payer_addr, payee_addr, rate, booked_duration, deposit,
			status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC,
			$7, $8, NOW()
		)`,
		int64(b.ID), b.Payer, b.Payee, b.Rate.String(), strconv.FormatUint(b.BookedDuration, 10), b.Deposit.String(),
		string(b.Status), b.CreatedAt,
	)
	return err
}

const bookingColumns = `
	id, payer_addr, payee_addr, rate::TEXT, booked_duration::TEXT, deposit::TEXT,
	status, created_at, actual_duration::TEXT, payout::TEXT, refund::TEXT, settled_at`

func (p *PostgresStore) GetBooking(ctx context.Context, id uint64) (*Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	if txn.TxFrom(ctx) != nil {
		query += ` FOR UPDATE`
	}

	b, err := scanBooking(p.sql.Exec(ctx).QueryRowContext(ctx, query, int64(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	return b, err
}

func (p *PostgresStore) UpdateBooking(ctx context.Context, b *Booking) error {
	var actual sql.NullString
	if b.ActualDuration != nil {
		actual = sql.NullString{String: strconv.FormatUint(*b.ActualDuration, 10), Valid: true}
	}

	result, err := p.sql.Exec(ctx).ExecContext(ctx, `
		UPDATE bookings SET
			status = $2,
			actual_duration = $3::NUMERIC,
			payout = $4::NUMERIC,
			refund = $5::NUMERIC,
			settled_at = $6,
			updated_at = NOW()
		WHERE id = $1`,
		int64(b.ID), string(b.Status), actual, nullNumeric(b.Payout), nullNumeric(b.Refund), nullTime(b.SettledAt),
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrBookingNotFound
	}
	return nil
}

func (p *PostgresStore) ListByParty(ctx context.Context, addr string, limit int) ([]*Booking, error) {
	rows, err := p.sql.Exec(ctx).QueryContext(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE payer_addr = $1 OR payee_addr = $1
		ORDER BY id DESC
		LIMIT $2`, addr, limit)
	if err != nil {
		return nil, err
	}
	return scanBookings(rows)
}

func (p *PostgresStore) ListStale(ctx context.Context, createdBefore time.Time, limit int) ([]*Booking, error) {
	rows, err := p.sql.Exec(ctx).QueryContext(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = 'pending' AND created_at <= $1
		ORDER BY id ASC
		LIMIT $2`, createdBefore, limit)
	if err != nil {
		return nil, err
	}
	return scanBookings(rows)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(sc scanner) (*Booking, error) {
	var (
		id                            int64
		rate, booked, deposit, status string
		actual, payout, refund        sql.NullString
		settledAt                     sql.NullTime
		b                             = &Booking{}
	)
	if err := sc.Scan(
		&id, &b.Payer, &b.Payee, &rate, &booked, &deposit,
		&status, &b.CreatedAt, &actual, &payout, &refund, &settledAt,
	); err != nil {
		return nil, err
	}

	var err error
	b.ID = uint64(id)
	b.Status = Status(status)
	b.CreatedAt = b.CreatedAt.UTC()
	if b.Rate, err = parseNumeric(rate); err != nil {
		return nil, err
	}
	if b.Deposit, err = parseNumeric(deposit); err != nil {
		return nil, err
	}
	if b.BookedDuration, err = strconv.ParseUint(booked, 10, 64); err != nil {
		return nil, fmt.Errorf("vault: malformed booked_duration %q: %w", booked, err)
	}
	if actual.Valid {
		d, err := strconv.ParseUint(actual.String, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("vault: malformed actual_duration %q: %w", actual.String, err)
		}
		b.ActualDuration = &d
	}
	if payout.Valid {
		if b.Payout, err = parseNumeric(payout.String); err != nil {
			return nil, err
		}
	}
	if refund.Valid {
		if b.Refund, err = parseNumeric(refund.String); err != nil {
			return nil, err
		}
	}
	if settledAt.Valid {
		t := settledAt.Time.UTC()
		b.SettledAt = &t
	}
	return b, nil
}

func scanBookings(rows *sql.Rows) ([]*Booking, error) {
	defer rows.Close()
	var out []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func parseNumeric(raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("vault: malformed numeric %q", raw)
	}
	return v, nil
}

func nullNumeric(v *big.Int) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: v.String(), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

var _ Store = (*PostgresStore)(nil)
