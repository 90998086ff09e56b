package experts

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mbd888/sessionvault/internal/txn"
)

// PostgresStore persists the registry in PostgreSQL.
type PostgresStore struct {
	sql *txn.SQL
}

// NewPostgresStore creates a PostgreSQL-backed registry store.
func NewPostgresStore(runner *txn.SQL) *PostgresStore {
	return &PostgresStore{sql: runner}
}

func (p *PostgresStore) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	return p.sql.Atomic(ctx, fn)
}

func (p *PostgresStore) GetAdmin(ctx context.Context) (string, error) {
	var admin string
	err := p.sql.Exec(ctx).QueryRowContext(ctx,
		`SELECT admin_addr FROM expert_registry WHERE id = 1`,
	).Scan(&admin)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotInitialized
	}
	return admin, err
}

func (p *PostgresStore) InitAdmin(ctx context.Context, admin string, at time.Time) error {
	result, err := p.sql.Exec(ctx).ExecContext(ctx, `
		INSERT INTO expert_registry (id, admin_addr, initialized_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO NOTHING
	`, admin, at)
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

func (p *PostgresStore) GetRecord(ctx context.Context, expert string) (*Record, error) {
	query := `SELECT expert_addr, status, updated_at FROM experts WHERE expert_addr = $1`
	if txn.TxFrom(ctx) != nil {
		query += ` FOR UPDATE`
	}
	r := &Record{}
	var status string
	err := p.sql.Exec(ctx).QueryRowContext(ctx, query, expert).Scan(&r.Expert, &status, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Status = Status(status)
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

func (p *PostgresStore) PutRecord(ctx context.Context, r *Record) error {
	_, err := p.sql.Exec(ctx).ExecContext(ctx, `
		INSERT INTO experts (expert_addr, status, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (expert_addr) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`, r.Expert, string(r.Status), r.UpdatedAt)
	return err
}

func (p *PostgresStore) List(ctx context.Context, status Status, limit int) ([]*Record, error) {
	rows, err := p.sql.Exec(ctx).QueryContext(ctx, `
		SELECT expert_addr, status, updated_at FROM experts
		WHERE $1::TEXT = '' OR status = $1::TEXT
		ORDER BY expert_addr
		LIMIT $2
	`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Record
	for rows.Next() {
		r := &Record{}
		var s string
		if err := rows.Scan(&r.Expert, &s, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Status = Status(s)
		r.UpdatedAt = r.UpdatedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

var _ Store = (*PostgresStore)(nil)
