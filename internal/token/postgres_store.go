package token

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	"github.com/mbd888/sessionvault/internal/txn"
)

// PostgresStore persists balances in token_balances. The table's
// CHECK (balance >= 0) backs up the conditional debit.
type PostgresStore struct {
	sql *txn.SQL
}

// NewPostgresStore creates a store whose statements join the transaction
// carried in the context, if any.
func NewPostgresStore(runner *txn.SQL) *PostgresStore {
	return &PostgresStore{sql: runner}
}

func (p *PostgresStore) Balance(ctx context.Context, token, account string) (*big.Int, error) {
	var raw string
	err := p.sql.Exec(ctx).QueryRowContext(ctx, `
		SELECT balance::TEXT FROM token_balances WHERE token_id = $1 AND account = $2
	`, token, account).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return parseNumeric(raw)
}

func (p *PostgresStore) Debit(ctx context.Context, token, account string, amt *big.Int) error {
	result, err := p.sql.Exec(ctx).ExecContext(ctx, `
		UPDATE token_balances SET
			balance    = balance - $3::NUMERIC,
			updated_at = NOW()
		WHERE token_id = $1 AND account = $2 AND balance >= $3::NUMERIC
	`, token, account, amt.String())
	if err != nil {
		return fmt.Errorf("token: debit %s: %w", account, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

func (p *PostgresStore) Credit(ctx context.Context, token, account string, amt *big.Int) error {
	_, err := p.sql.Exec(ctx).ExecContext(ctx, `
		INSERT INTO token_balances (token_id, account, balance, updated_at)
		VALUES ($1, $2, $3::NUMERIC, NOW())
		ON CONFLICT (token_id, account) DO UPDATE SET
			balance    = token_balances.balance + EXCLUDED.balance,
			updated_at = NOW()
	`, token, account, amt.String())
	return err
}

func (p *PostgresStore) Record(ctx context.Context, t *Transfer) error {
	_, err := p.sql.Exec(ctx).ExecContext(ctx, `
		INSERT INTO token_transfers (id, token_id, from_account, to_account, amount, reference, created_at)
		VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7)
	`, t.ID, t.Token, t.From, t.To, t.Amount, t.Reference, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("token: record transfer: %w", err)
	}
	return nil
}

func (p *PostgresStore) History(ctx context.Context, token, account string, limit int) ([]*Transfer, error) {
	rows, err := p.sql.Exec(ctx).QueryContext(ctx, `
		SELECT id, token_id, from_account, to_account, amount::TEXT, COALESCE(reference, ''), created_at
		FROM token_transfers
		WHERE token_id = $1 AND (from_account = $2 OR to_account = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, token, account, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Transfer
	for rows.Next() {
		t := &Transfer{}
		if err := rows.Scan(&t.ID, &t.Token, &t.From, &t.To, &t.Amount, &t.Reference, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func parseNumeric(raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("token: malformed balance %q", raw)
	}
	return v, nil
}

var _ Store = (*PostgresStore)(nil)
