package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/walletd/internal/core/domain"
	"github.com/vietddude/walletd/internal/infra/storage"
)

// TxRepo implements storage.TransactionRepository using PostgreSQL.
type TxRepo struct {
	db   *DB
	feed *storage.Feed
}

// NewTxRepo creates a new PostgreSQL transaction repository.
func NewTxRepo(db *DB, feed *storage.Feed) *TxRepo {
	return &TxRepo{db: db, feed: feed}
}

type txRow struct {
	Hash       string    `db:"hash"`
	From       string    `db:"from_address"`
	To         string    `db:"to_address"`
	Value      string    `db:"value"`
	Fee        string    `db:"fee"`
	Confirmed  bool      `db:"confirmed"`
	CreatedAt  time.Time `db:"created_at"`
	ProviderID string    `db:"provider_id"`
	Raw        []byte    `db:"raw"`
}

func (r txRow) toDomain() *domain.Transaction {
	return &domain.Transaction{
		Hash:       r.Hash,
		From:       domain.Address(r.From),
		To:         domain.Address(r.To),
		Value:      r.Value,
		Fee:        r.Fee,
		Confirmed:  r.Confirmed,
		CreatedAt:  r.CreatedAt,
		ProviderID: r.ProviderID,
		Raw:        r.Raw,
	}
}

// Insert saves a new transaction record and notifies the feed after commit.
// Duplicate hashes are rejected with storage.ErrAlreadyExists.
func (r *TxRepo) Insert(ctx context.Context, t *domain.Transaction) error {
	query := `
		INSERT INTO transactions (
			hash, from_address, to_address, value, fee, confirmed,
			created_at, provider_id, raw
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (hash) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		t.Hash, t.From.String(), t.To.String(), t.Value, t.Fee, t.Confirmed,
		t.CreatedAt, t.ProviderID, t.Raw,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrAlreadyExists
	}

	r.feed.NotifyTxn(storage.TxnChange{
		Kind: storage.ChangeInserted,
		Hash: t.Hash,
		Txn:  t,
	})
	return nil
}

// GetByHash retrieves a transaction by hash.
func (r *TxRepo) GetByHash(ctx context.Context, hash string) (*domain.Transaction, error) {
	var row txRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM transactions WHERE hash = $1`, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return row.toDomain(), nil
}

// GetAll retrieves all transactions ordered by creation time.
func (r *TxRepo) GetAll(ctx context.Context) ([]*domain.Transaction, error) {
	return r.selectRows(ctx, `SELECT * FROM transactions ORDER BY created_at`)
}

// GetPending retrieves transactions that have not reached the confirmed state.
func (r *TxRepo) GetPending(ctx context.Context) ([]*domain.Transaction, error) {
	return r.selectRows(ctx, `SELECT * FROM transactions WHERE NOT confirmed ORDER BY created_at`)
}

// GetForAddress retrieves transactions where the address is either party.
func (r *TxRepo) GetForAddress(ctx context.Context, addr domain.Address) ([]*domain.Transaction, error) {
	return r.selectRows(ctx,
		`SELECT * FROM transactions WHERE from_address = $1 OR to_address = $1 ORDER BY created_at`,
		addr.String())
}

func (r *TxRepo) selectRows(ctx context.Context, query string, args ...any) ([]*domain.Transaction, error) {
	var rows []txRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select transactions: %w", err)
	}
	out := make([]*domain.Transaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// MarkConfirmed transitions a transaction to the confirmed terminal state.
// The WHERE clause keeps the flag monotonic: an already-confirmed row is
// untouched, and its fee is never rewritten.
func (r *TxRepo) MarkConfirmed(ctx context.Context, hash string, fee string) error {
	query := `
		UPDATE transactions
		SET confirmed = TRUE, fee = COALESCE(NULLIF($2, ''), fee)
		WHERE hash = $1 AND NOT confirmed
	`
	if _, err := r.db.ExecContext(ctx, query, hash, fee); err != nil {
		return fmt.Errorf("failed to confirm transaction: %w", err)
	}
	return nil
}

// Delete removes a transaction record.
func (r *TxRepo) Delete(ctx context.Context, hash string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE hash = $1`, hash)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	r.feed.NotifyTxn(storage.TxnChange{Kind: storage.ChangeDeleted, Hash: hash})
	return nil
}

// DeleteAll removes every transaction record (full history reset).
func (r *TxRepo) DeleteAll(ctx context.Context) error {
	txs, err := r.GetAll(ctx)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM transactions`); err != nil {
		return fmt.Errorf("failed to delete transactions: %w", err)
	}
	for _, t := range txs {
		r.feed.NotifyTxn(storage.TxnChange{Kind: storage.ChangeDeleted, Hash: t.Hash})
	}
	return nil
}
