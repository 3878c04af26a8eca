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

// WalletRepo implements storage.WalletRepository using PostgreSQL.
type WalletRepo struct {
	db   *DB
	feed *storage.Feed
}

// NewWalletRepo creates a new PostgreSQL wallet repository.
func NewWalletRepo(db *DB, feed *storage.Feed) *WalletRepo {
	return &WalletRepo{db: db, feed: feed}
}

type walletRow struct {
	Address        string    `db:"address"`
	Type           string    `db:"wallet_type"`
	PublicKey      string    `db:"public_key"`
	PrivateKey     string    `db:"private_key"`
	Mnemonic       string    `db:"mnemonic"`
	DerivationPath string    `db:"derivation_path"`
	RootAddress    string    `db:"root_address"`
	IsMain         bool      `db:"is_main"`
	IsHidden       bool      `db:"is_hidden"`
	MnemonicSaved  bool      `db:"mnemonic_saved"`
	Name           string    `db:"name"`
	DeviceID       string    `db:"device_id"`
	DeviceName     string    `db:"device_name"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r walletRow) toDomain() *domain.Wallet {
	return &domain.Wallet{
		Address:        domain.Address(r.Address),
		Type:           domain.WalletType(r.Type),
		PublicKey:      r.PublicKey,
		PrivateKey:     r.PrivateKey,
		Mnemonic:       r.Mnemonic,
		DerivationPath: r.DerivationPath,
		RootAddress:    domain.Address(r.RootAddress),
		IsMain:         r.IsMain,
		IsHidden:       r.IsHidden,
		MnemonicSaved:  r.MnemonicSaved,
		Name:           r.Name,
		DeviceID:       r.DeviceID,
		DeviceName:     r.DeviceName,
		CreatedAt:      r.CreatedAt,
	}
}

// Save inserts a wallet record inside a transaction and notifies the change
// feed only after the commit succeeds.
func (r *WalletRepo) Save(ctx context.Context, w *domain.Wallet) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO wallets (
			address, wallet_type, public_key, private_key, mnemonic,
			derivation_path, root_address, is_main, is_hidden, mnemonic_saved,
			name, device_id, device_name, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = tx.ExecContext(ctx, query,
		w.Address.String(), string(w.Type), w.PublicKey, w.PrivateKey, w.Mnemonic,
		w.DerivationPath, w.RootAddress.String(), w.IsMain, w.IsHidden, w.MnemonicSaved,
		w.Name, w.DeviceID, w.DeviceName, w.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save wallet: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit wallet save: %w", err)
	}

	r.feed.NotifyWallet(storage.WalletChange{
		Kind:    storage.ChangeInserted,
		Address: w.Address,
		Wallet:  w,
	})
	return nil
}

// GetByAddress retrieves a wallet by canonical address.
func (r *WalletRepo) GetByAddress(ctx context.Context, addr domain.Address) (*domain.Wallet, error) {
	var row walletRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM wallets WHERE address = $1`, addr.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return row.toDomain(), nil
}

// GetAll retrieves all wallets ordered by creation time.
func (r *WalletRepo) GetAll(ctx context.Context) ([]*domain.Wallet, error) {
	var rows []walletRow
	err := r.db.SelectContext(ctx, &rows, `SELECT * FROM wallets ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all wallets: %w", err)
	}
	out := make([]*domain.Wallet, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *WalletRepo) UpdateMain(ctx context.Context, addr domain.Address, isMain bool) error {
	return r.updateBool(ctx, "is_main", addr, isMain)
}

func (r *WalletRepo) UpdateMnemonicSaved(ctx context.Context, addr domain.Address, saved bool) error {
	return r.updateBool(ctx, "mnemonic_saved", addr, saved)
}

func (r *WalletRepo) UpdateHidden(ctx context.Context, addr domain.Address, hidden bool) error {
	return r.updateBool(ctx, "is_hidden", addr, hidden)
}

func (r *WalletRepo) UpdateName(ctx context.Context, addr domain.Address, name string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE wallets SET name = $1 WHERE address = $2`, name, addr.String())
	if err != nil {
		return fmt.Errorf("failed to update wallet name: %w", err)
	}
	return requireRow(res)
}

func (r *WalletRepo) updateBool(ctx context.Context, column string, addr domain.Address, value bool) error {
	// column is always one of the fixed names above, never user input.
	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE wallets SET %s = $1 WHERE address = $2`, column),
		value, addr.String())
	if err != nil {
		return fmt.Errorf("failed to update wallet %s: %w", column, err)
	}
	return requireRow(res)
}

// Delete removes a wallet record and notifies the feed after commit.
func (r *WalletRepo) Delete(ctx context.Context, addr domain.Address) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM wallets WHERE address = $1`, addr.String())
	if err != nil {
		return fmt.Errorf("failed to delete wallet: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	r.feed.NotifyWallet(storage.WalletChange{
		Kind:    storage.ChangeDeleted,
		Address: addr,
	})
	return nil
}

// DeleteAll removes every wallet record.
func (r *WalletRepo) DeleteAll(ctx context.Context) error {
	wallets, err := r.GetAll(ctx)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM wallets`); err != nil {
		return fmt.Errorf("failed to delete wallets: %w", err)
	}
	for _, w := range wallets {
		r.feed.NotifyWallet(storage.WalletChange{Kind: storage.ChangeDeleted, Address: w.Address})
	}
	return nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
