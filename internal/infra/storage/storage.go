// Package storage defines the persistence ports for the wallet core.
//
// The persisted store is the single source of truth; the in-memory views held
// by the registry and tracker are derived caches refreshed through the Feed.
package storage

import (
	"context"
	"errors"

	"github.com/vietddude/walletd/internal/core/domain"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned on a duplicate primary key insert.
	ErrAlreadyExists = errors.New("record already exists")
)

// WalletRepository persists wallet aggregates keyed by canonical address.
type WalletRepository interface {
	Save(ctx context.Context, w *domain.Wallet) error
	GetByAddress(ctx context.Context, addr domain.Address) (*domain.Wallet, error)
	GetAll(ctx context.Context) ([]*domain.Wallet, error)
	UpdateMain(ctx context.Context, addr domain.Address, isMain bool) error
	UpdateMnemonicSaved(ctx context.Context, addr domain.Address, saved bool) error
	UpdateHidden(ctx context.Context, addr domain.Address, hidden bool) error
	UpdateName(ctx context.Context, addr domain.Address, name string) error
	Delete(ctx context.Context, addr domain.Address) error
	DeleteAll(ctx context.Context) error
}

// TransactionRepository persists transaction records keyed by hash.
//
// MarkConfirmed is the only write path to the confirmed flag and only ever
// sets it: implementations must treat an already-confirmed row as a no-op so
// the flag stays monotonic.
type TransactionRepository interface {
	Insert(ctx context.Context, t *domain.Transaction) error
	GetByHash(ctx context.Context, hash string) (*domain.Transaction, error)
	GetAll(ctx context.Context) ([]*domain.Transaction, error)
	GetPending(ctx context.Context) ([]*domain.Transaction, error)
	GetForAddress(ctx context.Context, addr domain.Address) ([]*domain.Transaction, error)
	MarkConfirmed(ctx context.Context, hash string, fee string) error
	Delete(ctx context.Context, hash string) error
	DeleteAll(ctx context.Context) error
}
