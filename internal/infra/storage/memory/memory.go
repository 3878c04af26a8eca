package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vietddude/walletd/internal/core/domain"
	"github.com/vietddude/walletd/internal/infra/storage"
)

// MemoryStorage backs the repositories with process-local maps. Used for
// tests and for running without a configured database.
type MemoryStorage struct {
	wallets map[domain.Address]*domain.Wallet
	txs     map[string]*domain.Transaction
	feed    *storage.Feed
	mu      sync.RWMutex
}

func NewMemoryStorage(feed *storage.Feed) *MemoryStorage {
	return &MemoryStorage{
		wallets: make(map[domain.Address]*domain.Wallet),
		txs:     make(map[string]*domain.Transaction),
		feed:    feed,
	}
}

// -----------------------------------------------------------------------------
// Wallet Repository
// -----------------------------------------------------------------------------

type WalletRepo struct {
	store *MemoryStorage
}

func NewWalletRepo(store *MemoryStorage) *WalletRepo {
	return &WalletRepo{store: store}
}

func (r *WalletRepo) Save(ctx context.Context, w *domain.Wallet) error {
	r.store.mu.Lock()
	if _, ok := r.store.wallets[w.Address]; ok {
		r.store.mu.Unlock()
		return storage.ErrAlreadyExists
	}
	cp := *w
	r.store.wallets[w.Address] = &cp
	r.store.mu.Unlock()

	r.store.feed.NotifyWallet(storage.WalletChange{
		Kind:    storage.ChangeInserted,
		Address: w.Address,
		Wallet:  &cp,
	})
	return nil
}

func (r *WalletRepo) GetByAddress(ctx context.Context, addr domain.Address) (*domain.Wallet, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	w, ok := r.store.wallets[addr]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (r *WalletRepo) GetAll(ctx context.Context) ([]*domain.Wallet, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*domain.Wallet, 0, len(r.store.wallets))
	for _, w := range r.store.wallets {
		cp := *w
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *WalletRepo) UpdateMain(ctx context.Context, addr domain.Address, isMain bool) error {
	return r.update(addr, func(w *domain.Wallet) { w.IsMain = isMain })
}

func (r *WalletRepo) UpdateMnemonicSaved(ctx context.Context, addr domain.Address, saved bool) error {
	return r.update(addr, func(w *domain.Wallet) { w.MnemonicSaved = saved })
}

func (r *WalletRepo) UpdateHidden(ctx context.Context, addr domain.Address, hidden bool) error {
	return r.update(addr, func(w *domain.Wallet) { w.IsHidden = hidden })
}

func (r *WalletRepo) UpdateName(ctx context.Context, addr domain.Address, name string) error {
	return r.update(addr, func(w *domain.Wallet) { w.Name = name })
}

func (r *WalletRepo) update(addr domain.Address, fn func(*domain.Wallet)) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	w, ok := r.store.wallets[addr]
	if !ok {
		return storage.ErrNotFound
	}
	fn(w)
	return nil
}

func (r *WalletRepo) Delete(ctx context.Context, addr domain.Address) error {
	r.store.mu.Lock()
	if _, ok := r.store.wallets[addr]; !ok {
		r.store.mu.Unlock()
		return storage.ErrNotFound
	}
	delete(r.store.wallets, addr)
	r.store.mu.Unlock()

	r.store.feed.NotifyWallet(storage.WalletChange{
		Kind:    storage.ChangeDeleted,
		Address: addr,
	})
	return nil
}

func (r *WalletRepo) DeleteAll(ctx context.Context) error {
	r.store.mu.Lock()
	addrs := make([]domain.Address, 0, len(r.store.wallets))
	for a := range r.store.wallets {
		addrs = append(addrs, a)
	}
	r.store.wallets = make(map[domain.Address]*domain.Wallet)
	r.store.mu.Unlock()

	for _, a := range addrs {
		r.store.feed.NotifyWallet(storage.WalletChange{Kind: storage.ChangeDeleted, Address: a})
	}
	return nil
}

// -----------------------------------------------------------------------------
// Transaction Repository
// -----------------------------------------------------------------------------

type TxRepo struct {
	store *MemoryStorage
}

func NewTxRepo(store *MemoryStorage) *TxRepo {
	return &TxRepo{store: store}
}

func (r *TxRepo) Insert(ctx context.Context, t *domain.Transaction) error {
	r.store.mu.Lock()
	if _, ok := r.store.txs[t.Hash]; ok {
		r.store.mu.Unlock()
		return storage.ErrAlreadyExists
	}
	cp := *t
	r.store.txs[t.Hash] = &cp
	r.store.mu.Unlock()

	r.store.feed.NotifyTxn(storage.TxnChange{
		Kind: storage.ChangeInserted,
		Hash: t.Hash,
		Txn:  &cp,
	})
	return nil
}

func (r *TxRepo) GetByHash(ctx context.Context, hash string) (*domain.Transaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	t, ok := r.store.txs[hash]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *TxRepo) GetAll(ctx context.Context) ([]*domain.Transaction, error) {
	return r.filtered(func(*domain.Transaction) bool { return true })
}

func (r *TxRepo) GetPending(ctx context.Context) ([]*domain.Transaction, error) {
	return r.filtered(func(t *domain.Transaction) bool { return !t.Confirmed })
}

func (r *TxRepo) GetForAddress(ctx context.Context, addr domain.Address) ([]*domain.Transaction, error) {
	return r.filtered(func(t *domain.Transaction) bool { return t.Party(addr) })
}

func (r *TxRepo) filtered(keep func(*domain.Transaction) bool) ([]*domain.Transaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.Transaction
	for _, t := range r.store.txs {
		if keep(t) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *TxRepo) MarkConfirmed(ctx context.Context, hash string, fee string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	t, ok := r.store.txs[hash]
	if !ok {
		return storage.ErrNotFound
	}
	if t.Confirmed {
		// Terminal state, never rewritten.
		return nil
	}
	t.Confirmed = true
	if fee != "" {
		t.Fee = fee
	}
	return nil
}

func (r *TxRepo) Delete(ctx context.Context, hash string) error {
	r.store.mu.Lock()
	if _, ok := r.store.txs[hash]; !ok {
		r.store.mu.Unlock()
		return storage.ErrNotFound
	}
	delete(r.store.txs, hash)
	r.store.mu.Unlock()

	r.store.feed.NotifyTxn(storage.TxnChange{Kind: storage.ChangeDeleted, Hash: hash})
	return nil
}

func (r *TxRepo) DeleteAll(ctx context.Context) error {
	r.store.mu.Lock()
	hashes := make([]string, 0, len(r.store.txs))
	for h := range r.store.txs {
		hashes = append(hashes, h)
	}
	r.store.txs = make(map[string]*domain.Transaction)
	r.store.mu.Unlock()

	for _, h := range hashes {
		r.store.feed.NotifyTxn(storage.TxnChange{Kind: storage.ChangeDeleted, Hash: h})
	}
	return nil
}
