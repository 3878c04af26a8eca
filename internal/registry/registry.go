// Package registry owns the authoritative set of wallets, their derivation,
// the main-wallet invariant, and backup-reminder scheduling.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/vietddude/walletd/internal/bus"
	"github.com/vietddude/walletd/internal/core/domain"
	"github.com/vietddude/walletd/internal/infra/storage"
	"github.com/vietddude/walletd/internal/keys"
	"github.com/vietddude/walletd/internal/metrics"
)

var (
	// ErrWalletExists is returned when the address is already registered.
	ErrWalletExists = errors.New("wallet already exists")

	// ErrWalletNotFound is returned for operations on an unknown address.
	ErrWalletNotFound = errors.New("wallet not found")
)

// backupReminderDelay spaces the reminder away from the moment the scan runs.
const backupReminderDelay = time.Second

// LedgerParams carries the account material read from a hardware device.
type LedgerParams struct {
	Address    string
	PublicKey  string
	DeviceID   string
	DeviceName string
	Path       string
}

// Registry keeps an in-memory view of all wallets, derived from the
// persisted store and kept in sync through its change feed. The store is the
// source of truth; the map is a cache.
type Registry struct {
	repo    storage.WalletRepository
	deriver *keys.Deriver
	bus     *bus.Bus
	clock   clock.Clock
	log     *slog.Logger

	mu      sync.RWMutex
	wallets map[domain.Address]*domain.Wallet
}

// New creates a registry and subscribes it to the store's change feed, so
// external inserts and deletes re-synchronize the in-memory view.
func New(repo storage.WalletRepository, feed *storage.Feed, deriver *keys.Deriver, b *bus.Bus, clk clock.Clock) *Registry {
	r := &Registry{
		repo:    repo,
		deriver: deriver,
		bus:     b,
		clock:   clk,
		log:     slog.Default().With("component", "registry"),
		wallets: make(map[domain.Address]*domain.Wallet),
	}
	feed.SubscribeWallets(r.onChange)
	return r
}

// Init loads the persisted wallet set into the in-memory view.
func (r *Registry) Init(ctx context.Context) error {
	all, err := r.repo.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load wallets: %w", err)
	}

	r.mu.Lock()
	r.wallets = make(map[domain.Address]*domain.Wallet, len(all))
	for _, w := range all {
		r.wallets[w.Address] = w
	}
	size := len(r.wallets)
	r.mu.Unlock()

	metrics.WalletsTotal.Set(float64(size))
	r.log.Info("registry initialized", "wallets", size)
	return nil
}

func (r *Registry) onChange(c storage.WalletChange) {
	r.mu.Lock()
	switch c.Kind {
	case storage.ChangeInserted:
		cp := *c.Wallet
		r.wallets[c.Address] = &cp
	case storage.ChangeDeleted:
		delete(r.wallets, c.Address)
	}
	size := len(r.wallets)
	r.mu.Unlock()
	metrics.WalletsTotal.Set(float64(size))
}

// AddWalletFromMnemonic derives the account at path from a mnemonic and
// registers it.
func (r *Registry) AddWalletFromMnemonic(ctx context.Context, mnemonic, path, name string) (*domain.Wallet, error) {
	derived, err := r.deriver.FromMnemonic(mnemonic, path)
	if err != nil {
		return nil, err
	}

	return r.addWallet(ctx, &domain.Wallet{
		Address:        derived.Address,
		Type:           domain.WalletTypeMnemonic,
		PublicKey:      derived.PublicKey,
		PrivateKey:     derived.PrivateKey,
		Mnemonic:       derived.Mnemonic,
		DerivationPath: derived.Path,
		RootAddress:    derived.RootAddress,
		Name:           name,
	})
}

// AddWalletFromPrivateKey registers a standalone hot wallet.
func (r *Registry) AddWalletFromPrivateKey(ctx context.Context, privateKey, name string) (*domain.Wallet, error) {
	derived, err := r.deriver.FromPrivateKey(privateKey)
	if err != nil {
		return nil, err
	}

	return r.addWallet(ctx, &domain.Wallet{
		Address:     derived.Address,
		Type:        domain.WalletTypeHot,
		PublicKey:   derived.PublicKey,
		PrivateKey:  derived.PrivateKey,
		RootAddress: derived.RootAddress,
		Name:        name,
	})
}

// AddWalletFromLedger registers a hardware-backed wallet. No private key is
// stored; accounts of the same device share a root group keyed by device id.
func (r *Registry) AddWalletFromLedger(ctx context.Context, params LedgerParams, name string) (*domain.Wallet, error) {
	addr, err := domain.ParseAddress(params.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", keys.ErrDerivation, err)
	}

	return r.addWallet(ctx, &domain.Wallet{
		Address:        addr,
		Type:           domain.WalletTypeLedger,
		PublicKey:      params.PublicKey,
		DerivationPath: params.Path,
		RootAddress:    domain.NewAddress(params.DeviceID),
		DeviceID:       params.DeviceID,
		DeviceName:     params.DeviceName,
		Name:           name,
	})
}

// addWallet is the common creation protocol: persist the record, attach it to
// the in-memory view, and queue the wallet-added event onto the bus so no
// handler ever runs inside the store's write transaction.
func (r *Registry) addWallet(ctx context.Context, w *domain.Wallet) (*domain.Wallet, error) {
	r.mu.RLock()
	_, exists := r.wallets[w.Address]
	if !exists {
		// First wallet of a root group becomes the main wallet.
		w.IsMain = true
		for _, sibling := range r.wallets {
			if sibling.RootAddress == w.RootAddress {
				w.IsMain = false
				break
			}
		}
	}
	r.mu.RUnlock()
	if exists {
		return nil, ErrWalletExists
	}

	w.CreatedAt = r.clock.Now()
	if err := r.repo.Save(ctx, w); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, ErrWalletExists
		}
		return nil, fmt.Errorf("failed to save wallet: %w", err)
	}

	r.log.Info("wallet added", "address", w.Address, "type", w.Type, "main", w.IsMain)
	r.bus.Publish(domain.Event{Type: domain.EventWalletAdded, Address: w.Address, Wallet: w})

	cp := *w
	return &cp, nil
}

// RemoveWallet deletes a wallet. If it was its group's main wallet, a
// remaining sibling is promoted first. The wallet-removed event is emitted
// only after a re-read confirms the record is gone.
func (r *Registry) RemoveWallet(ctx context.Context, rawAddr string) error {
	addr := domain.NewAddress(rawAddr)

	r.mu.RLock()
	w, ok := r.wallets[addr]
	var sibling *domain.Wallet
	if ok && w.IsMain {
		for _, s := range r.wallets {
			if s.Address != addr && s.RootAddress == w.RootAddress {
				sibling = s
				break
			}
		}
	}
	r.mu.RUnlock()
	if !ok {
		return ErrWalletNotFound
	}

	if sibling != nil {
		if err := r.repo.UpdateMain(ctx, sibling.Address, true); err != nil {
			return fmt.Errorf("failed to promote sibling %s: %w", sibling.Address, err)
		}
		r.mu.Lock()
		if s, ok := r.wallets[sibling.Address]; ok {
			s.IsMain = true
		}
		r.mu.Unlock()
	}

	if err := r.repo.Delete(ctx, addr); err != nil {
		return fmt.Errorf("failed to delete wallet: %w", err)
	}

	// Never announce a removal the store did not actually perform.
	if _, err := r.repo.GetByAddress(ctx, addr); !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("wallet %s still present after delete", addr)
	}

	r.log.Info("wallet removed", "address", addr)
	r.bus.Publish(domain.Event{Type: domain.EventWalletRemoved, Address: addr})
	return nil
}

// CheckForBackup scans visible wallets for an unsaved mnemonic and, past the
// snooze deadline, emits a single backup reminder after a short delay so it
// does not race startup.
func (r *Registry) CheckForBackup(snoozeUntil time.Time) {
	if r.clock.Now().Before(snoozeUntil) {
		return
	}

	var candidate *domain.Wallet
	r.mu.RLock()
	for _, w := range r.wallets {
		if !w.IsHidden && !w.MnemonicSaved && w.Type == domain.WalletTypeMnemonic {
			cp := *w
			candidate = &cp
			break
		}
	}
	r.mu.RUnlock()
	if candidate == nil {
		return
	}

	go func() {
		<-r.clock.TickAfter(backupReminderDelay)
		r.bus.Publish(domain.Event{Type: domain.EventBackupReminder, Address: candidate.Address, Wallet: candidate})
	}()
}

// SetMnemonicSaved marks a wallet's mnemonic as backed up.
func (r *Registry) SetMnemonicSaved(ctx context.Context, rawAddr string) error {
	return r.updateCached(ctx, rawAddr,
		func(addr domain.Address) error { return r.repo.UpdateMnemonicSaved(ctx, addr, true) },
		func(w *domain.Wallet) { w.MnemonicSaved = true })
}

// ToggleHidden flips a wallet's visibility.
func (r *Registry) ToggleHidden(ctx context.Context, rawAddr string) error {
	addr := domain.NewAddress(rawAddr)
	r.mu.RLock()
	w, ok := r.wallets[addr]
	hidden := ok && w.IsHidden
	r.mu.RUnlock()
	if !ok {
		return ErrWalletNotFound
	}

	return r.updateCached(ctx, rawAddr,
		func(addr domain.Address) error { return r.repo.UpdateHidden(ctx, addr, !hidden) },
		func(w *domain.Wallet) { w.IsHidden = !hidden })
}

// Rename sets a wallet's display name.
func (r *Registry) Rename(ctx context.Context, rawAddr, name string) error {
	return r.updateCached(ctx, rawAddr,
		func(addr domain.Address) error { return r.repo.UpdateName(ctx, addr, name) },
		func(w *domain.Wallet) { w.Name = name })
}

func (r *Registry) updateCached(ctx context.Context, rawAddr string, persist func(domain.Address) error, apply func(*domain.Wallet)) error {
	addr := domain.NewAddress(rawAddr)

	r.mu.RLock()
	_, ok := r.wallets[addr]
	r.mu.RUnlock()
	if !ok {
		return ErrWalletNotFound
	}

	if err := persist(addr); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrWalletNotFound
		}
		return fmt.Errorf("failed to update wallet: %w", err)
	}

	r.mu.Lock()
	if w, ok := r.wallets[addr]; ok {
		apply(w)
	}
	r.mu.Unlock()
	return nil
}

// Clean removes every wallet. Used on account wipe.
func (r *Registry) Clean(ctx context.Context) error {
	if err := r.repo.DeleteAll(ctx); err != nil {
		return fmt.Errorf("failed to delete wallets: %w", err)
	}
	r.mu.Lock()
	r.wallets = make(map[domain.Address]*domain.Wallet)
	r.mu.Unlock()
	metrics.WalletsTotal.Set(0)
	return nil
}

// Wallets returns a snapshot of every registered wallet.
func (r *Registry) Wallets() []*domain.Wallet {
	return r.snapshot(func(*domain.Wallet) bool { return true })
}

// Visible returns the non-hidden subset.
func (r *Registry) Visible() []*domain.Wallet {
	return r.snapshot(func(w *domain.Wallet) bool { return !w.IsHidden })
}

// ForRootAddress returns the wallets grouped under a root address.
func (r *Registry) ForRootAddress(root domain.Address) []*domain.Wallet {
	return r.snapshot(func(w *domain.Wallet) bool { return w.RootAddress == root })
}

// Main returns the root group's main wallet, if it has one.
func (r *Registry) Main(root domain.Address) (*domain.Wallet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.wallets {
		if w.RootAddress == root && w.IsMain {
			cp := *w
			return &cp, true
		}
	}
	return nil, false
}

// Get returns the wallet for an address.
func (r *Registry) Get(rawAddr string) (*domain.Wallet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[domain.NewAddress(rawAddr)]
	if !ok {
		return nil, false
	}
	cp := *w
	return &cp, true
}

// Size returns the number of registered wallets.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.wallets)
}

func (r *Registry) snapshot(keep func(*domain.Wallet) bool) []*domain.Wallet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Wallet
	for _, w := range r.wallets {
		if keep(w) {
			cp := *w
			out = append(out, &cp)
		}
	}
	return out
}
