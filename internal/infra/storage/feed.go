package storage

import (
	"sync"

	"github.com/vietddude/walletd/internal/core/domain"
)

// ChangeKind classifies a structural store change.
type ChangeKind string

const (
	ChangeInserted ChangeKind = "inserted"
	ChangeDeleted  ChangeKind = "deleted"
)

// WalletChange describes a committed wallet insert or delete.
type WalletChange struct {
	Kind    ChangeKind
	Address domain.Address
	Wallet  *domain.Wallet // nil for deletes
}

// TxnChange describes a committed transaction insert or delete.
type TxnChange struct {
	Kind ChangeKind
	Hash string
	Txn  *domain.Transaction // nil for deletes
}

// Feed is the change-notification port. Repositories call the Notify methods
// strictly after the corresponding write has committed, so a subscriber that
// re-reads the store always observes the change it was told about.
type Feed struct {
	mu        sync.RWMutex
	walletSub []func(WalletChange)
	txnSub    []func(TxnChange)
}

func NewFeed() *Feed {
	return &Feed{}
}

// SubscribeWallets registers a callback for wallet structural changes.
func (f *Feed) SubscribeWallets(fn func(WalletChange)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.walletSub = append(f.walletSub, fn)
}

// SubscribeTxns registers a callback for transaction structural changes.
func (f *Feed) SubscribeTxns(fn func(TxnChange)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txnSub = append(f.txnSub, fn)
}

// NotifyWallet publishes a committed wallet change.
func (f *Feed) NotifyWallet(c WalletChange) {
	f.mu.RLock()
	subs := make([]func(WalletChange), len(f.walletSub))
	copy(subs, f.walletSub)
	f.mu.RUnlock()
	for _, fn := range subs {
		fn(c)
	}
}

// NotifyTxn publishes a committed transaction change.
func (f *Feed) NotifyTxn(c TxnChange) {
	f.mu.RLock()
	subs := make([]func(TxnChange), len(f.txnSub))
	copy(subs, f.txnSub)
	f.mu.RUnlock()
	for _, fn := range subs {
		fn(c)
	}
}
