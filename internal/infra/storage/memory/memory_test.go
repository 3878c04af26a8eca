package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/walletd/internal/core/domain"
	"github.com/vietddude/walletd/internal/infra/storage"
)

func newStore() (*MemoryStorage, *storage.Feed) {
	feed := storage.NewFeed()
	return NewMemoryStorage(feed), feed
}

func testWallet(addr string, created time.Time) *domain.Wallet {
	return &domain.Wallet{
		Address:     domain.NewAddress(addr),
		RootAddress: domain.NewAddress(addr),
		Type:        domain.WalletTypeHot,
		Name:        "Account",
		CreatedAt:   created,
	}
}

func TestWalletRepo_SaveAndGet(t *testing.T) {
	store, _ := newStore()
	repo := NewWalletRepo(store)
	ctx := context.Background()

	w := testWallet("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", time.Now())
	if err := repo.Save(ctx, w); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := repo.Save(ctx, w); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists on duplicate save, got %v", err)
	}

	got, err := repo.GetByAddress(ctx, w.Address)
	if err != nil {
		t.Fatalf("GetByAddress failed: %v", err)
	}
	if got.Name != "Account" {
		t.Errorf("Unexpected wallet name %q", got.Name)
	}

	// The repo must hand out copies, not aliases into the store.
	got.Name = "Mutated"
	again, _ := repo.GetByAddress(ctx, w.Address)
	if again.Name != "Account" {
		t.Error("Expected stored wallet to be isolated from caller mutation")
	}

	if _, err := repo.GetByAddress(ctx, domain.NewAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestWalletRepo_GetAllOrdered(t *testing.T) {
	store, _ := newStore()
	repo := NewWalletRepo(store)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.Save(ctx, testWallet("0xcccccccccccccccccccccccccccccccccccccccc", base.Add(2*time.Hour)))
	repo.Save(ctx, testWallet("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", base))
	repo.Save(ctx, testWallet("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", base.Add(time.Hour)))

	all, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 wallets, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.Before(all[i-1].CreatedAt) {
			t.Error("Expected wallets ordered by creation time")
		}
	}
}

func TestWalletRepo_Updates(t *testing.T) {
	store, _ := newStore()
	repo := NewWalletRepo(store)
	ctx := context.Background()

	addr := domain.NewAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	repo.Save(ctx, testWallet(addr.String(), time.Now()))

	if err := repo.UpdateMain(ctx, addr, true); err != nil {
		t.Fatalf("UpdateMain failed: %v", err)
	}
	if err := repo.UpdateMnemonicSaved(ctx, addr, true); err != nil {
		t.Fatalf("UpdateMnemonicSaved failed: %v", err)
	}
	if err := repo.UpdateHidden(ctx, addr, true); err != nil {
		t.Fatalf("UpdateHidden failed: %v", err)
	}
	if err := repo.UpdateName(ctx, addr, "Renamed"); err != nil {
		t.Fatalf("UpdateName failed: %v", err)
	}

	w, _ := repo.GetByAddress(ctx, addr)
	if !w.IsMain || !w.MnemonicSaved || !w.IsHidden || w.Name != "Renamed" {
		t.Errorf("Updates not applied: %+v", w)
	}

	missing := domain.NewAddress("0xdddddddddddddddddddddddddddddddddddddddd")
	if err := repo.UpdateName(ctx, missing, "x"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestWalletRepo_FeedAfterCommit(t *testing.T) {
	store, feed := newStore()
	repo := NewWalletRepo(store)
	ctx := context.Background()

	// Each notification re-reads the store: an insert must already be
	// visible, a delete must already be gone.
	var kinds []storage.ChangeKind
	feed.SubscribeWallets(func(c storage.WalletChange) {
		kinds = append(kinds, c.Kind)
		_, err := repo.GetByAddress(ctx, c.Address)
		switch c.Kind {
		case storage.ChangeInserted:
			if err != nil {
				t.Errorf("Insert notified before commit: %v", err)
			}
		case storage.ChangeDeleted:
			if !errors.Is(err, storage.ErrNotFound) {
				t.Errorf("Delete notified before commit: %v", err)
			}
		}
	})

	w := testWallet("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", time.Now())
	repo.Save(ctx, w)
	repo.Delete(ctx, w.Address)

	if len(kinds) != 2 || kinds[0] != storage.ChangeInserted || kinds[1] != storage.ChangeDeleted {
		t.Errorf("Unexpected change sequence %v", kinds)
	}

	if err := repo.Delete(ctx, w.Address); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestTxRepo_InsertAndQuery(t *testing.T) {
	store, _ := newStore()
	repo := NewTxRepo(store)
	ctx := context.Background()

	a := domain.NewAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	b := domain.NewAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	c := domain.NewAddress("0xcccccccccccccccccccccccccccccccccccccccc")

	txns := []*domain.Transaction{
		{Hash: "0x1", From: a, To: b, CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{Hash: "0x2", From: b, To: c, Confirmed: true, CreatedAt: time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC)},
		{Hash: "0x3", From: c, To: a, CreatedAt: time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC)},
	}
	for _, txn := range txns {
		if err := repo.Insert(ctx, txn); err != nil {
			t.Fatalf("Insert %s failed: %v", txn.Hash, err)
		}
	}
	if err := repo.Insert(ctx, txns[0]); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists, got %v", err)
	}

	pending, err := repo.GetPending(ctx)
	if err != nil {
		t.Fatalf("GetPending failed: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("Expected 2 pending transactions, got %d", len(pending))
	}

	forA, err := repo.GetForAddress(ctx, a)
	if err != nil {
		t.Fatalf("GetForAddress failed: %v", err)
	}
	if len(forA) != 2 {
		t.Errorf("Expected 2 transactions touching %s, got %d", a, len(forA))
	}

	all, _ := repo.GetAll(ctx)
	if len(all) != 3 {
		t.Errorf("Expected 3 transactions, got %d", len(all))
	}
}

func TestTxRepo_MarkConfirmedIsTerminal(t *testing.T) {
	store, _ := newStore()
	repo := NewTxRepo(store)
	ctx := context.Background()

	repo.Insert(ctx, &domain.Transaction{
		Hash: "0x1",
		From: domain.NewAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		To:   domain.NewAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
	})

	if err := repo.MarkConfirmed(ctx, "0x1", "21000"); err != nil {
		t.Fatalf("MarkConfirmed failed: %v", err)
	}
	txn, _ := repo.GetByHash(ctx, "0x1")
	if !txn.Confirmed || txn.Fee != "21000" {
		t.Errorf("Expected confirmed with fee, got %+v", txn)
	}

	// A second confirmation never rewrites the record.
	if err := repo.MarkConfirmed(ctx, "0x1", "99999"); err != nil {
		t.Fatalf("Repeat MarkConfirmed failed: %v", err)
	}
	txn, _ = repo.GetByHash(ctx, "0x1")
	if txn.Fee != "21000" {
		t.Errorf("Expected fee untouched on repeat confirm, got %s", txn.Fee)
	}

	if err := repo.MarkConfirmed(ctx, "0xmissing", ""); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestTxRepo_DeleteAllNotifies(t *testing.T) {
	store, feed := newStore()
	repo := NewTxRepo(store)
	ctx := context.Background()

	var deleted int
	feed.SubscribeTxns(func(c storage.TxnChange) {
		if c.Kind == storage.ChangeDeleted {
			deleted++
		}
	})

	a := domain.NewAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	b := domain.NewAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	repo.Insert(ctx, &domain.Transaction{Hash: "0x1", From: a, To: b})
	repo.Insert(ctx, &domain.Transaction{Hash: "0x2", From: b, To: a})

	if err := repo.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Expected 2 delete notifications, got %d", deleted)
	}
	all, _ := repo.GetAll(ctx)
	if len(all) != 0 {
		t.Errorf("Expected empty store, got %d", len(all))
	}
}
