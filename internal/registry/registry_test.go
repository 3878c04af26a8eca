package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/vietddude/walletd/internal/bus"
	"github.com/vietddude/walletd/internal/core/domain"
	"github.com/vietddude/walletd/internal/infra/storage"
	"github.com/vietddude/walletd/internal/infra/storage/memory"
	"github.com/vietddude/walletd/internal/keys"
)

// Well-known development mnemonic and its first two derived accounts.
const (
	testMnemonic = "test test test test test test test test test test test junk"
	account0     = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"
	account1     = "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
	account0Key  = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
)

type testEnv struct {
	repo  *memory.WalletRepo
	feed  *storage.Feed
	bus   *bus.Bus
	clock *clock.TestClock
}

func newTestRegistry(t *testing.T) (*Registry, *testEnv) {
	t.Helper()
	env := &testEnv{
		feed:  storage.NewFeed(),
		bus:   bus.New(),
		clock: clock.NewTestClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	t.Cleanup(env.bus.Close)
	env.repo = memory.NewWalletRepo(memory.NewMemoryStorage(env.feed))

	r := New(env.repo, env.feed, keys.NewDeriver(), env.bus, env.clock)
	if err := r.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return r, env
}

func TestAddWalletFromMnemonic(t *testing.T) {
	r, _ := newTestRegistry(t)

	w, err := r.AddWalletFromMnemonic(context.Background(), testMnemonic, "m/44'/60'/0'/0/0", "Main")
	if err != nil {
		t.Fatalf("AddWalletFromMnemonic failed: %v", err)
	}

	if w.Address.String() != account0 {
		t.Errorf("Expected address %s, got %s", account0, w.Address)
	}
	if !w.IsMain {
		t.Error("Expected first wallet of its root group to be main")
	}
	if w.RootAddress != w.Address {
		t.Errorf("Expected seed account to be its own root, got %s", w.RootAddress)
	}
	if r.Size() != 1 {
		t.Errorf("Expected registry size 1, got %d", r.Size())
	}
}

func TestAddWallet_DuplicateCaseInsensitive(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := r.AddWalletFromMnemonic(ctx, testMnemonic, "", "Main"); err != nil {
		t.Fatalf("AddWalletFromMnemonic failed: %v", err)
	}

	// The same account imported by private key collides regardless of how the
	// address would be cased.
	if _, err := r.AddWalletFromPrivateKey(ctx, account0Key, "Dup"); !errors.Is(err, ErrWalletExists) {
		t.Errorf("Expected ErrWalletExists, got %v", err)
	}
	if r.Size() != 1 {
		t.Errorf("Expected registry size 1, got %d", r.Size())
	}
}

func TestAddWallet_InvalidMnemonic(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.AddWalletFromMnemonic(context.Background(), "not a mnemonic", "", "Bad")
	if !errors.Is(err, keys.ErrDerivation) {
		t.Errorf("Expected ErrDerivation, got %v", err)
	}
	if r.Size() != 0 {
		t.Errorf("Expected empty registry, got size %d", r.Size())
	}
}

func TestRemoveWallet_PromotesSibling(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	a, err := r.AddWalletFromMnemonic(ctx, testMnemonic, "m/44'/60'/0'/0/0", "A")
	if err != nil {
		t.Fatalf("add A failed: %v", err)
	}
	b, err := r.AddWalletFromMnemonic(ctx, testMnemonic, "m/44'/60'/0'/0/1", "B")
	if err != nil {
		t.Fatalf("add B failed: %v", err)
	}
	if b.Address.String() != account1 {
		t.Fatalf("Expected sibling address %s, got %s", account1, b.Address)
	}
	if !a.IsMain || b.IsMain {
		t.Fatalf("Expected A main and B not, got A=%v B=%v", a.IsMain, b.IsMain)
	}
	if b.RootAddress != a.Address {
		t.Fatalf("Expected B rooted at A, got %s", b.RootAddress)
	}

	if err := r.RemoveWallet(ctx, a.Address.String()); err != nil {
		t.Fatalf("RemoveWallet failed: %v", err)
	}

	if r.Size() != 1 {
		t.Errorf("Expected registry size 1, got %d", r.Size())
	}
	main, ok := r.Main(a.Address)
	if !ok {
		t.Fatal("Expected root group to still have a main wallet")
	}
	if main.Address != b.Address {
		t.Errorf("Expected %s promoted to main, got %s", b.Address, main.Address)
	}
}

func TestRemoveWallet_EmissionAfterDeletion(t *testing.T) {
	r, env := newTestRegistry(t)
	ctx := context.Background()

	w, err := r.AddWalletFromPrivateKey(ctx, account0Key, "A")
	if err != nil {
		t.Fatalf("AddWalletFromPrivateKey failed: %v", err)
	}

	// The handler re-reads the store: by the time wallet-removed is observed,
	// the record must already be gone.
	observed := make(chan error, 1)
	env.bus.Subscribe(domain.EventWalletRemoved, func(evt domain.Event) {
		_, err := env.repo.GetByAddress(context.Background(), evt.Address)
		observed <- err
	})

	if err := r.RemoveWallet(ctx, w.Address.String()); err != nil {
		t.Fatalf("RemoveWallet failed: %v", err)
	}

	select {
	case err := <-observed:
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected store read to miss after removal event, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("wallet-removed event not observed")
	}
}

func TestRemoveWallet_Unknown(t *testing.T) {
	r, _ := newTestRegistry(t)

	if err := r.RemoveWallet(context.Background(), account0); !errors.Is(err, ErrWalletNotFound) {
		t.Errorf("Expected ErrWalletNotFound, got %v", err)
	}
}

func TestCheckForBackup(t *testing.T) {
	r, env := newTestRegistry(t)
	ctx := context.Background()

	if _, err := r.AddWalletFromMnemonic(ctx, testMnemonic, "", "Main"); err != nil {
		t.Fatalf("AddWalletFromMnemonic failed: %v", err)
	}

	reminded := make(chan domain.Event, 1)
	env.bus.Subscribe(domain.EventBackupReminder, func(evt domain.Event) {
		select {
		case reminded <- evt:
		default:
		}
	})

	r.CheckForBackup(env.clock.Now().Add(-time.Hour))

	deadline := time.Now().Add(2 * time.Second)
	for {
		env.clock.SetTime(env.clock.Now().Add(2 * time.Second))
		select {
		case evt := <-reminded:
			if evt.Address.String() != account0 {
				t.Errorf("Expected reminder for %s, got %s", account0, evt.Address)
			}
			return
		case <-time.After(5 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatal("backup reminder not emitted")
		}
	}
}

func TestCheckForBackup_Snoozed(t *testing.T) {
	r, env := newTestRegistry(t)
	ctx := context.Background()

	if _, err := r.AddWalletFromMnemonic(ctx, testMnemonic, "", "Main"); err != nil {
		t.Fatalf("AddWalletFromMnemonic failed: %v", err)
	}

	reminded := make(chan domain.Event, 1)
	env.bus.Subscribe(domain.EventBackupReminder, func(evt domain.Event) {
		select {
		case reminded <- evt:
		default:
		}
	})

	r.CheckForBackup(env.clock.Now().Add(time.Hour))
	env.clock.SetTime(env.clock.Now().Add(time.Minute))

	select {
	case <-reminded:
		t.Error("Expected no reminder while snoozed")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCheckForBackup_AllSaved(t *testing.T) {
	r, env := newTestRegistry(t)
	ctx := context.Background()

	w, err := r.AddWalletFromMnemonic(ctx, testMnemonic, "", "Main")
	if err != nil {
		t.Fatalf("AddWalletFromMnemonic failed: %v", err)
	}
	if err := r.SetMnemonicSaved(ctx, w.Address.String()); err != nil {
		t.Fatalf("SetMnemonicSaved failed: %v", err)
	}

	reminded := make(chan domain.Event, 1)
	env.bus.Subscribe(domain.EventBackupReminder, func(evt domain.Event) {
		select {
		case reminded <- evt:
		default:
		}
	})

	r.CheckForBackup(env.clock.Now().Add(-time.Hour))
	select {
	case <-reminded:
		t.Error("Expected no reminder once the mnemonic is saved")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWalletUpdates(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	w, err := r.AddWalletFromPrivateKey(ctx, account0Key, "Old name")
	if err != nil {
		t.Fatalf("AddWalletFromPrivateKey failed: %v", err)
	}
	addr := w.Address.String()

	if err := r.Rename(ctx, addr, "New name"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if got, _ := r.Get(addr); got.Name != "New name" {
		t.Errorf("Expected renamed wallet, got %q", got.Name)
	}

	if err := r.ToggleHidden(ctx, addr); err != nil {
		t.Fatalf("ToggleHidden failed: %v", err)
	}
	if len(r.Visible()) != 0 {
		t.Error("Expected hidden wallet to drop out of Visible")
	}
	if err := r.ToggleHidden(ctx, addr); err != nil {
		t.Fatalf("ToggleHidden failed: %v", err)
	}
	if len(r.Visible()) != 1 {
		t.Error("Expected wallet visible again")
	}

	if err := r.Rename(ctx, account1, "x"); !errors.Is(err, ErrWalletNotFound) {
		t.Errorf("Expected ErrWalletNotFound, got %v", err)
	}
}

func TestFeedSync_ExternalChanges(t *testing.T) {
	r, env := newTestRegistry(t)
	ctx := context.Background()

	// An insert through the repository, bypassing the registry, still shows
	// up in the in-memory view via the change feed.
	w := &domain.Wallet{
		Address:     domain.NewAddress(account0),
		Type:        domain.WalletTypeHot,
		RootAddress: domain.NewAddress(account0),
		Name:        "External",
	}
	if err := env.repo.Save(ctx, w); err != nil {
		t.Fatalf("repo.Save failed: %v", err)
	}
	if r.Size() != 1 {
		t.Fatalf("Expected feed-synced size 1, got %d", r.Size())
	}

	if err := env.repo.Delete(ctx, w.Address); err != nil {
		t.Fatalf("repo.Delete failed: %v", err)
	}
	if r.Size() != 0 {
		t.Errorf("Expected feed-synced size 0, got %d", r.Size())
	}
}

func TestClean(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := r.AddWalletFromMnemonic(ctx, testMnemonic, "", "Main"); err != nil {
		t.Fatalf("AddWalletFromMnemonic failed: %v", err)
	}
	if err := r.Clean(ctx); err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	if r.Size() != 0 {
		t.Errorf("Expected empty registry after Clean, got %d", r.Size())
	}
}
