// Package tracker maintains the transaction history and advances each record
// to its confirmed terminal state.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/vietddude/walletd/internal/bus"
	"github.com/vietddude/walletd/internal/core/domain"
	redisclient "github.com/vietddude/walletd/internal/infra/redis"
	"github.com/vietddude/walletd/internal/infra/rpc"
	"github.com/vietddude/walletd/internal/infra/storage"
	"github.com/vietddude/walletd/internal/metrics"
)

// Explorer rows at this depth or beyond are ingested directly as confirmed.
const explorerConfirmedDepth = 10

const checkTimeout = 30 * time.Second

// PendingQueue parks hashes whose single automatic confirmation check did not
// reach the confirmed state, for explicit operator re-invocation.
type PendingQueue interface {
	Add(ctx context.Context, pc *redisclient.PendingCheck) error
	Remove(ctx context.Context, hash string) error
}

// Tracker ingests transaction records and promotes them to confirmed.
type Tracker struct {
	repo      storage.TransactionRepository
	wallets   storage.WalletRepository
	providers *rpc.Registry
	bus       *bus.Bus
	queue     PendingQueue // nil when no queue is configured
	clock     clock.Clock
	log       *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
	wg       sync.WaitGroup
}

// SubmittedTxn is the wire-level shape of a locally submitted transaction.
type SubmittedTxn struct {
	Hash  string `json:"hash"`
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value"`
}

// New creates a tracker and subscribes it to the store's transaction feed and
// to wallet removals on the bus.
func New(repo storage.TransactionRepository, wallets storage.WalletRepository, feed *storage.Feed, providers *rpc.Registry, b *bus.Bus, queue PendingQueue, clk clock.Clock) *Tracker {
	t := &Tracker{
		repo:      repo,
		wallets:   wallets,
		providers: providers,
		bus:       b,
		queue:     queue,
		clock:     clk,
		log:       slog.Default().With("component", "tracker"),
		inFlight:  make(map[string]struct{}),
	}

	feed.SubscribeTxns(func(c storage.TxnChange) {
		if c.Kind == storage.ChangeInserted && c.Txn != nil && !c.Txn.Confirmed {
			t.scheduleCheck(c.Hash)
		}
	})
	b.Subscribe(domain.EventWalletRemoved, func(evt domain.Event) {
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
			defer cancel()
			if err := t.pruneForRemovedWallet(ctx, evt.Address); err != nil {
				t.log.Error("failed to prune transactions", "address", evt.Address, "error", err)
			}
		}()
	})
	return t
}

// Wait blocks until in-flight confirmation checks finish. For shutdown.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

// scheduleCheck runs the one automatic confirmation check for a hash off the
// inserting goroutine. A hash already being checked is not scheduled again.
func (t *Tracker) scheduleCheck(hash string) {
	t.mu.Lock()
	if _, busy := t.inFlight[hash]; busy {
		t.mu.Unlock()
		return
	}
	t.inFlight[hash] = struct{}{}
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() {
			t.mu.Lock()
			delete(t.inFlight, hash)
			t.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()
		if err := t.CheckTransaction(ctx, hash); err != nil {
			t.log.Error("confirmation check failed", "hash", hash, "error", err)
		}
	}()
}

// CheckTransaction looks up a pending transaction and, if its provider
// reports a mined receipt, transitions it to confirmed with the receipt's
// fee. A transaction that stays pending or whose provider errors is parked on
// the pending queue; it is never re-checked automatically.
func (t *Tracker) CheckTransaction(ctx context.Context, hash string) error {
	txn, err := t.repo.GetByHash(ctx, hash)
	if err != nil {
		return fmt.Errorf("failed to load transaction %s: %w", hash, err)
	}
	if txn.Confirmed {
		return nil
	}

	provider := t.providers.Get(txn.ProviderID)
	if provider == nil {
		return fmt.Errorf("unknown provider %q for transaction %s", txn.ProviderID, hash)
	}

	receipt, err := provider.Client().TransactionReceipt(ctx, hash)
	if err != nil {
		metrics.ConfirmationChecks.WithLabelValues("error").Inc()
		t.park(ctx, txn, err.Error())
		return fmt.Errorf("failed to fetch receipt for %s: %w", hash, err)
	}
	if receipt == nil || receipt.Confirmations == 0 {
		metrics.ConfirmationChecks.WithLabelValues("pending").Inc()
		t.log.Debug("transaction not yet confirmed", "hash", hash)
		t.park(ctx, txn, "")
		return nil
	}

	if err := t.repo.MarkConfirmed(ctx, hash, receipt.Fee().String()); err != nil {
		return fmt.Errorf("failed to mark %s confirmed: %w", hash, err)
	}
	metrics.ConfirmationChecks.WithLabelValues("confirmed").Inc()
	t.log.Info("transaction confirmed", "hash", hash, "confirmations", receipt.Confirmations)

	if t.queue != nil {
		if err := t.queue.Remove(ctx, hash); err != nil {
			t.log.Warn("failed to dequeue pending check", "hash", hash, "error", err)
		}
	}
	return nil
}

func (t *Tracker) park(ctx context.Context, txn *domain.Transaction, errMsg string) {
	if t.queue == nil {
		return
	}
	err := t.queue.Add(ctx, &redisclient.PendingCheck{
		Hash:        txn.Hash,
		ProviderID:  txn.ProviderID,
		Error:       errMsg,
		Attempts:    1,
		LastAttempt: t.clock.Now().Unix(),
	})
	if err != nil {
		t.log.Warn("failed to queue pending check", "hash", txn.Hash, "error", err)
	}
}

// SaveTransaction ingests a locally submitted transaction as a pending
// record. The automatic confirmation check is triggered by the insert.
func (t *Tracker) SaveTransaction(ctx context.Context, sub SubmittedTxn, providerID string) (*domain.Transaction, error) {
	if sub.Hash == "" {
		return nil, errors.New("transaction hash is empty")
	}

	raw, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction payload: %w", err)
	}

	txn := &domain.Transaction{
		Hash:       sub.Hash,
		From:       domain.NewAddress(sub.From),
		To:         domain.NewAddress(sub.To),
		Value:      sub.Value,
		Fee:        "0",
		Confirmed:  false,
		CreatedAt:  t.clock.Now(),
		ProviderID: providerID,
		Raw:        raw,
	}
	if err := t.repo.Insert(ctx, txn); err != nil {
		return nil, fmt.Errorf("failed to insert transaction %s: %w", sub.Hash, err)
	}
	t.bus.Publish(domain.Event{Type: domain.EventTxnInserted, Txn: txn})
	return txn, nil
}

// LoadTransactionsFromExplorer backfills an address's history from every
// provider that has an explorer. Provider failures are isolated: one bad
// endpoint never aborts its siblings.
func (t *Tracker) LoadTransactionsFromExplorer(ctx context.Context, rawAddr string) {
	addr := domain.NewAddress(rawAddr)
	for _, p := range t.providers.All() {
		if !p.HasExplorer() {
			continue
		}
		if err := t.LoadTransactionsFromExplorerWithProvider(ctx, addr.String(), p.ID); err != nil {
			metrics.ExplorerSyncErrors.WithLabelValues(p.ID).Inc()
			t.log.Error("explorer sync failed", "provider", p.ID, "address", addr, "error", err)
		}
	}
}

// LoadTransactionsFromExplorerWithProvider backfills from a single provider.
// Rows already present are skipped (dedup by hash); a bad row is logged and
// skipped without aborting the batch.
func (t *Tracker) LoadTransactionsFromExplorerWithProvider(ctx context.Context, rawAddr, providerID string) error {
	provider := t.providers.Get(providerID)
	if provider == nil {
		return fmt.Errorf("unknown provider %q", providerID)
	}
	if !provider.HasExplorer() {
		return fmt.Errorf("provider %q has no explorer", providerID)
	}

	addr := domain.NewAddress(rawAddr)
	rows, err := provider.Explorer().AccountTxList(ctx, addr.String())
	if err != nil {
		return fmt.Errorf("failed to fetch transactions from %s: %w", providerID, err)
	}

	for _, row := range rows {
		outcome, err := t.ingestRow(ctx, row, providerID)
		if err != nil {
			t.log.Warn("skipping explorer row", "provider", providerID, "hash", row.Hash, "error", err)
		}
		metrics.ExplorerRows.WithLabelValues(providerID, outcome).Inc()
	}
	return nil
}

func (t *Tracker) ingestRow(ctx context.Context, row rpc.ExplorerTxn, providerID string) (string, error) {
	if row.Hash == "" {
		return "invalid", errors.New("row has no hash")
	}
	if _, err := t.repo.GetByHash(ctx, row.Hash); err == nil {
		return "duplicate", nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return "error", err
	}

	confirmations, err := strconv.ParseUint(row.Confirmations, 10, 64)
	if err != nil {
		return "invalid", fmt.Errorf("bad confirmations %q: %w", row.Confirmations, err)
	}

	fee, err := explorerFee(row.GasPrice, row.GasUsed)
	if err != nil {
		return "invalid", err
	}

	createdAt := t.clock.Now()
	if ts, err := strconv.ParseInt(row.TimeStamp, 10, 64); err == nil {
		createdAt = time.Unix(ts, 0).UTC()
	}

	raw, err := json.Marshal(row)
	if err != nil {
		return "invalid", fmt.Errorf("failed to encode row: %w", err)
	}

	txn := &domain.Transaction{
		Hash:       row.Hash,
		From:       domain.NewAddress(row.From),
		To:         domain.NewAddress(row.To),
		Value:      row.Value,
		Fee:        fee,
		Confirmed:  confirmations > explorerConfirmedDepth,
		CreatedAt:  createdAt,
		ProviderID: providerID,
		Raw:        raw,
	}
	if err := t.repo.Insert(ctx, txn); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return "duplicate", nil
		}
		return "error", err
	}
	return "inserted", nil
}

func explorerFee(gasPrice, gasUsed string) (string, error) {
	price, ok := new(big.Int).SetString(gasPrice, 10)
	if !ok {
		return "", fmt.Errorf("bad gas price %q", gasPrice)
	}
	used, ok := new(big.Int).SetString(gasUsed, 10)
	if !ok {
		return "", fmt.Errorf("bad gas used %q", gasUsed)
	}
	return new(big.Int).Mul(price, used).String(), nil
}

// pruneForRemovedWallet deletes the removed address's transactions, keeping
// any record whose counterpart address still belongs to a retained wallet.
func (t *Tracker) pruneForRemovedWallet(ctx context.Context, removed domain.Address) error {
	wallets, err := t.wallets.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load retained wallets: %w", err)
	}
	retained := make(map[domain.Address]struct{}, len(wallets))
	for _, w := range wallets {
		retained[w.Address] = struct{}{}
	}

	txns, err := t.repo.GetForAddress(ctx, removed)
	if err != nil {
		return fmt.Errorf("failed to load transactions for %s: %w", removed, err)
	}

	pruned := 0
	for _, txn := range txns {
		counterpart := txn.From
		if txn.From == removed {
			counterpart = txn.To
		}
		if _, keep := retained[counterpart]; keep {
			continue
		}
		if err := t.repo.Delete(ctx, txn.Hash); err != nil && !errors.Is(err, storage.ErrNotFound) {
			t.log.Error("failed to delete transaction", "hash", txn.Hash, "error", err)
			continue
		}
		pruned++
		metrics.TxnsPruned.Inc()
	}
	if pruned > 0 {
		t.log.Info("pruned transactions after wallet removal", "address", removed, "count", pruned)
	}
	return nil
}

// Clean deletes every transaction record. Used on account wipe.
func (t *Tracker) Clean(ctx context.Context) error {
	if err := t.repo.DeleteAll(ctx); err != nil {
		return fmt.Errorf("failed to delete transactions: %w", err)
	}
	return nil
}
