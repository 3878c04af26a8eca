// recheck_txns drains the pending-confirmation queue and re-invokes the
// confirmation check for each parked transaction. Confirmation checks run
// at most once automatically; this tool is the explicit re-invocation path.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/lightningnetwork/lnd/clock"

	"github.com/vietddude/walletd/internal/bus"
	"github.com/vietddude/walletd/internal/core/config"
	redisclient "github.com/vietddude/walletd/internal/infra/redis"
	"github.com/vietddude/walletd/internal/infra/rpc"
	"github.com/vietddude/walletd/internal/infra/storage"
	"github.com/vietddude/walletd/internal/infra/storage/postgres"
	"github.com/vietddude/walletd/internal/tracker"
)

type env struct {
	ConfigPath  string `envconfig:"CONFIG_PATH" default:"config.yaml"`
	RedisURL    string `envconfig:"REDIS_URL"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	MaxChecks   int    `envconfig:"MAX_CHECKS" default:"100"`
}

func main() {
	_ = godotenv.Load()

	var e env
	if err := envconfig.Process("walletd", &e); err != nil {
		fmt.Fprintln(os.Stderr, "bad environment:", err)
		os.Exit(1)
	}

	cfg, err := config.Load(e.ConfigPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	if e.RedisURL != "" {
		cfg.Redis.URL = e.RedisURL
	}
	if e.DatabaseURL != "" {
		cfg.Database.URL = e.DatabaseURL
	}
	if cfg.Redis.URL == "" || cfg.Database.URL == "" {
		fmt.Fprintln(os.Stderr, "redis and database must both be configured")
		os.Exit(1)
	}

	ctx := context.Background()

	rc, err := redisclient.NewClient(cfg.Redis)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to connect to redis:", err)
		os.Exit(1)
	}
	defer rc.Close()
	queue := redisclient.NewPendingCheckQueue(rc)

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to connect to database:", err)
		os.Exit(1)
	}
	defer db.Close()

	providers, err := rpc.NewRegistry(cfg.Providers, 10*time.Second)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build provider registry:", err)
		os.Exit(1)
	}

	feed := storage.NewFeed()
	b := bus.New()
	defer b.Close()
	txRepo := postgres.NewTxRepo(db, feed)
	trk := tracker.New(
		txRepo,
		postgres.NewWalletRepo(db, feed),
		feed,
		providers,
		b,
		queue,
		clock.NewDefaultClock(),
	)

	checked, confirmed := 0, 0
	for checked < e.MaxChecks {
		pc, err := queue.Next(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "failed to read queue:", err)
			os.Exit(1)
		}
		if pc == nil {
			break
		}

		// Dequeue first: a still-pending outcome re-parks the hash with a
		// fresh attempt count instead of spinning on the queue head.
		if err := queue.Remove(ctx, pc.Hash); err != nil {
			fmt.Fprintln(os.Stderr, "failed to dequeue:", err)
			os.Exit(1)
		}
		checked++

		if err := trk.CheckTransaction(ctx, pc.Hash); err != nil {
			fmt.Printf("%s: %v\n", pc.Hash, err)
			continue
		}
		txn, err := txRepo.GetByHash(ctx, pc.Hash)
		if err == nil && txn.Confirmed {
			confirmed++
			fmt.Printf("%s: confirmed\n", pc.Hash)
		} else {
			fmt.Printf("%s: still pending\n", pc.Hash)
		}
	}

	fmt.Printf("rechecked %d transaction(s), %d confirmed\n", checked, confirmed)
}
