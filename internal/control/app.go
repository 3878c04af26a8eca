// Package control wires the session manager, wallet registry, and transaction
// tracker together and manages the daemon lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/pressly/goose/v3"

	"github.com/vietddude/walletd/internal/bus"
	"github.com/vietddude/walletd/internal/core/config"
	redisclient "github.com/vietddude/walletd/internal/infra/redis"
	"github.com/vietddude/walletd/internal/infra/rpc"
	"github.com/vietddude/walletd/internal/infra/securestore"
	"github.com/vietddude/walletd/internal/infra/storage"
	"github.com/vietddude/walletd/internal/infra/storage/memory"
	"github.com/vietddude/walletd/internal/infra/storage/postgres"
	"github.com/vietddude/walletd/internal/keys"
	"github.com/vietddude/walletd/internal/registry"
	"github.com/vietddude/walletd/internal/session"
	"github.com/vietddude/walletd/internal/tracker"
)

const defaultSecureStorePath = "walletd.creds"

// Config holds the application configuration.
type Config struct {
	Port      int
	Providers []rpc.ProviderConfig
	Session   config.SessionConfig
	Redis     redisclient.Config
	Database  postgres.Config
}

// App is the assembled daemon.
type App struct {
	cfg Config
	log *slog.Logger

	bus         *bus.Bus
	db          *postgres.DB
	redisClient *redisclient.Client
	secureStore *securestore.BoltStore
	walletRepo  storage.WalletRepository
	txRepo      storage.TransactionRepository

	Session  *session.Manager
	Registry *registry.Registry
	Tracker  *tracker.Tracker

	server *Server
}

// NewApp creates the application with all dependencies initialized. bio may
// be nil when no biometric peripheral is attached; auth then relies on the
// PIN path alone.
func NewApp(cfg Config, bio session.Biometry) (*App, error) {
	feed := storage.NewFeed()

	// Storage: postgres when a database is configured, process-local otherwise.
	var (
		walletRepo storage.WalletRepository
		txRepo     storage.TransactionRepository
		db         *postgres.DB
	)
	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		walletRepo = postgres.NewWalletRepo(db, feed)
		txRepo = postgres.NewTxRepo(db, feed)
		slog.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage(feed)
		walletRepo = memory.NewWalletRepo(store)
		txRepo = memory.NewTxRepo(store)
		slog.Info("Using Memory storage")
	}

	storePath := cfg.Session.SecureStorePath
	if storePath == "" {
		storePath = defaultSecureStorePath
	}
	secureStore, err := securestore.OpenBolt(storePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open secure store: %w", err)
	}

	var (
		redisClient *redisclient.Client
		queue       tracker.PendingQueue
	)
	if cfg.Redis.URL != "" {
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, pending-check queue disabled", "error", err)
		} else {
			queue = redisclient.NewPendingCheckQueue(redisClient)
		}
	}

	providers, err := rpc.NewRegistry(cfg.Providers, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to build provider registry: %w", err)
	}

	b := bus.New()
	clk := clock.NewDefaultClock()

	sess, err := session.New(secureStore, b, bio, clk, session.Config{
		BiometryEnabled:  cfg.Session.BiometryEnabled,
		AttemptLimit:     cfg.Session.PinAttemptLimit,
		BanWindow:        cfg.Session.PinBanWindow,
		ActivityDeadline: cfg.Session.ActivityDeadline,
		SkipPinOnLogin:   cfg.Session.SkipPinOnLogin,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init session manager: %w", err)
	}

	reg := registry.New(walletRepo, feed, keys.NewDeriver(), b, clk)
	trk := tracker.New(txRepo, walletRepo, feed, providers, b, queue, clk)

	app := &App{
		cfg:         cfg,
		log:         slog.Default().With("component", "app"),
		bus:         b,
		db:          db,
		redisClient: redisClient,
		secureStore: secureStore,
		walletRepo:  walletRepo,
		txRepo:      txRepo,
		Session:     sess,
		Registry:    reg,
		Tracker:     trk,
	}
	app.server = NewServer(app, cfg.Port)
	return app, nil
}

// Start runs the HTTP server and the init sequence: authenticate, load the
// wallet set, then backfill history for every known wallet.
func (a *App) Start(ctx context.Context) error {
	go func() {
		if err := a.server.Start(); err != nil {
			a.log.Error("HTTP server failed", "error", err)
		}
	}()

	go func() {
		if !a.Session.Authenticated() {
			if err := a.Session.Auth(ctx); err != nil {
				a.log.Error("Authentication failed", "error", err)
				return
			}
		}
		if err := a.Registry.Init(ctx); err != nil {
			a.log.Error("Registry init failed", "error", err)
			return
		}
		for _, w := range a.Registry.Wallets() {
			a.Tracker.LoadTransactionsFromExplorer(ctx, w.Address.String())
		}
		a.Registry.CheckForBackup(time.Time{})
	}()

	return nil
}

// Stop shuts the daemon down, waiting for in-flight confirmation checks.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping walletd...")

	a.Tracker.Wait()
	a.bus.Close()

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if err := a.secureStore.Close(); err != nil {
		a.log.Warn("Failed to close secure store", "error", err)
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}

	return a.server.Stop(ctx)
}
