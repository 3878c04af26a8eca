// reset_session performs the destructive credential reset: it wipes the
// secure store and purges every wallet and transaction record. This is the
// recovery path for a credential blob that can no longer be decoded. It is
// irreversible with respect to locally held secrets.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/vietddude/walletd/internal/core/config"
	"github.com/vietddude/walletd/internal/infra/storage"
	"github.com/vietddude/walletd/internal/infra/storage/postgres"
)

type env struct {
	ConfigPath  string `envconfig:"CONFIG_PATH" default:"config.yaml"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	Force       bool   `envconfig:"FORCE"`
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
	if e.DatabaseURL != "" {
		cfg.Database.URL = e.DatabaseURL
	}

	storePath := cfg.Session.SecureStorePath
	if storePath == "" {
		storePath = "walletd.creds"
	}

	fmt.Println("WARNING: this permanently deletes the credential store, every")
	fmt.Println("wallet record (including private keys and mnemonics), and the")
	fmt.Println("transaction history. Locally held secrets cannot be recovered.")
	if !e.Force {
		fmt.Print("Type 'reset' to continue: ")
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if strings.TrimSpace(line) != "reset" {
			fmt.Println("aborted")
			os.Exit(1)
		}
	}

	// Credential store first: without it the wallets are unreachable anyway.
	if err := os.Remove(storePath); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "failed to remove secure store:", err)
		os.Exit(1)
	}
	fmt.Println("secure store removed:", storePath)

	if cfg.Database.URL == "" {
		fmt.Println("no database configured, done")
		return
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to connect to database:", err)
		os.Exit(1)
	}
	defer db.Close()

	feed := storage.NewFeed()
	if err := postgres.NewTxRepo(db, feed).DeleteAll(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "failed to purge transactions:", err)
		os.Exit(1)
	}
	if err := postgres.NewWalletRepo(db, feed).DeleteAll(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "failed to purge wallets:", err)
		os.Exit(1)
	}

	fmt.Println("wallets and transactions purged")
}
