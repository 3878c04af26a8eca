package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/walletd/internal/core/config"
	"github.com/vietddude/walletd/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show registered wallets and their transaction counts",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	query := `
		SELECT w.address, w.name, w.wallet_type, w.is_main,
		       COUNT(t.hash) AS txns,
		       COUNT(t.hash) FILTER (WHERE NOT t.confirmed) AS pending
		FROM wallets w
		LEFT JOIN transactions t ON t.from_address = w.address OR t.to_address = w.address
		GROUP BY w.address, w.name, w.wallet_type, w.is_main
		ORDER BY w.created_at
	`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		slog.Error("Failed to query wallets", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = rows.Close()
	}()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ADDRESS\tNAME\tTYPE\tMAIN\tTXNS\tPENDING")

	for rows.Next() {
		var addr, name, walletType string
		var isMain bool
		var txns, pending int64
		if err := rows.Scan(&addr, &name, &walletType, &isMain, &txns, &pending); err != nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%d\t%d\n", addr, name, walletType, isMain, txns, pending)
	}
	_ = w.Flush()
}
