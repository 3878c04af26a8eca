package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/walletd/internal/control"
	"github.com/vietddude/walletd/internal/core/config"
)

var (
	cfgPath    string
	isDebug    bool
	skipPin    bool
	noBiometry bool
)

var rootCmd = &cobra.Command{
	Use:   "walletd",
	Short: "Wallet core daemon",
	Long:  `walletd manages wallet authentication, registry, and transaction confirmation tracking.`,
	Run:   runDaemon,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.Flags().BoolVar(&skipPin, "skip-pin", false, "start authenticated without a PIN (debug only)")
	rootCmd.Flags().BoolVar(&noBiometry, "no-biometry", false, "disable the biometric auth factor")
}

func runDaemon(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	// Load Configuration
	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logging
	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})

	if skipPin {
		cfg.Session.SkipPinOnLogin = true
	}
	if noBiometry {
		cfg.Session.BiometryEnabled = false
	}

	// Transform config
	controlCfg := control.Config{
		Port:      cfg.Server.Port,
		Providers: cfg.Providers,
		Session:   cfg.Session,
		Redis:     cfg.Redis,
		Database:  cfg.Database,
	}

	// Initialize App
	app, err := control.NewApp(controlCfg, nil)
	if err != nil {
		slog.Error("Failed to initialize walletd", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start walletd", "error", err)
		os.Exit(1)
	}

	slog.Info("walletd started", "config", cfgPath)

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
}
