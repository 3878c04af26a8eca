package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts tracks authentication attempts by factor and outcome
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletd_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"factor", "outcome"},
	)

	// PinLockouts tracks lockout activations
	PinLockouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "walletd_pin_lockouts_total",
			Help: "Total number of PIN lockout activations",
		},
	)

	// WalletsTotal tracks the current registry size
	WalletsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "walletd_wallets",
			Help: "Current number of registered wallets",
		},
	)

	// ConfirmationChecks tracks confirmation checks by outcome
	ConfirmationChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletd_confirmation_checks_total",
			Help: "Total number of transaction confirmation checks",
		},
		[]string{"outcome"},
	)

	// ExplorerRows tracks historical sync rows by provider and outcome
	ExplorerRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletd_explorer_rows_total",
			Help: "Total number of explorer transaction rows processed",
		},
		[]string{"provider", "outcome"},
	)

	// ExplorerSyncErrors tracks provider-level sync failures
	ExplorerSyncErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletd_explorer_sync_errors_total",
			Help: "Total number of provider-level explorer sync failures",
		},
		[]string{"provider"},
	)

	// TxnsPruned tracks transactions removed after wallet removal
	TxnsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "walletd_transactions_pruned_total",
			Help: "Total number of transactions pruned after wallet removal",
		},
	)
)
