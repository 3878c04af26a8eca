package config

import (
	"time"

	redisclient "github.com/vietddude/walletd/internal/infra/redis"
	"github.com/vietddude/walletd/internal/infra/rpc"
	"github.com/vietddude/walletd/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig         `yaml:"server"`
	Providers []rpc.ProviderConfig `yaml:"providers"`
	Session   SessionConfig        `yaml:"session"`
	Redis     redisclient.Config   `yaml:"redis"`
	Logging   LoggingConfig        `yaml:"logging"`
	Database  postgres.Config      `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// SessionConfig holds session manager settings.
type SessionConfig struct {
	SecureStorePath  string        `yaml:"secure_store_path"`
	BiometryEnabled  bool          `yaml:"biometry_enabled"`
	PinAttemptLimit  int           `yaml:"pin_attempt_limit"`
	PinBanWindow     time.Duration `yaml:"pin_ban_window"`
	ActivityDeadline time.Duration `yaml:"activity_deadline"`
	SkipPinOnLogin   bool          `yaml:"skip_pin_on_login"` // debug override
}
