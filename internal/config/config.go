package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database DatabaseConfig
	Provider ProviderConfig
	Sync     SyncConfig
	Ledger   LedgerConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path           string
	MigrationsPath string `mapstructure:"migrations_path"`
}

// ProviderConfig describes the mobile-money provider whose messages we parse.
type ProviderConfig struct {
	SenderPattern  string `mapstructure:"sender_pattern"` // regexp matched against the SMS sender id
	CurrencyPrefix string `mapstructure:"currency_prefix"`
	WalletName     string `mapstructure:"wallet_name"`     // display name of the primary provider wallet
	BusinessWallet string `mapstructure:"business_wallet"` // display name of the business sub-account wallet
	CashWallet     string `mapstructure:"cash_wallet"`     // synthetic wallet credited by withdrawals
	Timezone       string
}

// SyncConfig holds cloud sync settings. The supabase key is resolved from
// env, then the secrets store, then this file (least preferred).
type SyncConfig struct {
	URL          string `mapstructure:"url"`
	Key          string
	KeyEnv       string `mapstructure:"key_env"`
	UserID       string `mapstructure:"user_id"`
	IntervalMins int    `mapstructure:"interval_mins"`
	StatusRevert int    `mapstructure:"status_revert"` // seconds before Completed/Error revert to Idle
	LookbackDays int    `mapstructure:"lookback_days"` // catch-up window when no fingerprinted transaction exists
}

// LedgerConfig holds behavior toggles the core consults but does not own.
// Runtime values come from the prefs file; these are the first-run defaults.
type LedgerConfig struct {
	SyncEnabled       bool  `mapstructure:"sync_enabled"`
	AutoCategorize    bool  `mapstructure:"auto_categorize"`
	ExcludeFromWeekly bool  `mapstructure:"exclude_from_weekly"`
	SplitEpsilonCents int64 `mapstructure:"split_epsilon_cents"`
}

// Load reads configuration from file and env. Env var overrides use prefix PESALEDGER_.
func Load() (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "pesaledger", "pesaledger.db"))
	v.SetDefault("database.migrations_path", "internal/database/migrations")
	v.SetDefault("provider.sender_pattern", "^MPESA$")
	v.SetDefault("provider.currency_prefix", "Ksh")
	v.SetDefault("provider.wallet_name", "M-Pesa")
	v.SetDefault("provider.business_wallet", "Business")
	v.SetDefault("provider.cash_wallet", "Cash")
	v.SetDefault("provider.timezone", "Africa/Nairobi")
	v.SetDefault("sync.url", "")
	v.SetDefault("sync.key", "")
	v.SetDefault("sync.key_env", "SUPABASE_SERVICE_KEY")
	v.SetDefault("sync.user_id", "")
	v.SetDefault("sync.interval_mins", 15)
	v.SetDefault("sync.status_revert", 4)
	v.SetDefault("sync.lookback_days", 7)
	v.SetDefault("ledger.sync_enabled", false)
	v.SetDefault("ledger.auto_categorize", true)
	v.SetDefault("ledger.exclude_from_weekly", false)
	v.SetDefault("ledger.split_epsilon_cents", 1)

	v.SetConfigType("toml")

	cfgPath := os.Getenv("PESALEDGER_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "pesaledger"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("PESALEDGER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// Save writes the provided config to disk, creating the config directory if needed.
// The supabase key is stored in plain text here; prefer env vars or the secrets store.
func Save(cfg Config) error {
	path := os.Getenv("PESALEDGER_CONFIG")
	if path == "" {
		path = filepath.Join(os.Getenv("HOME"), ".config", "pesaledger", "config.toml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("database.path", cfg.Database.Path)
	v.Set("database.migrations_path", cfg.Database.MigrationsPath)
	v.Set("provider.sender_pattern", cfg.Provider.SenderPattern)
	v.Set("provider.currency_prefix", cfg.Provider.CurrencyPrefix)
	v.Set("provider.wallet_name", cfg.Provider.WalletName)
	v.Set("provider.business_wallet", cfg.Provider.BusinessWallet)
	v.Set("provider.cash_wallet", cfg.Provider.CashWallet)
	v.Set("provider.timezone", cfg.Provider.Timezone)
	v.Set("sync.url", cfg.Sync.URL)
	v.Set("sync.key", cfg.Sync.Key)
	v.Set("sync.key_env", cfg.Sync.KeyEnv)
	v.Set("sync.user_id", cfg.Sync.UserID)
	v.Set("sync.interval_mins", cfg.Sync.IntervalMins)
	v.Set("sync.status_revert", cfg.Sync.StatusRevert)
	v.Set("sync.lookback_days", cfg.Sync.LookbackDays)
	v.Set("ledger.sync_enabled", cfg.Ledger.SyncEnabled)
	v.Set("ledger.auto_categorize", cfg.Ledger.AutoCategorize)
	v.Set("ledger.exclude_from_weekly", cfg.Ledger.ExcludeFromWeekly)
	v.Set("ledger.split_epsilon_cents", cfg.Ledger.SplitEpsilonCents)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
