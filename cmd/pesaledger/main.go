package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/pesaledger/pesaledger/internal/cloud"
	"github.com/pesaledger/pesaledger/internal/config"
	"github.com/pesaledger/pesaledger/internal/database"
	"github.com/pesaledger/pesaledger/internal/database/repository"
	"github.com/pesaledger/pesaledger/internal/prefs"
	"github.com/pesaledger/pesaledger/internal/secrets"
	"github.com/pesaledger/pesaledger/internal/service"
	"github.com/pesaledger/pesaledger/internal/sms"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		log.Fatal().Err(err).Msg("create data dir")
	}
	if err := database.RunMigrations(cfg.Database.Path, cfg.Database.MigrationsPath); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	if err := database.SeedDefaults(ctx, db, cfg.Provider); err != nil {
		log.Fatal().Err(err).Msg("seed defaults")
	}

	toggles, err := prefs.OpenDefault()
	if err != nil {
		log.Fatal().Err(err).Msg("open prefs")
	}

	txRepo := repository.NewTransactionRepo(db)
	acctRepo := repository.NewAccountRepo(db)
	catRepo := repository.NewCategoryRepo(db)
	itemRepo := repository.NewCategoryItemRepo(db)
	limitRepo := repository.NewWeeklyLimitRepo(db)

	loc, err := time.LoadLocation(cfg.Provider.Timezone)
	if err != nil {
		log.Warn().Err(err).Str("tz", cfg.Provider.Timezone).Msg("falling back to local timezone")
		loc = time.Local
	}

	sender, err := sms.NewSenderMatcher(cfg.Provider.SenderPattern)
	if err != nil {
		log.Fatal().Err(err).Msg("bad sender pattern")
	}

	categorizer := &service.Categorizer{Transactions: txRepo, Items: itemRepo, Log: log}
	pipeline := service.NewPipeline(db, txRepo, acctRepo, categorizer, sender, toggles, loc,
		cfg.Provider.WalletName, cfg.Provider.BusinessWallet, cfg.Provider.CashWallet, log)

	// Catch-up before live consumption: everything missed while the process
	// was down lands through the same classification path.
	if historyPath := os.Getenv("PESALEDGER_INBOX"); historyPath != "" {
		inbox, err := sms.ReadInboxFile(historyPath)
		if err != nil {
			log.Error().Err(err).Str("path", historyPath).Msg("read inbox history")
		} else {
			scanner := &service.Scanner{
				Transactions: txRepo,
				Inbox:        inbox,
				Pipeline:     pipeline,
				Lookback:     time.Duration(cfg.Sync.LookbackDays) * 24 * time.Hour,
				Log:          log,
			}
			if _, err := scanner.Run(ctx); err != nil {
				log.Error().Err(err).Msg("catch-up scan failed")
			}
		}
	}

	status := service.NewSyncStatus(time.Duration(cfg.Sync.StatusRevert) * time.Second)

	if cfg.Sync.URL != "" {
		remote, err := cloud.NewSupabaseStore(cfg.Sync.URL, resolveSyncKey(cfg, log), cfg.Sync.UserID)
		if err != nil {
			log.Error().Err(err).Msg("remote store unavailable; running local-only")
		} else {
			engine := &service.SyncEngine{
				DB:           db,
				Accounts:     acctRepo,
				Categories:   catRepo,
				Items:        itemRepo,
				Transactions: txRepo,
				Limits:       limitRepo,
				Remote:       remote,
				Status:       status,
				Maintenance:  &service.MaintenanceService{DB: db},
				Toggles:      toggles,
				Log:          log,
			}
			scheduler := service.NewSyncScheduler(engine, status, toggles,
				time.Duration(cfg.Sync.IntervalMins)*time.Minute, log)
			go scheduler.Run(ctx)
		}
	}

	// Live stream from the OS bridge on stdin.
	stream := sms.NewJSONLStream(os.Stdin)
	defer stream.Close()
	pipeline.Consume(ctx, stream)
}

// resolveSyncKey prefers the environment, then the credential store, then the
// config file.
func resolveSyncKey(cfg config.Config, log zerolog.Logger) string {
	if key := os.Getenv(cfg.Sync.KeyEnv); key != "" {
		return key
	}
	if store, err := secrets.DefaultStore(); err == nil {
		if key, err := store.Get(secrets.SyncKey); err == nil && key != "" {
			return key
		}
	}
	if cfg.Sync.Key != "" {
		log.Warn().Msg("using sync key from config file; prefer env or the credential store")
	}
	return cfg.Sync.Key
}
