package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pesaledger/pesaledger/internal/config"
	"github.com/pesaledger/pesaledger/internal/database"
	"github.com/pesaledger/pesaledger/internal/database/repository"
	"github.com/pesaledger/pesaledger/internal/sms"
)

// fakeToggles is a fixed Toggles implementation for tests.
type fakeToggles struct {
	sync    bool
	auto    bool
	exclude bool
}

func (f fakeToggles) SyncEnabled() bool       { return f.sync }
func (f fakeToggles) AutoCategorize() bool    { return f.auto }
func (f fakeToggles) ExcludeFromWeekly() bool { return f.exclude }

var testProvider = config.ProviderConfig{
	SenderPattern:  "^MPESA$",
	WalletName:     "M-Pesa",
	BusinessWallet: "Business",
	CashWallet:     "Cash",
	Timezone:       "Africa/Nairobi",
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	migrations, err := filepath.Abs("../database/migrations")
	require.NoError(t, err)

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.RunMigrationsWithDB(db, migrations))

	require.NoError(t, database.SeedDefaults(context.Background(), db, testProvider))
	return db
}

func newTestPipeline(t *testing.T, db *sql.DB, toggles Toggles) *Pipeline {
	t.Helper()
	txRepo := repository.NewTransactionRepo(db)
	acctRepo := repository.NewAccountRepo(db)
	itemRepo := repository.NewCategoryItemRepo(db)
	log := zerolog.Nop()

	sender, err := sms.NewSenderMatcher(testProvider.SenderPattern)
	require.NoError(t, err)

	loc, err := time.LoadLocation(testProvider.Timezone)
	require.NoError(t, err)

	cat := &Categorizer{Transactions: txRepo, Items: itemRepo, Log: log}
	return NewPipeline(db, txRepo, acctRepo, cat, sender, toggles, loc,
		testProvider.WalletName, testProvider.BusinessWallet, testProvider.CashWallet, log)
}

func walletBalance(t *testing.T, db *sql.DB, name string) int64 {
	t.Helper()
	acct, err := repository.NewAccountRepo(db).GetByName(context.Background(), name)
	require.NoError(t, err)
	require.NotNil(t, acct)
	return acct.BalanceCents
}

func transactionCount(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM transactions`).Scan(&n))
	return n
}
