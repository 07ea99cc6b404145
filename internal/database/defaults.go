package database

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pesaledger/pesaledger/internal/config"
	"github.com/pesaledger/pesaledger/internal/database/repository"
)

// SeedDefaults ensures the baseline wallets and taxonomy exist for new
// databases. It is idempotent and safe to run on every startup.
func SeedDefaults(ctx context.Context, db *sql.DB, cfg config.ProviderConfig) error {
	acctRepo := repository.NewAccountRepo(db)
	catRepo := repository.NewCategoryRepo(db)
	itemRepo := repository.NewCategoryItemRepo(db)

	wallets := []repository.Account{
		{Name: cfg.WalletName, SenderID: strings.TrimSpace(cfg.SenderPattern)},
		{Name: cfg.BusinessWallet, SenderID: strings.TrimSpace(cfg.SenderPattern)},
		{Name: cfg.CashWallet},
	}
	for _, w := range wallets {
		existing, err := acctRepo.GetByName(ctx, w.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if _, err := acctRepo.Create(ctx, w); err != nil {
			return err
		}
	}

	existing, err := catRepo.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	defaults := map[string][]string{
		"Income":        nil,
		"Food":          {"Groceries", "Restaurants"},
		"Transport":     {"Uber", "Matatu", "Fuel"},
		"Utilities":     {"Airtime", "Data", "Electricity", "Water"},
		"Shopping":      nil,
		"Health":        nil,
		"Entertainment": nil,
		"Savings":       nil,
	}
	for name, items := range defaults {
		catID, err := catRepo.Create(ctx, repository.Category{Name: name})
		if err != nil {
			return err
		}
		for _, item := range items {
			if _, err := itemRepo.Create(ctx, repository.CategoryItem{CategoryID: catID, Name: item}); err != nil {
				return err
			}
		}
	}
	return nil
}
