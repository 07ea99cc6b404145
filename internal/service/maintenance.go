package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pesaledger/pesaledger/internal/database"
)

// MaintenanceService houses destructive data actions. The sign-in sync uses
// Reset before repopulating the store from the remote snapshot.
type MaintenanceService struct {
	DB *sql.DB
}

// Reset wipes all user data. It keeps the schema intact so the app can continue running.
func (s *MaintenanceService) Reset(ctx context.Context) error {
	if s.DB == nil {
		return fmt.Errorf("maintenance: db not configured")
	}
	if err := database.WithTx(s.DB, func(tx *sql.Tx) error {
		tables := []string{
			"multicat_items",
			"multicat_lists",
			"weekly_limits",
			"transactions",
			"category_items",
			"categories",
			"accounts",
		}
		for _, t := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
				return fmt.Errorf("reset table %s: %w", t, err)
			}
		}
		return nil
	}); err != nil {
		return err
	}
	_, _ = s.DB.ExecContext(ctx, "VACUUM")
	return nil
}
