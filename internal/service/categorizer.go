package service

import (
	"context"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/rs/zerolog"

	"github.com/pesaledger/pesaledger/internal/database/repository"
)

// fuzzyDistanceMax bounds how far an item name may drift from the hint
// before we refuse to guess.
const fuzzyDistanceMax = 2

// Categorizer assigns category items to classified transactions.
type Categorizer struct {
	Transactions *repository.TransactionRepo
	Items        *repository.CategoryItemRepo
	Log          zerolog.Logger
}

// AutoCategorize matches hint against the taxonomy: exact item-name match
// first, then a bounded edit-distance fallback. No match is not an error —
// the transaction simply stays uncategorized for the user.
func (c *Categorizer) AutoCategorize(ctx context.Context, transactionID int64, hint string) error {
	t, err := c.Transactions.Get(ctx, transactionID)
	if err != nil {
		return err
	}
	if t == nil || t.Status == repository.StatusCategorized {
		return nil
	}

	item, err := c.Items.FindByName(ctx, hint)
	if err != nil {
		return err
	}
	if item == nil {
		item, err = c.fuzzyMatch(ctx, hint)
		if err != nil {
			return err
		}
	}
	if item == nil {
		c.Log.Info().Str("hint", hint).Int64("transaction", transactionID).
			Msg("no category item for hint")
		return nil
	}
	return c.Transactions.Categorize(ctx, transactionID, item.ID)
}

func (c *Categorizer) fuzzyMatch(ctx context.Context, hint string) (*repository.CategoryItem, error) {
	items, err := c.Items.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	target := strings.ToLower(strings.TrimSpace(hint))
	best := -1
	var bestItem *repository.CategoryItem
	for i := range items {
		d := levenshtein.ComputeDistance(target, strings.ToLower(items[i].Name))
		if d <= fuzzyDistanceMax && (best == -1 || d < best) {
			best = d
			bestItem = &items[i]
		}
	}
	return bestItem, nil
}
