package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrSplitMismatch means the split items do not add up to the parent amount.
var ErrSplitMismatch = errors.New("split amounts do not match transaction amount")

// MultiCatRepo handles per-transaction category splits.
type MultiCatRepo struct {
	db *sql.DB
}

func NewMultiCatRepo(db *sql.DB) *MultiCatRepo { return &MultiCatRepo{db: db} }

func (r *MultiCatRepo) CreateList(ctx context.Context, transactionID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
	INSERT INTO multicat_lists(transaction_id, applied, created_at) VALUES (?, 0, ?);
	`, transactionID, nowUTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *MultiCatRepo) AddItem(ctx context.Context, listID, categoryItemID, amountCents int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
	INSERT INTO multicat_items(list_id, category_item_id, amount_cents) VALUES (?, ?, ?);
	`, listID, categoryItemID, amountCents)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *MultiCatRepo) RemoveItem(ctx context.Context, itemID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM multicat_items WHERE id = ?`, itemID)
	return err
}

func (r *MultiCatRepo) ListForTransaction(ctx context.Context, transactionID int64) (*MultiCatList, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, transaction_id, applied, created_at FROM multicat_lists WHERE transaction_id = ?
	`, transactionID)
	var l MultiCatList
	if err := row.Scan(&l.ID, &l.TransactionID, &l.Applied, &l.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

func (r *MultiCatRepo) Items(ctx context.Context, listID int64) ([]MultiCatItem, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, list_id, category_item_id, amount_cents FROM multicat_items WHERE list_id = ? ORDER BY id
	`, listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MultiCatItem
	for rows.Next() {
		var it MultiCatItem
		if err := rows.Scan(&it.ID, &it.ListID, &it.CategoryItemID, &it.AmountCents); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Apply marks the split applied after verifying the item sum matches the
// parent transaction amount within epsilonCents.
func (r *MultiCatRepo) Apply(ctx context.Context, listID int64, epsilonCents int64) error {
	var parentAmount int64
	err := r.db.QueryRowContext(ctx, `
	SELECT t.amount_cents FROM transactions t
	JOIN multicat_lists l ON l.transaction_id = t.id
	WHERE l.id = ?
	`, listID).Scan(&parentAmount)
	if err != nil {
		return fmt.Errorf("split parent: %w", err)
	}

	var sum int64
	err = r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM multicat_items WHERE list_id = ?`, listID).Scan(&sum)
	if err != nil {
		return fmt.Errorf("split sum: %w", err)
	}

	diff := parentAmount - sum
	if diff < 0 {
		diff = -diff
	}
	if diff > epsilonCents {
		return fmt.Errorf("%w: have %d, want %d", ErrSplitMismatch, sum, parentAmount)
	}

	_, err = r.db.ExecContext(ctx, `UPDATE multicat_lists SET applied = 1 WHERE id = ?`, listID)
	return err
}
