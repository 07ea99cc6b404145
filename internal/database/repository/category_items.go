package repository

import (
	"context"
	"database/sql"
)

// CategoryItemRepo handles the second level of the taxonomy.
type CategoryItemRepo struct {
	db *sql.DB
}

func NewCategoryItemRepo(db *sql.DB) *CategoryItemRepo {
	return &CategoryItemRepo{db: db}
}

func (r *CategoryItemRepo) Create(ctx context.Context, it CategoryItem) (int64, error) {
	created, updated := defaultTimes(it.CreatedAt, it.UpdatedAt)
	res, err := r.db.ExecContext(ctx, `
	INSERT INTO category_items(category_id, name, remote_id, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?);
	`, it.CategoryID, it.Name, it.RemoteID, created, updated)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *CategoryItemRepo) Update(ctx context.Context, it CategoryItem) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE category_items SET category_id = ?, name = ?, remote_id = ?, updated_at = ? WHERE id = ?;
	`, it.CategoryID, it.Name, it.RemoteID, it.UpdatedAt, it.ID)
	return err
}

func (r *CategoryItemRepo) Get(ctx context.Context, id int64) (*CategoryItem, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, itemSelect+` WHERE id = ?`, id))
}

// GetByName finds an item by name within one category.
func (r *CategoryItemRepo) GetByName(ctx context.Context, categoryID int64, name string) (*CategoryItem, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, itemSelect+` WHERE category_id = ? AND name = ?`, categoryID, name))
}

// FindByName finds an item by name across all categories (auto-categorize path).
func (r *CategoryItemRepo) FindByName(ctx context.Context, name string) (*CategoryItem, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, itemSelect+` WHERE name = ? LIMIT 1`, name))
}

func (r *CategoryItemRepo) ListByCategory(ctx context.Context, categoryID int64) ([]CategoryItem, error) {
	return r.list(ctx, itemSelect+` WHERE category_id = ? ORDER BY name`, categoryID)
}

func (r *CategoryItemRepo) ListAll(ctx context.Context) ([]CategoryItem, error) {
	return r.list(ctx, itemSelect+` ORDER BY category_id, name`)
}

func (r *CategoryItemRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM category_items WHERE id = ?`, id)
	return err
}

func (r *CategoryItemRepo) SetRemoteID(ctx context.Context, id int64, remoteID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE category_items SET remote_id = ? WHERE id = ?`, remoteID, id)
	return err
}

const itemSelect = `SELECT id, category_id, name, remote_id, created_at, updated_at FROM category_items`

func (r *CategoryItemRepo) list(ctx context.Context, query string, args ...any) ([]CategoryItem, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CategoryItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *CategoryItemRepo) scanOne(row *sql.Row) (*CategoryItem, error) {
	it, err := scanItem(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &it, nil
}

func scanItem(row scanner) (CategoryItem, error) {
	var it CategoryItem
	var remote sql.NullString
	if err := row.Scan(&it.ID, &it.CategoryID, &it.Name, &remote, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return CategoryItem{}, err
	}
	if remote.Valid {
		it.RemoteID = &remote.String
	}
	return it, nil
}
