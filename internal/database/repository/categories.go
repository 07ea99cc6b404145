package repository

import (
	"context"
	"database/sql"
)

// CategoryRepo handles the top level of the taxonomy.
type CategoryRepo struct {
	db *sql.DB
}

func NewCategoryRepo(db *sql.DB) *CategoryRepo {
	return &CategoryRepo{db: db}
}

func (r *CategoryRepo) Create(ctx context.Context, c Category) (int64, error) {
	created, updated := defaultTimes(c.CreatedAt, c.UpdatedAt)
	res, err := r.db.ExecContext(ctx, `
	INSERT INTO categories(name, remote_id, created_at, updated_at)
	VALUES (?, ?, ?, ?);
	`, c.Name, c.RemoteID, created, updated)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *CategoryRepo) Update(ctx context.Context, c Category) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE categories SET name = ?, remote_id = ?, updated_at = ? WHERE id = ?;
	`, c.Name, c.RemoteID, c.UpdatedAt, c.ID)
	return err
}

func (r *CategoryRepo) Get(ctx context.Context, id int64) (*Category, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, categorySelect+` WHERE id = ?`, id))
}

func (r *CategoryRepo) GetByName(ctx context.Context, name string) (*Category, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, categorySelect+` WHERE name = ?`, name))
}

func (r *CategoryRepo) List(ctx context.Context) ([]Category, error) {
	rows, err := r.db.QueryContext(ctx, categorySelect+` ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Delete removes a category. Items cascade away; transaction references to
// those items are nulled by the schema's SET NULL actions.
func (r *CategoryRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	return err
}

func (r *CategoryRepo) SetRemoteID(ctx context.Context, id int64, remoteID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE categories SET remote_id = ? WHERE id = ?`, remoteID, id)
	return err
}

const categorySelect = `SELECT id, name, remote_id, created_at, updated_at FROM categories`

func (r *CategoryRepo) scanOne(row *sql.Row) (*Category, error) {
	c, err := scanCategory(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func scanCategory(row scanner) (Category, error) {
	var c Category
	var remote sql.NullString
	if err := row.Scan(&c.ID, &c.Name, &remote, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Category{}, err
	}
	if remote.Valid {
		c.RemoteID = &remote.String
	}
	return c, nil
}
