package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// TransactionFilters defines list filters.
type TransactionFilters struct {
	AccountID      int64
	CategoryItemID int64
	Kind           Kind
	Status         Status
	From           time.Time
	To             time.Time
	Search         string
}

// TransactionRepo handles transactions.
type TransactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{db: db} }

// Insert adds a row and returns its id. A duplicate non-null fingerprint
// fails with a UNIQUE constraint error; callers that want insert-or-ignore
// semantics use InsertIgnoreTx.
func (r *TransactionRepo) Insert(ctx context.Context, t Transaction) (int64, error) {
	created, updated := defaultTimes(t.CreatedAt, t.UpdatedAt)
	res, err := r.db.ExecContext(ctx, insertSQL, t.AccountID, t.CategoryItemID, t.CategoryID,
		t.AmountCents, t.FeeCents, string(t.Kind), t.Description, t.EffectiveDate,
		string(t.Status), t.Fingerprint, t.Excluded, t.RemoteID, created, updated)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertIgnoreTx inserts with insert-or-ignore semantics on the fingerprint.
// This is the concurrency-correctness boundary: two execution contexts racing
// on the same physical message agree on one winner at the database, not in
// Go. The conflict target names the partial index's WHERE clause, as sqlite
// requires for partial unique indexes. Returns inserted=false when the
// fingerprint already exists.
func (r *TransactionRepo) InsertIgnoreTx(ctx context.Context, q Queryer, t Transaction) (int64, bool, error) {
	created, updated := defaultTimes(t.CreatedAt, t.UpdatedAt)
	res, err := q.ExecContext(ctx, strings.Replace(insertSQL, ";",
		" ON CONFLICT(fingerprint) WHERE fingerprint IS NOT NULL DO NOTHING;", 1),
		t.AccountID, t.CategoryItemID, t.CategoryID,
		t.AmountCents, t.FeeCents, string(t.Kind), t.Description, t.EffectiveDate,
		string(t.Status), t.Fingerprint, t.Excluded, t.RemoteID, created, updated)
	if err != nil {
		return 0, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}
	id, err := res.LastInsertId()
	return id, true, err
}

const insertSQL = `
	INSERT INTO transactions(
	 account_id, category_item_id, category_id, amount_cents, fee_cents, kind, description,
	 effective_date, status, fingerprint, excluded, remote_id, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`

// Update overwrites a row (merge engine path); UpdatedAt is written as given.
func (r *TransactionRepo) Update(ctx context.Context, t Transaction) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE transactions SET account_id = ?, category_item_id = ?, category_id = ?,
	 amount_cents = ?, fee_cents = ?, kind = ?, description = ?, effective_date = ?,
	 status = ?, fingerprint = ?, excluded = ?, remote_id = ?, updated_at = ?
	WHERE id = ?;
	`, t.AccountID, t.CategoryItemID, t.CategoryID, t.AmountCents, t.FeeCents,
		string(t.Kind), t.Description, t.EffectiveDate, string(t.Status),
		t.Fingerprint, t.Excluded, t.RemoteID, t.UpdatedAt, t.ID)
	return err
}

// FindByFingerprint is the duplicate gate used by the classifier and the
// catch-up scanner; it rides the partial unique index.
func (r *TransactionRepo) FindByFingerprint(ctx context.Context, fingerprint string) (*Transaction, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, txSelect+` WHERE fingerprint = ?`, fingerprint))
}

// FindByRemoteID matches a row to its cloud document when it has no
// fingerprint to serve as the natural key.
func (r *TransactionRepo) FindByRemoteID(ctx context.Context, remoteID string) (*Transaction, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, txSelect+` WHERE remote_id = ?`, remoteID))
}

func (r *TransactionRepo) Get(ctx context.Context, id int64) (*Transaction, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, txSelect+` WHERE id = ?`, id))
}

// Categorize assigns a category item and flips status.
func (r *TransactionRepo) Categorize(ctx context.Context, id int64, categoryItemID int64) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE transactions SET category_item_id = ?, status = ?, updated_at = ? WHERE id = ?;
	`, categoryItemID, string(StatusCategorized), nowUTC(), id)
	return err
}

// CategorizeToCategory assigns a category with no specific item. The
// category column carries the reference; the description marker is kept as a
// display-compatible bridge and is strictly recoverable via StripCategoryMarker.
func (r *TransactionRepo) CategorizeToCategory(ctx context.Context, id int64, categoryID int64, categoryName string) error {
	t, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if t == nil {
		return sql.ErrNoRows
	}
	desc := ApplyCategoryMarker(t.Description, categoryName)
	_, err = r.db.ExecContext(ctx, `
	UPDATE transactions SET category_id = ?, description = ?, status = ?, updated_at = ? WHERE id = ?;
	`, categoryID, desc, string(StatusCategorized), nowUTC(), id)
	return err
}

// SetExcluded flags a row out of weekly totals.
func (r *TransactionRepo) SetExcluded(ctx context.Context, id int64, excluded bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE transactions SET excluded = ?, updated_at = ? WHERE id = ?`, excluded, nowUTC(), id)
	return err
}

func (r *TransactionRepo) SetRemoteID(ctx context.Context, id int64, remoteID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE transactions SET remote_id = ? WHERE id = ?`, remoteID, id)
	return err
}

func (r *TransactionRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	return err
}

// NewestFingerprinted returns the transaction with the latest effective date
// among rows carrying a fingerprint: the catch-up watermark.
func (r *TransactionRepo) NewestFingerprinted(ctx context.Context) (*Transaction, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		txSelect+` WHERE fingerprint IS NOT NULL ORDER BY effective_date DESC LIMIT 1`))
}

func (r *TransactionRepo) List(ctx context.Context, f TransactionFilters) ([]Transaction, error) {
	var where []string
	var args []any

	if f.AccountID != 0 {
		where = append(where, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.CategoryItemID != 0 {
		where = append(where, "category_item_id = ?")
		args = append(args, f.CategoryItemID)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.From.IsZero() {
		where = append(where, "effective_date >= ?")
		args = append(args, f.From)
	}
	if !f.To.IsZero() {
		where = append(where, "effective_date < ?")
		args = append(args, f.To)
	}
	if f.Search != "" {
		where = append(where, "description LIKE ?")
		args = append(args, "%"+f.Search+"%")
	}

	query := txSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY effective_date DESC, created_at DESC"

	return r.list(ctx, query, args...)
}

// Uncategorized returns rows awaiting a category, newest first.
func (r *TransactionRepo) Uncategorized(ctx context.Context) ([]Transaction, error) {
	return r.List(ctx, TransactionFilters{Status: StatusUncategorized})
}

func (r *TransactionRepo) UncategorizedCount(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE status = ?`, string(StatusUncategorized)).Scan(&n)
	return n, err
}

// CategoryTotal is a spend aggregate keyed by category name.
type CategoryTotal struct {
	CategoryName string
	TotalCents   int64
}

// SumByCategoryRange groups debit spending by category name over [from, to).
// Rows categorized to an item roll up to the item's parent category; rows
// categorized to a bare category use that category directly.
func (r *TransactionRepo) SumByCategoryRange(ctx context.Context, from, to time.Time) ([]CategoryTotal, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT COALESCE(c.name, cp.name, ''), SUM(t.amount_cents + t.fee_cents) AS total
	FROM transactions t
	LEFT JOIN categories c ON c.id = t.category_id
	LEFT JOIN category_items ci ON ci.id = t.category_item_id
	LEFT JOIN categories cp ON cp.id = ci.category_id
	WHERE t.kind = ? AND t.effective_date >= ? AND t.effective_date < ?
	GROUP BY COALESCE(c.name, cp.name, '')
	ORDER BY total DESC;
	`, string(KindDebit), from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CategoryTotal
	for rows.Next() {
		var ct CategoryTotal
		if err := rows.Scan(&ct.CategoryName, &ct.TotalCents); err != nil {
			return nil, err
		}
		out = append(out, ct)
	}
	return out, rows.Err()
}

// MonthTotal is a spend aggregate keyed by (year, month).
type MonthTotal struct {
	Month      int
	TotalCents int64
}

// SumByMonth groups debit spending by calendar month within a year.
func (r *TransactionRepo) SumByMonth(ctx context.Context, year int) ([]MonthTotal, error) {
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)
	rows, err := r.db.QueryContext(ctx, `
	SELECT CAST(strftime('%m', effective_date) AS INTEGER), SUM(amount_cents + fee_cents)
	FROM transactions
	WHERE kind = ? AND effective_date >= ? AND effective_date < ?
	GROUP BY 1 ORDER BY 1;
	`, string(KindDebit), start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MonthTotal
	for rows.Next() {
		var mt MonthTotal
		if err := rows.Scan(&mt.Month, &mt.TotalCents); err != nil {
			return nil, err
		}
		out = append(out, mt)
	}
	return out, rows.Err()
}

// WeeklyDebitTotal sums debit spending in [weekStart, weekStart+7d),
// optionally skipping rows the user excluded from weekly totals.
func (r *TransactionRepo) WeeklyDebitTotal(ctx context.Context, weekStart time.Time, excludeSelected bool) (int64, error) {
	query := `SELECT COALESCE(SUM(amount_cents + fee_cents), 0) FROM transactions
	 WHERE kind = ? AND effective_date >= ? AND effective_date < ?`
	args := []any{string(KindDebit), weekStart, weekStart.AddDate(0, 0, 7)}
	if excludeSelected {
		query += ` AND excluded = 0`
	}
	var total int64
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&total)
	return total, err
}

const txSelect = `SELECT id, account_id, category_item_id, category_id, amount_cents, fee_cents,
 kind, description, effective_date, status, fingerprint, excluded, remote_id, created_at, updated_at
 FROM transactions`

func (r *TransactionRepo) list(ctx context.Context, query string, args ...any) ([]Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TransactionRepo) scanOne(row *sql.Row) (*Transaction, error) {
	t, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func scanTransaction(row scanner) (Transaction, error) {
	var t Transaction
	var itemID, categoryID sql.NullInt64
	var fingerprint, remote sql.NullString
	var kind, status string
	if err := row.Scan(&t.ID, &t.AccountID, &itemID, &categoryID, &t.AmountCents, &t.FeeCents,
		&kind, &t.Description, &t.EffectiveDate, &status, &fingerprint, &t.Excluded,
		&remote, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Transaction{}, err
	}
	t.Kind = Kind(kind)
	t.Status = Status(status)
	if itemID.Valid {
		t.CategoryItemID = &itemID.Int64
	}
	if categoryID.Valid {
		t.CategoryID = &categoryID.Int64
	}
	if fingerprint.Valid {
		t.Fingerprint = &fingerprint.String
	}
	if remote.Valid {
		t.RemoteID = &remote.String
	}
	return t, nil
}
