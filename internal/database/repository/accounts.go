package repository

import (
	"context"
	"database/sql"
	"time"
)

// AccountRepo handles wallets.
type AccountRepo struct {
	db *sql.DB
}

func NewAccountRepo(db *sql.DB) *AccountRepo {
	return &AccountRepo{db: db}
}

// Create inserts a wallet and returns its id. Zero timestamps default to now.
func (r *AccountRepo) Create(ctx context.Context, a Account) (int64, error) {
	return r.CreateTx(ctx, r.db, a)
}

// CreateTx is Create against an explicit transaction.
func (r *AccountRepo) CreateTx(ctx context.Context, q Queryer, a Account) (int64, error) {
	created, updated := defaultTimes(a.CreatedAt, a.UpdatedAt)
	res, err := q.ExecContext(ctx, `
	INSERT INTO accounts(name, sender_id, balance_cents, remote_id, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?);
	`, a.Name, a.SenderID, a.BalanceCents, a.RemoteID, created, updated)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Update overwrites a wallet row. Used by the merge engine when the remote
// copy wins, so UpdatedAt is written as given rather than bumped.
func (r *AccountRepo) Update(ctx context.Context, a Account) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE accounts SET name = ?, sender_id = ?, balance_cents = ?, remote_id = ?, updated_at = ?
	WHERE id = ?;
	`, a.Name, a.SenderID, a.BalanceCents, a.RemoteID, a.UpdatedAt, a.ID)
	return err
}

// ApplyDelta adjusts the running balance by a signed amount.
func (r *AccountRepo) ApplyDelta(ctx context.Context, q Queryer, id int64, deltaCents int64) error {
	_, err := q.ExecContext(ctx, `
	UPDATE accounts SET balance_cents = balance_cents + ?, updated_at = ? WHERE id = ?;
	`, deltaCents, nowUTC(), id)
	return err
}

func (r *AccountRepo) Get(ctx context.Context, id int64) (*Account, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, accountSelect+` WHERE id = ?`, id))
}

// GetByName looks up a wallet by display name (effectively unique locally).
func (r *AccountRepo) GetByName(ctx context.Context, name string) (*Account, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, accountSelect+` WHERE name = ?`, name))
}

func (r *AccountRepo) GetByNameTx(ctx context.Context, q Queryer, name string) (*Account, error) {
	return r.scanOne(q.QueryRowContext(ctx, accountSelect+` WHERE name = ?`, name))
}

func (r *AccountRepo) List(ctx context.Context) ([]Account, error) {
	rows, err := r.db.QueryContext(ctx, accountSelect+` ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Delete removes a wallet; its transactions cascade away with it.
func (r *AccountRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	return err
}

// TotalBalance sums the running balances across all wallets.
func (r *AccountRepo) TotalBalance(ctx context.Context) (int64, error) {
	var total sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT SUM(balance_cents) FROM accounts`).Scan(&total)
	return total.Int64, err
}

func (r *AccountRepo) SetRemoteID(ctx context.Context, id int64, remoteID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE accounts SET remote_id = ? WHERE id = ?`, remoteID, id)
	return err
}

const accountSelect = `SELECT id, name, sender_id, balance_cents, remote_id, created_at, updated_at FROM accounts`

func (r *AccountRepo) scanOne(row *sql.Row) (*Account, error) {
	a, err := scanAccount(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func scanAccount(row scanner) (Account, error) {
	var a Account
	var remote sql.NullString
	if err := row.Scan(&a.ID, &a.Name, &a.SenderID, &a.BalanceCents, &remote, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Account{}, err
	}
	if remote.Valid {
		a.RemoteID = &remote.String
	}
	return a, nil
}

// scanner handles both Row and Rows.
type scanner interface {
	Scan(dest ...any) error
}

func defaultTimes(created, updated time.Time) (time.Time, time.Time) {
	now := nowUTC()
	if created.IsZero() {
		created = now
	}
	if updated.IsZero() {
		updated = now
	}
	return created, updated
}

func nowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
