package repository

import (
	"context"
	"database/sql"
	"time"
)

// WeeklyLimitRepo handles per-week spending caps.
type WeeklyLimitRepo struct {
	db *sql.DB
}

func NewWeeklyLimitRepo(db *sql.DB) *WeeklyLimitRepo { return &WeeklyLimitRepo{db: db} }

// Upsert writes the limit for a week, keyed by its start date.
func (r *WeeklyLimitRepo) Upsert(ctx context.Context, l WeeklyLimit) error {
	created, updated := defaultTimes(l.CreatedAt, l.UpdatedAt)
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO weekly_limits(week_start, amount_cents, remote_id, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(week_start) DO UPDATE SET
	 amount_cents=excluded.amount_cents,
	 remote_id=COALESCE(excluded.remote_id, weekly_limits.remote_id),
	 updated_at=excluded.updated_at;
	`, weekKey(l.WeekStart), l.AmountCents, l.RemoteID, created, updated)
	return err
}

func (r *WeeklyLimitRepo) Get(ctx context.Context, weekStart time.Time) (*WeeklyLimit, error) {
	row := r.db.QueryRowContext(ctx, limitSelect+` WHERE week_start = ?`, weekKey(weekStart))
	return scanLimitOne(row)
}

func (r *WeeklyLimitRepo) List(ctx context.Context) ([]WeeklyLimit, error) {
	rows, err := r.db.QueryContext(ctx, limitSelect+` ORDER BY week_start`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WeeklyLimit
	for rows.Next() {
		l, err := scanLimit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *WeeklyLimitRepo) SetRemoteID(ctx context.Context, id int64, remoteID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE weekly_limits SET remote_id = ? WHERE id = ?`, remoteID, id)
	return err
}

// WeekStart normalizes a time to the Monday of its week, midnight UTC.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	return day.AddDate(0, 0, -offset)
}

const limitSelect = `SELECT id, week_start, amount_cents, remote_id, created_at, updated_at FROM weekly_limits`

func weekKey(t time.Time) string {
	return WeekStart(t).Format(time.DateOnly)
}

func scanLimitOne(row *sql.Row) (*WeeklyLimit, error) {
	l, err := scanLimit(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

func scanLimit(row scanner) (WeeklyLimit, error) {
	var l WeeklyLimit
	var week string
	var remote sql.NullString
	if err := row.Scan(&l.ID, &week, &l.AmountCents, &remote, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return WeeklyLimit{}, err
	}
	ws, err := time.Parse(time.DateOnly, week)
	if err != nil {
		return WeeklyLimit{}, err
	}
	l.WeekStart = ws
	if remote.Valid {
		l.RemoteID = &remote.String
	}
	return l, nil
}
