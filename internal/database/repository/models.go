package repository

import (
	"context"
	"database/sql"
	"time"
)

// Kind is the closed set of transaction movement shapes.
type Kind string

const (
	KindCredit   Kind = "CREDIT"
	KindDebit    Kind = "DEBIT"
	KindTransfer Kind = "TRANSFER"
	KindWithdraw Kind = "WITHDRAW"
)

// Status is the categorization state of a transaction.
type Status string

const (
	StatusUncategorized Status = "UNCATEGORIZED"
	StatusCategorized   Status = "CATEGORIZED"
)

// Account represents a wallet row: a named money source with a running
// balance maintained by signed deltas, never recomputed from the ledger.
type Account struct {
	ID           int64
	Name         string
	SenderID     string
	BalanceCents int64
	RemoteID     *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Category represents a top-level taxonomy row.
type Category struct {
	ID        int64
	Name      string
	RemoteID  *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CategoryItem represents a second-level taxonomy row (e.g. Transport > Uber).
type CategoryItem struct {
	ID         int64
	CategoryID int64
	Name       string
	RemoteID   *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Transaction represents the central fact record. Amount is always
// non-negative; direction is encoded by Kind. Fingerprint is nil for
// user-entered rows.
type Transaction struct {
	ID             int64
	AccountID      int64
	CategoryItemID *int64
	CategoryID     *int64
	AmountCents    int64
	FeeCents       int64
	Kind           Kind
	Description    string
	EffectiveDate  time.Time
	Status         Status
	Fingerprint    *string
	Excluded       bool
	RemoteID       *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SignedDeltaCents is the balance delta this row applies to its owning
// account. Fees always leave the source account alongside the amount.
func (t Transaction) SignedDeltaCents() int64 {
	if t.Kind == KindCredit {
		return t.AmountCents
	}
	return -(t.AmountCents + t.FeeCents)
}

// MultiCatList splits one transaction across several category items.
type MultiCatList struct {
	ID            int64
	TransactionID int64
	Applied       bool
	CreatedAt     time.Time
}

// MultiCatItem is one slice of a split.
type MultiCatItem struct {
	ID             int64
	ListID         int64
	CategoryItemID int64
	AmountCents    int64
}

// WeeklyLimit caps spending for the week starting at WeekStart (Monday).
type WeeklyLimit struct {
	ID          int64
	WeekStart   time.Time
	AmountCents int64
	RemoteID    *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Queryer is satisfied by both *sql.DB and *sql.Tx so the classifier can run
// insert + balance update as one unit.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
