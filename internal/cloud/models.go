// Package cloud talks to the per-user remote document store. Each collection
// mirrors a local table; documents carry an explicit updated_at used for
// last-writer-wins merging, and are found by natural key before ever being
// created so independently-assigned local ids never duplicate records.
package cloud

import "time"

// AccountDoc mirrors a wallet. Natural key: Name.
type AccountDoc struct {
	ID           string    `json:"id,omitempty"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	SenderID     string    `json:"sender_id"`
	BalanceCents int64     `json:"balance_cents"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CategoryDoc mirrors a category. Natural key: Name.
type CategoryDoc struct {
	ID        string    `json:"id,omitempty"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CategoryItemDoc mirrors a category item. Natural key: (CategoryName, Name).
type CategoryItemDoc struct {
	ID           string    `json:"id,omitempty"`
	UserID       string    `json:"user_id"`
	CategoryName string    `json:"category_name"`
	Name         string    `json:"name"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TransactionDoc mirrors a transaction. Natural key: Fingerprint when
// present; otherwise the document id recorded locally as remote_id.
type TransactionDoc struct {
	ID            string    `json:"id,omitempty"`
	UserID        string    `json:"user_id"`
	Fingerprint   *string   `json:"fingerprint"`
	AccountName   string    `json:"account_name"`
	CategoryName  *string   `json:"category_name"`
	ItemName      *string   `json:"item_name"`
	AmountCents   int64     `json:"amount_cents"`
	FeeCents      int64     `json:"fee_cents"`
	Kind          string    `json:"kind"`
	Description   string    `json:"description"`
	EffectiveDate time.Time `json:"effective_date"`
	Status        string    `json:"status"`
	Excluded      bool      `json:"excluded"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// WeeklyLimitDoc mirrors a weekly spending cap. Natural key: WeekStart.
type WeeklyLimitDoc struct {
	ID          string    `json:"id,omitempty"`
	UserID      string    `json:"user_id"`
	WeekStart   string    `json:"week_start"` // YYYY-MM-DD
	AmountCents int64     `json:"amount_cents"`
	UpdatedAt   time.Time `json:"updated_at"`
}
