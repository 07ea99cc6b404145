package cloud

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/supabase-community/supabase-go"
)

// Store is the remote side of the merge engine. Upsert methods search by
// natural key before creating, so repeated pushes from any device converge on
// one document; they return the final document id.
type Store interface {
	Accounts(ctx context.Context) ([]AccountDoc, error)
	UpsertAccount(ctx context.Context, doc AccountDoc) (string, error)

	Categories(ctx context.Context) ([]CategoryDoc, error)
	UpsertCategory(ctx context.Context, doc CategoryDoc) (string, error)

	CategoryItems(ctx context.Context) ([]CategoryItemDoc, error)
	UpsertCategoryItem(ctx context.Context, doc CategoryItemDoc) (string, error)

	Transactions(ctx context.Context) ([]TransactionDoc, error)
	UpsertTransaction(ctx context.Context, doc TransactionDoc) (string, error)

	WeeklyLimits(ctx context.Context) ([]WeeklyLimitDoc, error)
	UpsertWeeklyLimit(ctx context.Context, doc WeeklyLimitDoc) (string, error)
}

// SupabaseStore implements Store over a supabase project with sibling tables
// accounts, categories, category_items, transactions and weekly_limits, all
// row-scoped by user_id.
type SupabaseStore struct {
	client *supabase.Client
	userID string
}

func NewSupabaseStore(url, key, userID string) (*SupabaseStore, error) {
	client, err := supabase.NewClient(url, key, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("supabase client: %w", err)
	}
	return &SupabaseStore{client: client, userID: userID}, nil
}

func (s *SupabaseStore) Accounts(ctx context.Context) ([]AccountDoc, error) {
	var out []AccountDoc
	err := s.listAll(ctx, "accounts", &out)
	return out, err
}

func (s *SupabaseStore) UpsertAccount(ctx context.Context, doc AccountDoc) (string, error) {
	doc.UserID = s.userID
	return s.upsert(ctx, "accounts", doc.ID, map[string]string{"name": doc.Name}, &doc)
}

func (s *SupabaseStore) Categories(ctx context.Context) ([]CategoryDoc, error) {
	var out []CategoryDoc
	err := s.listAll(ctx, "categories", &out)
	return out, err
}

func (s *SupabaseStore) UpsertCategory(ctx context.Context, doc CategoryDoc) (string, error) {
	doc.UserID = s.userID
	return s.upsert(ctx, "categories", doc.ID, map[string]string{"name": doc.Name}, &doc)
}

func (s *SupabaseStore) CategoryItems(ctx context.Context) ([]CategoryItemDoc, error) {
	var out []CategoryItemDoc
	err := s.listAll(ctx, "category_items", &out)
	return out, err
}

func (s *SupabaseStore) UpsertCategoryItem(ctx context.Context, doc CategoryItemDoc) (string, error) {
	doc.UserID = s.userID
	return s.upsert(ctx, "category_items", doc.ID,
		map[string]string{"category_name": doc.CategoryName, "name": doc.Name}, &doc)
}

func (s *SupabaseStore) Transactions(ctx context.Context) ([]TransactionDoc, error) {
	var out []TransactionDoc
	err := s.listAll(ctx, "transactions", &out)
	return out, err
}

func (s *SupabaseStore) UpsertTransaction(ctx context.Context, doc TransactionDoc) (string, error) {
	doc.UserID = s.userID
	key := map[string]string{}
	if doc.Fingerprint != nil {
		key["fingerprint"] = *doc.Fingerprint
	}
	return s.upsert(ctx, "transactions", doc.ID, key, &doc)
}

func (s *SupabaseStore) WeeklyLimits(ctx context.Context) ([]WeeklyLimitDoc, error) {
	var out []WeeklyLimitDoc
	err := s.listAll(ctx, "weekly_limits", &out)
	return out, err
}

func (s *SupabaseStore) UpsertWeeklyLimit(ctx context.Context, doc WeeklyLimitDoc) (string, error) {
	doc.UserID = s.userID
	return s.upsert(ctx, "weekly_limits", doc.ID, map[string]string{"week_start": doc.WeekStart}, &doc)
}

func (s *SupabaseStore) listAll(_ context.Context, table string, out any) error {
	data, _, err := s.client.From(table).
		Select("*", "", false).
		Eq("user_id", s.userID).
		Execute()
	if err != nil {
		return fmt.Errorf("list %s: %w", table, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", table, err)
	}
	return nil
}

// upsert writes doc to the known document id when given, else to whichever
// document the natural key finds, else to a fresh id. Never creates a
// duplicate for a key that already exists remotely.
func (s *SupabaseStore) upsert(ctx context.Context, table, id string, naturalKey map[string]string, doc any) (string, error) {
	if id == "" && len(naturalKey) > 0 {
		found, err := s.findByKey(ctx, table, naturalKey)
		if err != nil {
			return "", err
		}
		id = found
	}
	if id == "" {
		id = uuid.NewString()
		setDocID(doc, id)
		_, _, err := s.client.From(table).Insert(doc, false, "", "", "").Execute()
		if err != nil {
			return "", fmt.Errorf("insert %s: %w", table, err)
		}
		return id, nil
	}

	setDocID(doc, id)
	_, _, err := s.client.From(table).
		Update(doc, "", "").
		Eq("id", id).
		Eq("user_id", s.userID).
		Execute()
	if err != nil {
		return "", fmt.Errorf("update %s: %w", table, err)
	}
	return id, nil
}

func (s *SupabaseStore) findByKey(_ context.Context, table string, key map[string]string) (string, error) {
	q := s.client.From(table).Select("id", "", false).Eq("user_id", s.userID)
	for col, val := range key {
		q = q.Eq(col, val)
	}
	data, _, err := q.Execute()
	if err != nil {
		return "", fmt.Errorf("find %s: %w", table, err)
	}
	var rows []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return "", fmt.Errorf("parse %s ids: %w", table, err)
	}
	if len(rows) == 0 {
		return "", nil
	}
	return rows[0].ID, nil
}

func setDocID(doc any, id string) {
	switch d := doc.(type) {
	case *AccountDoc:
		d.ID = id
	case *CategoryDoc:
		d.ID = id
	case *CategoryItemDoc:
		d.ID = id
	case *TransactionDoc:
		d.ID = id
	case *WeeklyLimitDoc:
		d.ID = id
	}
}
