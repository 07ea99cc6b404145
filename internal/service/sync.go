package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pesaledger/pesaledger/internal/cloud"
	"github.com/pesaledger/pesaledger/internal/database/repository"
)

// SyncEngine keeps the local ledger and the remote document store eventually
// consistent. Two protocols, by design: sign-in runs a destructive
// pull-and-overwrite (remote is authoritative), ongoing syncs push local
// edits first and then merge the remote copy back with last-writer-wins on
// each entity's modification timestamp. Every remote write is an idempotent
// natural-key upsert and every local write is fingerprint-gated, so a crash
// mid-sync is recovered by simply running the sync again.
type SyncEngine struct {
	DB           *sql.DB
	Accounts     *repository.AccountRepo
	Categories   *repository.CategoryRepo
	Items        *repository.CategoryItemRepo
	Transactions *repository.TransactionRepo
	Limits       *repository.WeeklyLimitRepo
	Remote       cloud.Store
	Status       *SyncStatus
	Maintenance  *MaintenanceService
	Toggles      Toggles
	Log          zerolog.Logger
}

// Sync runs the non-destructive push-then-merge protocol. The push phase
// covers rows the remote has never seen; rows the remote already knows are
// reconciled by the merge phase, which re-pushes only when the local copy is
// strictly newer. Pushing known rows unconditionally would let a stale local
// copy clobber a newer remote one before timestamps were ever compared.
// Single-entity failures are logged and skipped; only a whole-collection
// failure aborts and surfaces as sync state Error.
func (e *SyncEngine) Sync(ctx context.Context) error {
	if !e.Toggles.SyncEnabled() {
		return nil
	}
	if !e.Status.Begin() {
		return nil
	}
	if err := e.push(ctx); err != nil {
		e.Status.Fail(err)
		return err
	}
	if err := e.merge(ctx); err != nil {
		e.Status.Fail(err)
		return err
	}
	e.Status.Complete()
	return nil
}

// ForceSync is the manual trigger: a full push-then-merge pass that runs even
// between scheduled ticks.
func (e *SyncEngine) ForceSync(ctx context.Context) error {
	if !e.Status.Begin() {
		return nil
	}
	if err := e.push(ctx); err != nil {
		e.Status.Fail(err)
		return err
	}
	if err := e.merge(ctx); err != nil {
		e.Status.Fail(err)
		return err
	}
	e.Status.Complete()
	return nil
}

// SignIn runs the destructive initial sync: local rows are pushed first so
// records created before sign-in are never silently lost, then the store is
// cleared and repopulated from the remote snapshot, preserving remote
// document ids for later identity-based upserts.
func (e *SyncEngine) SignIn(ctx context.Context) error {
	if !e.Status.Begin() {
		return nil
	}
	if err := e.push(ctx); err != nil {
		e.Status.Fail(err)
		return err
	}
	if err := e.Maintenance.Reset(ctx); err != nil {
		e.Status.Fail(fmt.Errorf("clear local store: %w", err))
		return err
	}
	if err := e.pullAll(ctx); err != nil {
		e.Status.Fail(err)
		return err
	}
	e.Status.Complete()
	return nil
}

// ---- push ----

func (e *SyncEngine) push(ctx context.Context) error {
	if err := e.pushCategories(ctx); err != nil {
		return err
	}
	if err := e.pushItems(ctx); err != nil {
		return err
	}
	if err := e.pushAccounts(ctx); err != nil {
		return err
	}
	if err := e.pushTransactions(ctx); err != nil {
		return err
	}
	return e.pushLimits(ctx)
}

func (e *SyncEngine) pushAccounts(ctx context.Context) error {
	accts, err := e.Accounts.List(ctx)
	if err != nil {
		return fmt.Errorf("push accounts: %w", err)
	}
	for _, a := range accts {
		if a.RemoteID != nil {
			continue
		}
		id, err := e.Remote.UpsertAccount(ctx, accountDoc(a))
		if err != nil {
			e.Log.Error().Err(err).Str("account", a.Name).Msg("push account failed")
			continue
		}
		e.recordRemoteID(ctx, a.RemoteID, id, func(rid string) error {
			return e.Accounts.SetRemoteID(ctx, a.ID, rid)
		})
	}
	return nil
}

func (e *SyncEngine) pushCategories(ctx context.Context) error {
	cats, err := e.Categories.List(ctx)
	if err != nil {
		return fmt.Errorf("push categories: %w", err)
	}
	for _, c := range cats {
		if c.RemoteID != nil {
			continue
		}
		id, err := e.Remote.UpsertCategory(ctx, categoryDoc(c))
		if err != nil {
			e.Log.Error().Err(err).Str("category", c.Name).Msg("push category failed")
			continue
		}
		e.recordRemoteID(ctx, c.RemoteID, id, func(rid string) error {
			return e.Categories.SetRemoteID(ctx, c.ID, rid)
		})
	}
	return nil
}

func (e *SyncEngine) pushItems(ctx context.Context) error {
	items, err := e.Items.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("push category items: %w", err)
	}
	catNames, err := e.categoryNames(ctx)
	if err != nil {
		return err
	}
	for _, it := range items {
		if it.RemoteID != nil {
			continue
		}
		doc := itemDoc(it, catNames[it.CategoryID])
		id, err := e.Remote.UpsertCategoryItem(ctx, doc)
		if err != nil {
			e.Log.Error().Err(err).Str("item", it.Name).Msg("push category item failed")
			continue
		}
		e.recordRemoteID(ctx, it.RemoteID, id, func(rid string) error {
			return e.Items.SetRemoteID(ctx, it.ID, rid)
		})
	}
	return nil
}

func (e *SyncEngine) pushTransactions(ctx context.Context) error {
	txs, err := e.Transactions.List(ctx, repository.TransactionFilters{})
	if err != nil {
		return fmt.Errorf("push transactions: %w", err)
	}
	names, err := e.nameIndex(ctx)
	if err != nil {
		return err
	}
	for _, t := range txs {
		if t.RemoteID != nil {
			continue
		}
		doc, err := names.transactionDoc(t)
		if err != nil {
			e.Log.Error().Err(err).Int64("transaction", t.ID).Msg("push transaction skipped")
			continue
		}
		id, err := e.Remote.UpsertTransaction(ctx, doc)
		if err != nil {
			e.Log.Error().Err(err).Int64("transaction", t.ID).Msg("push transaction failed")
			continue
		}
		e.recordRemoteID(ctx, t.RemoteID, id, func(rid string) error {
			return e.Transactions.SetRemoteID(ctx, t.ID, rid)
		})
	}
	return nil
}

func (e *SyncEngine) pushLimits(ctx context.Context) error {
	limits, err := e.Limits.List(ctx)
	if err != nil {
		return fmt.Errorf("push weekly limits: %w", err)
	}
	for _, l := range limits {
		if l.RemoteID != nil {
			continue
		}
		id, err := e.Remote.UpsertWeeklyLimit(ctx, limitDoc(l))
		if err != nil {
			e.Log.Error().Err(err).Time("week", l.WeekStart).Msg("push weekly limit failed")
			continue
		}
		e.recordRemoteID(ctx, l.RemoteID, id, func(rid string) error {
			return e.Limits.SetRemoteID(ctx, l.ID, rid)
		})
	}
	return nil
}

// ---- merge (ongoing pull) ----

func (e *SyncEngine) merge(ctx context.Context) error {
	if err := e.mergeCategories(ctx); err != nil {
		return err
	}
	if err := e.mergeItems(ctx); err != nil {
		return err
	}
	if err := e.mergeAccounts(ctx); err != nil {
		return err
	}
	if err := e.mergeTransactions(ctx); err != nil {
		return err
	}
	return e.mergeLimits(ctx)
}

func (e *SyncEngine) mergeAccounts(ctx context.Context) error {
	docs, err := e.Remote.Accounts(ctx)
	if err != nil {
		return fmt.Errorf("merge accounts: %w", err)
	}
	for _, doc := range docs {
		local, err := e.Accounts.GetByName(ctx, doc.Name)
		if err != nil {
			e.Log.Error().Err(err).Str("account", doc.Name).Msg("merge account lookup failed")
			continue
		}
		switch decide(localTime(local != nil, func() time.Time { return local.UpdatedAt }), doc.UpdatedAt) {
		case takeRemote:
			if local == nil {
				_, err = e.Accounts.Create(ctx, accountFromDoc(doc))
			} else {
				a := accountFromDoc(doc)
				a.ID = local.ID
				err = e.Accounts.Update(ctx, a)
			}
			if err != nil {
				e.Log.Error().Err(err).Str("account", doc.Name).Msg("merge account write failed")
			}
		case takeLocal:
			d := accountDoc(*local)
			d.ID = doc.ID
			if _, err := e.Remote.UpsertAccount(ctx, d); err != nil {
				e.Log.Error().Err(err).Str("account", doc.Name).Msg("merge account re-push failed")
			}
		}
	}
	return nil
}

func (e *SyncEngine) mergeCategories(ctx context.Context) error {
	docs, err := e.Remote.Categories(ctx)
	if err != nil {
		return fmt.Errorf("merge categories: %w", err)
	}
	for _, doc := range docs {
		local, err := e.Categories.GetByName(ctx, doc.Name)
		if err != nil {
			e.Log.Error().Err(err).Str("category", doc.Name).Msg("merge category lookup failed")
			continue
		}
		switch decide(localTime(local != nil, func() time.Time { return local.UpdatedAt }), doc.UpdatedAt) {
		case takeRemote:
			if local == nil {
				_, err = e.Categories.Create(ctx, categoryFromDoc(doc))
			} else {
				c := categoryFromDoc(doc)
				c.ID = local.ID
				err = e.Categories.Update(ctx, c)
			}
			if err != nil {
				e.Log.Error().Err(err).Str("category", doc.Name).Msg("merge category write failed")
			}
		case takeLocal:
			d := categoryDoc(*local)
			d.ID = doc.ID
			if _, err := e.Remote.UpsertCategory(ctx, d); err != nil {
				e.Log.Error().Err(err).Str("category", doc.Name).Msg("merge category re-push failed")
			}
		}
	}
	return nil
}

func (e *SyncEngine) mergeItems(ctx context.Context) error {
	docs, err := e.Remote.CategoryItems(ctx)
	if err != nil {
		return fmt.Errorf("merge category items: %w", err)
	}
	for _, doc := range docs {
		cat, err := e.categoryByName(ctx, doc.CategoryName)
		if err != nil {
			e.Log.Error().Err(err).Str("item", doc.Name).Msg("merge item parent failed")
			continue
		}
		local, err := e.Items.GetByName(ctx, cat.ID, doc.Name)
		if err != nil {
			e.Log.Error().Err(err).Str("item", doc.Name).Msg("merge item lookup failed")
			continue
		}
		switch decide(localTime(local != nil, func() time.Time { return local.UpdatedAt }), doc.UpdatedAt) {
		case takeRemote:
			it := itemFromDoc(doc, cat.ID)
			if local == nil {
				_, err = e.Items.Create(ctx, it)
			} else {
				it.ID = local.ID
				err = e.Items.Update(ctx, it)
			}
			if err != nil {
				e.Log.Error().Err(err).Str("item", doc.Name).Msg("merge item write failed")
			}
		case takeLocal:
			d := itemDoc(*local, doc.CategoryName)
			d.ID = doc.ID
			if _, err := e.Remote.UpsertCategoryItem(ctx, d); err != nil {
				e.Log.Error().Err(err).Str("item", doc.Name).Msg("merge item re-push failed")
			}
		}
	}
	return nil
}

func (e *SyncEngine) mergeTransactions(ctx context.Context) error {
	docs, err := e.Remote.Transactions(ctx)
	if err != nil {
		return fmt.Errorf("merge transactions: %w", err)
	}
	names, err := e.nameIndex(ctx)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		local, err := e.localTransaction(ctx, doc)
		if err != nil {
			e.Log.Error().Err(err).Str("doc", doc.ID).Msg("merge transaction lookup failed")
			continue
		}
		switch decide(localTime(local != nil, func() time.Time { return local.UpdatedAt }), doc.UpdatedAt) {
		case takeRemote:
			if err := e.writeTransactionFromDoc(ctx, doc, local); err != nil {
				e.Log.Error().Err(err).Str("doc", doc.ID).Msg("merge transaction write failed")
			}
		case takeLocal:
			d, err := names.transactionDoc(*local)
			if err != nil {
				e.Log.Error().Err(err).Int64("transaction", local.ID).Msg("merge transaction re-push skipped")
				continue
			}
			d.ID = doc.ID
			if _, err := e.Remote.UpsertTransaction(ctx, d); err != nil {
				e.Log.Error().Err(err).Str("doc", doc.ID).Msg("merge transaction re-push failed")
			}
		}
	}
	return nil
}

func (e *SyncEngine) mergeLimits(ctx context.Context) error {
	docs, err := e.Remote.WeeklyLimits(ctx)
	if err != nil {
		return fmt.Errorf("merge weekly limits: %w", err)
	}
	for _, doc := range docs {
		week, err := time.Parse(time.DateOnly, doc.WeekStart)
		if err != nil {
			e.Log.Error().Err(err).Str("doc", doc.ID).Msg("merge weekly limit bad week")
			continue
		}
		local, err := e.Limits.Get(ctx, week)
		if err != nil {
			e.Log.Error().Err(err).Str("doc", doc.ID).Msg("merge weekly limit lookup failed")
			continue
		}
		switch decide(localTime(local != nil, func() time.Time { return local.UpdatedAt }), doc.UpdatedAt) {
		case takeRemote:
			err := e.Limits.Upsert(ctx, repository.WeeklyLimit{
				WeekStart:   week,
				AmountCents: doc.AmountCents,
				RemoteID:    &doc.ID,
				UpdatedAt:   doc.UpdatedAt,
			})
			if err != nil {
				e.Log.Error().Err(err).Str("doc", doc.ID).Msg("merge weekly limit write failed")
			}
		case takeLocal:
			d := limitDoc(*local)
			d.ID = doc.ID
			if _, err := e.Remote.UpsertWeeklyLimit(ctx, d); err != nil {
				e.Log.Error().Err(err).Str("doc", doc.ID).Msg("merge weekly limit re-push failed")
			}
		}
	}
	return nil
}

// ---- sign-in pull ----

// pullAll repopulates an empty store from the remote snapshot, parents first.
func (e *SyncEngine) pullAll(ctx context.Context) error {
	if err := e.mergeCategories(ctx); err != nil {
		return err
	}
	if err := e.mergeItems(ctx); err != nil {
		return err
	}
	if err := e.mergeAccounts(ctx); err != nil {
		return err
	}
	if err := e.mergeTransactions(ctx); err != nil {
		return err
	}
	return e.mergeLimits(ctx)
}

// ---- helpers ----

// mergeAction is the LWW verdict for one entity.
type mergeAction int

const (
	keepBoth mergeAction = iota // timestamps equal: sides already agree
	takeRemote
	takeLocal
)

// decide applies last-writer-wins. A missing local side always takes the
// remote copy; a strictly newer local side is re-pushed; equal timestamps are
// a no-op so repeated merges stay idempotent.
func decide(local *time.Time, remote time.Time) mergeAction {
	if local == nil {
		return takeRemote
	}
	if remote.After(*local) {
		return takeRemote
	}
	if local.After(remote) {
		return takeLocal
	}
	return keepBoth
}

func localTime(exists bool, get func() time.Time) *time.Time {
	if !exists {
		return nil
	}
	t := get()
	return &t
}

func (e *SyncEngine) recordRemoteID(ctx context.Context, current *string, id string, set func(string) error) {
	if current != nil && *current == id {
		return
	}
	if err := set(id); err != nil {
		e.Log.Error().Err(err).Str("remote_id", id).Msg("record remote id failed")
	}
}

func (e *SyncEngine) localTransaction(ctx context.Context, doc cloud.TransactionDoc) (*repository.Transaction, error) {
	if doc.Fingerprint != nil && *doc.Fingerprint != "" {
		return e.Transactions.FindByFingerprint(ctx, *doc.Fingerprint)
	}
	if doc.ID != "" {
		return e.Transactions.FindByRemoteID(ctx, doc.ID)
	}
	return nil, nil
}

// writeTransactionFromDoc materializes a remote transaction locally. No
// balance delta is applied here: wallet balances travel on the account
// documents, which this same sync pass brings across.
func (e *SyncEngine) writeTransactionFromDoc(ctx context.Context, doc cloud.TransactionDoc, local *repository.Transaction) error {
	acct, err := e.accountByName(ctx, doc.AccountName)
	if err != nil {
		return err
	}
	t := repository.Transaction{
		AccountID:     acct.ID,
		AmountCents:   doc.AmountCents,
		FeeCents:      doc.FeeCents,
		Kind:          repository.Kind(doc.Kind),
		Description:   doc.Description,
		EffectiveDate: doc.EffectiveDate,
		Status:        repository.Status(doc.Status),
		Fingerprint:   doc.Fingerprint,
		Excluded:      doc.Excluded,
		RemoteID:      &doc.ID,
		UpdatedAt:     doc.UpdatedAt,
	}
	if doc.CategoryName != nil {
		if cat, err := e.Categories.GetByName(ctx, *doc.CategoryName); err == nil && cat != nil {
			t.CategoryID = &cat.ID
			if doc.ItemName != nil {
				if it, err := e.Items.GetByName(ctx, cat.ID, *doc.ItemName); err == nil && it != nil {
					t.CategoryItemID = &it.ID
				}
			}
		}
	}
	if local == nil {
		_, err = e.Transactions.Insert(ctx, t)
		return err
	}
	t.ID = local.ID
	return e.Transactions.Update(ctx, t)
}

func (e *SyncEngine) accountByName(ctx context.Context, name string) (*repository.Account, error) {
	acct, err := e.Accounts.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if acct != nil {
		return acct, nil
	}
	id, err := e.Accounts.Create(ctx, repository.Account{Name: name})
	if err != nil {
		return nil, err
	}
	return &repository.Account{ID: id, Name: name}, nil
}

func (e *SyncEngine) categoryByName(ctx context.Context, name string) (*repository.Category, error) {
	cat, err := e.Categories.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if cat != nil {
		return cat, nil
	}
	id, err := e.Categories.Create(ctx, repository.Category{Name: name})
	if err != nil {
		return nil, err
	}
	return &repository.Category{ID: id, Name: name}, nil
}

func (e *SyncEngine) categoryNames(ctx context.Context) (map[int64]string, error) {
	cats, err := e.Categories.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := make(map[int64]string, len(cats))
	for _, c := range cats {
		out[c.ID] = c.Name
	}
	return out, nil
}

// nameIndex resolves local foreign keys to the names remote documents carry.
type nameIndex struct {
	accounts map[int64]string
	cats     map[int64]string
	items    map[int64]repository.CategoryItem
}

func (e *SyncEngine) nameIndex(ctx context.Context) (*nameIndex, error) {
	accts, err := e.Accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	cats, err := e.categoryNames(ctx)
	if err != nil {
		return nil, err
	}
	items, err := e.Items.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	idx := &nameIndex{
		accounts: make(map[int64]string, len(accts)),
		cats:     cats,
		items:    make(map[int64]repository.CategoryItem, len(items)),
	}
	for _, a := range accts {
		idx.accounts[a.ID] = a.Name
	}
	for _, it := range items {
		idx.items[it.ID] = it
	}
	return idx, nil
}

func (n *nameIndex) transactionDoc(t repository.Transaction) (cloud.TransactionDoc, error) {
	acctName, ok := n.accounts[t.AccountID]
	if !ok {
		return cloud.TransactionDoc{}, fmt.Errorf("transaction %d: unknown account %d", t.ID, t.AccountID)
	}
	doc := cloud.TransactionDoc{
		Fingerprint:   t.Fingerprint,
		AccountName:   acctName,
		AmountCents:   t.AmountCents,
		FeeCents:      t.FeeCents,
		Kind:          string(t.Kind),
		Description:   t.Description,
		EffectiveDate: t.EffectiveDate,
		Status:        string(t.Status),
		Excluded:      t.Excluded,
		UpdatedAt:     t.UpdatedAt,
	}
	if t.RemoteID != nil {
		doc.ID = *t.RemoteID
	}
	if t.CategoryItemID != nil {
		if it, ok := n.items[*t.CategoryItemID]; ok {
			name := it.Name
			doc.ItemName = &name
			if cn, ok := n.cats[it.CategoryID]; ok {
				doc.CategoryName = &cn
			}
		}
	}
	if doc.CategoryName == nil && t.CategoryID != nil {
		if cn, ok := n.cats[*t.CategoryID]; ok {
			doc.CategoryName = &cn
		}
	}
	return doc, nil
}

func accountDoc(a repository.Account) cloud.AccountDoc {
	doc := cloud.AccountDoc{
		Name:         a.Name,
		SenderID:     a.SenderID,
		BalanceCents: a.BalanceCents,
		UpdatedAt:    a.UpdatedAt,
	}
	if a.RemoteID != nil {
		doc.ID = *a.RemoteID
	}
	return doc
}

func accountFromDoc(doc cloud.AccountDoc) repository.Account {
	return repository.Account{
		Name:         doc.Name,
		SenderID:     doc.SenderID,
		BalanceCents: doc.BalanceCents,
		RemoteID:     &doc.ID,
		UpdatedAt:    doc.UpdatedAt,
	}
}

func categoryDoc(c repository.Category) cloud.CategoryDoc {
	doc := cloud.CategoryDoc{Name: c.Name, UpdatedAt: c.UpdatedAt}
	if c.RemoteID != nil {
		doc.ID = *c.RemoteID
	}
	return doc
}

func categoryFromDoc(doc cloud.CategoryDoc) repository.Category {
	return repository.Category{Name: doc.Name, RemoteID: &doc.ID, UpdatedAt: doc.UpdatedAt}
}

func itemDoc(it repository.CategoryItem, categoryName string) cloud.CategoryItemDoc {
	doc := cloud.CategoryItemDoc{
		CategoryName: categoryName,
		Name:         it.Name,
		UpdatedAt:    it.UpdatedAt,
	}
	if it.RemoteID != nil {
		doc.ID = *it.RemoteID
	}
	return doc
}

func itemFromDoc(doc cloud.CategoryItemDoc, categoryID int64) repository.CategoryItem {
	return repository.CategoryItem{
		CategoryID: categoryID,
		Name:       doc.Name,
		RemoteID:   &doc.ID,
		UpdatedAt:  doc.UpdatedAt,
	}
}

func limitDoc(l repository.WeeklyLimit) cloud.WeeklyLimitDoc {
	doc := cloud.WeeklyLimitDoc{
		WeekStart:   l.WeekStart.Format(time.DateOnly),
		AmountCents: l.AmountCents,
		UpdatedAt:   l.UpdatedAt,
	}
	if l.RemoteID != nil {
		doc.ID = *l.RemoteID
	}
	return doc
}
