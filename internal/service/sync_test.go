package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pesaledger/pesaledger/internal/cloud"
	"github.com/pesaledger/pesaledger/internal/database/repository"
)

// memStore is an in-memory cloud.Store with the same natural-key upsert
// contract as the real one.
type memStore struct {
	mu       sync.Mutex
	accounts []cloud.AccountDoc
	cats     []cloud.CategoryDoc
	items    []cloud.CategoryItemDoc
	txs      []cloud.TransactionDoc
	limits   []cloud.WeeklyLimitDoc
	seq      int
}

func (m *memStore) nextID() string {
	m.seq++
	return fmt.Sprintf("doc-%d", m.seq)
}

func (m *memStore) Accounts(context.Context) ([]cloud.AccountDoc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]cloud.AccountDoc(nil), m.accounts...), nil
}

func (m *memStore) UpsertAccount(_ context.Context, doc cloud.AccountDoc) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.accounts {
		if m.accounts[i].ID == doc.ID || m.accounts[i].Name == doc.Name {
			doc.ID = m.accounts[i].ID
			m.accounts[i] = doc
			return doc.ID, nil
		}
	}
	doc.ID = m.nextID()
	m.accounts = append(m.accounts, doc)
	return doc.ID, nil
}

func (m *memStore) Categories(context.Context) ([]cloud.CategoryDoc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]cloud.CategoryDoc(nil), m.cats...), nil
}

func (m *memStore) UpsertCategory(_ context.Context, doc cloud.CategoryDoc) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.cats {
		if m.cats[i].ID == doc.ID || m.cats[i].Name == doc.Name {
			doc.ID = m.cats[i].ID
			m.cats[i] = doc
			return doc.ID, nil
		}
	}
	doc.ID = m.nextID()
	m.cats = append(m.cats, doc)
	return doc.ID, nil
}

func (m *memStore) CategoryItems(context.Context) ([]cloud.CategoryItemDoc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]cloud.CategoryItemDoc(nil), m.items...), nil
}

func (m *memStore) UpsertCategoryItem(_ context.Context, doc cloud.CategoryItemDoc) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == doc.ID ||
			(m.items[i].CategoryName == doc.CategoryName && m.items[i].Name == doc.Name) {
			doc.ID = m.items[i].ID
			m.items[i] = doc
			return doc.ID, nil
		}
	}
	doc.ID = m.nextID()
	m.items = append(m.items, doc)
	return doc.ID, nil
}

func (m *memStore) Transactions(context.Context) ([]cloud.TransactionDoc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]cloud.TransactionDoc(nil), m.txs...), nil
}

func (m *memStore) UpsertTransaction(_ context.Context, doc cloud.TransactionDoc) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.txs {
		sameFingerprint := doc.Fingerprint != nil && m.txs[i].Fingerprint != nil &&
			*doc.Fingerprint == *m.txs[i].Fingerprint
		if m.txs[i].ID == doc.ID || sameFingerprint {
			doc.ID = m.txs[i].ID
			m.txs[i] = doc
			return doc.ID, nil
		}
	}
	doc.ID = m.nextID()
	m.txs = append(m.txs, doc)
	return doc.ID, nil
}

func (m *memStore) WeeklyLimits(context.Context) ([]cloud.WeeklyLimitDoc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]cloud.WeeklyLimitDoc(nil), m.limits...), nil
}

func (m *memStore) UpsertWeeklyLimit(_ context.Context, doc cloud.WeeklyLimitDoc) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.limits {
		if m.limits[i].ID == doc.ID || m.limits[i].WeekStart == doc.WeekStart {
			doc.ID = m.limits[i].ID
			m.limits[i] = doc
			return doc.ID, nil
		}
	}
	doc.ID = m.nextID()
	m.limits = append(m.limits, doc)
	return doc.ID, nil
}

func newTestEngine(t *testing.T) (*SyncEngine, *memStore) {
	t.Helper()
	db := newTestDB(t)
	store := &memStore{}
	engine := &SyncEngine{
		DB:           db,
		Accounts:     repository.NewAccountRepo(db),
		Categories:   repository.NewCategoryRepo(db),
		Items:        repository.NewCategoryItemRepo(db),
		Transactions: repository.NewTransactionRepo(db),
		Limits:       repository.NewWeeklyLimitRepo(db),
		Remote:       store,
		Status:       NewSyncStatus(time.Minute),
		Maintenance:  &MaintenanceService{DB: db},
		Toggles:      fakeToggles{sync: true},
		Log:          zerolog.Nop(),
	}
	return engine, store
}

func TestSyncPushesLocalRowsAndRecordsRemoteIDs(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	engine, store := newTestEngine(t)

	fp := "fp-push-1"
	_, err := engine.Transactions.Insert(ctx, repository.Transaction{
		AccountID:     mustAccountID(t, ctx, engine, "M-Pesa"),
		AmountCents:   20000,
		Kind:          repository.KindDebit,
		Description:   "Paid to NAIVAS",
		EffectiveDate: time.Date(2025, 6, 3, 10, 5, 0, 0, time.UTC),
		Status:        repository.StatusUncategorized,
		Fingerprint:   &fp,
	})
	require.NoError(t, err)

	require.NoError(t, engine.Sync(ctx))

	require.Len(t, store.txs, 1)
	require.Equal(t, "Paid to NAIVAS", store.txs[0].Description)
	require.Equal(t, "M-Pesa", store.txs[0].AccountName)

	local, err := engine.Transactions.FindByFingerprint(ctx, fp)
	require.NoError(t, err)
	require.NotNil(t, local.RemoteID)
	require.Equal(t, store.txs[0].ID, *local.RemoteID)

	state, errState := engine.Status.State()
	require.Equal(t, SyncCompleted, state)
	require.NoError(t, errState)
}

func TestSyncIdempotent(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	engine, store := newTestEngine(t)

	require.NoError(t, engine.Sync(ctx))
	accountsAfterFirst := len(store.accounts)
	catsAfterFirst := len(store.cats)

	require.NoError(t, engine.Sync(ctx))
	require.NoError(t, engine.Sync(ctx))

	require.Equal(t, accountsAfterFirst, len(store.accounts))
	require.Equal(t, catsAfterFirst, len(store.cats))
}

func TestMergeRemoteNewerOverwritesLocal(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	engine, store := newTestEngine(t)

	require.NoError(t, engine.Sync(ctx))

	// another device edited the wallet later
	store.mu.Lock()
	for i := range store.accounts {
		if store.accounts[i].Name == "M-Pesa" {
			store.accounts[i].BalanceCents = 777700
			store.accounts[i].UpdatedAt = time.Now().UTC().Add(time.Hour).Truncate(time.Second)
		}
	}
	store.mu.Unlock()

	require.NoError(t, engine.Sync(ctx))

	acct, err := engine.Accounts.GetByName(ctx, "M-Pesa")
	require.NoError(t, err)
	require.Equal(t, int64(777700), acct.BalanceCents)
}

func TestMergeLocalNewerRePushes(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	engine, store := newTestEngine(t)

	require.NoError(t, engine.Sync(ctx))

	// stale remote copy
	store.mu.Lock()
	for i := range store.accounts {
		if store.accounts[i].Name == "Cash" {
			store.accounts[i].BalanceCents = 1
			store.accounts[i].UpdatedAt = time.Now().UTC().Add(-24 * time.Hour)
		}
	}
	store.mu.Unlock()

	// newer local edit
	acct, err := engine.Accounts.GetByName(ctx, "Cash")
	require.NoError(t, err)
	acct.BalanceCents = 555500
	acct.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	require.NoError(t, engine.Accounts.Update(ctx, *acct))

	require.NoError(t, engine.Sync(ctx))

	store.mu.Lock()
	defer store.mu.Unlock()
	for _, doc := range store.accounts {
		if doc.Name == "Cash" {
			require.Equal(t, int64(555500), doc.BalanceCents)
			return
		}
	}
	t.Fatal("Cash wallet missing from remote")
}

func TestMergePulledTransactionDoesNotMoveBalances(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	engine, store := newTestEngine(t)

	require.NoError(t, engine.Sync(ctx))
	before, err := engine.Accounts.GetByName(ctx, "M-Pesa")
	require.NoError(t, err)

	fp := "fp-remote-only"
	store.mu.Lock()
	store.txs = append(store.txs, cloud.TransactionDoc{
		ID:            store.nextID(),
		Fingerprint:   &fp,
		AccountName:   "M-Pesa",
		AmountCents:   123400,
		Kind:          string(repository.KindDebit),
		Description:   "Paid elsewhere",
		EffectiveDate: time.Date(2025, 6, 7, 9, 0, 0, 0, time.UTC),
		Status:        string(repository.StatusUncategorized),
		UpdatedAt:     time.Now().UTC().Truncate(time.Second),
	})
	store.mu.Unlock()

	require.NoError(t, engine.Sync(ctx))

	pulled, err := engine.Transactions.FindByFingerprint(ctx, fp)
	require.NoError(t, err)
	require.NotNil(t, pulled)
	require.Equal(t, int64(123400), pulled.AmountCents)

	after, err := engine.Accounts.GetByName(ctx, "M-Pesa")
	require.NoError(t, err)
	require.Equal(t, before.BalanceCents, after.BalanceCents)
}

func TestSignInPushesLocalOnlyRowsBeforeReset(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	engine, store := newTestEngine(t)

	// remote already has data from another device
	remoteFp := "fp-other-device"
	store.txs = append(store.txs, cloud.TransactionDoc{
		ID:            store.nextID(),
		Fingerprint:   &remoteFp,
		AccountName:   "M-Pesa",
		AmountCents:   5000,
		Kind:          string(repository.KindDebit),
		Description:   "From the other phone",
		EffectiveDate: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
		Status:        string(repository.StatusUncategorized),
		UpdatedAt:     time.Now().UTC().Truncate(time.Second),
	})

	// a row recorded locally before sign-in
	localFp := "fp-pre-signin"
	_, err := engine.Transactions.Insert(ctx, repository.Transaction{
		AccountID:     mustAccountID(t, ctx, engine, "M-Pesa"),
		AmountCents:   9900,
		Kind:          repository.KindDebit,
		Description:   "Recorded before sign-in",
		EffectiveDate: time.Date(2025, 6, 5, 8, 0, 0, 0, time.UTC),
		Status:        repository.StatusUncategorized,
		Fingerprint:   &localFp,
	})
	require.NoError(t, err)

	require.NoError(t, engine.SignIn(ctx))

	// both rows survive, locally and remotely
	fromRemote, err := engine.Transactions.FindByFingerprint(ctx, remoteFp)
	require.NoError(t, err)
	require.NotNil(t, fromRemote)

	preSignIn, err := engine.Transactions.FindByFingerprint(ctx, localFp)
	require.NoError(t, err)
	require.NotNil(t, preSignIn)
	require.NotNil(t, preSignIn.RemoteID)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.txs, 2)
}

func TestSyncDisabledIsNoOp(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	engine, store := newTestEngine(t)
	engine.Toggles = fakeToggles{sync: false}

	require.NoError(t, engine.Sync(ctx))
	require.Empty(t, store.accounts)
	require.Empty(t, store.txs)

	state, _ := engine.Status.State()
	require.Equal(t, SyncIdle, state)
}

func mustAccountID(t *testing.T, ctx context.Context, engine *SyncEngine, name string) int64 {
	t.Helper()
	acct, err := engine.Accounts.GetByName(ctx, name)
	require.NoError(t, err)
	require.NotNil(t, acct)
	return acct.ID
}
