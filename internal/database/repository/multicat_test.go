package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pesaledger/pesaledger/internal/database/repository"
)

func TestMultiCatApplyWithinEpsilon(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	repo := repository.NewMultiCatRepo(db)
	catRepo := repository.NewCategoryRepo(db)
	itemRepo := repository.NewCategoryItemRepo(db)
	acct := mustAccount(t, db, "Wallet")

	catID, err := catRepo.Create(ctx, repository.Category{Name: "Food"})
	require.NoError(t, err)
	groceries, err := itemRepo.Create(ctx, repository.CategoryItem{CategoryID: catID, Name: "Groceries"})
	require.NoError(t, err)
	snacks, err := itemRepo.Create(ctx, repository.CategoryItem{CategoryID: catID, Name: "Snacks"})
	require.NoError(t, err)

	txID := insertDebit(t, db, acct, 10000, 0, time.Now().UTC())

	listID, err := repo.CreateList(ctx, txID)
	require.NoError(t, err)
	_, err = repo.AddItem(ctx, listID, groceries, 7000)
	require.NoError(t, err)
	_, err = repo.AddItem(ctx, listID, snacks, 2999)
	require.NoError(t, err)

	// off by one cent, inside the tolerance
	require.NoError(t, repo.Apply(ctx, listID, 1))

	list, err := repo.ListForTransaction(ctx, txID)
	require.NoError(t, err)
	require.True(t, list.Applied)

	items, err := repo.Items(ctx, listID)
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestMultiCatApplyRejectsMismatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	repo := repository.NewMultiCatRepo(db)
	catRepo := repository.NewCategoryRepo(db)
	itemRepo := repository.NewCategoryItemRepo(db)
	acct := mustAccount(t, db, "Wallet")

	catID, err := catRepo.Create(ctx, repository.Category{Name: "Food"})
	require.NoError(t, err)
	groceries, err := itemRepo.Create(ctx, repository.CategoryItem{CategoryID: catID, Name: "Groceries"})
	require.NoError(t, err)

	txID := insertDebit(t, db, acct, 10000, 0, time.Now().UTC())

	listID, err := repo.CreateList(ctx, txID)
	require.NoError(t, err)
	_, err = repo.AddItem(ctx, listID, groceries, 4000)
	require.NoError(t, err)

	err = repo.Apply(ctx, listID, 1)
	require.ErrorIs(t, err, repository.ErrSplitMismatch)

	list, err := repo.ListForTransaction(ctx, txID)
	require.NoError(t, err)
	require.False(t, list.Applied)
}

func TestMultiCatItemsCascadeWithTransaction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	repo := repository.NewMultiCatRepo(db)
	txRepo := repository.NewTransactionRepo(db)
	catRepo := repository.NewCategoryRepo(db)
	itemRepo := repository.NewCategoryItemRepo(db)
	acct := mustAccount(t, db, "Wallet")

	catID, err := catRepo.Create(ctx, repository.Category{Name: "Food"})
	require.NoError(t, err)
	groceries, err := itemRepo.Create(ctx, repository.CategoryItem{CategoryID: catID, Name: "Groceries"})
	require.NoError(t, err)

	txID := insertDebit(t, db, acct, 5000, 0, time.Now().UTC())
	listID, err := repo.CreateList(ctx, txID)
	require.NoError(t, err)
	_, err = repo.AddItem(ctx, listID, groceries, 5000)
	require.NoError(t, err)

	require.NoError(t, txRepo.Delete(ctx, txID))

	list, err := repo.ListForTransaction(ctx, txID)
	require.NoError(t, err)
	require.Nil(t, list)

	items, err := repo.Items(ctx, listID)
	require.NoError(t, err)
	require.Empty(t, items)
}
