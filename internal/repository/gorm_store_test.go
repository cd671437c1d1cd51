package repository_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wholesale-market/walletd/internal/infrastructure/database"
	"github.com/wholesale-market/walletd/internal/model"
	"github.com/wholesale-market/walletd/internal/repository"
	"github.com/wholesale-market/walletd/pkg/idgen"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// openTestDB connects to the database named by TEST_MYSQL_DSN, e.g.
// root:root@tcp(127.0.0.1:3306)/wallet_test?charset=utf8mb4&parseTime=True&loc=UTC
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("TEST_MYSQL_DSN not set")
	}
	db, err := database.OpenDSN(dsn, 20, 5)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, true))
	return db
}

// testUser returns a user id no other test run has used.
func testUser() int64 {
	return idgen.NextID()
}

func TestGormDeductConcurrent(t *testing.T) {
	db := openTestDB(t)
	store := repository.NewStore(db)
	ctx := context.Background()
	user := testUser()

	require.NoError(t, store.Accounts().Ensure(ctx, user))
	_, err := store.Accounts().Increase(ctx, user, decimal.NewFromInt(100))
	require.NoError(t, err)

	var ok int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Transaction(ctx, func(tx repository.Store) error {
				_, err := tx.Accounts().Deduct(ctx, user, decimal.NewFromInt(15))
				return err
			})
			if err == nil {
				atomic.AddInt32(&ok, 1)
				return
			}
			assert.ErrorIs(t, err, repository.ErrBalanceNotEnough)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(6), atomic.LoadInt32(&ok))
	account, err := store.Accounts().GetByUserID(ctx, user)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(account.Balance), account.Balance.String())
}

func TestGormIncreaseOverflow(t *testing.T) {
	db := openTestDB(t)
	store := repository.NewStore(db)
	ctx := context.Background()
	user := testUser()

	_, err := store.Accounts().Increase(ctx, user, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, repository.ErrAccountNotFound)

	require.NoError(t, store.Accounts().Ensure(ctx, user))
	_, err = store.Accounts().Increase(ctx, user, repository.MaxBalance)
	require.NoError(t, err)
	_, err = store.Accounts().Increase(ctx, user, decimal.RequireFromString("0.0001"))
	assert.ErrorIs(t, err, repository.ErrBalanceOverflow)

	account, err := store.Accounts().GetByUserID(ctx, user)
	require.NoError(t, err)
	assert.True(t, repository.MaxBalance.Equal(account.Balance), account.Balance.String())
}

func TestGormTransactionRollsBack(t *testing.T) {
	db := openTestDB(t)
	store := repository.NewStore(db)
	ctx := context.Background()
	user := testUser()
	require.NoError(t, store.Accounts().Ensure(ctx, user))
	_, err := store.Accounts().Increase(ctx, user, decimal.NewFromInt(50))
	require.NoError(t, err)

	boom := errors.New("boom")
	id := idgen.NextID()
	err = store.Transaction(ctx, func(tx repository.Store) error {
		if _, err := tx.Accounts().Deduct(ctx, user, decimal.NewFromInt(50)); err != nil {
			return err
		}
		if err := tx.Transactions().Create(ctx, &model.WalletTransaction{
			ID: id, TransactionNo: idgen.GenerateTransactionNo(id), UserID: user,
			Type: model.TransactionTypeBoostCharge, Amount: decimal.NewFromInt(50), Currency: "USD",
			BalanceBefore: decimal.NewFromInt(50), BalanceAfter: decimal.Zero, CreatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	account, err := store.Accounts().GetByUserID(ctx, user)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(50).Equal(account.Balance))
	_, err = store.Transactions().GetByID(ctx, id)
	assert.ErrorIs(t, err, repository.ErrTransactionNotFound)
}

func TestGormFindActiveWindows(t *testing.T) {
	db := openTestDB(t)
	store := repository.NewStore(db)
	ctx := context.Background()
	user := testUser()
	product := testUser()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.Subscriptions().Create(ctx, &model.UserSubscription{
		ID: idgen.NextID(), UserID: user, PlanID: 1, Status: model.SubscriptionStatusActive,
		StartDate: now.Add(-48 * time.Hour), EndDate: now.Add(-time.Hour), GrantedBy: model.GrantedByPurchase,
	}))
	_, err := store.Subscriptions().FindActive(ctx, user, now)
	assert.ErrorIs(t, err, repository.ErrSubscriptionNotFound)

	n, err := store.Subscriptions().LapseStale(ctx, user, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	boostID := idgen.NextID()
	require.NoError(t, store.Boosts().Create(ctx, &model.ProductBoost{
		ID: boostID, ProductID: product, SupplierID: user, BoostLevel: model.BoostLevelPremium,
		DurationDays: 7, Price: decimal.NewFromInt(10000), Status: model.BoostStatusActive,
		StartDate: now.Add(-time.Hour), EndDate: now.Add(7 * 24 * time.Hour),
	}))
	boost, err := store.Boosts().FindActive(ctx, product, now)
	require.NoError(t, err)
	assert.Equal(t, boostID, boost.ID)

	require.NoError(t, store.Boosts().UpdateStatus(ctx, boostID, model.BoostStatusActive, model.BoostStatusPaused))
	assert.ErrorIs(t, store.Boosts().UpdateStatus(ctx, boostID, model.BoostStatusActive, model.BoostStatusExpired), repository.ErrStatusConflict)

	_, err = store.Boosts().FindActive(ctx, product, now)
	assert.ErrorIs(t, err, repository.ErrBoostNotFound)
}

func TestGormSingleRefundPerCharge(t *testing.T) {
	db := openTestDB(t)
	store := repository.NewStore(db)
	ctx := context.Background()
	user := testUser()
	chargeID := idgen.NextID()

	newRefund := func() *model.WalletTransaction {
		id := idgen.NextID()
		return &model.WalletTransaction{
			ID: id, TransactionNo: idgen.GenerateTransactionNo(id), UserID: user,
			Type: model.TransactionTypeRefund, Amount: decimal.NewFromInt(1), Currency: "USD",
			BalanceBefore: decimal.Zero, BalanceAfter: decimal.NewFromInt(1),
			RefundOfID: &chargeID, CreatedAt: time.Now().UTC(),
		}
	}
	require.NoError(t, store.Transactions().Create(ctx, newRefund()))
	assert.Error(t, store.Transactions().Create(ctx, newRefund()), "refund_of_id is unique")

	refund, err := store.Transactions().GetRefundOf(ctx, chargeID)
	require.NoError(t, err)
	require.NotNil(t, refund)
}
