package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/wholesale-market/walletd/internal/infrastructure/lock"
	"github.com/wholesale-market/walletd/internal/model"
	"github.com/wholesale-market/walletd/internal/repository"
	"github.com/wholesale-market/walletd/internal/repository/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	supplierID = int64(100)
	otherID    = int64(200)
	productID  = int64(10)
	foreignID  = int64(20) // product owned by otherID
	planID     = int64(1)
	retiredID  = int64(2)
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	store        *memory.Store
	clock        *fakeClock
	wallet       *WalletService
	entitlements *EntitlementService
	admin        *AdminService
	query        *QueryService
}

func newFixture(t *testing.T, extra ...Option) *fixture {
	t.Helper()
	store := memory.New()
	return newFixtureWith(t, store, store, extra...)
}

// newFixtureWith builds the services on top of store while seeding and
// reading reference data through seed.
func newFixtureWith(t *testing.T, store repository.Store, seed *memory.Store, extra ...Option) *fixture {
	t.Helper()
	seed.AddPlan(model.SubscriptionPlan{
		ID: planID, Name: "Pro", Price: decimal.NewFromInt(5000), DurationDays: 30,
		Features: []string{"analytics", "priority_support"}, IsActive: true,
	})
	seed.AddPlan(model.SubscriptionPlan{
		ID: retiredID, Name: "Legacy", Price: decimal.NewFromInt(1000), DurationDays: 30, IsActive: false,
	})
	seed.AddProfile(model.Profile{UserID: supplierID, Role: model.RoleSupplier, Currency: "KES"})
	seed.AddProduct(model.Product{ID: productID, SupplierID: supplierID, Name: "Maize flour 50kg", Price: decimal.NewFromInt(3200)})
	seed.AddProduct(model.Product{ID: foreignID, SupplierID: otherID, Name: "Cooking oil 20L", Price: decimal.NewFromInt(4100)})

	clock := newFakeClock()
	opts := append([]Option{
		WithClock(clock.Now),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, extra...)

	prices, err := NewPriceTable(DefaultBoostTiers())
	require.NoError(t, err)
	locker := lock.NewLocalLocker()

	wallet := NewWalletService(store, seed, opts...)
	return &fixture{
		store:        seed,
		clock:        clock,
		wallet:       wallet,
		entitlements: NewEntitlementService(store, wallet, prices, seed, locker, opts...),
		admin:        NewAdminService(store, wallet, locker, opts...),
		query:        NewQueryService(store, opts...),
	}
}

func (f *fixture) fund(t *testing.T, userID int64, amount int64) {
	t.Helper()
	_, err := f.wallet.TopUp(context.Background(), userID, decimal.NewFromInt(amount))
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, userID int64) decimal.Decimal {
	t.Helper()
	b, err := f.wallet.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

func (f *fixture) transactions(t *testing.T, userID int64) []*model.WalletTransaction {
	t.Helper()
	res, err := f.wallet.ListTransactions(context.Background(), userID, 1, maxPageSize)
	require.NoError(t, err)
	return res.List
}

func requireAmount(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, decimal.NewFromInt(want).Equal(got), "want %d, got %s", want, got.String())
}

var errBoom = errors.New("boom")

// failingStore fails every boost and subscription insert made inside a
// transaction, after the debit already ran.
type failingStore struct {
	repository.Store
}

func (s failingStore) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.Store.Transaction(ctx, func(tx repository.Store) error {
		return fn(failingStore{tx})
	})
}

func (s failingStore) Boosts() repository.BoostRepository {
	return failingBoosts{s.Store.Boosts()}
}

func (s failingStore) Subscriptions() repository.SubscriptionRepository {
	return failingSubscriptions{s.Store.Subscriptions()}
}

type failingBoosts struct {
	repository.BoostRepository
}

func (failingBoosts) Create(context.Context, *model.ProductBoost) error {
	return errBoom
}

type failingSubscriptions struct {
	repository.SubscriptionRepository
}

func (failingSubscriptions) Create(context.Context, *model.UserSubscription) error {
	return errBoom
}
