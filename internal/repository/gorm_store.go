package repository

import (
	"context"

	"gorm.io/gorm"
)

type gormStore struct {
	db *gorm.DB
}

// NewStore returns a Store backed by GORM.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

func (s *gormStore) Accounts() AccountRepository         { return NewAccountRepository(s.db) }
func (s *gormStore) Transactions() TransactionRepository { return NewTransactionRepository(s.db) }
func (s *gormStore) Plans() PlanRepository               { return NewPlanRepository(s.db) }
func (s *gormStore) Subscriptions() SubscriptionRepository {
	return NewSubscriptionRepository(s.db)
}
func (s *gormStore) Boosts() BoostRepository   { return NewBoostRepository(s.db) }
func (s *gormStore) Outbox() OutboxRepository { return NewOutboxRepository(s.db) }
