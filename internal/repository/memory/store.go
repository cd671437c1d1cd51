// Package memory is an in-process repository.Store. Transactions run on a
// snapshot of the whole state that replaces the live state only when fn
// returns nil, so a failed unit leaves nothing behind. All access is
// serialized by one mutex.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wholesale-market/walletd/internal/model"
	"github.com/wholesale-market/walletd/internal/repository"

	"github.com/shopspring/decimal"
)

type state struct {
	accounts      map[int64]*model.Account
	transactions  []*model.WalletTransaction
	plans         map[int64]*model.SubscriptionPlan
	subscriptions map[int64]*model.UserSubscription
	boosts        map[int64]*model.ProductBoost
	outbox        []*model.OutboxMessage
	profiles      map[int64]*model.Profile
	products      map[int64]*model.Product
	nextAccountID int64
	nextOutboxID  int64
}

func newState() *state {
	return &state{
		accounts:      make(map[int64]*model.Account),
		plans:         make(map[int64]*model.SubscriptionPlan),
		subscriptions: make(map[int64]*model.UserSubscription),
		boosts:        make(map[int64]*model.ProductBoost),
		profiles:      make(map[int64]*model.Profile),
		products:      make(map[int64]*model.Product),
	}
}

func (st *state) clone() *state {
	c := &state{
		accounts:      make(map[int64]*model.Account, len(st.accounts)),
		transactions:  make([]*model.WalletTransaction, len(st.transactions)),
		plans:         st.plans,
		subscriptions: make(map[int64]*model.UserSubscription, len(st.subscriptions)),
		boosts:        make(map[int64]*model.ProductBoost, len(st.boosts)),
		outbox:        make([]*model.OutboxMessage, len(st.outbox)),
		profiles:      st.profiles,
		products:      st.products,
		nextAccountID: st.nextAccountID,
		nextOutboxID:  st.nextOutboxID,
	}
	for k, v := range st.accounts {
		a := *v
		c.accounts[k] = &a
	}
	// ledger rows are never mutated, sharing them is safe
	copy(c.transactions, st.transactions)
	for k, v := range st.subscriptions {
		s := *v
		c.subscriptions[k] = &s
	}
	for k, v := range st.boosts {
		b := *v
		c.boosts[k] = &b
	}
	for i, v := range st.outbox {
		m := *v
		c.outbox[i] = &m
	}
	return c
}

type root struct {
	mu sync.Mutex
	st *state
}

// Store implements repository.Store and repository.CatalogRepository.
type Store struct {
	root *root
	tx   *state // set on the view handed to a Transaction callback
}

func New() *Store {
	return &Store{root: &root{st: newState()}}
}

var (
	_ repository.Store             = (*Store)(nil)
	_ repository.CatalogRepository = (*Store)(nil)
)

func (s *Store) with(fn func(st *state) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	return fn(s.root.st)
}

func (s *Store) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	s.root.mu.Lock()
	defer s.root.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.root.st.clone()
	if err := fn(&Store{root: s.root, tx: work}); err != nil {
		return err
	}
	s.root.st = work
	return nil
}

func (s *Store) Accounts() repository.AccountRepository         { return accountRepo{s} }
func (s *Store) Transactions() repository.TransactionRepository { return transactionRepo{s} }
func (s *Store) Plans() repository.PlanRepository               { return planRepo{s} }
func (s *Store) Subscriptions() repository.SubscriptionRepository {
	return subscriptionRepo{s}
}
func (s *Store) Boosts() repository.BoostRepository   { return boostRepo{s} }
func (s *Store) Outbox() repository.OutboxRepository { return outboxRepo{s} }

// Seed helpers for reference data owned by other layers.

func (s *Store) AddPlan(p model.SubscriptionPlan) {
	_ = s.with(func(st *state) error {
		st.plans[p.ID] = &p
		return nil
	})
}

func (s *Store) AddProfile(p model.Profile) {
	_ = s.with(func(st *state) error {
		st.profiles[p.UserID] = &p
		return nil
	})
}

func (s *Store) AddProduct(p model.Product) {
	_ = s.with(func(st *state) error {
		st.products[p.ID] = &p
		return nil
	})
}

// PutBoost stores a boost row as-is, bypassing the activator.
func (s *Store) PutBoost(b model.ProductBoost) {
	_ = s.with(func(st *state) error {
		st.boosts[b.ID] = &b
		return nil
	})
}

// PutSubscription stores a subscription row as-is, bypassing the activator.
func (s *Store) PutSubscription(sub model.UserSubscription) {
	_ = s.with(func(st *state) error {
		st.subscriptions[sub.ID] = &sub
		return nil
	})
}

func (s *Store) GetProfile(_ context.Context, userID int64) (*model.Profile, error) {
	var out *model.Profile
	err := s.with(func(st *state) error {
		p, ok := st.profiles[userID]
		if !ok {
			return repository.ErrProfileNotFound
		}
		c := *p
		out = &c
		return nil
	})
	return out, err
}

func (s *Store) GetProduct(_ context.Context, productID int64) (*model.Product, error) {
	var out *model.Product
	err := s.with(func(st *state) error {
		p, ok := st.products[productID]
		if !ok {
			return repository.ErrProductNotFound
		}
		c := *p
		out = &c
		return nil
	})
	return out, err
}

type accountRepo struct{ s *Store }

func (r accountRepo) GetByUserID(_ context.Context, userID int64) (*model.Account, error) {
	var out *model.Account
	err := r.s.with(func(st *state) error {
		a, ok := st.accounts[userID]
		if !ok {
			return repository.ErrAccountNotFound
		}
		c := *a
		out = &c
		return nil
	})
	return out, err
}

func (r accountRepo) Ensure(_ context.Context, userID int64) error {
	return r.s.with(func(st *state) error {
		if _, ok := st.accounts[userID]; ok {
			return nil
		}
		st.nextAccountID++
		now := time.Now()
		st.accounts[userID] = &model.Account{
			ID:        st.nextAccountID,
			UserID:    userID,
			Balance:   decimal.Zero,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return nil
	})
}

func (r accountRepo) Increase(_ context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	var after decimal.Decimal
	err := r.s.with(func(st *state) error {
		a, ok := st.accounts[userID]
		if !ok {
			return repository.ErrAccountNotFound
		}
		if a.Balance.Add(amount).GreaterThan(repository.MaxBalance) {
			return repository.ErrBalanceOverflow
		}
		a.Balance = a.Balance.Add(amount)
		a.Version++
		a.UpdatedAt = time.Now()
		after = a.Balance
		return nil
	})
	return after, err
}

func (r accountRepo) Deduct(_ context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	var after decimal.Decimal
	err := r.s.with(func(st *state) error {
		a, ok := st.accounts[userID]
		if !ok || a.Balance.LessThan(amount) {
			return repository.ErrBalanceNotEnough
		}
		a.Balance = a.Balance.Sub(amount)
		a.Version++
		a.UpdatedAt = time.Now()
		after = a.Balance
		return nil
	})
	return after, err
}

type transactionRepo struct{ s *Store }

func (r transactionRepo) Create(_ context.Context, trans *model.WalletTransaction) error {
	return r.s.with(func(st *state) error {
		c := *trans
		st.transactions = append(st.transactions, &c)
		return nil
	})
}

func (r transactionRepo) GetByID(_ context.Context, id int64) (*model.WalletTransaction, error) {
	var out *model.WalletTransaction
	err := r.s.with(func(st *state) error {
		for _, t := range st.transactions {
			if t.ID == id {
				c := *t
				out = &c
				return nil
			}
		}
		return repository.ErrTransactionNotFound
	})
	return out, err
}

func (r transactionRepo) GetRefundOf(_ context.Context, chargeID int64) (*model.WalletTransaction, error) {
	var out *model.WalletTransaction
	err := r.s.with(func(st *state) error {
		for _, t := range st.transactions {
			if t.Type == model.TransactionTypeRefund && t.RefundOfID != nil && *t.RefundOfID == chargeID {
				c := *t
				out = &c
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r transactionRepo) ListByUserID(_ context.Context, userID int64, page, pageSize int) ([]*model.WalletTransaction, int64, error) {
	var out []*model.WalletTransaction
	var total int64
	err := r.s.with(func(st *state) error {
		matched := make([]*model.WalletTransaction, 0)
		for _, t := range st.transactions {
			if t.UserID == userID {
				matched = append(matched, t)
			}
		}
		sort.SliceStable(matched, func(i, j int) bool {
			if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
				return matched[i].CreatedAt.After(matched[j].CreatedAt)
			}
			return matched[i].ID > matched[j].ID
		})
		total = int64(len(matched))
		start := (page - 1) * pageSize
		if start > len(matched) {
			start = len(matched)
		}
		end := start + pageSize
		if end > len(matched) {
			end = len(matched)
		}
		for _, t := range matched[start:end] {
			c := *t
			out = append(out, &c)
		}
		return nil
	})
	return out, total, err
}

type planRepo struct{ s *Store }

func (r planRepo) GetByID(_ context.Context, planID int64) (*model.SubscriptionPlan, error) {
	var out *model.SubscriptionPlan
	err := r.s.with(func(st *state) error {
		p, ok := st.plans[planID]
		if !ok {
			return repository.ErrPlanNotFound
		}
		c := *p
		out = &c
		return nil
	})
	return out, err
}

func (r planRepo) List(_ context.Context, activeOnly bool) ([]*model.SubscriptionPlan, error) {
	var out []*model.SubscriptionPlan
	err := r.s.with(func(st *state) error {
		for _, p := range st.plans {
			if activeOnly && !p.IsActive {
				continue
			}
			c := *p
			out = append(out, &c)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
		return nil
	})
	return out, err
}

type subscriptionRepo struct{ s *Store }

func (r subscriptionRepo) Create(_ context.Context, sub *model.UserSubscription) error {
	return r.s.with(func(st *state) error {
		c := *sub
		st.subscriptions[sub.ID] = &c
		return nil
	})
}

func (r subscriptionRepo) GetByID(_ context.Context, subID int64) (*model.UserSubscription, error) {
	var out *model.UserSubscription
	err := r.s.with(func(st *state) error {
		sub, ok := st.subscriptions[subID]
		if !ok {
			return repository.ErrSubscriptionNotFound
		}
		c := *sub
		out = &c
		return nil
	})
	return out, err
}

func (r subscriptionRepo) UpdateStatus(_ context.Context, subID int64, fromStatus, toStatus string) error {
	return r.s.with(func(st *state) error {
		sub, ok := st.subscriptions[subID]
		if !ok {
			return repository.ErrSubscriptionNotFound
		}
		if sub.Status != fromStatus {
			return repository.ErrStatusConflict
		}
		sub.Status = toStatus
		sub.UpdatedAt = time.Now()
		return nil
	})
}

func (r subscriptionRepo) FindActive(_ context.Context, userID int64, now time.Time) (*model.UserSubscription, error) {
	var out *model.UserSubscription
	err := r.s.with(func(st *state) error {
		for _, sub := range st.subscriptions {
			if sub.UserID != userID || !sub.ActiveAt(now) {
				continue
			}
			if out == nil || sub.EndDate.After(out.EndDate) {
				c := *sub
				out = &c
			}
		}
		if out == nil {
			return repository.ErrSubscriptionNotFound
		}
		return nil
	})
	return out, err
}

func (r subscriptionRepo) LapseStale(_ context.Context, userID int64, now time.Time) (int64, error) {
	var n int64
	err := r.s.with(func(st *state) error {
		for _, sub := range st.subscriptions {
			if sub.UserID == userID && sub.Status == model.SubscriptionStatusActive && sub.EndDate.Before(now) {
				sub.Status = model.SubscriptionStatusInactive
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r subscriptionRepo) ListByUserID(_ context.Context, userID int64) ([]*model.UserSubscription, error) {
	var out []*model.UserSubscription
	err := r.s.with(func(st *state) error {
		for _, sub := range st.subscriptions {
			if sub.UserID == userID {
				c := *sub
				out = append(out, &c)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
		return nil
	})
	return out, err
}

type boostRepo struct{ s *Store }

func (r boostRepo) Create(_ context.Context, boost *model.ProductBoost) error {
	return r.s.with(func(st *state) error {
		c := *boost
		st.boosts[boost.ID] = &c
		return nil
	})
}

func (r boostRepo) GetByID(_ context.Context, boostID int64) (*model.ProductBoost, error) {
	var out *model.ProductBoost
	err := r.s.with(func(st *state) error {
		b, ok := st.boosts[boostID]
		if !ok {
			return repository.ErrBoostNotFound
		}
		c := *b
		out = &c
		return nil
	})
	return out, err
}

func (r boostRepo) FindActive(_ context.Context, productID int64, now time.Time) (*model.ProductBoost, error) {
	var out *model.ProductBoost
	err := r.s.with(func(st *state) error {
		for _, b := range st.boosts {
			if b.ProductID != productID || !b.ActiveAt(now) {
				continue
			}
			if out == nil || b.EndDate.After(out.EndDate) {
				c := *b
				out = &c
			}
		}
		if out == nil {
			return repository.ErrBoostNotFound
		}
		return nil
	})
	return out, err
}

func (r boostRepo) FindActiveForProducts(_ context.Context, productIDs []int64, now time.Time) ([]*model.ProductBoost, error) {
	want := make(map[int64]struct{}, len(productIDs))
	for _, id := range productIDs {
		want[id] = struct{}{}
	}
	var out []*model.ProductBoost
	err := r.s.with(func(st *state) error {
		for _, b := range st.boosts {
			if _, ok := want[b.ProductID]; ok && b.ActiveAt(now) {
				c := *b
				out = append(out, &c)
			}
		}
		return nil
	})
	return out, err
}

func (r boostRepo) UpdateStatus(_ context.Context, boostID int64, fromStatus, toStatus string) error {
	return r.s.with(func(st *state) error {
		b, ok := st.boosts[boostID]
		if !ok {
			return repository.ErrBoostNotFound
		}
		if b.Status != fromStatus {
			return repository.ErrStatusConflict
		}
		b.Status = toStatus
		b.UpdatedAt = time.Now()
		return nil
	})
}

func (r boostRepo) ListBySupplier(_ context.Context, supplierID int64) ([]*model.ProductBoost, error) {
	var out []*model.ProductBoost
	err := r.s.with(func(st *state) error {
		for _, b := range st.boosts {
			if b.SupplierID == supplierID {
				c := *b
				out = append(out, &c)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
		return nil
	})
	return out, err
}

type outboxRepo struct{ s *Store }

func (r outboxRepo) Create(_ context.Context, msg *model.OutboxMessage) error {
	return r.s.with(func(st *state) error {
		st.nextOutboxID++
		msg.ID = st.nextOutboxID
		if msg.Status == "" {
			msg.Status = model.OutboxStatusPending
		}
		msg.CreatedAt = time.Now()
		c := *msg
		st.outbox = append(st.outbox, &c)
		return nil
	})
}

func (r outboxRepo) GetPendingMessages(_ context.Context, limit int) ([]*model.OutboxMessage, error) {
	var out []*model.OutboxMessage
	err := r.s.with(func(st *state) error {
		for _, m := range st.outbox {
			if m.Status != model.OutboxStatusPending {
				continue
			}
			c := *m
			out = append(out, &c)
			if len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (r outboxRepo) find(st *state, id int64) *model.OutboxMessage {
	for _, m := range st.outbox {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (r outboxRepo) UpdateStatus(_ context.Context, id int64, status string) error {
	return r.s.with(func(st *state) error {
		if m := r.find(st, id); m != nil {
			m.Status = status
		}
		return nil
	})
}

func (r outboxRepo) IncrementRetryCount(_ context.Context, id int64) error {
	return r.s.with(func(st *state) error {
		if m := r.find(st, id); m != nil {
			m.RetryCount++
		}
		return nil
	})
}

func (r outboxRepo) MarkAsFailed(_ context.Context, id int64) error {
	return r.s.with(func(st *state) error {
		if m := r.find(st, id); m != nil {
			m.Status = model.OutboxStatusFailed
		}
		return nil
	})
}
