package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/wholesale-market/walletd/internal/infrastructure/lock"
	"github.com/wholesale-market/walletd/internal/model"
	"github.com/wholesale-market/walletd/internal/repository/memory"
	"github.com/wholesale-market/walletd/internal/service"
	"github.com/wholesale-market/walletd/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	supplier = int64(100)
	admin    = int64(1)
	product  = int64(10)
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	store := memory.New()
	store.AddPlan(model.SubscriptionPlan{ID: 1, Name: "Pro", Price: decimal.NewFromInt(5000), DurationDays: 30, IsActive: true})
	store.AddProduct(model.Product{ID: product, SupplierID: supplier, Name: "Sugar 25kg", Price: decimal.NewFromInt(2500)})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := []service.Option{service.WithLogger(logger)}
	prices, err := service.NewPriceTable(service.DefaultBoostTiers())
	require.NoError(t, err)
	locker := lock.NewLocalLocker()

	wallet := service.NewWalletService(store, store, opts...)
	h := NewHandler(Services{
		Wallet:       wallet,
		Entitlements: service.NewEntitlementService(store, wallet, prices, store, locker, opts...),
		Admin:        service.NewAdminService(store, wallet, locker, opts...),
		Query:        service.NewQueryService(store, opts...),
		Prices:       prices,
	}, logger)
	return SetupRouter(h, logger, gin.TestMode)
}

type result struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, r *gin.Engine, method, path string, userID int64, role string, body interface{}) result {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set(HeaderUserID, strconv.FormatInt(userID, 10))
		req.Header.Set(HeaderUserRole, role)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res), w.Body.String())
	return res
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t)
	res := do(t, r, http.MethodGet, "/health", 0, "", nil)
	assert.Equal(t, response.CodeSuccess, res.Code)
}

func TestIdentityRequired(t *testing.T) {
	r := newTestRouter(t)

	res := do(t, r, http.MethodGet, "/api/v1/wallet/balance", 0, "", nil)
	assert.Equal(t, response.CodeUnauthorized, res.Code)

	res = do(t, r, http.MethodGet, "/api/v1/wallet/balance", supplier, "guest", nil)
	assert.Equal(t, response.CodeUnauthorized, res.Code)

	res = do(t, r, http.MethodPost, "/api/v1/admin/wallet/credit", supplier, model.RoleSupplier,
		gin.H{"user_id": supplier, "amount": "100"})
	assert.Equal(t, response.CodeForbidden, res.Code)

	res = do(t, r, http.MethodPost, "/api/v1/boost/activate", supplier, model.RoleShopOwner,
		gin.H{"product_id": product, "level": "standard", "duration_days": 7})
	assert.Equal(t, response.CodeForbidden, res.Code)
}

func TestTopUpAndBoostFlow(t *testing.T) {
	r := newTestRouter(t)

	res := do(t, r, http.MethodPost, "/api/v1/wallet/topup", supplier, model.RoleSupplier, gin.H{"amount": "10000"})
	require.Equal(t, response.CodeSuccess, res.Code, res.Message)

	res = do(t, r, http.MethodPost, "/api/v1/boost/activate", supplier, model.RoleSupplier,
		gin.H{"product_id": product, "level": "standard", "duration_days": 7})
	require.Equal(t, response.CodeSuccess, res.Code, res.Message)
	var activated struct {
		Boost   model.ProductBoost `json:"boost"`
		Balance decimal.Decimal    `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &activated))
	assert.True(t, decimal.NewFromInt(5000).Equal(activated.Balance))

	res = do(t, r, http.MethodGet, fmt.Sprintf("/api/v1/boost/product/%d", product), 7, model.RoleShopOwner, nil)
	require.Equal(t, response.CodeSuccess, res.Code)
	var view struct {
		Active bool `json:"active"`
		Weight int  `json:"weight"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &view))
	assert.True(t, view.Active)
	assert.Equal(t, service.WeightStandard, view.Weight)

	res = do(t, r, http.MethodPost, "/api/v1/boost/activate", supplier, model.RoleSupplier,
		gin.H{"product_id": product, "level": "premium", "duration_days": 7})
	assert.Equal(t, response.CodeAlreadyActive, res.Code)

	res = do(t, r, http.MethodPost, fmt.Sprintf("/api/v1/boost/%d/pause", activated.Boost.ID), supplier, model.RoleSupplier, nil)
	require.Equal(t, response.CodeSuccess, res.Code, res.Message)
	res = do(t, r, http.MethodPost, fmt.Sprintf("/api/v1/boost/%d/pause", activated.Boost.ID), supplier, model.RoleSupplier, nil)
	assert.Equal(t, response.CodeInvalidTransition, res.Code)

	res = do(t, r, http.MethodPost, "/api/v1/boost/rank", 7, model.RoleShopOwner, gin.H{"product_ids": []int64{1, product}})
	require.Equal(t, response.CodeSuccess, res.Code)
	var ranked []service.RankedProduct
	require.NoError(t, json.Unmarshal(res.Data, &ranked))
	require.Len(t, ranked, 2)
	assert.Equal(t, service.WeightNone, ranked[1].Weight, "paused boosts do not rank")

	res = do(t, r, http.MethodGet, "/api/v1/wallet/transactions?page=1&page_size=10", supplier, model.RoleSupplier, nil)
	require.Equal(t, response.CodeSuccess, res.Code)
	var page struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &page))
	assert.Equal(t, int64(2), page.Total)
}

func TestTransactionsPagingIsClamped(t *testing.T) {
	r := newTestRouter(t)
	res := do(t, r, http.MethodPost, "/api/v1/wallet/topup", supplier, model.RoleSupplier, gin.H{"amount": "10"})
	require.Equal(t, response.CodeSuccess, res.Code, res.Message)

	res = do(t, r, http.MethodGet, "/api/v1/wallet/transactions?page=0&page_size=1000", supplier, model.RoleSupplier, nil)
	require.Equal(t, response.CodeSuccess, res.Code)
	var page response.PageData
	require.NoError(t, json.Unmarshal(res.Data, &page))
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 100, page.PageSize)
	assert.Equal(t, int64(1), page.Total)
}

func TestSubscriptionHistory(t *testing.T) {
	r := newTestRouter(t)
	res := do(t, r, http.MethodGet, "/api/v1/subscription/history", supplier, model.RoleSupplier, nil)
	require.Equal(t, response.CodeSuccess, res.Code)
	var empty []model.UserSubscription
	require.NoError(t, json.Unmarshal(res.Data, &empty))
	assert.Empty(t, empty)

	res = do(t, r, http.MethodPost, "/api/v1/admin/subscription/assign", admin, model.RoleAdmin,
		gin.H{"user_id": supplier, "plan_id": 1})
	require.Equal(t, response.CodeSuccess, res.Code, res.Message)

	res = do(t, r, http.MethodGet, "/api/v1/subscription/history", supplier, model.RoleSupplier, nil)
	require.Equal(t, response.CodeSuccess, res.Code)
	var subs []model.UserSubscription
	require.NoError(t, json.Unmarshal(res.Data, &subs))
	require.Len(t, subs, 1)
	assert.Equal(t, model.GrantedByAdmin, subs[0].GrantedBy)
}

func TestAdminAssignRejectsOversizedDuration(t *testing.T) {
	r := newTestRouter(t)
	res := do(t, r, http.MethodPost, "/api/v1/admin/subscription/assign", admin, model.RoleAdmin,
		gin.H{"user_id": supplier, "plan_id": 1, "duration_days": 200000})
	assert.Equal(t, response.CodeParamError, res.Code)

	res = do(t, r, http.MethodPost, "/api/v1/wallet/topup", supplier, model.RoleSupplier,
		gin.H{"amount": "100000000000000000000000"})
	assert.Equal(t, response.CodeInvalidAmount, res.Code)
}

func TestBusinessErrorCodes(t *testing.T) {
	r := newTestRouter(t)

	res := do(t, r, http.MethodPost, "/api/v1/wallet/topup", supplier, model.RoleSupplier, gin.H{"amount": "-1"})
	assert.Equal(t, response.CodeInvalidAmount, res.Code)

	res = do(t, r, http.MethodPost, "/api/v1/subscription/activate", supplier, model.RoleSupplier, gin.H{"plan_id": 1})
	assert.Equal(t, response.CodeInsufficientFunds, res.Code)
	assert.Equal(t, "insufficient funds, top up your wallet", res.Message)

	res = do(t, r, http.MethodPost, "/api/v1/boost/activate", supplier, model.RoleSupplier,
		gin.H{"product_id": product, "level": "gold", "duration_days": 7})
	assert.Equal(t, response.CodeInvalidBoostTier, res.Code)

	res = do(t, r, http.MethodPost, "/api/v1/boost/activate", 555, model.RoleSupplier,
		gin.H{"product_id": product, "level": "standard", "duration_days": 7})
	assert.Equal(t, response.CodeForbidden, res.Code)

	res = do(t, r, http.MethodPost, "/api/v1/boost/999/stop", supplier, model.RoleSupplier, nil)
	assert.Equal(t, response.CodeNotFound, res.Code)

	res = do(t, r, http.MethodPost, "/api/v1/boost/abc/stop", supplier, model.RoleSupplier, nil)
	assert.Equal(t, response.CodeParamError, res.Code)

	res = do(t, r, http.MethodPost, "/api/v1/subscription/activate", supplier, model.RoleSupplier, gin.H{})
	assert.Equal(t, response.CodeParamError, res.Code)
}

func TestAdminRoutes(t *testing.T) {
	r := newTestRouter(t)

	res := do(t, r, http.MethodPost, "/api/v1/admin/wallet/credit", admin, model.RoleAdmin,
		gin.H{"user_id": supplier, "amount": 2000, "description": "goodwill"})
	require.Equal(t, response.CodeSuccess, res.Code, res.Message)

	res = do(t, r, http.MethodPost, "/api/v1/admin/subscription/assign", admin, model.RoleAdmin,
		gin.H{"user_id": supplier, "plan_id": 1})
	require.Equal(t, response.CodeSuccess, res.Code, res.Message)

	res = do(t, r, http.MethodGet, "/api/v1/subscription/current", supplier, model.RoleSupplier, nil)
	require.Equal(t, response.CodeSuccess, res.Code)
	var current struct {
		Active bool `json:"active"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &current))
	assert.True(t, current.Active)

	res = do(t, r, http.MethodGet, "/api/v1/wallet/balance", supplier, model.RoleSupplier, nil)
	var balance struct {
		Balance decimal.Decimal `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &balance))
	assert.True(t, decimal.NewFromInt(2000).Equal(balance.Balance), "admin grant is free")

	res = do(t, r, http.MethodPost, "/api/v1/boost/activate", supplier, model.RoleSupplier,
		gin.H{"product_id": product, "level": "standard", "duration_days": 7})
	assert.Equal(t, response.CodeInsufficientFunds, res.Code)

	res = do(t, r, http.MethodPost, "/api/v1/admin/transaction/12345/refund", admin, model.RoleAdmin, nil)
	assert.Equal(t, response.CodeNotFound, res.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware(), RecoveryMiddleware(logger))
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}
