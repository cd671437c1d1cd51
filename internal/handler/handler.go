package handler

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/wholesale-market/walletd/internal/model"
	"github.com/wholesale-market/walletd/internal/service"
	"github.com/wholesale-market/walletd/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Handler holds the services behind the HTTP routes.
type Handler struct {
	wallet       *service.WalletService
	entitlements *service.EntitlementService
	admin        *service.AdminService
	query        *service.QueryService
	prices       *service.PriceTable
	logger       *slog.Logger
}

// Services bundles the constructed services for NewHandler.
type Services struct {
	Wallet       *service.WalletService
	Entitlements *service.EntitlementService
	Admin        *service.AdminService
	Query        *service.QueryService
	Prices       *service.PriceTable
}

func NewHandler(s Services, logger *slog.Logger) *Handler {
	return &Handler{
		wallet:       s.Wallet,
		entitlements: s.Entitlements,
		admin:        s.Admin,
		query:        s.Query,
		prices:       s.Prices,
		logger:       logger,
	}
}

// fail maps service errors to business codes. Unexpected errors are logged
// and reported without detail.
func (h *Handler) fail(c *gin.Context, err error) {
	code := response.CodeServerError
	message := "internal server error"
	switch {
	case errors.Is(err, service.ErrInvalidAmount):
		code, message = response.CodeInvalidAmount, "invalid amount"
	case errors.Is(err, service.ErrInvalidDuration):
		code, message = response.CodeParamError, "invalid duration"
	case errors.Is(err, service.ErrInsufficientFunds):
		code, message = response.CodeInsufficientFunds, "insufficient funds, top up your wallet"
	case errors.Is(err, service.ErrAlreadyActive):
		code, message = response.CodeAlreadyActive, "already active"
	case errors.Is(err, service.ErrInvalidBoostTier):
		code, message = response.CodeInvalidBoostTier, "invalid boost tier"
	case errors.Is(err, service.ErrNotAuthorized):
		code, message = response.CodeForbidden, "not authorized"
	case errors.Is(err, service.ErrNotFound):
		code, message = response.CodeNotFound, "not found"
	case errors.Is(err, service.ErrInvalidTransition):
		code, message = response.CodeInvalidTransition, "invalid status transition"
	case errors.Is(err, service.ErrAlreadyRefunded):
		code, message = response.CodeAlreadyRefunded, "already refunded"
	case errors.Is(err, service.ErrNotRefundable):
		code, message = response.CodeNotRefundable, "transaction is not refundable"
	case errors.Is(err, service.ErrLockBusy):
		code, message = response.CodeResourceBusy, "busy, retry later"
	}
	if !service.IsBusinessError(err) {
		h.logger.Error("request failed", "path", c.FullPath(), "user_id", currentUser(c),
			"request_id", c.GetString(ctxRequestID), "error", err)
	}
	response.Error(c, code, message)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, name+" is invalid")
		return 0, false
	}
	return id, true
}

func (h *Handler) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}

// ============================================================
// Wallet
// ============================================================

// GetBalance GET /api/v1/wallet/balance
func (h *Handler) GetBalance(c *gin.Context) {
	userID := currentUser(c)
	balance, err := h.wallet.GetBalance(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"user_id": userID,
		"balance": balance,
	})
}

// ListTransactions GET /api/v1/wallet/transactions?page=1&page_size=20
func (h *Handler) ListTransactions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	res, err := h.wallet.ListTransactions(c.Request.Context(), currentUser(c), page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, response.PageData{List: res.List, Total: res.Total, Page: res.Page, PageSize: res.PageSize})
}

type TopUpRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// TopUp POST /api/v1/wallet/topup. Called after the payment provider
// confirmed the funds.
func (h *Handler) TopUp(c *gin.Context) {
	var req TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}
	trans, err := h.wallet.TopUp(c.Request.Context(), currentUser(c), req.Amount)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, trans)
}

// ============================================================
// Subscription
// ============================================================

// ListPlans GET /api/v1/subscription/plans
func (h *Handler) ListPlans(c *gin.Context) {
	plans, err := h.query.ListPlans(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, plans)
}

// CurrentSubscription GET /api/v1/subscription/current
func (h *Handler) CurrentSubscription(c *gin.Context) {
	active, sub, err := h.query.IsSubscriptionActive(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"active":       active,
		"subscription": sub,
	})
}

// SubscriptionHistory GET /api/v1/subscription/history
func (h *Handler) SubscriptionHistory(c *gin.Context) {
	subs, err := h.query.ListSubscriptions(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, subs)
}

type ActivateSubscriptionRequest struct {
	PlanID int64 `json:"plan_id" binding:"required,gt=0"`
}

// ActivateSubscription POST /api/v1/subscription/activate
func (h *Handler) ActivateSubscription(c *gin.Context) {
	var req ActivateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}
	res, err := h.entitlements.ActivateSubscription(c.Request.Context(), currentUser(c), req.PlanID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"subscription": res.Subscription,
		"transaction":  res.Transaction,
		"balance":      res.Transaction.BalanceAfter,
	})
}

// ============================================================
// Boost
// ============================================================

// BoostTiers GET /api/v1/boost/tiers
func (h *Handler) BoostTiers(c *gin.Context) {
	response.Success(c, h.prices.Tiers())
}

type ActivateBoostRequest struct {
	ProductID    int64  `json:"product_id" binding:"required,gt=0"`
	Level        string `json:"level" binding:"required"`
	DurationDays int    `json:"duration_days" binding:"required,gt=0"`
}

// ActivateBoost POST /api/v1/boost/activate
func (h *Handler) ActivateBoost(c *gin.Context) {
	var req ActivateBoostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}
	res, err := h.entitlements.ActivateBoost(c.Request.Context(), currentUser(c), req.ProductID, req.Level, req.DurationDays)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"boost":       res.Boost,
		"transaction": res.Transaction,
		"balance":     res.Transaction.BalanceAfter,
	})
}

// PauseBoost POST /api/v1/boost/:id/pause
func (h *Handler) PauseBoost(c *gin.Context) {
	h.changeBoost(c, h.entitlements.PauseBoost)
}

// ResumeBoost POST /api/v1/boost/:id/resume
func (h *Handler) ResumeBoost(c *gin.Context) {
	h.changeBoost(c, h.entitlements.ResumeBoost)
}

// StopBoost POST /api/v1/boost/:id/stop
func (h *Handler) StopBoost(c *gin.Context) {
	h.changeBoost(c, h.entitlements.StopBoost)
}

func (h *Handler) changeBoost(c *gin.Context, change func(ctx context.Context, supplierID, boostID int64) (*model.ProductBoost, error)) {
	boostID, ok := pathID(c, "id")
	if !ok {
		return
	}
	boost, err := change(c.Request.Context(), currentUser(c), boostID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, boost)
}

// MyBoosts GET /api/v1/boost/mine
func (h *Handler) MyBoosts(c *gin.Context) {
	boosts, err := h.query.ListSupplierBoosts(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, boosts)
}

// ProductBoost GET /api/v1/boost/product/:product_id
func (h *Handler) ProductBoost(c *gin.Context) {
	productID, ok := pathID(c, "product_id")
	if !ok {
		return
	}
	boost, err := h.query.GetActiveBoost(c.Request.Context(), productID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"product_id": productID,
		"active":     boost != nil,
		"boost":      boost,
		"weight":     service.WeightOf(boost),
	})
}

type RankRequest struct {
	ProductIDs []int64 `json:"product_ids" binding:"required,max=500"`
}

// RankProducts POST /api/v1/boost/rank
func (h *Handler) RankProducts(c *gin.Context) {
	var req RankRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}
	ranked, err := h.query.RankProducts(c.Request.Context(), req.ProductIDs)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, ranked)
}

// ============================================================
// Admin
// ============================================================

type AdminCreditRequest struct {
	UserID      int64           `json:"user_id" binding:"required,gt=0"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" binding:"max=200"`
}

// AdminCredit POST /api/v1/admin/wallet/credit
func (h *Handler) AdminCredit(c *gin.Context) {
	var req AdminCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}
	trans, err := h.admin.AdminCredit(c.Request.Context(), req.UserID, req.Amount, req.Description)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Info("admin credit", "admin_id", currentUser(c), "user_id", req.UserID, "amount", req.Amount.String())
	response.Success(c, trans)
}

type AdminAssignRequest struct {
	UserID       int64 `json:"user_id" binding:"required,gt=0"`
	PlanID       int64 `json:"plan_id" binding:"required,gt=0"`
	DurationDays *int  `json:"duration_days,omitempty" binding:"omitempty,gt=0,lte=3650"`
}

// AdminAssignSubscription POST /api/v1/admin/subscription/assign
func (h *Handler) AdminAssignSubscription(c *gin.Context) {
	var req AdminAssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}
	sub, err := h.admin.AdminAssignSubscription(c.Request.Context(), req.UserID, req.PlanID, req.DurationDays)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Info("admin assigned subscription", "admin_id", currentUser(c), "user_id", req.UserID, "plan_id", req.PlanID)
	response.Success(c, sub)
}

type AdminRefundRequest struct {
	Reason string `json:"reason" binding:"max=200"`
}

// AdminRefund POST /api/v1/admin/transaction/:id/refund
func (h *Handler) AdminRefund(c *gin.Context) {
	transactionID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req AdminRefundRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ParamError(c, "invalid request: "+err.Error())
			return
		}
	}
	refund, err := h.admin.AdminRefund(c.Request.Context(), transactionID, req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Info("admin refund", "admin_id", currentUser(c), "transaction_id", transactionID)
	response.Success(c, refund)
}
