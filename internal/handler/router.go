package handler

import (
	"log/slog"

	"github.com/wholesale-market/walletd/internal/model"

	"github.com/gin-gonic/gin"
)

// SetupRouter wires the routes. mode is a gin mode; empty means release.
func SetupRouter(h *Handler, logger *slog.Logger, mode string) *gin.Engine {
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	r := gin.New()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(logger))
	r.Use(LoggerMiddleware(logger))
	r.Use(CORSMiddleware())

	r.GET("/health", h.Health)

	api := r.Group("/api/v1", IdentityMiddleware())
	{
		wallet := api.Group("/wallet", RequireRole(model.RoleSupplier, model.RoleAdmin))
		{
			wallet.GET("/balance", h.GetBalance)
			wallet.GET("/transactions", h.ListTransactions)
			wallet.POST("/topup", h.TopUp)
		}

		subscription := api.Group("/subscription", RequireRole(model.RoleSupplier, model.RoleAdmin))
		{
			subscription.GET("/plans", h.ListPlans)
			subscription.GET("/current", h.CurrentSubscription)
			subscription.GET("/history", h.SubscriptionHistory)
			subscription.POST("/activate", h.ActivateSubscription)
		}

		// read side, used by catalog listings for every role
		boost := api.Group("/boost")
		{
			boost.GET("/tiers", h.BoostTiers)
			boost.GET("/product/:product_id", h.ProductBoost)
			boost.POST("/rank", h.RankProducts)
		}

		supplier := api.Group("/boost", RequireRole(model.RoleSupplier))
		{
			supplier.GET("/mine", h.MyBoosts)
			supplier.POST("/activate", h.ActivateBoost)
			supplier.POST("/:id/pause", h.PauseBoost)
			supplier.POST("/:id/resume", h.ResumeBoost)
			supplier.POST("/:id/stop", h.StopBoost)
		}

		admin := api.Group("/admin", RequireRole(model.RoleAdmin))
		{
			admin.POST("/wallet/credit", h.AdminCredit)
			admin.POST("/subscription/assign", h.AdminAssignSubscription)
			admin.POST("/transaction/:id/refund", h.AdminRefund)
		}
	}

	return r
}
