package api

import (
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/gamevault/backend/internal/api/handlers"
	"github.com/gamevault/backend/internal/api/middleware"
	"github.com/gamevault/backend/internal/config"
	"github.com/gamevault/backend/internal/entitlement"
	"github.com/gamevault/backend/internal/store"
)

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, db *sqlx.DB, rdb *redis.Client, cfg *config.Config, gateway handlers.Gateway, notifier handlers.Notifier) {
	txns := store.NewTransactionStore(db)
	games := store.NewGameStore(db)
	resolver := entitlement.NewResolver(txns)

	// Health check
	router.GET("/api/v1/health", handlers.HealthCheck)

	// Payment routes
	pay := router.Group("/payment")
	{
		authed := pay.Group("")
		authed.Use(middleware.RequireAuth(cfg))
		{
			authed.GET("/buy/:slug", handlers.Checkout(games, resolver))
			authed.POST("/process", handlers.ProcessPayment(games, txns, gateway, resolver, cfg))
			authed.GET("/history", handlers.History(txns))
			authed.GET("/:order_id/invoice", handlers.Invoice(txns))
			authed.GET("/:order_id/status", handlers.StatusPage(txns))
			authed.GET("/:order_id/check", handlers.CheckStatus(txns, gateway, rdb))
			authed.GET("/:order_id/qr", handlers.InvoiceQR(txns))
		}

		// No auth middleware for the callback; it comes from the gateway,
		// not a browser session.
		pay.POST("/callback", handlers.PaymentCallback(txns, notifier, cfg))
	}

	// Game access (anonymous users may play free games)
	gamesGroup := router.Group("/games")
	gamesGroup.Use(middleware.OptionalAuth(cfg))
	{
		gamesGroup.GET("/:slug/play", handlers.PlayGame(games, resolver))
	}
}
