package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/gamevault/backend/internal/api"
	"github.com/gamevault/backend/internal/config"
	"github.com/gamevault/backend/internal/database"
	"github.com/gamevault/backend/internal/mailer"
	"github.com/gamevault/backend/internal/migrations"
	"github.com/gamevault/backend/internal/payment"
	"github.com/gamevault/backend/internal/redis"
	"github.com/gamevault/backend/internal/store"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations on start if requested
	if os.Getenv("MIGRATE_ON_START") == "true" {
		log.Println("↗ Running DB migrations on startup...")
		if err := migrations.RunMigrations(cfg.DatabaseURL); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	// Initialize Redis
	rdb, err := redis.Connect(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	// Initialize DOKU client (if configured)
	gateway := payment.NewClient(cfg)
	if gateway != nil {
		log.Printf("[PAYMENT] DOKU client initialized (base=%s)", cfg.DokuBaseURL)
	} else {
		log.Printf("[PAYMENT] DOKU not configured - purchases will fail until DOKU_CLIENT_ID/DOKU_SECRET_KEY are set")
	}

	// Initialize mailer (if configured)
	if m := mailer.NewMailer(cfg); m != nil {
		mailer.SetDefault(m)
		log.Printf("[MAIL] SMTP mailer initialized (host=%s)", cfg.SMTPHost)
	}

	// Start expiry sweeper (flips stale waiting orders to expired)
	txns := store.NewTransactionStore(db)
	go payment.StartExpirySweeper(context.Background(), txns, cfg.SweepIntervalMinutes)

	// Set up Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	api.SetupRoutes(router, db, rdb, cfg, gateway, mailer.Default)

	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	log.Printf("Starting GameVault server on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
