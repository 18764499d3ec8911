package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/bidcast/backend/docs"
	"github.com/bidcast/backend/internal/config"
	"github.com/bidcast/backend/internal/database"
	"github.com/bidcast/backend/internal/handlers"
	mW "github.com/bidcast/backend/internal/middleware"
	"github.com/bidcast/backend/internal/payments"
	"github.com/bidcast/backend/internal/services"
)

// @title Bidcast Crowdfunding API
// @version 1.0
// @description API for campaign pledging, settlement, and backer credit
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env
	viper.ReadInConfig()        // read .env file

	// Set environment variable prefix
	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	viper.BindEnv("paypal.client_id", "PAYPAL_CLIENT_ID")
	viper.BindEnv("paypal.client_secret", "PAYPAL_CLIENT_SECRET")
	viper.BindEnv("paypal.mode", "PAYPAL_MODE")
	viper.BindEnv("paypal.webhook_id", "PAYPAL_WEBHOOK_ID")
	viper.BindEnv("app.url", "APP_URL")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "Bidcast Crowdfunding API"
	docs.SwaggerInfo.Description = "API for campaign pledging, settlement, and backer credit"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	crowdfundConfig := config.LoadCrowdfundConfig()

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	paypalClient := payments.NewPayPalClient()

	authService := services.NewAuthService(db, redisClient)
	campaignService := services.NewCampaignService(db, crowdfundConfig)
	pledgeService := services.NewPledgeService(db, paypalClient, crowdfundConfig)
	payoutService := services.NewPayoutService(crowdfundConfig)
	settlementService := services.NewSettlementService(db, redisClient, payoutService, crowdfundConfig)
	creditService := services.NewCreditService(db, payoutService)
	settlementHandler := handlers.NewSettlementHandler(settlementService)
	webhookHandler := handlers.NewWebhookHandler(paypalClient)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Background settlement sweeper
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go settlementService.Run(sweepCtx)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// Static file server for campaign images
	r.Handle("/static/campaign-images/*", http.StripPrefix("/static/campaign-images/",
		mW.StaticFileServer("./static/campaign-images")))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)

		r.Get("/campaigns", campaignService.ListCampaigns)
		r.Get("/campaigns/{campaignId}", campaignService.GetCampaign)
		r.Get("/campaigns/{campaignId}/qr", campaignService.ShareQR)
		r.With(mW.OptionalAuth).Get("/campaigns/{campaignId}/can-pledge", campaignService.CanUserPledge)

		r.Post("/payments/paypal/webhook", webhookHandler.HandlePayPalWebhook)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/auth/account", authService.GetUserAccount)
			r.Post("/auth/store-user", authService.StoreUser)

			r.Post("/campaigns", campaignService.CreateCampaign)
			r.Patch("/campaigns/{campaignId}", campaignService.UpdateCampaign)
			r.Post("/campaigns/{campaignId}/finalize", settlementHandler.Finalize)

			r.Post("/pledges", pledgeService.CreatePledge)
			r.Get("/pledges", pledgeService.ListUserPledges)

			r.Get("/credits", creditService.GetBalance)
			r.Post("/credits/refund", creditService.RequestRefund)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	stopSweeper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
