package main

import (
	"log"

	"golang-shop-backend/configs"
	"golang-shop-backend/internal/handlers"
	"golang-shop-backend/internal/middleware"
	"golang-shop-backend/internal/models"
	"golang-shop-backend/internal/repositories"
	"golang-shop-backend/internal/services"
	"golang-shop-backend/pkg/cache"
	"golang-shop-backend/pkg/database"
	"golang-shop-backend/pkg/email"
	"golang-shop-backend/pkg/messaging"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	config := configs.LoadConfig()

	// Set Gin mode
	gin.SetMode(config.Server.Mode)

	// Initialize database connection
	db, err := database.NewDatabase(config.Database.PostgresURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	// Auto-migrate PostgreSQL tables
	if err := db.Postgres.AutoMigrate(&models.Order{}); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize Redis cache (durable cart storage)
	redisCache := cache.NewRedisCache(config.Redis.URL, config.Redis.Password, config.Redis.DB)
	if redisCache == nil {
		log.Fatal("Failed to connect to Redis")
	}
	defer redisCache.Close()

	// Initialize Kafka
	kafkaProducer := messaging.NewKafkaProducer(config.Kafka.Brokers)
	defer kafkaProducer.Close()

	// Initialize repositories
	orderRepo := repositories.NewOrderRepository(db.Postgres)

	// Initialize external clients
	mpesaService := services.NewMpesaService(config.Mpesa.BaseURL)
	emailService := email.NewEmailService(config.Email.BaseURL)

	// Initialize services
	cartService := services.NewCartService(redisCache)
	checkoutService := services.NewCheckoutService(
		cartService,
		mpesaService,
		emailService,
		orderRepo,
		kafkaProducer,
		config.Kafka.Brokers,
		config.Checkout.PollInterval,
		config.Checkout.MaxPollDuration,
		config.Checkout.CardDelay,
	)

	// Initialize handlers
	cartHandler := handlers.NewCartHandler(cartService)
	checkoutHandler := handlers.NewCheckoutHandler(checkoutService)
	orderHandler := handlers.NewOrderHandler(orderRepo)

	// Initialize Gin router
	router := gin.New()

	// Global middleware
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.LoggerMiddleware())
	router.Use(middleware.RecoveryMiddleware())

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "golang-shop-backend",
		})
	})

	// API routes
	api := router.Group("/api/v1")
	api.Use(middleware.SessionMiddleware())

	// Register routes
	cartHandler.RegisterRoutes(api)
	checkoutHandler.RegisterRoutes(api)
	orderHandler.RegisterRoutes(api)

	log.Printf("Server starting on port %s", config.Server.Port)
	log.Fatal(router.Run(":" + config.Server.Port))
}
