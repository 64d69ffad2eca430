package main

import (
	"log"

	"github.com/gin-gonic/gin"

	"misterx/config"
	"misterx/handlers"
	"misterx/middleware"
	"misterx/routes"
	"misterx/services"
	"misterx/storage"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Migrate database models
	if err := config.Migrate(db); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize Redis
	redisClient := config.InitRedis(cfg)

	// Initialize proof storage
	store, err := storage.New(cfg.MediaRoot, cfg.MaxUploadSize, cfg.AllowedUploads)
	if err != nil {
		log.Fatal("Failed to initialize proof storage:", err)
	}

	// Initialize services
	authService := services.NewAuthService(db, cfg.JWTSecret, cfg.JWTLifetime)
	taskService := services.NewTaskService(db, store)
	groupService := services.NewGroupService(db, store)
	playerService := services.NewPlayerService(db)
	gameService := services.NewGameService(db, redisClient, store)
	submissionService := services.NewSubmissionService(db, redisClient, store)

	// Initialize WebSocket hub
	hub := services.NewHub()
	go hub.Run()

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	gameHandler := handlers.NewGameHandler(gameService, hub)
	taskHandler := handlers.NewTaskHandler(taskService)
	groupHandler := handlers.NewGroupHandler(groupService)
	playerHandler := handlers.NewPlayerHandler(playerService)
	submissionHandler := handlers.NewSubmissionHandler(submissionService, gameService, hub)
	playHandler := handlers.NewPlayHandler(gameService, submissionService)
	mediaHandler := handlers.NewMediaHandler(cfg.MediaRoot, cfg.AccelRedirect)

	// Setup Gin router
	router := gin.Default()

	// Add CORS middleware
	router.Use(middleware.CORS())

	// Setup routes
	routes.SetupRoutes(
		router,
		authHandler,
		gameHandler,
		taskHandler,
		groupHandler,
		playerHandler,
		submissionHandler,
		playHandler,
		mediaHandler,
		hub,
		cfg.JWTSecret,
	)

	// Start server
	log.Printf("Server starting on %s:%s", cfg.BindAddress, cfg.Port)
	if err := router.Run(cfg.BindAddress + ":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
