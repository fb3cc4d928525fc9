package main

import (
	"github.com/gin-gonic/gin"

	"github.com/videonode/signaling/config"
	"github.com/videonode/signaling/internal/handlers"
	"github.com/videonode/signaling/internal/hub"
	"github.com/videonode/signaling/internal/logging"
	"github.com/videonode/signaling/internal/middleware"
	"github.com/videonode/signaling/internal/redis"
	"github.com/videonode/signaling/internal/session"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logging.Init(cfg.Log)
	log := logging.L()

	// Connect to Redis
	if err := redis.Connect(cfg.Redis); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redis.Close()

	log.Info().Msg("redis connection established")

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Global CORS middleware (runs before routing)
	router.Use(handlers.OriginFilter(cfg.AllowedOrigins))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Transport and session core
	wsHub := hub.New(cfg.WebSocket, log)
	presence := redis.NewPresence(log)
	coordinator := session.NewCoordinator(wsHub, presence, handlers.ResolveRoomID, log)

	// Room management API (authenticated)
	apiGroup := router.Group("/api")
	{
		// Login endpoint (public)
		apiGroup.POST("/auth/login", handlers.Login(cfg.JWTSecret))

		// Create room (requires JWT)
		apiGroup.POST("/rooms", middleware.JWTAuth(cfg.JWTSecret), handlers.CreateRoom)

		// Get room info (public)
		apiGroup.GET("/rooms/:roomId", handlers.GetRoom)

		// Delete room (requires JWT, creator only)
		apiGroup.DELETE("/rooms/:roomId", middleware.JWTAuth(cfg.JWTSecret), handlers.DeleteRoom)
	}

	// WebSocket signaling endpoint
	wsGroup := router.Group("/ws")
	{
		wsGroup.GET("/signal", handlers.HandleSignaling(wsHub, coordinator))
	}

	// Start server
	log.Info().Str("port", cfg.Port).Msg("starting signaling server")
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}
}
