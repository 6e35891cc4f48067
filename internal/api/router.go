package api

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"fragcoach/internal/auth"
	"fragcoach/internal/coach"
	"fragcoach/internal/config"
	"fragcoach/internal/tools"
)

// SetupRouter builds the HTTP surface. The GSI endpoint is unauthenticated
// (the game client cannot carry tokens); everything stateful requires an
// operator session.
func SetupRouter(cfg *config.Config, rdb *redis.Client, orch *coach.Orchestrator, registry *tools.Registry) *gin.Engine {
	r := gin.Default()

	r.GET("/health", healthHandler(orch))
	r.GET("/config", configHandler(cfg))

	// Telemetry ingest from the game client.
	r.POST("/gsi", gsiHandler(orch))

	// Setup: only if no operators
	r.POST("/setup", SetupHandler())

	// Auth
	r.POST("/auth/login", LoginHandler(cfg, rdb))
	r.POST("/auth/logout", auth.AuthMiddleware(cfg, rdb, false), LogoutHandler(rdb))
	r.GET("/auth/me", auth.AuthMiddleware(cfg, rdb, false), MeHandler())

	// Coach control surface
	r.GET("/state", auth.AuthMiddleware(cfg, rdb, false), stateHandler(orch))
	r.GET("/stats", auth.AuthMiddleware(cfg, rdb, false), statsHandler(orch, registry))
	r.POST("/feedback", auth.AuthMiddleware(cfg, rdb, false), feedbackHandler(orch))
	r.POST("/command", auth.AuthMiddleware(cfg, rdb, false), commandHandler(orch))

	// Event stream for the overlay
	r.GET("/ws/events", WSEventsHandler(cfg, orch))

	return r
}
