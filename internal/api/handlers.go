package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fragcoach/internal/coach"
	"fragcoach/internal/config"
	"fragcoach/internal/gamestate"
	"fragcoach/internal/tools"
)

// GET /health
func healthHandler(orch *coach.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := orch.GetHealthStatus()
		status := http.StatusOK
		if !h.Healthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, h)
	}
}

// GET /config
func configHandler(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Only return non-sensitive config fields
		c.JSON(http.StatusOK, gin.H{
			"server": gin.H{
				"host": cfg.Server.Host,
				"port": cfg.Server.Port,
			},
			"coach":   cfg.Coach,
			"monitor": cfg.Monitor,
		})
	}
}

// GET /state
func stateHandler(orch *coach.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"state":    orch.CurrentState(),
			"snapshot": orch.LatestSnapshot(),
		})
	}
}

// GET /stats
func statsHandler(orch *coach.Orchestrator, registry *tools.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"coach": orch.GetStats(),
			"tools": registry.BreakerStats(),
		})
	}
}

// POST /gsi receives raw game state integration payloads. Malformed frames
// are acknowledged and dropped so the game client never retries into a
// failure loop.
func gsiHandler(orch *coach.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var raw gamestate.RawFrame
		if err := c.ShouldBindJSON(&raw); err != nil {
			c.JSON(http.StatusOK, gin.H{"status": "skipped", "reason": "malformed frame"})
			return
		}
		if err := orch.ProcessGSIUpdate(c.Request.Context(), &raw); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": gin.H{"message": err.Error()}})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

type feedbackRequest struct {
	OutputID string  `json:"output_id"`
	Rating   float64 `json:"rating"`
}

// POST /feedback
func feedbackHandler(orch *coach.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req feedbackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "Invalid request"}})
			return
		}
		if err := orch.HandleUserFeedback(req.OutputID, req.Rating); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": err.Error()}})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "recorded"})
	}
}

type commandRequest struct {
	Command string `json:"command"`
}

// POST /command
func commandHandler(orch *coach.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req commandRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "Invalid request"}})
			return
		}
		result, err := orch.HandleUserCommand(c.Request.Context(), req.Command)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
			return
		}
		c.JSON(http.StatusOK, gin.H{"result": result})
	}
}
