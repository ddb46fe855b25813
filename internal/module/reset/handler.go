package reset

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/assistly/server/internal/shared/response"
)

// Handler exposes the reset to an external scheduler.
type Handler struct {
	runner *Runner
}

// NewHandler creates a new reset handler.
func NewHandler(runner *Runner) *Handler {
	return &Handler{runner: runner}
}

// RegisterRoutes registers the cron routes. The group must carry the cron token middleware.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	cronGroup := r.Group("/cron")
	{
		cronGroup.POST("/daily-reset", h.DailyReset)
		cronGroup.GET("/daily-reset", h.Health)
	}
}

// DailyReset runs the reset.
func (h *Handler) DailyReset(c *gin.Context) {
	res, err := h.runner.Run(c.Request.Context(), TriggerHTTP)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":               true,
		"day":                   res.Day,
		"accounts_reset":        res.Accounts,
		"webhook_events_purged": res.Purged,
		"duration_ms":           res.Duration.Milliseconds(),
	})
}

// Health lets the scheduler check the endpoint and its token.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
