package usage

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/assistly/server/internal/shared/errors"
	"github.com/assistly/server/internal/shared/middleware"
	"github.com/assistly/server/internal/shared/response"
)

// Handler handles HTTP requests for usage.
type Handler struct {
	service ServiceInterface
}

// NewHandler creates a new usage handler.
func NewHandler(service ServiceInterface) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the usage routes. r must already require authentication.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	usage := r.Group("/usage")
	{
		usage.GET("/remaining", h.GetRemaining)
		usage.GET("/limits", h.GetLimits)
		usage.POST("/increment", Gate(h.service), h.Increment)
	}
}

// GetRemaining returns the caller's tier and remaining allowance.
func (h *Handler) GetRemaining(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperrors.Unauthorized("", ""))
		return
	}

	status, err := h.service.GetUsageStatus(c.Request.Context(), accountID)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// GetLimits returns the caller's plan entitlement.
func (h *Handler) GetLimits(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperrors.Unauthorized("", ""))
		return
	}

	c.JSON(http.StatusOK, h.service.GetLimits(c.Request.Context(), accountID))
}

// Increment records one usage unit. Gate rejects exhausted accounts without a
// write; the store re-checks the limit in the increment itself.
func (h *Handler) Increment(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperrors.Unauthorized("", ""))
		return
	}

	status, err := h.service.ConsumeUsageUnit(c.Request.Context(), accountID)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, IncrementResponse{
		Success:   true,
		Tier:      status.Tier,
		Remaining: status.Remaining,
		Unlimited: status.Unlimited,
	})
}

// Gate returns a middleware that admits the request only when the
// authenticated account has allowance left. Mount it in front of any
// handler that performs a usage unit.
func Gate(service ServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := middleware.AccountID(c)
		if !ok {
			response.Abort(c, apperrors.Unauthorized("", ""))
			return
		}
		if err := service.Admit(c.Request.Context(), accountID); err != nil {
			response.Abort(c, err)
			return
		}
		c.Next()
	}
}
