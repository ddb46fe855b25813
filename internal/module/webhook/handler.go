package webhook

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/assistly/server/internal/shared/errors"
	"github.com/assistly/server/internal/shared/response"
)

const maxBodyBytes = 1 << 20

// Handler handles inbound billing webhooks.
type Handler struct {
	dispatcher DispatcherInterface
}

// NewHandler creates a new webhook handler.
func NewHandler(dispatcher DispatcherInterface) *Handler {
	return &Handler{dispatcher: dispatcher}
}

// RegisterRoutes registers the webhook routes. They must not require user authentication.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/billing", h.Billing)
	}
}

// Billing receives a provider notification. It answers 401 when the signature
// does not verify and 200 otherwise, so the provider stops redelivering.
func (h *Handler) Billing(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		response.BadRequest(c, "body", "could not read request body")
		return
	}

	if err := h.dispatcher.Handle(c.Request.Context(), c.Request.Header, body); err != nil {
		if errors.Is(err, apperrors.ErrUnauthorized) {
			response.Error(c, err)
			return
		}
		// Handle only returns verification failures; anything else is still acknowledged.
		_ = c.Error(err)
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
