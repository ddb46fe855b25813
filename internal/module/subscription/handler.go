package subscription

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/assistly/server/internal/shared/errors"
	"github.com/assistly/server/internal/shared/logger"
	"github.com/assistly/server/internal/shared/middleware"
	"github.com/assistly/server/internal/shared/response"
)

// Handler handles HTTP requests for subscriptions.
type Handler struct {
	service ServiceInterface
	appURL  string
}

// NewHandler creates a new subscription handler. appURL is the front end the
// provider redirects land on.
func NewHandler(service ServiceInterface, appURL string) *Handler {
	return &Handler{service: service, appURL: strings.TrimRight(appURL, "/")}
}

// RegisterRoutes registers the subscription routes. r must already require authentication.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	sub := r.Group("/subscription")
	{
		sub.POST("/create", h.Create)
		sub.POST("/confirm", h.Confirm)
		sub.POST("/cancel", h.Cancel)
		sub.GET("/status", h.Status)
	}
}

// RegisterRedirectRoutes registers the browser redirects the provider sends the user to.
func (h *Handler) RegisterRedirectRoutes(r *gin.RouterGroup) {
	billing := r.Group("/billing")
	{
		billing.GET("/return", h.Return)
		billing.GET("/cancel", h.ApprovalCancelled)
	}
}

// Create opens a subscription and returns the approval URL.
func (h *Handler) Create(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperrors.Unauthorized("", ""))
		return
	}

	var req CreateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "body", "invalid request body")
			return
		}
	}

	result, err := h.service.RequestUpgrade(c.Request.Context(), accountID, req.PlanID)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Confirm upgrades the caller after the provider approved the subscription.
func (h *Handler) Confirm(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperrors.Unauthorized("", ""))
		return
	}

	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "subscription_id", "subscription id is required")
		return
	}

	result, err := h.service.ConfirmUpgrade(c.Request.Context(), accountID, req.SubscriptionID)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Cancel requests cancellation of the caller's subscription.
func (h *Handler) Cancel(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperrors.Unauthorized("", ""))
		return
	}

	var req CancelRequest
	if c.Request.ContentLength != 0 {
		// The reason is optional; a malformed body falls back to the default.
		_ = c.ShouldBindJSON(&req)
	}

	result, err := h.service.RequestCancellation(c.Request.Context(), accountID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Status returns the caller's plan view.
func (h *Handler) Status(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperrors.Unauthorized("", ""))
		return
	}

	view, err := h.service.GetStatus(c.Request.Context(), accountID)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// Return handles the provider's post-approval redirect and sends the user back
// to the account page with the outcome.
func (h *Handler) Return(c *gin.Context) {
	subscriptionID := c.Query("subscription_id")
	if subscriptionID == "" {
		h.redirect(c, "error")
		return
	}

	if _, err := h.service.ConfirmReturn(c.Request.Context(), subscriptionID); err != nil {
		logger.FromContext(c.Request.Context()).Warn("subscription return not confirmed",
			zap.String("subscription_id", subscriptionID),
			zap.Error(err),
		)
		_ = c.Error(err)
		h.redirect(c, "error")
		return
	}
	h.redirect(c, "upgraded")
}

// ApprovalCancelled handles the redirect sent when the user abandons approval.
func (h *Handler) ApprovalCancelled(c *gin.Context) {
	h.redirect(c, "cancelled")
}

func (h *Handler) redirect(c *gin.Context, status string) {
	q := url.Values{}
	q.Set("status", status)
	if status == "upgraded" {
		q.Set("planChanged", "true")
	}
	c.Redirect(http.StatusFound, h.appURL+"/account?"+q.Encode())
}
