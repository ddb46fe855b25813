package response

import (
	"github.com/gin-gonic/gin"

	apperrors "github.com/assistly/server/internal/shared/errors"
)

// Error classifies err and writes the standard error body.
// The error is attached to the gin context so the logging middleware records its cause.
func Error(c *gin.Context, err error) {
	appErr := apperrors.From(err)
	_ = c.Error(err)
	c.JSON(appErr.StatusCode(), appErr.ToResponse())
}

// Abort is Error followed by aborting the handler chain.
func Abort(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}

// BadRequest sends a validation error for field.
func BadRequest(c *gin.Context, field, message string) {
	Error(c, apperrors.Validation(field, message))
}

// Unauthorized sends a 401 with the given code.
func Unauthorized(c *gin.Context, code, message string) {
	Abort(c, apperrors.Unauthorized(code, message))
}
