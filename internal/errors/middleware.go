// Package errors provides standardized error handling for the RingForge
// gateway and control plane.
//
// This file implements the panic-recovery middleware (Recovery) and the
// response helper every handler calls directly for the normal
// reject-the-request path (AbortWithError); the AppError type it
// serializes lives in errors.go.
package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/streamspace-dev/ringforge/internal/logger"
)

// Recovery is a middleware that recovers from panics, logs them through the
// structured logger, and responds with a generic internal-server error
// instead of letting the connection drop.
func Recovery() gin.HandlerFunc {
	log := logger.GetLogger()
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().Interface("panic", err).Str("path", c.Request.URL.Path).Msg("recovered from panic")

				c.JSON(http.StatusInternalServerError, ErrorResponse{
					Error:   ErrCodeInternalServer,
					Message: "An unexpected error occurred",
					Code:    ErrCodeInternalServer,
				})

				c.Abort()
			}
		}()

		c.Next()
	}
}

// AbortWithError aborts the request with err's status code and response body.
func AbortWithError(c *gin.Context, err *AppError) {
	c.Error(err)
	c.AbortWithStatusJSON(err.StatusCode, err.ToResponse())
}
