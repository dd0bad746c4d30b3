package handler

import (
	"errors"
	"net/http"

	"github.com/Growity-ai-lab/joseph-mews-dashboard/middleware"
	"github.com/Growity-ai-lab/joseph-mews-dashboard/pkg/logger"
	"github.com/Growity-ai-lab/joseph-mews-dashboard/service"
	"github.com/gin-gonic/gin"
)

// statusFor maps service errors onto HTTP statuses and user-facing text
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrConnection):
		return http.StatusBadGateway, "Could not load the lead tracker: " + err.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func writeError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), "request failed", "error", err)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{
		"error":      msg,
		"request_id": middleware.GetRequestID(c),
	})
}

func forbidden(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
		"error":      msg,
		"request_id": middleware.GetRequestID(c),
	})
}
