package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/termengine/internal/dispatch"
	"github.com/GriffinCanCode/termengine/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/termengine/internal/registry"
	"github.com/GriffinCanCode/termengine/internal/session"
	"github.com/GriffinCanCode/termengine/internal/transport"
)

// statusFor maps an engine error onto an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrUnknownSession):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidState), errors.Is(err, session.ErrSessionClosing):
		return http.StatusConflict
	case errors.Is(err, session.ErrInputQueueFull),
		errors.Is(err, resilience.ErrCircuitOpen),
		errors.Is(err, resilience.ErrTooManyRequests),
		errors.Is(err, registry.ErrRegistryClosed),
		errors.Is(err, dispatch.ErrDispatcherClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, transport.ErrInvalidSpec),
		errors.Is(err, dispatch.ErrUnknownKey),
		errors.Is(err, dispatch.ErrUnknownEvent):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as a JSON error body and records it on the context
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
