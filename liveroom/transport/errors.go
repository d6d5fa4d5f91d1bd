package transport

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/imtaco/liveroom/internal/errors"
	"github.com/imtaco/liveroom/internal/log"
	"github.com/imtaco/liveroom/liveroom"
)

var statusByCode = []struct {
	code   errors.Code
	status int
}{
	{liveroom.ErrConfiguration, http.StatusBadRequest},
	{liveroom.ErrUnsupportedKind, http.StatusBadRequest},
	{liveroom.ErrAuthorization, http.StatusForbidden},
	{liveroom.ErrPermissionDenied, http.StatusForbidden},
	{liveroom.ErrRoomNotFound, http.StatusNotFound},
	{liveroom.ErrNotMember, http.StatusNotFound},
	{liveroom.ErrRoomEnded, http.StatusGone},
	{liveroom.ErrStaleRoom, http.StatusGone},
	{liveroom.ErrInvalidTransition, http.StatusConflict},
	{liveroom.ErrClosed, http.StatusConflict},
	{liveroom.ErrIdentityCollision, http.StatusConflict},
	{liveroom.ErrStoreUnavailable, http.StatusServiceUnavailable},
	{liveroom.ErrTransport, http.StatusServiceUnavailable},
}

func statusOf(err error) int {
	for _, m := range statusByCode {
		if errors.Is(err, m.code) {
			return m.status
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// fail answers an engine error. Server-side failures are logged at error
// level, rejected actions only at debug.
func (r *Router) fail(c *gin.Context, action string, err error) {
	status := statusOf(err)
	code, ok := errors.CodeOf(err)
	if !ok {
		code = "internal"
	}
	actionErrors.Add(c.Request.Context(), 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("code", string(code))))
	if status >= http.StatusInternalServerError {
		r.logger.Error("Action failed",
			log.String("action", action),
			log.Int("status", status),
			log.Error(err))
	} else {
		r.logger.Debug("Action rejected",
			log.String("action", action),
			log.Int("status", status),
			log.Error(err))
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
		"code":    code,
	})
}

func badRequest(c *gin.Context, details any) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   "Validation failed",
		"details": details,
	})
}
