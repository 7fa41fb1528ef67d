package rest

import (
	"github.com/chatlinkhq/chatlink/server/apperr"
	mw "github.com/chatlinkhq/chatlink/server/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// writeError translates a service error into an HTTP response. Internal
// causes are logged with full context and replaced by an opaque message.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	status := apperr.HTTPStatus(err)
	if status >= 500 {
		logger.Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.String("trace_id", mw.GetTraceID(c)),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": apperr.MessageOf(err)})
}
