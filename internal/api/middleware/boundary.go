package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/quantforge/QuantForge/backend/internal/logging"
)

// ErrorClassifier attributes an unanticipated error to an integration and
// escalates it. Implemented by the degraded-mode watcher.
type ErrorClassifier interface {
	HandleError(err error) (string, bool)
}

// ErrorBoundary recovers panics at the outer HTTP edge. When the failure
// message names a known integration, that breaker is forced open so a
// crash caused by a down dependency degrades the integration instead of
// only returning a 500.
func ErrorBoundary(classifier ErrorClassifier, logger *logging.Logger) gin.HandlerFunc {
	boundaryLogger := logger.Component("boundary")
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				err, ok := r.(error)
				if !ok {
					err = fmt.Errorf("panic: %v", r)
				}

				fields := []zap.Field{
					zap.String("path", c.FullPath()),
					zap.Error(err),
				}
				if integration, attributed := classifier.HandleError(err); attributed {
					fields = append(fields, zap.String("integration", integration))
				}
				boundaryLogger.Error("recovered panic in handler", fields...)

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "internal error",
				})
			}
		}()
		c.Next()
	}
}
