package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/mailwatch-ops/mailwatch-backend-go/pkg/errors"
	"github.com/mailwatch-ops/mailwatch-backend-go/pkg/utils"
	"github.com/sirupsen/logrus"
)

// ErrorHandlingMiddleware recovers from panics and turns unhandled gin errors
// into a uniform JSON error body.
func ErrorHandlingMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if recovered := recover(); recovered != nil {
				logger.WithFields(logrus.Fields{
					"panic":  recovered,
					"method": c.Request.Method,
					"path":   c.Request.URL.Path,
					"stack":  string(debug.Stack()),
				}).Error("Panic recovered in HTTP handler")

				utils.SendError(c, errors.ErrInternalServer.Code, errors.ErrInternalServer.Message)
				c.Abort()
			}
		}()

		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last().Err
			status := errors.GetStatusCode(err)

			msg := errors.ErrInternalServer.Message
			if appErr, ok := err.(*errors.AppError); ok {
				msg = appErr.Message
				if appErr.Details != "" {
					msg = appErr.Message + ": " + appErr.Details
				}
			}

			entry := logger.WithError(err).WithFields(logrus.Fields{
				"method": c.Request.Method,
				"path":   c.Request.URL.Path,
				"status": status,
			})
			if errors.IsAppError(err) && status < http.StatusInternalServerError {
				entry.Warn("Request rejected")
			} else {
				entry.Error("Request failed")
			}

			utils.SendError(c, status, msg)
		}
	}
}
