package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/charlesng35/notifyd/pkg/logger"
)

// Logger writes one structured access log line per request. Query strings are
// never logged because unsubscribe links carry their token there. Server
// errors log at error level and client errors at warn.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}

		fields := []zap.Field{
			zap.String("surface", routeSurface(route)),
			zap.String("method", method),
			zap.String("path", path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		logger.WithModule("http").Log(accessLogLevel(status), "request", fields...)
	}
}

func accessLogLevel(status int) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status >= http.StatusBadRequest:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
