package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const corsMaxAge = 12 * time.Hour

// CORS allows the configured frontend origins to call the owner API and the
// resubscribe endpoint. With no origins configured every origin is allowed.
// Origins without an http or https scheme are ignored.
func CORS(allowedOrigins ...string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "Content-Type", APIKeyHeader},
		ExposeHeaders: []string{"Retry-After"},
		MaxAge:        corsMaxAge,
	}

	for _, origin := range allowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if strings.HasPrefix(origin, "http://") || strings.HasPrefix(origin, "https://") {
			cfg.AllowOrigins = append(cfg.AllowOrigins, origin)
		}
	}
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowAllOrigins = true
	}

	return cors.New(cfg)
}
