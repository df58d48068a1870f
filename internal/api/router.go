package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlesng35/notifyd/internal/app"
	iauth "github.com/charlesng35/notifyd/internal/auth"
	"github.com/charlesng35/notifyd/internal/handlers"
	"github.com/charlesng35/notifyd/internal/middleware"
	"github.com/charlesng35/notifyd/internal/monitoring"
	"github.com/charlesng35/notifyd/internal/services"
)

// Deps carries the collaborators the router wires into handlers.
type Deps struct {
	Config        *app.Config
	JWT           *iauth.JWTService
	APIKeys       middleware.APIKeyAuthenticator
	Notifications *services.NotificationService
	Preferences   *services.PreferenceService
	Unsubscribe   *services.UnsubscribeService
	Monitoring    *monitoring.Module
	// RateStore backs the unsubscribe and user API limits; nil uses process memory.
	RateStore middleware.RateStore
}

func (d Deps) validate() error {
	switch {
	case d.Config == nil:
		return fmt.Errorf("config must be provided")
	case d.JWT == nil:
		return fmt.Errorf("jwt service must be provided")
	case d.APIKeys == nil:
		return fmt.Errorf("api key authenticator must be provided")
	case d.Notifications == nil:
		return fmt.Errorf("notification service must be provided")
	case d.Preferences == nil:
		return fmt.Errorf("preference service must be provided")
	case d.Unsubscribe == nil:
		return fmt.Errorf("unsubscribe service must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers every route.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins...))

	limiter := middleware.RateLimit(deps.RateStore, cfg.RateLimit.Requests, cfg.RateLimit.Window)

	var healthManager *monitoring.HealthManager
	if cfg.Monitoring.Health.Enabled {
		healthManager = deps.Monitoring.Health()
	}
	registerHealthRoutes(r, handlers.NewHealthHandler(healthManager))

	registerUnsubscribeRoutes(r.Group("/unsubscribe", limiter),
		handlers.NewUnsubscribeHandler(deps.Unsubscribe, cfg.Server.FrontendURL))

	internal := r.Group("/internal", middleware.APIKey(deps.APIKeys))
	registerInternalRoutes(internal, handlers.NewInternalNotificationHandler(deps.Notifications))
	registerMonitoringRoutes(internal, handlers.NewMonitoringHandler(
		deps.Monitoring,
		cfg.Monitoring.Prometheus.Enabled,
		cfg.Monitoring.Prometheus.Endpoint,
	))

	api := r.Group("/api", middleware.Auth(deps.JWT), limiter)
	registerNotificationRoutes(api,
		handlers.NewNotificationHandler(deps.Notifications),
		handlers.NewPreferenceHandler(deps.Preferences),
	)

	if cfg.Monitoring.Prometheus.Enabled {
		r.GET(metricsEndpoint(cfg), gin.WrapH(metricsHandler(deps.Monitoring)))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

func metricsEndpoint(cfg *app.Config) string {
	endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
	if endpoint == "" {
		return "/metrics"
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return endpoint
}

func metricsHandler(mon *monitoring.Module) http.Handler {
	if mon == nil {
		return promhttp.Handler()
	}
	return mon.Handler()
}
