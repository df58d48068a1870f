package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/notifyd/internal/api"
	"github.com/charlesng35/notifyd/internal/app"
	"github.com/charlesng35/notifyd/internal/app/maintenance"
	iauth "github.com/charlesng35/notifyd/internal/auth"
	"github.com/charlesng35/notifyd/internal/cache"
	"github.com/charlesng35/notifyd/internal/database"
	"github.com/charlesng35/notifyd/internal/middleware"
	"github.com/charlesng35/notifyd/internal/monitoring"
	"github.com/charlesng35/notifyd/internal/monitoring/checks"
	"github.com/charlesng35/notifyd/internal/queue"
	"github.com/charlesng35/notifyd/internal/services"
	"github.com/charlesng35/notifyd/pkg/logger"
	"github.com/charlesng35/notifyd/pkg/mail"
)

const databaseProbeTimeout = 2 * time.Second

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Redis      *redis.Client
	Queue      queue.Client
	Monitoring *monitoring.Module
	Cleaner    *maintenance.Cleaner
	RateStore  middleware.RateStore
	Router     *gin.Engine
}

// bootstrapRuntime initialises the database, queue, services and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, generated map[string]bool, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	if err := resolveJWTSecret(ctx, stack.DB, cfg, generated); err != nil {
		return nil, err
	}

	stack.Monitoring, err = monitoring.NewModule(monitoring.Options{})
	if err != nil {
		return nil, fmt.Errorf("initialise monitoring: %w", err)
	}
	monitoring.SetModule(stack.Monitoring)

	dbStore := cache.NewDatabaseStore(stack.DB)

	stack.Queue = queue.Disabled()
	if cfg.Queue.Enabled && !cfg.Queue.ForceDirectEmail {
		stack.Redis, err = cache.NewRedisClient(ctx, cfg.Queue.RedisClientConfig())
		if err != nil {
			log.Warn("redis unavailable; emails will be sent directly", zap.Error(err))
		} else {
			client, qErr := queue.NewRedisClient(stack.Redis, cfg.Queue.ListName())
			if qErr != nil {
				return nil, fmt.Errorf("initialise queue client: %w", qErr)
			}
			stack.Queue = client
			log.Info("redis connected",
				zap.String("addr", cfg.Queue.Redis.Address),
				zap.String("list", client.ListKey()),
			)
		}
	}

	switch {
	case stack.Redis != nil:
		stack.RateStore = middleware.NewRedisRateStore(cache.NewRedisStore(stack.Redis))
	default:
		stack.RateStore = middleware.NewDatabaseRateStore(dbStore)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
	if err != nil {
		return nil, fmt.Errorf("initialise smtp mailer: %w", err)
	}
	if !cfg.Email.SMTP.Enabled {
		log.Warn("smtp disabled; direct email fallback will fail")
	}

	dispatcher, err := services.NewEmailDispatcher(mailer,
		services.WithDispatcherFrom(cfg.Email.SMTP.From),
		services.WithSubjectPrefix(cfg.Email.SubjectPrefix),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise email dispatcher: %w", err)
	}

	tokens, err := services.NewUnsubscribeTokenService(stack.DB, services.WithTokenTTL(cfg.Notifications.TokenTTL))
	if err != nil {
		return nil, fmt.Errorf("initialise unsubscribe tokens: %w", err)
	}

	delivery, err := services.NewEmailDelivery(stack.DB, stack.Queue, dispatcher, tokens,
		services.WithForceDirectEmail(cfg.Queue.ForceDirectEmail),
		services.WithQueueTimeout(cfg.Queue.SubmitTimeout()),
		services.WithSendTimeout(cfg.Email.SMTP.Timeout),
		services.WithUnsubscribeBaseURL(cfg.Server.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise email delivery: %w", err)
	}

	prefs, err := services.NewPreferenceService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise preference service: %w", err)
	}

	notifications, err := services.NewNotificationService(stack.DB, prefs, delivery)
	if err != nil {
		return nil, fmt.Errorf("initialise notification service: %w", err)
	}

	unsubscribe, err := services.NewUnsubscribeService(stack.DB, tokens)
	if err != nil {
		return nil, fmt.Errorf("initialise unsubscribe service: %w", err)
	}

	keys, err := services.NewAPIKeyService(stack.DB, services.WithLegacyAPIKey(cfg.Worker.LegacyAPIKey))
	if err != nil {
		return nil, fmt.Errorf("initialise api key service: %w", err)
	}

	health := stack.Monitoring.Health()
	health.RegisterReadiness(checks.Database(stack.DB, databaseProbeTimeout))
	health.RegisterReadiness(checks.Queue(stack.Queue, cfg.Queue.SubmitTimeout()))
	health.RegisterReadiness(checks.Maintenance(0))

	stack.Cleaner = maintenance.NewCleaner(tokens, keys, dbStore,
		maintenance.WithTokenRetentionDays(cfg.Notifications.TokenRetentionDays),
		maintenance.WithAuditRetentionDays(cfg.Notifications.AuditRetentionDays),
		maintenance.WithSchedule(cfg.Notifications.MaintenanceSchedule),
	)
	if err := stack.Cleaner.RunOnce(ctx); err != nil {
		log.Warn("initial maintenance run failed", zap.Error(err))
	}
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Router, err = api.NewRouter(api.Deps{
		Config:        cfg,
		JWT:           jwtSvc,
		APIKeys:       keys,
		Notifications: notifications,
		Preferences:   prefs,
		Unsubscribe:   unsubscribe,
		Monitoring:    stack.Monitoring,
		RateStore:     stack.RateStore,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			<-stopCtx.Done()
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

// resolveJWTSecret swaps a secret generated at startup for the persisted one
// so restarts and replicas keep accepting each other's tokens.
func resolveJWTSecret(ctx context.Context, db *gorm.DB, cfg *app.Config, generated map[string]bool) error {
	if !generated[app.JWTSecretKey] {
		return nil
	}
	secret, err := database.ResolveJWTSecret(ctx, db, cfg.Auth.JWT.Secret)
	if err != nil {
		return fmt.Errorf("resolve jwt secret: %w", err)
	}
	cfg.Auth.JWT.Secret = secret
	return nil
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		closeDatabase(db, logger.WithModule("database"))
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		dbCfg.Host = strings.TrimSpace(cfg.Database.Postgres.Host)
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.Postgres.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.Postgres.Username)
		dbCfg.Password = cfg.Database.Postgres.Password
	case "mysql", "mariadb":
		dbCfg.Driver = "mysql"
		dbCfg.Host = strings.TrimSpace(cfg.Database.MySQL.Host)
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.MySQL.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.MySQL.Username)
		dbCfg.Password = cfg.Database.MySQL.Password
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
