package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/notifyd/internal/app"
	"github.com/charlesng35/notifyd/internal/services"
	"github.com/charlesng35/notifyd/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath  string
	createKey   string
	keyTTL      time.Duration
	revokeKeyID string
}

func parseFlags(args []string, out io.Writer) (options, error) {
	fs := flag.NewFlagSet("notifyd", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts options
	fs.StringVar(&opts.configPath, "config", "", "Path to configuration directory or file")
	fs.StringVar(&opts.createKey, "create-api-key", "", "Issue a worker API key with this name, print it and exit")
	fs.DurationVar(&opts.keyTTL, "api-key-ttl", 0, "Lifetime of the key issued by -create-api-key (0 never expires)")
	fs.StringVar(&opts.revokeKeyID, "revoke-api-key", "", "Deactivate the worker API key with this id and exit")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.createKey != "" && opts.revokeKeyID != "" {
		return options{}, errors.New("-create-api-key and -revoke-api-key are mutually exclusive")
	}
	return opts, nil
}

func run(ctx context.Context, args []string) error {
	opts, err := parseFlags(args, os.Stdout)
	if err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(opts.configPath)
	if err != nil {
		return err
	}

	generated, err := app.ApplyRuntimeDefaults(cfg)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel, cfg.Server.LogFormat); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")
	for key := range generated {
		log.Info("generated runtime secret", zap.String("key", key))
	}

	if opts.createKey != "" || opts.revokeKeyID != "" {
		return runKeyCommand(ctx, cfg, opts, os.Stdout, log)
	}

	stack, err := bootstrapRuntime(ctx, cfg, generated, log)
	if err != nil {
		return err
	}
	defer stack.Shutdown(context.Background(), log)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           stack.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

// runKeyCommand issues or revokes a worker API key against the configured database.
func runKeyCommand(ctx context.Context, cfg *app.Config, opts options, out io.Writer, log *zap.Logger) error {
	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	keys, err := services.NewAPIKeyService(db)
	if err != nil {
		return err
	}

	if opts.revokeKeyID != "" {
		if err := keys.Revoke(ctx, opts.revokeKeyID); err != nil {
			return fmt.Errorf("revoke api key: %w", err)
		}
		fmt.Fprintf(out, "revoked api key %s\n", opts.revokeKeyID)
		return nil
	}

	var expiresAt *time.Time
	if opts.keyTTL > 0 {
		at := time.Now().UTC().Add(opts.keyTTL)
		expiresAt = &at
	}
	created, err := keys.Create(ctx, opts.createKey, expiresAt)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	fmt.Fprintf(out, "id:     %s\nname:   %s\nprefix: %s\nkey:    %s\n", created.ID, created.Name, created.Prefix, created.Key)
	if created.ExpiresAt != nil {
		fmt.Fprintf(out, "expires: %s\n", created.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Fprintln(out, "store the key now; it cannot be shown again")
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}
