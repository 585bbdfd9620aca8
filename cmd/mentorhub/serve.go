// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/mentorhub/mentorhub/internal/auth"
	"github.com/mentorhub/mentorhub/internal/auth/postgres"
	"github.com/mentorhub/mentorhub/internal/config"
	"github.com/mentorhub/mentorhub/internal/httpapi"
	"github.com/mentorhub/mentorhub/internal/logging"
	"github.com/mentorhub/mentorhub/internal/mail"
	"github.com/mentorhub/mentorhub/internal/observability"
	"github.com/mentorhub/mentorhub/internal/store"
	"github.com/mentorhub/mentorhub/internal/xdg"
	"github.com/mentorhub/mentorhub/pkg/errutil"
)

// shutdownTimeout bounds the graceful drain on SIGINT/SIGTERM.
const shutdownTimeout = 10 * time.Second

// serveConfig holds the flags of the serve command.
type serveConfig struct {
	printConfig bool
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	scfg := &serveConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the observability server",
		Long: `Start the JSON auth API and, unless --metrics-addr is empty, the
metrics and health probe listener. The process drains in-flight requests on
SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, scfg)
		},
	}
	cmd.Flags().BoolVar(&scfg.printConfig, "print-config", false, "print the effective configuration with secrets redacted, then exit")

	return cmd
}

func runServe(cmd *cobra.Command, scfg *serveConfig) error {
	cfg, err := config.Load(xdg.ResolveConfigFile(configFile), cmd.Flags())
	if err != nil {
		return err
	}

	if scfg.printConfig {
		redacted := cfg.Redacted()
		out, err := redacted.YAML()
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(out)) //nolint:errcheck // best-effort console output
		return nil
	}

	logger, err := logging.SetDefault(serviceName, version, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTLPEndpoint, serviceName, version)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	pool, err := store.OpenPool(ctx, cfg.DatabaseURL, store.PoolOptions{ConnectTimeout: 5 * time.Second})
	if err != nil {
		return err
	}
	defer pool.Close()

	obs := observability.NewServer(cfg.MetricsAddr, store.NewReadinessChecker(pool, 0).IsReady)

	app, err := newApp(cfg, postgres.NewUserRepository(pool), obs.Metrics(), logger)
	if err != nil {
		return err
	}
	defer app.close(logger)

	// A failing listener cancels ctx so the other one drains too.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.MetricsAddr != "" {
		obsErrCh, err := obs.Start()
		if err != nil {
			return err
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
	}

	apiErrCh, err := app.api.Start()
	if err != nil {
		stopServer(logger, "observability", obs.Stop)
		return err
	}
	go monitorServerErrors(ctx, cancel, apiErrCh, "http")

	logger.Info("mentorhub ready", "http_addr", app.api.Addr(), "metrics_addr", obs.Addr(), "env", cfg.Env)
	<-ctx.Done()
	logger.Info("shutting down")

	stopServer(logger, "http", app.api.Stop)
	stopServer(logger, "observability", obs.Stop)

	logger.Info("shutdown complete")
	return nil
}

// app is the wired request path: account service, mailer and API server.
type app struct {
	api    *httpapi.Server
	mailer mail.Sender
}

// newApp wires the services that sit on top of the user store.
func newApp(cfg *config.Config, users auth.UserRepository, metrics *observability.Metrics, logger *slog.Logger) (*app, error) {
	tokens, err := auth.NewVerificationTokenService(users, cfg.VerificationTTL)
	if err != nil {
		return nil, err
	}
	sessions, err := auth.NewSessionTokenService([]byte(cfg.JWTSecret), cfg.SessionTTL())
	if err != nil {
		return nil, err
	}
	validator, err := auth.NewValidator()
	if err != nil {
		return nil, err
	}
	mailer, err := mail.New(cfg, logger)
	if err != nil {
		return nil, err
	}

	accounts, err := auth.NewAccountService(auth.AccountDeps{
		Users:     users,
		Hasher:    auth.NewLimitedHasher(auth.NewArgon2idHasher(), cfg.HashConcurrency),
		Tokens:    tokens,
		Sessions:  sessions,
		Mailer:    mailer,
		Validator: validator,
		Logger:    logger,
	})
	if err != nil {
		_ = mailer.Close() //nolint:errcheck // construction error takes precedence
		return nil, err
	}

	api, err := httpapi.NewServer(httpapi.Deps{
		Config:   cfg,
		Accounts: accounts,
		Sessions: sessions,
		Users:    users,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		_ = mailer.Close() //nolint:errcheck // construction error takes precedence
		return nil, err
	}

	return &app{api: api, mailer: mailer}, nil
}

// close releases the rate limiter and flushes the mailer.
func (a *app) close(logger *slog.Logger) {
	a.api.Close()
	if err := a.mailer.Close(); err != nil {
		errutil.LogError(logger, "mailer close failed", err)
	}
}

func stopServer(logger *slog.Logger, name string, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		errutil.LogError(logger, "server stop failed", oops.With("server", name).Wrap(err))
	}
}

// monitorServerErrors cancels ctx when a server reports a serve error. It
// returns when the channel closes or ctx ends.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		slog.Error("server error, triggering shutdown", "server", serverName, "error", err)
		cancel()
	case <-ctx.Done():
	}
}
