// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/tsugiyama-dev/EXPENSES/internal/access"
	"github.com/tsugiyama-dev/EXPENSES/internal/auth"
	"github.com/tsugiyama-dev/EXPENSES/internal/config"
	"github.com/tsugiyama-dev/EXPENSES/internal/directory"
	"github.com/tsugiyama-dev/EXPENSES/internal/events"
	"github.com/tsugiyama-dev/EXPENSES/internal/expense"
	expensepg "github.com/tsugiyama-dev/EXPENSES/internal/expense/postgres"
	"github.com/tsugiyama-dev/EXPENSES/internal/httpapi"
	"github.com/tsugiyama-dev/EXPENSES/internal/logging"
	"github.com/tsugiyama-dev/EXPENSES/internal/notify"
	"github.com/tsugiyama-dev/EXPENSES/internal/observability"
	"github.com/tsugiyama-dev/EXPENSES/internal/store"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the expense approval HTTP service",
		Long: `Start the HTTP/JSON API together with the event worker pool,
mail notifications, and the observability endpoint.`,
		RunE: runServe,
	}
	// Flag defaults mirror config.Default so an unset flag never shadows a
	// file value.
	defaults := config.Default()
	cmd.Flags().String("http.addr", defaults.HTTP.Addr, "HTTP listen address")
	cmd.Flags().String("storage.dsn", "", "PostgreSQL DSN")
	cmd.Flags().String("observability.addr", defaults.Observability.Addr, "metrics/health listen address")
	cmd.Flags().String("log.format", defaults.Log.Format, "log format: json or text")
	cmd.Flags().Bool("auto-migrate", false, "apply pending migrations before serving")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.Storage.DSN == "" {
		return oops.Code("CONFIG_INVALID").Errorf("storage.dsn is required")
	}

	logging.SetDefault("expensed", Version, cfg.Log.Format)
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if autoMigrate, _ := cmd.Flags().GetBool("auto-migrate"); autoMigrate {
		migrator, err := store.NewMigrator(cfg.Storage.DSN)
		if err != nil {
			return err
		}
		if err := migrator.Up(); err != nil {
			return err
		}
		if err := migrator.Close(); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	pool, err := store.Connect(ctx, cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	obs := observability.NewServer(cfg.Observability.Addr, func() bool {
		return pool.Ping(context.Background()) == nil
	})
	obsErr, err := obs.Start()
	if err != nil {
		return err
	}
	events.RegisterMetrics(obs.Registry())

	bus := events.New(events.Config{
		CoreWorkers:   cfg.Events.Pool.Core,
		MaxWorkers:    cfg.Events.Pool.Max,
		QueueCapacity: cfg.Events.Queue.Capacity,
		TaskTimeout:   cfg.Events.Task.Timeout,
		Logger:        logger,
	})

	users := directory.NewStore(pool)
	dir := directory.NewCached(users, cfg.Directory.CacheTTL, nil)

	mailer, err := notify.NewSMTPMailer(notify.SMTPConfig{
		From:     cfg.Mail.From,
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
	})
	if err != nil {
		return err
	}
	notify.NewListener(mailer, dir, logger).Register(bus)
	notify.NewAnalytics(obs.Registry(), logger).Register(bus)

	svc := expense.NewService(expense.ServiceConfig{
		Repo:   expensepg.NewExpenseRepository(pool),
		Audit:  expensepg.NewAuditLogRepository(pool),
		Tx:     expensepg.NewTransactor(pool),
		Bus:    bus,
		Policy: access.NewPolicy(),
		Logger: logger,
	})

	resolver := auth.NewBasicResolver(users, auth.NewHasher(cfg.Security.PasswordHashCost))
	api := httpapi.NewServer(svc, resolver, logger)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- api.Run(ctx, cfg.HTTP.Addr)
	}()

	select {
	case err = <-serveErr:
	case obsFailure := <-obsErr:
		err = obsFailure
		stop()
		<-serveErr
	}

	// Drain queued events before shutting down the metrics endpoint so the
	// final counters are scrapeable.
	drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if closeErr := bus.Close(drainCtx); closeErr != nil {
		logger.Warn("event bus drain timed out", "error", closeErr)
	}
	if stopErr := obs.Stop(drainCtx); stopErr != nil && err == nil {
		err = stopErr
	}

	logger.Info("shutdown complete")
	return err
}
