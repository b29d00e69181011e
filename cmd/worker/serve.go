package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"document-intelligence/internal/infra/metrics"
	"document-intelligence/internal/infra/sched"
	"document-intelligence/internal/infra/web"
	"document-intelligence/internal/infra/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the lease loop, the HTTP endpoints and the stats collector",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := connectStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.wirePipelines(ctx); err != nil {
		return err
	}

	var auth *web.AuthManager
	if cfg.HTTP.AdminSecret != "" {
		auth = web.NewAuthManager(cfg.HTTP.AdminSecret, cfg.HTTP.TokenTTL)
	}
	srv := web.NewServer(a.enqueue, auth, a.readiness(), logger)
	collector := sched.NewStatsCollector(cfg.Scheduler.StatsCron, a.jobs, a.poolStats, logger)

	metrics.SetBuildInfo(version, commit)
	pool := worker.NewPool(cfg.Queue.Concurrency, logger)
	pool.Start(ctx)
	defer pool.Stop()
	proc := worker.NewJobProcessor(a.jobs, a.orch, a.events,
		time.Duration(cfg.Queue.LeaseSeconds)*time.Second, cfg.Queue.PollInterval, logger)

	logger.Info().
		Str("owner", proc.Owner()).
		Str("queue", cfg.Queue.Driver).
		Int("concurrency", cfg.Queue.Concurrency).
		Msg("worker starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, fmt.Sprintf(":%d", cfg.HTTP.Port))
	})
	g.Go(func() error {
		proc.Start(gctx, pool)
		return nil
	})
	g.Go(func() error {
		return collector.Run(gctx)
	})

	err = g.Wait()
	logger.Info().Msg("worker stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
