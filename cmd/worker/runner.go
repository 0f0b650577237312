package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmehdipour/zoohub/internal/circuit"
	"github.com/jmehdipour/zoohub/internal/config"
	"github.com/jmehdipour/zoohub/internal/db"
	"github.com/jmehdipour/zoohub/internal/executor"
	"github.com/jmehdipour/zoohub/internal/logger"
	"github.com/jmehdipour/zoohub/internal/metrics"
	"github.com/jmehdipour/zoohub/internal/repository"
	"github.com/jmehdipour/zoohub/internal/retry"
	"github.com/jmehdipour/zoohub/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var runnerCmd = &cobra.Command{
	Use:   "runner",
	Short: "Run the job runner (claims due jobs and executes actions)",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger.Init(cfg.Log.Level)
		metrics.MustRegister(prometheus.DefaultRegisterer)

		// 2) DB connection (MySQL)
		dbx, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer dbx.Close()

		// 3) repositories
		jobsRepo := repository.NewJobsRepository(dbx)
		attemptsRepo := repository.NewAttemptsRepository(dbx)
		circuitsRepo := repository.NewCircuitsRepository(dbx)

		// 4) circuit breaker + executors
		breaker := circuit.NewBreaker(dbx, circuitsRepo, circuit.Config{
			FailThreshold: cfg.Breaker.FailThreshold,
			CoolDown:      cfg.Breaker.CoolDown,
		})

		execs := executor.NewRegistry(
			executor.NewWebhookExecutor(executor.WebhookOpts{
				Timeout:         cfg.Webhook.Timeout,
				SigningSecret:   cfg.Webhook.SigningSecret,
				SignatureHeader: cfg.Webhook.SignatureHeader,
				TimestampHeader: cfg.Webhook.TimestampHeader,
			}),
			executor.NewEmailExecutor(executor.EmailOpts{
				SMTPAddr: cfg.Email.SMTPAddr,
				From:     cfg.Email.From,
			}),
		)

		policy := retry.Policy{
			MaxAttempts:   cfg.Retry.MaxAttempts,
			BaseDelay:     cfg.Retry.BaseDelay,
			Factor:        cfg.Retry.Factor,
			MaxDelay:      cfg.Retry.MaxDelay,
			JitterPercent: cfg.Retry.JitterPercent,
		}

		r := worker.NewRunner(dbx, jobsRepo, attemptsRepo, breaker, execs, policy)

		// tune knobs
		if cfg.Runner.WorkerCount > 0 {
			r.Workers = cfg.Runner.WorkerCount
		}
		if cfg.Runner.BatchSize > 0 {
			r.BatchSize = cfg.Runner.BatchSize
		}
		if cfg.Runner.PollInterval > 0 {
			r.PollInterval = cfg.Runner.PollInterval
		}
		if cfg.Runner.IdleDelay > 0 {
			r.IdleDelay = cfg.Runner.IdleDelay
		}
		if cfg.Runner.LivenessThreshold > 0 {
			r.LivenessThreshold = cfg.Runner.LivenessThreshold
		}
		if cfg.Runner.SweepInterval > 0 {
			r.SweepInterval = cfg.Runner.SweepInterval
		}

		// 5) graceful shutdown
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Printf(">> runner started workers=%d batch=%d poll=%s",
			r.Workers, r.BatchSize, r.PollInterval)

		return r.Run(ctx)
	},
}
