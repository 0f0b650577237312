package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmehdipour/zoohub/internal/config"
	"github.com/jmehdipour/zoohub/internal/db"
	"github.com/jmehdipour/zoohub/internal/dispatcher"
	"github.com/jmehdipour/zoohub/internal/kafka"
	"github.com/jmehdipour/zoohub/internal/logger"
	"github.com/jmehdipour/zoohub/internal/metrics"
	"github.com/jmehdipour/zoohub/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var dispatcherCmd = &cobra.Command{
	Use:   "dispatcher",
	Short: "Run the event dispatcher (Kafka envelopes → rule matching → jobs)",
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

		// 3) repositories + dispatch service
		eventsRepo := repository.NewEventsRepository(dbx)
		rulesRepo := repository.NewRulesRepository(dbx)
		jobsRepo := repository.NewJobsRepository(dbx)

		svc := dispatcher.NewService(dbx, eventsRepo, rulesRepo, jobsRepo, cfg.Retry.MaxAttempts)

		// 4) kafka consumer
		groupID := cfg.Kafka.GroupID
		if groupID == "" {
			groupID = "zoohub-dispatcher"
		}
		consumer := kafka.NewConsumerFromConfig(kafka.Config{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          cfg.Kafka.Topic,
			GroupID:        groupID,
			MinBytes:       cfg.Kafka.MinBytes,
			MaxBytes:       cfg.Kafka.MaxBytes,
			CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
		})
		defer consumer.Close()

		w := dispatcher.NewWorker(consumer, svc)
		if cfg.Dispatcher.WorkerCount > 0 {
			w.Workers = cfg.Dispatcher.WorkerCount
		}

		// 5) graceful shutdown
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Printf(">> dispatcher started topic=%s group=%s workers=%d",
			cfg.Kafka.Topic, groupID, w.Workers)

		return w.Run(ctx)
	},
}
