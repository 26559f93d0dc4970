package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bell24h/internal/config"
	"bell24h/internal/db"
	"bell24h/internal/jobs"
	"bell24h/internal/notify"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// The worker delivers queued notifications to the relay and runs the RFQ expiry sweep
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	config.SetupLogger(cfg)

	gdb, err := db.Open(cfg.MySQLDSN(), !cfg.IsProd())
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err)
	}
	redisClient := redis.NewClient(cfg.RedisOptions())
	defer redisClient.Close()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logrus.Fatalf("failed to connect to Redis: %v", err)
	}

	publisher := notify.NewRedisPublisher(redisClient, cfg.NotifyChannel)
	// Jobs publish directly instead of queueing more jobs
	notifier := notify.NewService(gdb, publisher, nil)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:       cfg.AsynqRedisOpt(),
		Concurrency:     10,
		Queues:          jobs.DefaultQueues,
		Logger:          logrus.StandardLogger(),
		ShutdownTimeout: 15 * time.Second,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskNotificationDeliver, Handler: jobs.HandleNotificationDeliver(publisher)},
			{Type: jobs.TaskRFQExpire, Handler: jobs.HandleRFQExpire(gdb, notifier, notifier)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: jobs.RFQExpiryCron, Task: jobs.NewRFQExpireTask()},
		},
	})
	if err != nil {
		logrus.Fatalf("failed to build worker: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logrus.Info("Worker running")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logrus.Fatalf("worker stopped: %v", err)
	}
	logrus.Info("Worker stopped")
}
