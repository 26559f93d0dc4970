package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"bell24h/internal/notify"
)

// DefaultQueues weights the realtime queue over the expiry sweep
var DefaultQueues = map[string]int{
	QueueRealtime: 3,
	QueueDefault:  1,
}

// Worker processes notification deliveries and runs the RFQ expiry schedule
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
}

// TaskHandler binds a task type to its handler
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task
type CronRegistration struct {
	Spec string
	Task *asynq.Task
}

// WorkerConfig holds the worker's queue settings and task wiring
type WorkerConfig struct {
	RedisOpts       asynq.RedisClientOpt
	Concurrency     int            // Defaults to 5
	Queues          map[string]int // Queue priorities, DefaultQueues when empty
	Logger          asynq.Logger   // Defaults to the logrus standard logger
	ShutdownTimeout time.Duration  // Grace period for in-flight tasks
	Handlers        []TaskHandler
	Cron            []CronRegistration
}

func (cfg WorkerConfig) asynqConfig() asynq.Config {
	ac := asynq.Config{
		Concurrency:     cfg.Concurrency,
		Queues:          cfg.Queues,
		Logger:          cfg.Logger,
		ShutdownTimeout: cfg.ShutdownTimeout,
		ErrorHandler:    asynq.ErrorHandlerFunc(logTaskFailure),
	}
	if ac.Concurrency <= 0 {
		ac.Concurrency = 5
	}
	if len(ac.Queues) == 0 {
		ac.Queues = DefaultQueues
	}
	if ac.Logger == nil {
		ac.Logger = logrus.StandardLogger()
	}
	if ac.ShutdownTimeout <= 0 {
		ac.ShutdownTimeout = 10 * time.Second
	}
	return ac
}

func logTaskFailure(ctx context.Context, task *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	logrus.WithFields(logrus.Fields{
		"task":      task.Type(),
		"retried":   retried,
		"max_retry": maxRetry,
	}).WithError(err).Warn("Task failed")
}

// NewWorker validates the task wiring and builds the server and scheduler
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	mux := asynq.NewServeMux()
	seen := make(map[string]bool, len(cfg.Handlers))
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			return nil, errors.New("worker: handler needs a task type and a function")
		}
		if seen[h.Type] {
			return nil, fmt.Errorf("worker: duplicate handler for %s", h.Type)
		}
		seen[h.Type] = true
		mux.HandleFunc(h.Type, h.Handler)
	}
	for _, entry := range cfg.Cron {
		if entry.Task == nil || !seen[entry.Task.Type()] {
			return nil, fmt.Errorf("worker: cron %q has no handler", entry.Spec)
		}
	}

	ac := cfg.asynqConfig()
	w := &Worker{server: asynq.NewServer(cfg.RedisOpts, ac), mux: mux}
	if len(cfg.Cron) > 0 {
		w.scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC, Logger: ac.Logger})
		for _, entry := range cfg.Cron {
			if _, err := w.scheduler.Register(entry.Spec, entry.Task); err != nil {
				return nil, fmt.Errorf("worker: cron %q: %w", entry.Spec, err)
			}
		}
	}
	return w, nil
}

// Run processes tasks until ctx is cancelled, then drains in-flight work
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			w.server.Shutdown()
			return err
		}
	}
	<-ctx.Done()
	if w.scheduler != nil {
		w.scheduler.Shutdown()
	}
	w.server.Shutdown()
	return ctx.Err()
}

// Client submits jobs to the queue
type Client struct {
	client *asynq.Client
}

var _ notify.Enqueuer = (*Client)(nil)

// NewClient constructs an Asynq client
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueDelivery queues an envelope for the relay
func (c *Client) EnqueueDelivery(ctx context.Context, env notify.Envelope) error {
	task, err := NewNotificationDeliverTask(env)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task)
	return err
}

// Close releases client resources
func (c *Client) Close() error {
	return c.client.Close()
}
