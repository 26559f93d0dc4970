package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bell24h/internal/config"
	"bell24h/internal/notify"
	"bell24h/internal/realtime"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// The relay holds WebSocket connections and forwards notifications published by the API and worker
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	config.SetupLogger(cfg)
	if cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	redisClient := redis.NewClient(cfg.RedisOptions())
	defer redisClient.Close()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logrus.Fatalf("failed to connect to Redis: %v", err)
	}

	hub := realtime.NewHub(realtime.JWTAuthenticator(cfg.JWTSecret), realtime.Options{
		AuthTimeout:  cfg.RelayAuthTimeout,
		PendingLimit: cfg.RelayPendingLimit,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.RelayPort,
		Handler:           realtime.NewRouter(hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := notify.Subscribe(gctx, redisClient, cfg.NotifyChannel, func(env notify.Envelope) {
			hub.Dispatch(env)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		logrus.WithField("port", cfg.RelayPort).Info("Notification relay running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// Hijacked sockets are not tracked by the HTTP server
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logrus.Fatalf("relay stopped: %v", err)
	}
	logrus.Info("Notification relay stopped")
}
