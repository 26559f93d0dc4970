package main

import (
	"context"   // Context for startup checks and shutdown
	"errors"    // Error inspection
	"net/http"  // HTTP server
	"os"        // Signals
	"os/signal" // Signal handling
	"syscall"   // SIGTERM
	"time"      // Timeouts

	"bell24h/internal/api"     // REST handlers
	"bell24h/internal/config"  // Configuration
	"bell24h/internal/db"      // Database connection
	"bell24h/internal/jobs"    // Background job client
	"bell24h/internal/notify"  // Notification dispatch
	"bell24h/internal/payment" // Payout gateway
	"bell24h/internal/utils"   // OTP store

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
	"golang.org/x/sync/errgroup"   // Server lifecycle
)

// Main function to set up and run the API server
func main() {
	cfg, err := config.LoadConfig() // Load configuration
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	config.SetupLogger(cfg) // Setup logger

	// Connect to the database
	gdb, err := db.Open(cfg.MySQLDSN(), !cfg.IsProd())
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err) // Fatal error if DB connection fails
	}

	// Setup Redis client
	redisClient := redis.NewClient(cfg.RedisOptions())
	defer redisClient.Close()
	// Test Redis connection
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logrus.Fatalf("failed to connect to Redis: %v", err)
	}

	// Set Mode to Release if in production
	if cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Notifications are queued for the worker, which publishes them to the relay
	jobClient := jobs.NewClient(cfg.AsynqRedisOpt())
	defer jobClient.Close()
	notifier := notify.NewService(gdb, notify.NewRedisPublisher(redisClient, cfg.NotifyChannel), jobClient)

	// Payouts go to RazorpayX when credentials are configured
	var gateway payment.Gateway = payment.Sandbox{}
	if cfg.PayoutsEnabled() {
		gateway = payment.NewRazorpayX(cfg.RazorpayXBaseURL, cfg.RazorpayXKeyID, cfg.RazorpayXKeySecret,
			cfg.RazorpayXAccountNumber, &http.Client{Timeout: 15 * time.Second})
	} else if cfg.IsProd() {
		logrus.Warn("RazorpayX credentials missing, payouts run against the sandbox")
	}

	router, err := api.NewRouter(api.Dependencies{
		Config:      cfg,
		DB:          gdb,
		Redis:       redisClient,
		OTP:         utils.NewOTPStore(redisClient, cfg.OTPTTL, cfg.OTPResendCooldown, cfg.OTPMaxAttempts),
		Notifier:    notifier,
		Broadcaster: notifier,
		Gateway:     gateway,
	})
	if err != nil {
		logrus.Fatalf("failed to build router: %v", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logrus.WithField("port", cfg.AppPort).Info("API server running") // Log server start
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logrus.Fatalf("server stopped: %v", err)
	}
	logrus.Info("API server stopped")
}
