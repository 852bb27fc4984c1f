package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"hearthledger/internal/backup"
	billingstripe "hearthledger/internal/billing/stripe"
	"hearthledger/internal/database"
	"hearthledger/internal/email"
	"hearthledger/internal/entitlement"
	"hearthledger/internal/logging"
	"hearthledger/internal/push"
	"hearthledger/internal/server"
)

func main() {
	// Load .env for local development; in production the environment is real.
	_ = godotenv.Load()

	logger := logging.Setup(os.Getenv("HEARTHLEDGER_LOG_LEVEL"), os.Getenv("HEARTHLEDGER_LOG_FORMAT"))

	port := os.Getenv("HEARTHLEDGER_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("HEARTHLEDGER_DB_PATH")
	if dbPath == "" {
		dbPath = "hearthledger.db"
	}

	baseURL := os.Getenv("HEARTHLEDGER_BASE_URL")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%s", port)
	}

	db, err := database.Open(dbPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	entCfg := entitlement.DefaultConfig()
	if d := envDays("HEARTHLEDGER_TRIAL_DAYS"); d > 0 {
		entCfg.TrialDuration = d
	}
	if d := envDays("HEARTHLEDGER_GRACE_DAYS"); d > 0 {
		entCfg.GracePeriod = d
	}

	emailClient := email.NewClient(os.Getenv("HEARTHLEDGER_POSTMARK_TOKEN"), os.Getenv("HEARTHLEDGER_FROM_EMAIL"))
	if !emailClient.Configured() {
		logger.Warn("email not configured, login codes will be logged instead of sent")
	}

	pushCfg := push.Config{
		VAPIDPublicKey:  os.Getenv("HEARTHLEDGER_VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("HEARTHLEDGER_VAPID_PRIVATE_KEY"),
	}
	if pushCfg.VAPIDPublicKey == "" || pushCfg.VAPIDPrivateKey == "" {
		// Push notifications stay off until the keys are persisted in the
		// environment; print a pair so the operator has one to persist.
		pub, priv, err := push.GenerateVAPIDKeys()
		if err != nil {
			logger.Error("generate VAPID keys", "error", err)
		} else {
			logger.Warn("push notifications disabled: VAPID keys not configured",
				"hint", "set HEARTHLEDGER_VAPID_PUBLIC_KEY and HEARTHLEDGER_VAPID_PRIVATE_KEY",
				"generated_public_key", pub,
				"generated_private_key", priv)
		}
	}

	cfg := server.Config{
		BaseURL:     baseURL,
		Entitlement: entCfg,
		Push:        pushCfg,
		Backup: backup.S3Config{
			Endpoint:  os.Getenv("HEARTHLEDGER_S3_ENDPOINT"),
			Bucket:    os.Getenv("HEARTHLEDGER_S3_BUCKET"),
			Region:    os.Getenv("HEARTHLEDGER_S3_REGION"),
			AccessKey: os.Getenv("HEARTHLEDGER_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("HEARTHLEDGER_S3_SECRET_KEY"),
		},
		Stripe: billingstripe.Config{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			PriceID:       os.Getenv("STRIPE_PRICE_ID"),
			AnnualPriceID: os.Getenv("STRIPE_ANNUAL_PRICE_ID"),
			SuccessURL:    baseURL + "/settings/billing?session_id={CHECKOUT_SESSION_ID}",
			CancelURL:     baseURL + "/settings/billing",
		},
	}

	srv := server.New(db, cfg, emailClient, logger)

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	// Hourly cleanup of expired sessions, spent login codes, and stale
	// rate-limit buckets.
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := srv.SessionStore().DeleteExpired(); err != nil {
					logger.Error("cleanup expired sessions", "error", err)
				} else if n > 0 {
					logger.Info("cleaned up expired sessions", "count", n)
				}
				if _, err := srv.LoginCodeStore().DeleteExpired(); err != nil {
					logger.Error("cleanup expired login codes", "error", err)
				}
				srv.RateLimiter().Cleanup()
			case <-bgCtx.Done():
				return
			}
		}
	}()

	// Periodic sweep materializing due recurring transactions, so standing
	// charges land even when nobody opens the app that day.
	go func() {
		ticker := time.NewTicker(15 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := srv.RecurringService().PostDueAll(time.Now().UTC()); err != nil {
					logger.Error("recurring sweep", "error", err)
				} else if n > 0 {
					logger.Info("posted recurring transactions", "count", n)
				}
			case <-bgCtx.Done():
				return
			}
		}
	}()

	// Notification scheduler: trial-ending warnings and streak reminders.
	if sched := srv.PushScheduler(); sched != nil {
		sched.Start(bgCtx)
		defer sched.Stop()
	}

	go func() {
		logger.Info("hearthledger starting", "addr", ":"+port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	bgCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

func envDays(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0
	}
	return time.Duration(n) * 24 * time.Hour
}
