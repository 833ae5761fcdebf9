package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"devicepulse/internal/auth"
	"devicepulse/internal/config"
	"devicepulse/internal/events"
	"devicepulse/internal/liveness"
	"devicepulse/internal/observability/logging"
	"devicepulse/internal/observability/metrics"
	"devicepulse/internal/service"
	"devicepulse/internal/store"
	httptransport "devicepulse/internal/transport/http"
	mqtttransport "devicepulse/internal/transport/mqtt"
	"devicepulse/pkg/db"
)

func main() {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}

	logger := logging.NewLogger(logging.Config{
		ServiceName: "devicepulse",
		Environment: env,
		Level:       os.Getenv("LOG_LEVEL"),
	})

	slog.SetDefault(logger)
	metrics.MustRegister("devicepulse")

	logger.Info("starting service")

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.OpenGorm(db.Config{
		Driver:          cfg.DatabaseDriver,
		DSN:             cfg.DatabaseURL,
		LogSQL:          cfg.DBLogSQL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		logger.Error("gorm open", "driver", cfg.DatabaseDriver, "error", err)
		os.Exit(1)
	}

	st := store.New(gdb)
	if err := st.AutoMigrate(ctx); err != nil {
		logger.Error("auto migrate", "error", err)
		os.Exit(1)
	}

	notifiers := events.Multi{events.NewLogNotifier(logger)}
	var publisher *events.AMQPPublisher
	if cfg.AMQPURL != "" {
		publisher, err = events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			// Liveness events are best effort; keep collecting without them.
			logger.Warn("amqp unavailable, liveness events disabled", "error", err)
		} else {
			notifiers = append(notifiers, publisher)
		}
	}

	tracker := liveness.NewTracker(cfg.LivenessThreshold, liveness.WithNotifier(notifiers))
	go tracker.Run(ctx, cfg.LivenessSweepInterval)

	sessions, err := auth.NewSessionSignerFromBase64(cfg.SessionSigningKey, "devicepulse")
	if err != nil {
		logger.Error("session signer", "error", err)
		os.Exit(1)
	}
	if cfg.SessionSigningKey == "" {
		logger.Warn("SESSION_SIGNING_KEY not set, using an ephemeral key")
	}

	svc := service.New(st, tracker, service.Options{
		QueryTimeout: cfg.QueryTimeout,
		HistoryLimit: cfg.HistoryLimit,
		Sessions:     sessions,
		SessionTTL:   cfg.SessionTTL,
	})

	if cfg.DashboardUser != "" && cfg.DashboardPassword != "" {
		created, err := svc.SeedOperator(ctx, cfg.DashboardUser, cfg.DashboardPassword)
		if err != nil {
			logger.Error("seed operator", "username", cfg.DashboardUser, "error", err)
			os.Exit(1)
		}
		logger.Info("dashboard operator ready", "username", cfg.DashboardUser, "created", created)
	} else if cfg.DashboardRequireLogin {
		logger.Warn("DASHBOARD_REQUIRE_LOGIN set without DASHBOARD_USER/DASHBOARD_PASSWORD; only existing operators can log in")
	}

	var subscriber *mqtttransport.Subscriber
	if cfg.MQTTBrokerURL != "" {
		subscriber, err = mqtttransport.Connect(mqtttransport.Config{
			BrokerURL:     cfg.MQTTBrokerURL,
			Topic:         cfg.MQTTTopic,
			ClientID:      cfg.MQTTClientID,
			Username:      cfg.MQTTUsername,
			Password:      cfg.MQTTPassword,
			HandleTimeout: cfg.QueryTimeout,
		}, svc, logger)
		if err != nil {
			logger.Error("mqtt connect", "error", err)
			os.Exit(1)
		}
	}

	handler := httptransport.NewRouter(svc, httptransport.Options{
		CORSOrigins:    cfg.CORSOrigins,
		RequestTimeout: cfg.RequestTimeout,
		IngestPerMin:   cfg.IngestPerMin,
		Sessions:       sessions,
		SessionTTL:     cfg.SessionTTL,
		RequireLogin:   cfg.DashboardRequireLogin,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("devicepulse listening", "addr", cfg.Addr, "driver", cfg.DatabaseDriver,
			"liveness_threshold", cfg.LivenessThreshold, "sweep_interval", cfg.LivenessSweepInterval)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if subscriber != nil {
		subscriber.Close(2 * time.Second)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Warn("amqp close", "error", err)
		}
	}
	if sqlDB, err := gdb.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Info("stopped")
}
