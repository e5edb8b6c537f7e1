// The notification worker consumes budget-warning events and delivers them
// through out-of-band channels. Right now delivery is a structured log line;
// mail and push integrations plug in behind the same handler.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/config"
	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/events"
	applog "github.com/hiendinhngoc/AI-personal-finance-coach/internal/log"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()

	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Component: applog.ComponentWorker,
		JSON:      cfg.LogFormat == "json",
	})
	applog.SetDefault(logger)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the notification worker")
		os.Exit(1)
	}

	client, err := events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		err := client.ConsumeBudgetWarnings(ctx, func(warning *events.BudgetWarning) error {
			logger.Info("Delivering budget warning",
				"user_id", warning.UserID,
				"month", warning.Month,
				"remaining", warning.Remaining.String(),
				"total", warning.Total.String(),
				"message", warning.Message)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Event consumption failed", "error", err)
		}
		cancel()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	cancel()
	// Give the consumer a moment to ack in-flight deliveries
	time.Sleep(time.Second)
	logger.Info("Worker stopped")
}
