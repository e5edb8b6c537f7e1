package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	openai "github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"

	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/auth"
	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/cache"
	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/config"
	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/core"
	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/events"
	apphttp "github.com/hiendinhngoc/AI-personal-finance-coach/internal/http"
	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/llm"
	applog "github.com/hiendinhngoc/AI-personal-finance-coach/internal/log"
	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/services"
	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()

	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Component: applog.ComponentApp,
		JSON:      cfg.LogFormat == "json",
	})
	applog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	// Money fields serialize as JSON numbers, not strings
	decimal.MarshalJSONWithoutQuotes = true

	repo, err := storage.NewRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	authSvc := auth.NewService(repo, cfg.SessionTTL)

	chatClient := llm.NewClient(llm.ClientConfig{
		APIKey:  cfg.LLMAPIKey,
		BaseURL: cfg.LLMBaseURL,
		Model:   cfg.ChatModel,
		Timeout: cfg.LLMTimeout,
	})
	visionClient := llm.NewClient(llm.ClientConfig{
		APIKey:  cfg.LLMAPIKey,
		BaseURL: cfg.LLMBaseURL,
		Model:   cfg.VisionModel,
		Timeout: cfg.LLMTimeout,
	})

	conversations := cache.NewLRUCache[[]openai.ChatCompletionMessage](cfg.ChatThreadLimit, cfg.ChatThreadTTL)
	cacheManager := cache.NewManager()
	cacheManager.Register(conversations)
	cacheManager.StartCleanup(10 * time.Minute)
	defer cacheManager.Stop()

	gateway := llm.NewGateway(chatClient, visionClient, conversations)

	var publisher services.Publisher
	if cfg.AMQPURL != "" {
		client, err := events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		publisher = client
		logger.Info("Event publishing enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("Event publishing disabled - no AMQP_URL provided")
	}

	finance := services.NewFinance(repo, publisher)

	srv := apphttp.NewServer(apphttp.Options{
		Addr:           ":" + cfg.Port,
		Auth:           authSvc,
		Finance:        finance,
		AI:             gateway,
		Rates:          core.NewFixedRates(cfg.VNDPerUSD, cfg.EURPerUSD),
		Ready:          repo,
		Logger:         logger.WithComponent(applog.ComponentHTTP),
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Prune expired sessions in the background
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := repo.DeleteExpiredSessions(ctx); err != nil {
					logger.Error("Session cleanup failed", "error", err)
				} else if n > 0 {
					logger.Info("Expired sessions removed", "count", n)
				}
			}
		}
	}()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting server", "port", cfg.Port, "chat_model", cfg.ChatModel, "vision_model", cfg.VisionModel)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
