package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aarogya-bot/internal/config"
	"aarogya-bot/internal/convo"
	"aarogya-bot/internal/handlers"
	"aarogya-bot/internal/httpserver"
	"aarogya-bot/internal/llm"
	"aarogya-bot/internal/logging"
	"aarogya-bot/internal/metrics"
	"aarogya-bot/internal/nudge"
	"aarogya-bot/internal/payments"
	"aarogya-bot/internal/session"
	"aarogya-bot/internal/store"
	"aarogya-bot/internal/wa"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting "+cfg.BotName, "env", cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	mongoStore, err := store.New(ctx, store.Config{
		URI:               cfg.MongoURI,
		AllowInvalidCerts: cfg.MongoAllowInvalidCerts,
	}, logger)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mongoStore.Close(closeCtx)
	}()
	if mongoStore.Configured() {
		if err := mongoStore.Ping(ctx); err != nil {
			logger.Warn("mongodb ping failed", "error", err)
		}
	}

	sessions, err := session.New(cfg.RedisURL, logger)
	if err != nil {
		return fmt.Errorf("init session store: %w", err)
	}
	defer func() {
		if err := sessions.Close(); err != nil {
			logger.Warn("failed closing redis", "error", err)
		}
	}()
	if err := sessions.Ping(ctx); err != nil {
		logger.Warn("redis ping failed", "error", err)
	}

	llmClient := llm.New(llm.Config{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		Timeout: cfg.LLMTimeout,
	}, logger, metricRegistry)

	razorpayClient := payments.New(payments.Config{
		KeyID:         cfg.RazorpayKeyID,
		KeySecret:     cfg.RazorpayKeySecret,
		WebhookSecret: cfg.RazorpayWebhookSecret,
	}, logger, metricRegistry)

	waClient := wa.New(wa.Config{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		From:       cfg.TwilioFrom,
	}, logger, metricRegistry)

	engine := convo.New(mongoStore, sessions, llmClient, razorpayClient, metricRegistry, logger, convo.EngineConfig{
		PaymentAmount:      cfg.ConsultAudioPrice,
		PaymentDescription: cfg.BotName + " consult",
	})

	webhookProcessor := handlers.NewPaymentWebhookProcessor(mongoStore, waClient, metricRegistry, logger)
	webhookHandler := payments.NewWebhookHandler(logger, metricRegistry, cfg.RazorpayWebhookSecret, webhookProcessor)

	nudger := nudge.New(mongoStore, waClient, metricRegistry, logger, nudge.Config{
		Threshold: time.Duration(cfg.NudgeHours) * time.Hour,
		Interval:  cfg.NudgeInterval,
		Text:      cfg.NudgeText,
	})
	go nudger.Run(ctx)

	httpSrv := httpserver.New(cfg.HTTPListenAddr, logger, metricRegistry, httpserver.Dependencies{
		Store:          mongoStore,
		Completer:      llmClient,
		Gateway:        razorpayClient,
		Engine:         engine,
		PaymentWebhook: webhookHandler,
	}, httpserver.Config{
		BotName:           cfg.BotName,
		ConsultAudioPrice: cfg.ConsultAudioPrice,
		ConsultVideoPrice: cfg.ConsultVideoPrice,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	return nil
}
