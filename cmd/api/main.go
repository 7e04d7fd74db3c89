package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"

	"github.com/evolvian/assistant-platform/cmd/mainconfig"
	"github.com/evolvian/assistant-platform/internal/api/router"
	"github.com/evolvian/assistant-platform/internal/appointments"
	"github.com/evolvian/assistant-platform/internal/assistant"
	"github.com/evolvian/assistant-platform/internal/calendar"
	"github.com/evolvian/assistant-platform/internal/channels"
	emailchannel "github.com/evolvian/assistant-platform/internal/channels/email"
	"github.com/evolvian/assistant-platform/internal/channels/webchat"
	"github.com/evolvian/assistant-platform/internal/channels/whatsapp"
	appconfig "github.com/evolvian/assistant-platform/internal/config"
	"github.com/evolvian/assistant-platform/internal/history"
	"github.com/evolvian/assistant-platform/internal/http/handlers"
	"github.com/evolvian/assistant-platform/internal/ingestion"
	"github.com/evolvian/assistant-platform/internal/intent"
	"github.com/evolvian/assistant-platform/internal/notify"
	"github.com/evolvian/assistant-platform/internal/observability/metrics"
	"github.com/evolvian/assistant-platform/internal/retrieval"
	"github.com/evolvian/assistant-platform/internal/settings"
	"github.com/evolvian/assistant-platform/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// Running without a .env file is normal in production.
		_ = err
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting assistant-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open postgres connection", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	// History: Postgres rows with a Redis session cache on top.
	var histStore history.Store = history.NewPostgresStore(db)
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient := redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, history cache disabled", "error", err)
		} else {
			histStore = history.NewCachedStore(histStore, redisClient, cfg.HistoryCacheTTL, logger)
		}
	}

	settingsStore := settings.NewStore(pool, cfg.SettingsCacheTTL, logger).
		WithDefaults(settings.TenantConfig{
			Temperature:  float32(cfg.DefaultTemperature),
			SessionLimit: cfg.SessionMessageCap,
		})

	// Retrieval + ingestion.
	openaiClient := openai.NewClient(cfg.OpenAIAPIKey)
	retriever := retrieval.NewEmbeddingStore(pool, openaiClient, cfg.OpenAIEmbedModel, cfg.RetrievalTopK, logger)

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	s3Client := s3.NewFromConfig(awsCfg)
	ingestSvc := ingestion.NewService(s3Client, cfg.DocumentsBucket, retrieval.NewChunker(0, 0), retriever, logger)

	// Calendar scheduling.
	loc, err := time.LoadLocation(cfg.CalendarTimezone)
	if err != nil {
		logger.Warn("invalid calendar timezone, falling back to UTC", "timezone", cfg.CalendarTimezone)
		loc = time.UTC
	}
	googleClient := calendar.NewGoogleClient(calendar.GoogleConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		Timeout:      cfg.ProviderTimeout,
	})
	resolver := calendar.NewResolver(calendar.NewIntegrationStore(pool), googleClient, loc, cfg.CalendarDaysAhead, logger)

	// Outbound email: SendGrid primary, SES fallback.
	var primarySender, secondarySender notify.EmailSender
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		primarySender = sg
	}
	if ses := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
		FromEmail: cfg.SESFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); ses != nil && cfg.SESFromEmail != "" {
		secondarySender = ses
	}
	var emailSender notify.EmailSender
	if primarySender == nil && secondarySender == nil {
		logger.Warn("no email provider configured, outbound email disabled")
		emailSender = notify.NewStubEmailSender(logger)
	} else {
		emailSender = notify.NewFailoverEmailSender(primarySender, secondarySender, logger)
	}
	notifySvc := notify.NewService(emailSender, notify.NewOwnerDirectory(pool, "", logger), logger)

	apptSvc := appointments.NewService(appointments.NewRepository(pool), resolver, notifySvc, logger)

	// LLM chain: OpenAI primary, Gemini fallback.
	primaryLLM, err := assistant.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIChatModel)
	if err != nil {
		logger.Error("failed to create OpenAI client", "error", err)
		os.Exit(1)
	}
	var llm assistant.LLMClient = primaryLLM
	if cfg.GeminiAPIKey != "" {
		gemini, err := assistant.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Warn("failed to create Gemini client, fallback disabled", "error", err)
		} else {
			defer func() { _ = gemini.Close() }()
			llm = assistant.NewFallbackLLMClient(primaryLLM, gemini, logger)
		}
	}

	composer := assistant.NewComposer(
		histStore,
		retriever,
		intent.NewKeywordClassifier(),
		resolver,
		apptSvc,
		settingsStore,
		llm,
		logger,
	).WithHistoryWindow(cfg.HistoryWindow)

	channelMetrics := metrics.NewChannelMetrics(nil)

	var widgetJS []byte
	if cfg.WidgetJSPath != "" {
		widgetJS, err = os.ReadFile(cfg.WidgetJSPath)
		if err != nil {
			logger.Warn("failed to read widget js", "path", cfg.WidgetJSPath, "error", err)
		}
	}

	webchatHandler := webchat.NewHandler(composer, histStore, widgetJS, logger)
	whatsappHandler := whatsapp.NewHandler(cfg.TwilioAuthToken, composer, channels.NewDirectory(pool), logger).
		WithMetrics(channelMetrics)
	emailHandler := emailchannel.NewHandler(composer, emailSender, logger).
		WithMetrics(channelMetrics)

	adminHandler := handlers.NewAdminHandler(histStore, nil, logger)
	if ingestSvc.Enabled() {
		adminHandler = handlers.NewAdminHandler(histStore, ingestSvc, logger)
	}

	r := router.New(&router.Config{
		Logger:              logger,
		WebchatHandler:      webchatHandler,
		WhatsAppHandler:     whatsappHandler,
		EmailHandler:        emailHandler,
		AppointmentsHandler: handlers.NewAppointmentsHandler(apptSvc, logger),
		AvailabilityHandler: handlers.NewAvailabilityHandler(resolver, logger),
		AdminHandler:        adminHandler,
		AdminAuthSecret:     cfg.AdminJWTSecret,
		MetricsHandler:      promhttp.Handler(),
		CORSAllowedOrigins:  splitOrigins(cfg.CORSAllowedOrigins),
		PublicRateLimit:     5,
		PublicRateBurst:     20,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			origins = append(origins, part)
		}
	}
	return origins
}
